package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port           string
	GroqAPIKey     string
	GeminiAPIKey   string
	ChatModel      string
	WhisperModel   string
	TTSModel       string
	TTSVoice       string
	GeminiModel    string
	SessionMinutes int
	HistoryDir     string
	LogFile        string
}

func Load() Config {
	return Config{
		Port:           getenv("PORT", "8080"),
		GroqAPIKey:     getenv("GROQ_API_KEY", ""),
		GeminiAPIKey:   getenv("GEMINI_API_KEY", ""),
		ChatModel:      getenv("CHAT_MODEL", "qwen-qwq-32b"),
		WhisperModel:   getenv("WHISPER_MODEL", "whisper-large-v3-turbo"),
		TTSModel:       getenv("TTS_MODEL", "playai-tts"),
		TTSVoice:       getenv("TTS_VOICE", "Arista-PlayAI"),
		GeminiModel:    getenv("GEMINI_MODEL", "gemini-2.0-flash"),
		SessionMinutes: getint("SESSION_MINUTES", 30),
		HistoryDir:     getenv("HISTORY_DIR", "data"),
		LogFile:        getenv("LOG_FILE", ""),
	}
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getint(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return d
}
