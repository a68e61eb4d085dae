package logging

import (
	"io"
	"log"
	"os"

	"github.com/natefinch/lumberjack"
)

// Setup points the standard logger at stderr, plus a size-rotated file
// when path is non-empty.
func Setup(path string) {
	log.SetFlags(log.LstdFlags | log.Lmsgprefix)
	if path == "" {
		return
	}
	rot := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    20, // MB
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rot))
}
