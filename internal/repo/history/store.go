package history

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ariellien/intervu-backend/pkg/types"
)

// storageKey names the record collection; finished sessions live as one
// JSON array under it.
const storageKey = "interview_sessions"

// Store persists finished session records. Dates round-trip through
// RFC 3339 to the second.
type Store struct {
	mu   sync.Mutex
	path string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{path: filepath.Join(dir, storageKey+".json")}, nil
}

// Save appends one finished session to the collection.
func (s *Store) Save(rec types.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.loadLocked()
	rec.Date = rec.Date.Truncate(time.Second)
	recs = append(recs, rec)
	raw, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// List returns all records, most recent first. A corrupt or missing file
// degrades to an empty history.
func (s *Store) List() []types.SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.loadLocked()
	sort.Slice(recs, func(i, j int) bool { return recs[i].Date.After(recs[j].Date) })
	return recs
}

func (s *Store) Get(id string) (types.SessionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.loadLocked() {
		if rec.ID == id {
			return rec, true
		}
	}
	return types.SessionRecord{}, false
}

func (s *Store) loadLocked() []types.SessionRecord {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("history: reading %s: %v", s.path, err)
		}
		return nil
	}
	var recs []types.SessionRecord
	if err := json.Unmarshal(raw, &recs); err != nil {
		log.Printf("history: corrupt store %s: %v", s.path, err)
		return nil
	}
	return recs
}

// Metrics aggregates the stored sessions for the dashboard surface.
func (s *Store) Metrics() types.PerformanceMetrics {
	recs := s.List()
	m := types.PerformanceMetrics{WeeklyActivity: weeklyActivity(recs, time.Now())}
	if len(recs) == 0 {
		return m
	}

	m.TotalInterviews = len(recs)
	var totalDur, totalScore int
	topicScores := map[string]struct {
		total, count int
	}{}
	topicSeen := map[string]bool{}
	for _, rec := range recs {
		totalDur += rec.Duration
		totalScore += rec.PerformanceScore
		for _, topic := range rec.Topics {
			entry := topicScores[topic]
			entry.total += rec.PerformanceScore
			entry.count++
			topicScores[topic] = entry
			if !topicSeen[topic] {
				topicSeen[topic] = true
				m.CompletedTopics = append(m.CompletedTopics, topic)
			}
		}
	}
	sort.Strings(m.CompletedTopics)
	m.AverageDuration = float64(totalDur) / float64(len(recs)) / 60
	m.AverageScore = float64(totalScore) / float64(len(recs))

	type topicAvg struct {
		topic string
		avg   float64
	}
	avgs := make([]topicAvg, 0, len(topicScores))
	for topic, entry := range topicScores {
		avgs = append(avgs, topicAvg{topic, float64(entry.total) / float64(entry.count)})
	}
	sort.Slice(avgs, func(i, j int) bool {
		if avgs[i].avg != avgs[j].avg {
			return avgs[i].avg > avgs[j].avg
		}
		return avgs[i].topic < avgs[j].topic
	})
	for i := 0; i < len(avgs) && i < 3; i++ {
		m.StrongestTopics = append(m.StrongestTopics, avgs[i].topic)
	}
	for i := len(avgs) - 1; i >= 0 && len(m.WeakestTopics) < 3; i-- {
		m.WeakestTopics = append(m.WeakestTopics, avgs[i].topic)
	}
	return m
}

// weeklyActivity buckets sessions per day over the trailing week.
func weeklyActivity(recs []types.SessionRecord, now time.Time) []types.ActivityEntry {
	days := make([]types.ActivityEntry, 0, 7)
	index := map[string]int{}
	for i := 6; i >= 0; i-- {
		d := now.AddDate(0, 0, -i).Format("2006-01-02")
		index[d] = len(days)
		days = append(days, types.ActivityEntry{Date: d})
	}
	for _, rec := range recs {
		if i, ok := index[rec.Date.Format("2006-01-02")]; ok {
			days[i].Count++
		}
	}
	return days
}
