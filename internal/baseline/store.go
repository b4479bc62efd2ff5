package baseline

import (
	"sync"
	"time"
)

// Stats is the published baseline for one stream, refreshed on every sample
// and served read-only to the dashboard.
type Stats struct {
	DeviceID  string    `json:"device_id"`
	Metric    string    `json:"metric_name"`
	Mean      float64   `json:"mean"`
	StdDev    float64   `json:"std_dev"`
	Slope     float64   `json:"slope_per_hour"`
	R2        float64   `json:"r2"`
	Samples   int       `json:"samples"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Store struct {
	mu       sync.RWMutex
	byStream map[string]Stats
	limit    int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 5000
	}
	return &Store{
		byStream: make(map[string]Stats),
		limit:    limit,
	}
}

func (s *Store) Update(key string, stats Stats) {
	if key == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byStream[key] = stats
	if len(s.byStream) > s.limit {
		s.evictOldest()
	}
}

func (s *Store) Get(key string) (Stats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats, ok := s.byStream[key]
	return stats, ok
}

func (s *Store) GetAll() map[string]Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Stats, len(s.byStream))
	for key, stats := range s.byStream {
		out[key] = stats
	}
	return out
}

func (s *Store) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, stats := range s.byStream {
		if oldestKey == "" || stats.UpdatedAt.Before(oldest) {
			oldestKey = key
			oldest = stats.UpdatedAt
		}
	}
	if oldestKey != "" {
		delete(s.byStream, oldestKey)
	}
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byStream = make(map[string]Stats)
}
