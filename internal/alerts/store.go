package alerts

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"homepulse/internal/model"
)

var (
	ErrNotFound          = errors.New("alert not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Repository is the only surface through which alert lifecycles are read or
// changed. Any storage can sit behind it; the in-memory Store below is the
// household-scale default.
type Repository interface {
	Insert(a model.Alert)
	Get(id string) (model.Alert, bool)
	List(f Filter) []model.Alert
	All() []model.Alert
	Transition(id string, to model.Status, now time.Time) (model.Alert, error)
	Snooze(id string, until time.Time, now time.Time) (model.Alert, error)
	SetGroupID(id, groupID string)
	ResolveMatching(deviceID, metric string, cat model.Category, now time.Time) []model.Alert
	Clear()
}

type Filter struct {
	Status   model.Status
	Severity model.Severity
	DeviceID string
	Since    time.Time
	Limit    int
}

// Store is a bounded in-memory repository. When full it drops the oldest
// alert; count-based analytics over the retained window stay consistent
// because the aggregator always recomputes from what is here.
type Store struct {
	mu    sync.RWMutex
	byID  map[string]int
	buf   []model.Alert
	limit int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 1000
	}
	return &Store{byID: make(map[string]int), limit: limit}
}

var _ Repository = (*Store)(nil)

func (s *Store) Insert(a model.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) >= s.limit {
		delete(s.byID, s.buf[0].ID)
		copy(s.buf, s.buf[1:])
		s.buf = s.buf[:len(s.buf)-1]
		for id, idx := range s.byID {
			s.byID[id] = idx - 1
		}
	}
	s.byID[a.ID] = len(s.buf)
	s.buf = append(s.buf, a)
}

func (s *Store) Get(id string) (model.Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[id]
	if !ok {
		return model.Alert{}, false
	}
	return s.buf[idx], true
}

func (s *Store) All() []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Alert, len(s.buf))
	copy(out, s.buf)
	return out
}

func (s *Store) List(f Filter) []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now().UTC()
	out := make([]model.Alert, 0)
	for i := len(s.buf) - 1; i >= 0; i-- {
		a := s.buf[i]
		if f.Status != "" && a.EffectiveStatus(now) != f.Status {
			continue
		}
		if f.Severity != "" && a.Severity != f.Severity {
			continue
		}
		if f.DeviceID != "" && a.DeviceID != f.DeviceID {
			continue
		}
		if !f.Since.IsZero() && a.Timestamp.Before(f.Since) {
			continue
		}
		out = append(out, a)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

// Transition applies the alert state machine:
//
//	active -> acknowledged -> resolved
//	active <-> snoozed (via Snooze / unsnooze)
//
// resolved is terminal. Snooze expiry is resolved lazily before the rules
// run, so acknowledging an expired snooze behaves as acknowledging an active
// alert.
func (s *Store) Transition(id string, to model.Status, now time.Time) (model.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byID[id]
	if !ok {
		return model.Alert{}, ErrNotFound
	}
	a := s.buf[idx]
	from := a.EffectiveStatus(now)
	if !canTransition(from, to) {
		return model.Alert{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	a.Status = to
	switch to {
	case model.StatusAcknowledged:
		if a.AcknowledgedAt == nil {
			ts := now
			a.AcknowledgedAt = &ts
		}
		a.SnoozeUntil = nil
	case model.StatusResolved:
		ts := now
		a.ResolvedAt = &ts
		a.SnoozeUntil = nil
	case model.StatusActive:
		a.SnoozeUntil = nil
	}
	s.buf[idx] = a
	return a, nil
}

func (s *Store) Snooze(id string, until time.Time, now time.Time) (model.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byID[id]
	if !ok {
		return model.Alert{}, ErrNotFound
	}
	a := s.buf[idx]
	if a.EffectiveStatus(now) != model.StatusActive {
		return model.Alert{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, model.StatusSnoozed)
	}
	a.Status = model.StatusSnoozed
	a.SnoozeUntil = &until
	s.buf[idx] = a
	return a, nil
}

func (s *Store) SetGroupID(id, groupID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.byID[id]; ok {
		s.buf[idx].GroupID = groupID
	}
}

// ResolveMatching resolves every open alert for a stream and category. Used
// when a clear event re-arms a threshold: the condition is over, so its
// alerts are too.
func (s *Store) ResolveMatching(deviceID, metric string, cat model.Category, now time.Time) []model.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	resolved := make([]model.Alert, 0)
	for i := range s.buf {
		a := s.buf[i]
		if a.DeviceID != deviceID || a.Metric != metric || a.Category != cat {
			continue
		}
		if a.Status == model.StatusResolved {
			continue
		}
		ts := now
		a.Status = model.StatusResolved
		a.ResolvedAt = &ts
		a.SnoozeUntil = nil
		s.buf[i] = a
		resolved = append(resolved, a)
	}
	return resolved
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = nil
	s.byID = make(map[string]int)
}

func canTransition(from, to model.Status) bool {
	if from == model.StatusResolved {
		return false
	}
	switch to {
	case model.StatusAcknowledged:
		return from == model.StatusActive || from == model.StatusSnoozed
	case model.StatusResolved:
		return true
	case model.StatusActive:
		// Manual unsnooze.
		return from == model.StatusSnoozed
	}
	return false
}
