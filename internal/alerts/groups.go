package alerts

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"homepulse/internal/model"
)

// Grouper clusters recurring alerts for the same (device, category, title)
// key so a flapping condition produces one growing group instead of a
// notification storm.
//
// A group is only materialized when the second matching alert arrives inside
// the grouping window; a lone alert stays ungrouped. A group that has seen
// no new member for a full window is closed, and a later matching alert
// starts a fresh group rather than reopening a stale one.
type Grouper struct {
	mu        sync.Mutex
	open      map[string]*model.AlertGroup
	pending   map[string]pendingMember
	closed    []model.AlertGroup
	window    time.Duration
	memberCap int
	limit     int
}

type pendingMember struct {
	alertID  string
	severity model.Severity
	ts       time.Time
}

func NewGrouper(window time.Duration, memberCap, closedLimit int) *Grouper {
	if window <= 0 {
		window = 24 * time.Hour
	}
	if memberCap <= 0 {
		memberCap = 50
	}
	if closedLimit <= 0 {
		closedLimit = 200
	}
	return &Grouper{
		open:      make(map[string]*model.AlertGroup),
		pending:   make(map[string]pendingMember),
		window:    window,
		memberCap: memberCap,
		limit:     closedLimit,
	}
}

// GroupKey builds the clustering key. DeviceID is part of the key, so
// cross-device collisions are impossible by construction.
func GroupKey(deviceID string, cat model.Category, title string) string {
	return deviceID + "|" + string(cat) + "|" + title
}

// Assign places an alert into its group. It sets a.GroupID when the alert
// joins or creates a group, and returns the group plus the ID of a prior
// ungrouped alert that was retroactively pulled in (so the caller can tag
// it too). Both returns are zero for a first occurrence.
func (g *Grouper) Assign(a *model.Alert, now time.Time) (*model.AlertGroup, string) {
	key := GroupKey(a.DeviceID, a.Category, a.Title)
	g.mu.Lock()
	defer g.mu.Unlock()

	if grp, ok := g.open[key]; ok {
		if grp.DeviceID != a.DeviceID {
			panic(fmt.Sprintf("alert group key collision: %q held by device %q, got %q", key, grp.DeviceID, a.DeviceID))
		}
		if now.Sub(grp.LastOccurrence) > g.window {
			g.closeLocked(key, grp)
		} else {
			g.appendLocked(grp, a)
			out := *grp
			return &out, ""
		}
	}

	if p, ok := g.pending[key]; ok {
		if now.Sub(p.ts) <= g.window {
			delete(g.pending, key)
			grp := &model.AlertGroup{
				ID:              uuid.NewString(),
				Title:           a.Title,
				DeviceID:        a.DeviceID,
				Category:        a.Category,
				Severity:        model.MaxSeverity(p.severity, a.Severity),
				Count:           2,
				FirstOccurrence: p.ts,
				LastOccurrence:  a.Timestamp,
				MemberIDs:       []string{p.alertID, a.ID},
			}
			g.open[key] = grp
			a.GroupID = grp.ID
			out := *grp
			return &out, p.alertID
		}
		// Stale single occurrence, start over.
	}
	g.pending[key] = pendingMember{alertID: a.ID, severity: a.Severity, ts: a.Timestamp}
	return nil, ""
}

func (g *Grouper) appendLocked(grp *model.AlertGroup, a *model.Alert) {
	grp.Count++
	grp.LastOccurrence = a.Timestamp
	// Severity only ever rises within a window.
	grp.Severity = model.MaxSeverity(grp.Severity, a.Severity)
	grp.MemberIDs = append(grp.MemberIDs, a.ID)
	if len(grp.MemberIDs) > g.memberCap {
		grp.MemberIDs = grp.MemberIDs[len(grp.MemberIDs)-g.memberCap:]
	}
	a.GroupID = grp.ID
}

func (g *Grouper) closeLocked(key string, grp *model.AlertGroup) {
	delete(g.open, key)
	g.closed = append(g.closed, *grp)
	if len(g.closed) > g.limit {
		g.closed = g.closed[len(g.closed)-g.limit:]
	}
}

func (g *Grouper) Get(groupID string) (model.AlertGroup, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, grp := range g.open {
		if grp.ID == groupID {
			return *grp, true
		}
	}
	for _, grp := range g.closed {
		if grp.ID == groupID {
			return grp, true
		}
	}
	return model.AlertGroup{}, false
}

// List returns open groups first, newest activity first, then closed ones.
func (g *Grouper) List() []model.AlertGroup {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]model.AlertGroup, 0, len(g.open)+len(g.closed))
	for _, grp := range g.open {
		out = append(out, *grp)
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].LastOccurrence.After(out[i].LastOccurrence) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	for i := len(g.closed) - 1; i >= 0; i-- {
		out = append(out, g.closed[i])
	}
	return out
}

// Snooze suppresses notification delivery for a group. It does not touch
// member alert statuses; snooze is a notification concern layered over alert
// state, not a replacement for acknowledgment.
func (g *Grouper) Snooze(groupID string, until *time.Time) (model.AlertGroup, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, grp := range g.open {
		if grp.ID == groupID {
			grp.Snoozed = true
			grp.SnoozeUntil = until
			return *grp, nil
		}
	}
	return model.AlertGroup{}, ErrNotFound
}

func (g *Grouper) Unsnooze(groupID string) (model.AlertGroup, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, grp := range g.open {
		if grp.ID == groupID {
			grp.Snoozed = false
			grp.SnoozeUntil = nil
			return *grp, nil
		}
	}
	return model.AlertGroup{}, ErrNotFound
}

// Suppressed reports whether a group is currently muting notifications.
func (g *Grouper) Suppressed(groupID string, now time.Time) bool {
	if groupID == "" {
		return false
	}
	grp, ok := g.Get(groupID)
	if !ok {
		return false
	}
	return grp.SnoozeActive(now)
}

func (g *Grouper) OpenCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.open)
}

func (g *Grouper) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.open = make(map[string]*model.AlertGroup)
	g.pending = make(map[string]pendingMember)
	g.closed = nil
}
