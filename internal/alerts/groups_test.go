package alerts

import (
	"fmt"
	"testing"
	"time"

	"homepulse/internal/model"
)

func groupAlert(id string, sev model.Severity, ts time.Time) model.Alert {
	return model.Alert{
		ID:        id,
		Title:     "power_kwh threshold exceeded",
		Severity:  sev,
		Status:    model.StatusActive,
		Category:  model.CategoryThreshold,
		DeviceID:  "hvac",
		Metric:    "power_kwh",
		Timestamp: ts,
	}
}

func TestGroupMaterializesOnSecondAlert(t *testing.T) {
	g := NewGrouper(24*time.Hour, 50, 50)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	a1 := groupAlert("a1", model.SeverityHigh, base)
	grp, retro := g.Assign(&a1, base)
	if grp != nil || retro != "" || a1.GroupID != "" {
		t.Fatalf("a lone alert must stay ungrouped")
	}
	if g.OpenCount() != 0 {
		t.Fatalf("no group should exist yet")
	}

	a2 := groupAlert("a2", model.SeverityHigh, base.Add(time.Hour))
	grp, retro = g.Assign(&a2, base.Add(time.Hour))
	if grp == nil {
		t.Fatalf("second occurrence must create the group")
	}
	if retro != "a1" {
		t.Fatalf("first member must be reported for retroactive tagging, got %q", retro)
	}
	if a2.GroupID != grp.ID {
		t.Fatalf("second alert must carry the group id")
	}
	if grp.Count != 2 || len(grp.MemberIDs) != 2 {
		t.Fatalf("group must start with both members, got count=%d members=%d", grp.Count, len(grp.MemberIDs))
	}
	if !grp.FirstOccurrence.Equal(base) {
		t.Fatalf("first occurrence must be the first alert's timestamp")
	}
}

func TestGroupSeverityOnlyRises(t *testing.T) {
	g := NewGrouper(24*time.Hour, 50, 50)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	seq := []model.Severity{model.SeverityMedium, model.SeverityLow, model.SeverityHigh, model.SeverityLow}
	var grp *model.AlertGroup
	for i, sev := range seq {
		a := groupAlert(fmt.Sprintf("a%d", i), sev, base.Add(time.Duration(i)*time.Minute))
		grp, _ = g.Assign(&a, base.Add(time.Duration(i)*time.Minute))
	}
	if grp == nil {
		t.Fatalf("expected an open group")
	}
	if grp.Severity != model.SeverityHigh {
		t.Fatalf("group severity must be the running max, got %s", grp.Severity)
	}
	if grp.Count != 4 {
		t.Fatalf("count: expected 4, got %d", grp.Count)
	}
}

func TestGroupWindowCloses(t *testing.T) {
	g := NewGrouper(time.Hour, 50, 50)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		a := groupAlert(fmt.Sprintf("a%d", i), model.SeverityHigh, base.Add(time.Duration(i)*time.Minute))
		g.Assign(&a, base.Add(time.Duration(i)*time.Minute))
	}
	firstID := mustOpenGroupID(t, g)

	// Past the window: the old group closes and the newcomer starts over.
	late := base.Add(3 * time.Hour)
	a := groupAlert("a2", model.SeverityHigh, late)
	grp, _ := g.Assign(&a, late)
	if grp != nil || a.GroupID != "" {
		t.Fatalf("a late alert must start a fresh pending occurrence, not join the stale group")
	}
	if g.OpenCount() != 0 {
		t.Fatalf("stale group must be closed")
	}
	b := groupAlert("a3", model.SeverityHigh, late.Add(time.Minute))
	grp, _ = g.Assign(&b, late.Add(time.Minute))
	if grp == nil || grp.ID == firstID {
		t.Fatalf("recurrence after the gap must open a new group")
	}
	if grp.Count != 2 {
		t.Fatalf("new group restarts counting, got %d", grp.Count)
	}
}

func TestGroupMemberCapKeepsCount(t *testing.T) {
	g := NewGrouper(24*time.Hour, 5, 50)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	var grp *model.AlertGroup
	for i := 0; i < 12; i++ {
		a := groupAlert(fmt.Sprintf("a%d", i), model.SeverityLow, base.Add(time.Duration(i)*time.Minute))
		grp, _ = g.Assign(&a, base.Add(time.Duration(i)*time.Minute))
	}
	if grp.Count != 12 {
		t.Fatalf("count must keep the true total, got %d", grp.Count)
	}
	if len(grp.MemberIDs) != 5 {
		t.Fatalf("member ids must be capped at 5, got %d", len(grp.MemberIDs))
	}
	if grp.MemberIDs[len(grp.MemberIDs)-1] != "a11" {
		t.Fatalf("newest member must be retained, got %s", grp.MemberIDs[len(grp.MemberIDs)-1])
	}
}

func TestGroupSnoozeSuppressesNotifications(t *testing.T) {
	g := NewGrouper(24*time.Hour, 50, 50)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		a := groupAlert(fmt.Sprintf("a%d", i), model.SeverityHigh, base.Add(time.Duration(i)*time.Minute))
		g.Assign(&a, base.Add(time.Duration(i)*time.Minute))
	}
	id := mustOpenGroupID(t, g)

	until := base.Add(2 * time.Hour)
	if _, err := g.Snooze(id, &until); err != nil {
		t.Fatalf("snooze: %v", err)
	}
	if !g.Suppressed(id, base.Add(time.Hour)) {
		t.Fatalf("snoozed group must suppress notifications")
	}
	// Expiry lifts the suppression without an unsnooze call.
	if g.Suppressed(id, base.Add(3*time.Hour)) {
		t.Fatalf("expired snooze must not suppress")
	}

	if _, err := g.Unsnooze(id); err != nil {
		t.Fatalf("unsnooze: %v", err)
	}
	if g.Suppressed(id, base.Add(time.Hour)) {
		t.Fatalf("unsnoozed group must deliver again")
	}
}

func TestGroupKeySeparatesDevices(t *testing.T) {
	g := NewGrouper(24*time.Hour, 50, 50)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	a := groupAlert("a1", model.SeverityHigh, base)
	g.Assign(&a, base)
	b := groupAlert("b1", model.SeverityHigh, base.Add(time.Minute))
	b.DeviceID = "fridge"
	grp, _ := g.Assign(&b, base.Add(time.Minute))
	if grp != nil {
		t.Fatalf("same title on another device must not share a group")
	}
}

func TestGroupListOrder(t *testing.T) {
	g := NewGrouper(24*time.Hour, 50, 50)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for _, dev := range []string{"hvac", "fridge"} {
		for i := 0; i < 2; i++ {
			ts := base.Add(time.Duration(i) * time.Minute)
			if dev == "fridge" {
				ts = ts.Add(time.Hour)
			}
			a := groupAlert(dev+fmt.Sprintf("-%d", i), model.SeverityLow, ts)
			a.DeviceID = dev
			g.Assign(&a, ts)
		}
	}
	list := g.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 open groups, got %d", len(list))
	}
	if list[0].DeviceID != "fridge" {
		t.Fatalf("newest activity must sort first, got %s", list[0].DeviceID)
	}
}

func mustOpenGroupID(t *testing.T, g *Grouper) string {
	t.Helper()
	list := g.List()
	if len(list) == 0 {
		t.Fatalf("expected an open group")
	}
	return list[0].ID
}
