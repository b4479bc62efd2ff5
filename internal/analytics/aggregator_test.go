package analytics

import (
	"fmt"
	"testing"
	"time"

	"homepulse/internal/model"
)

var windowStart = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func alertAt(id string, sev model.Severity, status model.Status, offset time.Duration) model.Alert {
	return model.Alert{
		ID:        id,
		Severity:  sev,
		Status:    status,
		Category:  model.CategoryThreshold,
		DeviceID:  "hvac",
		Metric:    "power_kwh",
		Timestamp: windowStart.Add(offset),
	}
}

func TestStatusPartition(t *testing.T) {
	now := windowStart.Add(72 * time.Hour)
	ack := windowStart.Add(time.Hour)
	snoozeUntil := now.Add(time.Hour)

	set := []model.Alert{
		alertAt("a1", model.SeverityHigh, model.StatusActive, time.Hour),
		alertAt("a2", model.SeverityLow, model.StatusResolved, 2*time.Hour),
		alertAt("a3", model.SeverityMedium, model.StatusAcknowledged, 3*time.Hour),
	}
	set[2].AcknowledgedAt = &ack
	snoozed := alertAt("a4", model.SeverityLow, model.StatusSnoozed, 4*time.Hour)
	snoozed.SnoozeUntil = &snoozeUntil
	set = append(set, snoozed)

	snap := Compute(set, windowStart, now, now)
	if snap.TotalAlerts != 4 {
		t.Fatalf("total: expected 4, got %d", snap.TotalAlerts)
	}
	sum := snap.ActiveAlerts + snap.AcknowledgedAlerts + snap.SnoozedAlerts + snap.ResolvedAlerts
	if sum != snap.TotalAlerts {
		t.Fatalf("status counts must partition the total: %d != %d", sum, snap.TotalAlerts)
	}
	if snap.ActiveAlerts != 1 || snap.SnoozedAlerts != 1 {
		t.Fatalf("partition: active=%d snoozed=%d", snap.ActiveAlerts, snap.SnoozedAlerts)
	}
}

func TestExpiredSnoozeCountsAsActive(t *testing.T) {
	now := windowStart.Add(72 * time.Hour)
	past := windowStart.Add(5 * time.Hour)
	a := alertAt("a1", model.SeverityLow, model.StatusSnoozed, time.Hour)
	a.SnoozeUntil = &past

	snap := Compute([]model.Alert{a}, windowStart, now, now)
	if snap.ActiveAlerts != 1 || snap.SnoozedAlerts != 0 {
		t.Fatalf("expired snooze must read as active: active=%d snoozed=%d", snap.ActiveAlerts, snap.SnoozedAlerts)
	}
}

func TestAvgResponseExcludesUnacked(t *testing.T) {
	now := windowStart.Add(72 * time.Hour)
	ack1 := windowStart.Add(time.Hour + 10*time.Minute)
	ack2 := windowStart.Add(2*time.Hour + 30*time.Minute)

	a1 := alertAt("a1", model.SeverityHigh, model.StatusAcknowledged, time.Hour)
	a1.AcknowledgedAt = &ack1
	a2 := alertAt("a2", model.SeverityHigh, model.StatusAcknowledged, 2*time.Hour)
	a2.AcknowledgedAt = &ack2
	a3 := alertAt("a3", model.SeverityHigh, model.StatusActive, 3*time.Hour)

	snap := Compute([]model.Alert{a1, a2, a3}, windowStart, now, now)
	// (10m + 30m) / 2 = 20 minutes.
	if snap.AvgResponseSec != 1200 {
		t.Fatalf("avg response: expected 1200s, got %v", snap.AvgResponseSec)
	}
}

func TestWindowFilter(t *testing.T) {
	now := windowStart.Add(72 * time.Hour)
	set := []model.Alert{
		alertAt("in", model.SeverityLow, model.StatusActive, time.Hour),
		alertAt("before", model.SeverityLow, model.StatusActive, -time.Hour),
		alertAt("after", model.SeverityLow, model.StatusActive, 100*time.Hour),
	}
	snap := Compute(set, windowStart, windowStart.Add(48*time.Hour), now)
	if snap.TotalAlerts != 1 {
		t.Fatalf("window filter: expected 1, got %d", snap.TotalAlerts)
	}
}

func TestSeverityDistIncludesZeroCounts(t *testing.T) {
	now := windowStart.Add(72 * time.Hour)
	snap := Compute([]model.Alert{
		alertAt("a1", model.SeverityCritical, model.StatusActive, time.Hour),
	}, windowStart, now, now)

	if len(snap.SeverityDist) != 4 {
		t.Fatalf("all severities must be present, got %d", len(snap.SeverityDist))
	}
	if snap.SeverityDist[0].Severity != model.SeverityCritical || snap.SeverityDist[0].Count != 1 {
		t.Fatalf("critical slice wrong: %+v", snap.SeverityDist[0])
	}
	if snap.SeverityDist[0].Color != "#ef4444" || snap.SeverityDist[0].Label != "Critical" {
		t.Fatalf("presentation metadata wrong: %+v", snap.SeverityDist[0])
	}
	for _, s := range snap.SeverityDist[1:] {
		if s.Count != 0 {
			t.Fatalf("expected zero count for %s", s.Severity)
		}
	}
	if len(snap.CategoryBreakdown) != 6 {
		t.Fatalf("all categories must be present, got %d", len(snap.CategoryBreakdown))
	}
}

func TestTopDevicesOrderAndLimit(t *testing.T) {
	now := windowStart.Add(72 * time.Hour)
	var set []model.Alert
	for d := 0; d < 7; d++ {
		for i := 0; i <= d; i++ {
			a := alertAt(fmt.Sprintf("d%d-%d", d, i), model.SeverityLow, model.StatusActive, time.Hour)
			a.DeviceID = fmt.Sprintf("dev%d", d)
			set = append(set, a)
		}
	}
	snap := Compute(set, windowStart, now, now)
	if len(snap.TopDevices) != 5 {
		t.Fatalf("top devices must be capped at 5, got %d", len(snap.TopDevices))
	}
	if snap.TopDevices[0].DeviceID != "dev6" || snap.TopDevices[0].Count != 7 {
		t.Fatalf("noisiest device first: %+v", snap.TopDevices[0])
	}
	for i := 1; i < len(snap.TopDevices); i++ {
		if snap.TopDevices[i].Count > snap.TopDevices[i-1].Count {
			t.Fatalf("top devices out of order at %d", i)
		}
	}
}

func TestDailyTrendZeroFills(t *testing.T) {
	now := windowStart.Add(7 * 24 * time.Hour)
	set := []model.Alert{
		alertAt("a1", model.SeverityHigh, model.StatusActive, 2*time.Hour),
		alertAt("a2", model.SeverityLow, model.StatusActive, 2*24*time.Hour),
		alertAt("a3", model.SeverityLow, model.StatusActive, 2*24*time.Hour+time.Hour),
	}
	snap := Compute(set, windowStart, windowStart.Add(6*24*time.Hour), now)
	if len(snap.DailyTrend) != 7 {
		t.Fatalf("expected 7 daily buckets, got %d", len(snap.DailyTrend))
	}
	if snap.DailyTrend[0].High != 1 || snap.DailyTrend[0].Total != 1 {
		t.Fatalf("day 0 bucket wrong: %+v", snap.DailyTrend[0])
	}
	if snap.DailyTrend[1].Total != 0 {
		t.Fatalf("empty day must be zero, got %+v", snap.DailyTrend[1])
	}
	if snap.DailyTrend[2].Low != 2 || snap.DailyTrend[2].Total != 2 {
		t.Fatalf("day 2 bucket wrong: %+v", snap.DailyTrend[2])
	}
	if snap.DailyTrend[0].Date != "2026-03-01" {
		t.Fatalf("bucket date: %s", snap.DailyTrend[0].Date)
	}
}

func TestEmptySetNeutralValues(t *testing.T) {
	now := windowStart.Add(time.Hour)
	snap := Compute(nil, windowStart, now, now)
	if snap.TotalAlerts != 0 || snap.AvgResponseSec != 0 {
		t.Fatalf("empty input must degrade to zeros: %+v", snap)
	}
	if snap.SeverityDist == nil || snap.TopDevices == nil || snap.DailyTrend == nil {
		t.Fatalf("slices must be empty, never nil")
	}
	if len(snap.DailyTrend) != 1 {
		t.Fatalf("a same-day window still emits its bucket, got %d", len(snap.DailyTrend))
	}
}
