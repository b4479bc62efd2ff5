package analytics

import (
	"sort"
	"time"

	"homepulse/internal/model"
)

// Fixed presentation lookups. Colors and labels are table-driven so the
// dashboard never derives them.
var severityMeta = map[model.Severity]struct {
	Label string
	Color string
}{
	model.SeverityLow:      {Label: "Low", Color: "#22c55e"},
	model.SeverityMedium:   {Label: "Medium", Color: "#eab308"},
	model.SeverityHigh:     {Label: "High", Color: "#f97316"},
	model.SeverityCritical: {Label: "Critical", Color: "#ef4444"},
}

var categoryLabels = map[model.Category]string{
	model.CategoryThreshold:   "Threshold",
	model.CategoryAnomaly:     "Anomaly",
	model.CategoryPredictive:  "Predictive",
	model.CategoryDevice:      "Device",
	model.CategoryMaintenance: "Maintenance",
	model.CategorySystem:      "System",
}

var severityOrder = []model.Severity{
	model.SeverityCritical,
	model.SeverityHigh,
	model.SeverityMedium,
	model.SeverityLow,
}

var categoryOrder = []model.Category{
	model.CategoryThreshold,
	model.CategoryAnomaly,
	model.CategoryPredictive,
	model.CategoryDevice,
	model.CategoryMaintenance,
	model.CategorySystem,
}

const topDeviceLimit = 5

// Compute derives an AnalyticsSnapshot from an alert set and a time window.
// It is a pure function: full recomputation every call, no incremental
// state. Empty inputs degrade to zero counts and empty slices, never an
// error.
func Compute(alertSet []model.Alert, from, to, now time.Time) model.AnalyticsSnapshot {
	snap := model.AnalyticsSnapshot{
		WindowStart:       from,
		WindowEnd:         to,
		SeverityDist:      make([]model.SeveritySlice, 0, len(severityOrder)),
		CategoryBreakdown: make([]model.CategorySlice, 0, len(categoryOrder)),
		TopDevices:        make([]model.DeviceCount, 0),
		DailyTrend:        make([]model.TrendBucket, 0),
	}

	inWindow := make([]model.Alert, 0, len(alertSet))
	for _, a := range alertSet {
		if a.Timestamp.Before(from) || a.Timestamp.After(to) {
			continue
		}
		inWindow = append(inWindow, a)
	}
	snap.TotalAlerts = len(inWindow)

	sevCounts := make(map[model.Severity]int)
	catCounts := make(map[model.Category]int)
	devCounts := make(map[string]int)
	var responseSum time.Duration
	responseN := 0

	for _, a := range inWindow {
		switch a.EffectiveStatus(now) {
		case model.StatusActive:
			snap.ActiveAlerts++
		case model.StatusAcknowledged:
			snap.AcknowledgedAlerts++
		case model.StatusSnoozed:
			snap.SnoozedAlerts++
		case model.StatusResolved:
			snap.ResolvedAlerts++
		}
		sevCounts[a.Severity]++
		catCounts[a.Category]++
		devCounts[a.DeviceID]++
		// Never-acknowledged alerts are excluded from the mean, not counted
		// as zero.
		if a.AcknowledgedAt != nil {
			responseSum += a.AcknowledgedAt.Sub(a.Timestamp)
			responseN++
		}
	}

	if responseN > 0 {
		snap.AvgResponseSec = responseSum.Seconds() / float64(responseN)
	}

	for _, sev := range severityOrder {
		meta := severityMeta[sev]
		snap.SeverityDist = append(snap.SeverityDist, model.SeveritySlice{
			Severity: sev,
			Label:    meta.Label,
			Color:    meta.Color,
			Count:    sevCounts[sev],
		})
	}
	for _, cat := range categoryOrder {
		snap.CategoryBreakdown = append(snap.CategoryBreakdown, model.CategorySlice{
			Category: cat,
			Label:    categoryLabels[cat],
			Count:    catCounts[cat],
		})
	}

	devices := make([]model.DeviceCount, 0, len(devCounts))
	for id, n := range devCounts {
		devices = append(devices, model.DeviceCount{DeviceID: id, Count: n})
	}
	sort.Slice(devices, func(i, j int) bool {
		if devices[i].Count != devices[j].Count {
			return devices[i].Count > devices[j].Count
		}
		return devices[i].DeviceID < devices[j].DeviceID
	})
	if len(devices) > topDeviceLimit {
		devices = devices[:topDeviceLimit]
	}
	snap.TopDevices = devices

	snap.DailyTrend = dailyTrend(inWindow, from, to)
	return snap
}

// dailyTrend buckets alerts per calendar day and severity. Days without
// alerts are emitted as zero buckets so chart axes stay continuous.
func dailyTrend(alertSet []model.Alert, from, to time.Time) []model.TrendBucket {
	if to.Before(from) {
		return []model.TrendBucket{}
	}
	byDay := make(map[string]int)
	start := from.UTC().Truncate(24 * time.Hour)
	end := to.UTC().Truncate(24 * time.Hour)

	out := make([]model.TrendBucket, 0)
	for day := start; !day.After(end); day = day.Add(24 * time.Hour) {
		key := day.Format("2006-01-02")
		byDay[key] = len(out)
		out = append(out, model.TrendBucket{Date: key})
	}
	for _, a := range alertSet {
		idx, ok := byDay[a.Timestamp.UTC().Format("2006-01-02")]
		if !ok {
			continue
		}
		bucket := &out[idx]
		switch a.Severity {
		case model.SeverityLow:
			bucket.Low++
		case model.SeverityMedium:
			bucket.Medium++
		case model.SeverityHigh:
			bucket.High++
		case model.SeverityCritical:
			bucket.Critical++
		}
		bucket.Total++
	}
	return out
}
