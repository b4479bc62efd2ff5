package model

import (
	"strings"
	"time"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

func ParseSeverity(v string) (Severity, bool) {
	switch Severity(strings.ToLower(strings.TrimSpace(v))) {
	case SeverityLow:
		return SeverityLow, true
	case SeverityMedium:
		return SeverityMedium, true
	case SeverityHigh:
		return SeverityHigh, true
	case SeverityCritical:
		return SeverityCritical, true
	}
	return "", false
}

type Status string

const (
	StatusActive       Status = "active"
	StatusAcknowledged Status = "acknowledged"
	StatusSnoozed      Status = "snoozed"
	StatusResolved     Status = "resolved"
)

type Category string

const (
	CategoryThreshold   Category = "threshold"
	CategoryAnomaly     Category = "anomaly"
	CategoryPredictive  Category = "predictive"
	CategoryDevice      Category = "device"
	CategoryMaintenance Category = "maintenance"
	CategorySystem      Category = "system"
)

type EventKind string

const (
	EventBreach     EventKind = "breach"
	EventClear      EventKind = "clear"
	EventAnomaly    EventKind = "anomaly"
	EventPredictive EventKind = "predictive"
)

// MetricSample is one reading from upstream telemetry. Samples are immutable
// and ordered by timestamp within a (device, metric) stream.
type MetricSample struct {
	DeviceID  string    `json:"device_id"`
	Metric    string    `json:"metric_name"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source,omitempty"`
}

func (s MetricSample) StreamKey() string {
	return s.DeviceID + "|" + s.Metric
}

// ThresholdConfig bounds a single metric stream. A nil Min or Max means that
// side is unbounded. Configs are disabled rather than deleted.
type ThresholdConfig struct {
	ID             string   `json:"id" yaml:"id"`
	DeviceID       string   `json:"device_id" yaml:"device_id"`
	Metric         string   `json:"metric_name" yaml:"metric_name"`
	Min            *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max            *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Enabled        bool     `json:"enabled" yaml:"enabled"`
	Severity       Severity `json:"severity,omitempty" yaml:"severity,omitempty"`
	NotifyChannels []string `json:"notify_channels,omitempty" yaml:"notify_channels,omitempty"`
}

func (t ThresholdConfig) Matches(deviceID, metric string) bool {
	return t.DeviceID == deviceID && t.Metric == metric
}

// RawEvent is the tagged union produced by the evaluator, detector and
// estimator. It is transient: the classifier turns it into an Alert and it is
// never persisted on its own.
type RawEvent struct {
	Kind              EventKind     `json:"kind"`
	DeviceID          string        `json:"device_id"`
	Metric            string        `json:"metric_name"`
	Value             float64       `json:"observed_value"`
	Threshold         float64       `json:"expected_or_threshold"`
	DeviationPct      int           `json:"deviation_pct"`
	Sigma             float64       `json:"sigma,omitempty"`
	Confidence        int           `json:"confidence,omitempty"`
	Unit              string        `json:"unit,omitempty"`
	Timestamp         time.Time     `json:"timestamp"`
	PredictedBreachAt time.Time     `json:"predicted_breach_at,omitempty"`
	TimeUntilBreach   time.Duration `json:"time_until_breach,omitempty"`
}

// Alert is the classified, user-facing unit. Content fields never change
// after creation; only status fields do, through the transitions in the
// alerts package.
type Alert struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Message        string     `json:"message"`
	Severity       Severity   `json:"severity"`
	Status         Status     `json:"status"`
	Category       Category   `json:"category"`
	DeviceID       string     `json:"device_id"`
	DeviceIcon     string     `json:"device_icon,omitempty"`
	Metric         string     `json:"metric_name"`
	Timestamp      time.Time  `json:"timestamp"`
	Value          float64    `json:"value,omitempty"`
	Threshold      float64    `json:"threshold,omitempty"`
	Unit           string     `json:"unit,omitempty"`
	Confidence     int        `json:"confidence,omitempty"`
	GroupID        string     `json:"group_id,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	SnoozeUntil    *time.Time `json:"snooze_until,omitempty"`
	Notifiable     bool       `json:"notifiable"`
	NotifyChannels []string   `json:"notify_channels,omitempty"`
}

// EffectiveStatus resolves snooze expiry lazily: a snoozed alert whose
// snooze_until has passed reads as active without a background timer.
func (a Alert) EffectiveStatus(now time.Time) Status {
	if a.Status == StatusSnoozed && a.SnoozeUntil != nil && !now.Before(*a.SnoozeUntil) {
		return StatusActive
	}
	return a.Status
}

// AlertGroup clusters recurring alerts for one (device, category, title)
// key. Count may exceed len(MemberIDs): old member IDs are pruned to bound
// memory while the count keeps the true total.
type AlertGroup struct {
	ID              string     `json:"group_id"`
	Title           string     `json:"title"`
	DeviceID        string     `json:"device_id"`
	Category        Category   `json:"category"`
	Severity        Severity   `json:"severity"`
	Count           int        `json:"count"`
	FirstOccurrence time.Time  `json:"first_occurrence"`
	LastOccurrence  time.Time  `json:"last_occurrence"`
	Snoozed         bool       `json:"snoozed"`
	SnoozeUntil     *time.Time `json:"snooze_until,omitempty"`
	MemberIDs       []string   `json:"member_alert_ids"`
}

// SnoozeActive reports whether notification delivery is currently suppressed
// for the group.
func (g AlertGroup) SnoozeActive(now time.Time) bool {
	if !g.Snoozed {
		return false
	}
	if g.SnoozeUntil != nil && !now.Before(*g.SnoozeUntil) {
		return false
	}
	return true
}

type SeveritySlice struct {
	Severity Severity `json:"severity"`
	Label    string   `json:"label"`
	Color    string   `json:"color"`
	Count    int      `json:"count"`
}

type CategorySlice struct {
	Category Category `json:"category"`
	Label    string   `json:"label"`
	Count    int      `json:"count"`
}

type DeviceCount struct {
	DeviceID string `json:"device_id"`
	Count    int    `json:"count"`
}

type TrendBucket struct {
	Date     string `json:"date"`
	Low      int    `json:"low"`
	Medium   int    `json:"medium"`
	High     int    `json:"high"`
	Critical int    `json:"critical"`
	Total    int    `json:"total"`
}

// AnalyticsSnapshot is a pure function of (window, alert set), recomputed in
// full on demand and never stored.
type AnalyticsSnapshot struct {
	WindowStart        time.Time       `json:"window_start"`
	WindowEnd          time.Time       `json:"window_end"`
	TotalAlerts        int             `json:"total_alerts"`
	ActiveAlerts       int             `json:"active_alerts"`
	AcknowledgedAlerts int             `json:"acknowledged_alerts"`
	SnoozedAlerts      int             `json:"snoozed_alerts"`
	ResolvedAlerts     int             `json:"resolved_alerts"`
	AvgResponseSec     float64         `json:"avg_response_sec"`
	SeverityDist       []SeveritySlice `json:"severity_distribution"`
	CategoryBreakdown  []CategorySlice `json:"category_breakdown"`
	TopDevices         []DeviceCount   `json:"top_devices"`
	DailyTrend         []TrendBucket   `json:"daily_trend"`
}
