package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"homepulse/internal/config"
	"homepulse/internal/model"
)

// Classify assigns severity to a raw event. It is a pure function of the
// event, the matching threshold config and the detection tunables, and it is
// the single source of truth for severity: nothing downstream recomputes it.
//
// Precedence, highest first:
//   - critical: breach with deviation at or past the critical band, or a
//     safety-capped metric over its hard cap
//   - high: breach inside the 0..critical band, or anomaly confidence at or
//     past the high cutoff
//   - medium: predictive warnings and anomalies in the medium band
//   - low: everything else
func Classify(ev model.RawEvent, tc model.ThresholdConfig, det config.DetectionConfig) model.Severity {
	var sev model.Severity
	switch ev.Kind {
	case model.EventBreach:
		if ev.DeviationPct >= det.CriticalDeviationPct {
			sev = model.SeverityCritical
		} else if cap, ok := det.SafetyCaps[ev.Metric]; ok && ev.Value > cap {
			sev = model.SeverityCritical
		} else {
			sev = model.SeverityHigh
		}
	case model.EventAnomaly:
		switch {
		case ev.Confidence >= det.HighConfidence:
			sev = model.SeverityHigh
		case ev.Confidence >= det.MediumConfidence:
			sev = model.SeverityMedium
		default:
			sev = model.SeverityLow
		}
	case model.EventPredictive:
		if ev.Confidence >= det.MediumConfidence {
			sev = model.SeverityMedium
		} else {
			sev = model.SeverityLow
		}
	default:
		sev = model.SeverityLow
	}
	// A user severity override on the threshold acts as a floor, never a
	// reduction.
	if tc.Severity != "" && ev.Kind == model.EventBreach {
		sev = model.MaxSeverity(sev, tc.Severity)
	}
	return sev
}

// TitleFor is the alert title template. It doubles as the third component of
// the grouping key, so it must depend only on (kind, metric), never on the
// observed values.
func TitleFor(kind model.EventKind, metric string) string {
	switch kind {
	case model.EventBreach:
		return fmt.Sprintf("%s threshold exceeded", metric)
	case model.EventAnomaly:
		return fmt.Sprintf("Unusual %s reading", metric)
	case model.EventPredictive:
		return fmt.Sprintf("Projected %s threshold breach", metric)
	}
	return metric
}

// deviceIcons is a fixed presentation lookup keyed by metric prefix. The
// dashboard renders the icon as-is; unknown metrics get the generic gauge.
var deviceIcons = map[string]string{
	"power":       "zap",
	"energy":      "zap",
	"water":       "droplet",
	"temperature": "thermometer",
	"humidity":    "cloud",
	"gas":         "flame",
	"vibration":   "activity",
}

func iconFor(metric string) string {
	for prefix, icon := range deviceIcons {
		if strings.HasPrefix(metric, prefix) {
			return icon
		}
	}
	return "gauge"
}

func categoryFor(kind model.EventKind) model.Category {
	switch kind {
	case model.EventBreach:
		return model.CategoryThreshold
	case model.EventAnomaly:
		return model.CategoryAnomaly
	case model.EventPredictive:
		return model.CategoryPredictive
	}
	return model.CategorySystem
}

// BuildAlert turns a classified raw event into a new Alert row. Corrections
// never mutate an existing alert; a recurring condition creates a fresh one.
func BuildAlert(ev model.RawEvent, tc model.ThresholdConfig, det config.DetectionConfig) model.Alert {
	sev := Classify(ev, tc, det)
	a := model.Alert{
		ID:             uuid.NewString(),
		Title:          TitleFor(ev.Kind, ev.Metric),
		Message:        messageFor(ev),
		Severity:       sev,
		Status:         model.StatusActive,
		Category:       categoryFor(ev.Kind),
		DeviceID:       ev.DeviceID,
		DeviceIcon:     iconFor(ev.Metric),
		Metric:         ev.Metric,
		Timestamp:      ev.Timestamp,
		Value:          ev.Value,
		Threshold:      ev.Threshold,
		Unit:           ev.Unit,
		Confidence:     ev.Confidence,
		NotifyChannels: tc.NotifyChannels,
	}
	return a
}

func messageFor(ev model.RawEvent) string {
	switch ev.Kind {
	case model.EventBreach:
		return fmt.Sprintf("%s on %s is %.2f%s, %d%% past the %.2f%s limit",
			ev.Metric, ev.DeviceID, ev.Value, ev.Unit, ev.DeviationPct, ev.Threshold, ev.Unit)
	case model.EventAnomaly:
		return fmt.Sprintf("%s on %s is %.2f%s against an expected %.2f%s (%.1f sigma, confidence %d)",
			ev.Metric, ev.DeviceID, ev.Value, ev.Unit, ev.Threshold, ev.Unit, ev.Sigma, ev.Confidence)
	case model.EventPredictive:
		return fmt.Sprintf("%s on %s is trending toward its %.2f limit, projected breach in %s (confidence %d)",
			ev.Metric, ev.DeviceID, ev.Threshold, ev.TimeUntilBreach.Round(time.Minute), ev.Confidence)
	}
	return ""
}
