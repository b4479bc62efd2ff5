package normalize

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"homepulse/internal/model"
)

// SampleFields is the loose, pre-validation form of a metric sample as it
// arrives off the wire. Every field is still a string; Normalize turns it
// into a model.MetricSample or rejects it.
type SampleFields struct {
	Timestamp string
	DeviceID  string
	Metric    string
	Value     string
	Unit      string
	Extras    map[string]string
	Raw       string
}

var (
	ErrMissingDevice = errors.New("missing device_id")
	ErrMissingMetric = errors.New("missing metric_name")
	ErrBadValue      = errors.New("missing or non-finite value")
)

// Normalize validates raw fields into a MetricSample. A bad sample comes
// back as an error for the caller to log and drop; it never reaches a
// detector or baseline window.
func Normalize(fields SampleFields) (model.MetricSample, error) {
	device := strings.TrimSpace(fields.DeviceID)
	if device == "" {
		return model.MetricSample{}, ErrMissingDevice
	}
	metric := strings.TrimSpace(fields.Metric)
	if metric == "" {
		return model.MetricSample{}, ErrMissingMetric
	}

	raw := strings.TrimSpace(fields.Value)
	if raw == "" {
		return model.MetricSample{}, ErrBadValue
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return model.MetricSample{}, fmt.Errorf("%w: %q", ErrBadValue, raw)
	}

	ts := time.Now().UTC()
	if fields.Timestamp != "" {
		parsed, err := ParseTimestamp(fields.Timestamp)
		if err != nil {
			return model.MetricSample{}, fmt.Errorf("parse timestamp: %w", err)
		}
		ts = parsed.UTC()
	}

	return model.MetricSample{
		DeviceID:  device,
		Metric:    metric,
		Value:     value,
		Unit:      strings.TrimSpace(fields.Unit),
		Timestamp: ts,
	}, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
}

func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if isNumeric(value) {
		if ts, err := parseUnix(value); err == nil {
			return ts, nil
		}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", value)
}

func isNumeric(value string) bool {
	for _, ch := range value {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return len(value) > 0
}

func parseUnix(value string) (time.Time, error) {
	if len(value) >= 13 {
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(0, ms*int64(time.Millisecond)).UTC(), nil
	}
	sec, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}
