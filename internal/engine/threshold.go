package engine

import (
	"math"

	"homepulse/internal/model"
)

// EvaluateThreshold checks one sample against its stream's threshold config.
// Hysteresis: once a stream is in breach, no further breach event fires
// until the value has returned inside [min,max] for a full sample, which
// emits a clear event and re-arms detection.
//
// The returned bool pair is (event emitted, stream now in breach).
func EvaluateThreshold(s model.MetricSample, tc model.ThresholdConfig, inBreach bool) (model.RawEvent, bool, bool) {
	over := tc.Max != nil && s.Value > *tc.Max
	under := tc.Min != nil && s.Value < *tc.Min

	if over || under {
		if inBreach {
			return model.RawEvent{}, false, true
		}
		limit := 0.0
		pct := 0
		if over {
			limit = *tc.Max
			pct = deviationPct(s.Value, limit)
		} else {
			limit = *tc.Min
			pct = floorDeviationPct(s.Value, limit)
		}
		return model.RawEvent{
			Kind:         model.EventBreach,
			DeviceID:     s.DeviceID,
			Metric:       s.Metric,
			Value:        s.Value,
			Threshold:    limit,
			DeviationPct: pct,
			Unit:         s.Unit,
			Timestamp:    s.Timestamp,
		}, true, true
	}

	if inBreach {
		limit := 0.0
		if tc.Max != nil {
			limit = *tc.Max
		} else if tc.Min != nil {
			limit = *tc.Min
		}
		return model.RawEvent{
			Kind:      model.EventClear,
			DeviceID:  s.DeviceID,
			Metric:    s.Metric,
			Value:     s.Value,
			Threshold: limit,
			Unit:      s.Unit,
			Timestamp: s.Timestamp,
		}, true, false
	}
	return model.RawEvent{}, false, false
}

// deviationPct is how far above a ceiling the value sits, in whole percent.
func deviationPct(value, threshold float64) int {
	if threshold == 0 {
		return 0
	}
	return int(math.Round((value - threshold) / math.Abs(threshold) * 100))
}

// floorDeviationPct is how far below a floor the value sits, in whole
// percent, reported as a positive number.
func floorDeviationPct(value, threshold float64) int {
	if threshold == 0 {
		return 0
	}
	return int(math.Round((threshold - value) / math.Abs(threshold) * 100))
}
