package engine

import (
	"math"

	"homepulse/internal/baseline"
	"homepulse/internal/model"
)

// DetectAnomaly compares a sample against the trailing baseline of its
// stream. The window must hold at least minSamples points or the detector
// abstains; cold streams produce no false positives. The window is trailing,
// so callers evaluate before appending the current sample.
func DetectAnomaly(s model.MetricSample, win *baseline.Window, sigmaK float64, minSamples int) (model.RawEvent, bool) {
	if win == nil || win.Len() < minSamples {
		return model.RawEvent{}, false
	}
	mean, stddev := win.MeanStdDev()
	if stddev == 0 {
		// A flat baseline has no spread to measure against.
		return model.RawEvent{}, false
	}
	sigma := math.Abs(s.Value-mean) / stddev
	if sigma <= sigmaK {
		return model.RawEvent{}, false
	}
	return model.RawEvent{
		Kind:       model.EventAnomaly,
		DeviceID:   s.DeviceID,
		Metric:     s.Metric,
		Value:      s.Value,
		Threshold:  mean,
		Sigma:      sigma,
		Confidence: anomalyConfidence(sigma, sigmaK),
		Unit:       s.Unit,
		Timestamp:  s.Timestamp,
	}, true
}

// anomalyConfidence maps how far past the cutoff the sample lies into
// [50,99]. The cap at 99 is deliberate: a statistical detector is never
// certain.
func anomalyConfidence(sigma, sigmaK float64) int {
	excess := (sigma - sigmaK) / sigmaK
	if excess < 0 {
		excess = 0
	}
	if excess > 1 {
		excess = 1
	}
	return 50 + int(math.Round(excess*49))
}
