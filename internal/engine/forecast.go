package engine

import (
	"math"
	"time"

	"homepulse/internal/baseline"
	"homepulse/internal/model"
)

type trendFit struct {
	slope     float64 // units per second
	intercept float64 // value at the first point
	r2        float64
	lastX     float64
	lastValue float64
	lastTime  time.Time
}

// Forecast fits a least-squares trend over the most recent trendWindow
// points of a stream that is still under its ceiling, and projects when the
// ceiling will be crossed. It abstains on degenerate fits, non-positive
// slopes, streams already in breach and crossings outside the horizon. A
// forecast is never locked in; every new sample recomputes or withdraws it.
func Forecast(win *baseline.Window, tc model.ThresholdConfig, trendWindow int, horizon time.Duration, confidenceFloor int) (model.RawEvent, bool) {
	if win == nil || tc.Max == nil || trendWindow < 3 || win.Len() < trendWindow {
		return model.RawEvent{}, false
	}
	points := win.Tail(trendWindow)
	fit, ok := fitTrend(points)
	if !ok || fit.slope <= 0 {
		return model.RawEvent{}, false
	}
	if fit.lastValue >= *tc.Max {
		return model.RawEvent{}, false
	}

	crossX := (*tc.Max - fit.intercept) / fit.slope
	untilSec := crossX - fit.lastX
	if untilSec <= 0 {
		return model.RawEvent{}, false
	}
	until := time.Duration(untilSec * float64(time.Second))
	if until > horizon {
		return model.RawEvent{}, false
	}

	conf := forecastConfidence(fit.r2, until, horizon)
	if conf < confidenceFloor {
		return model.RawEvent{}, false
	}
	return model.RawEvent{
		Kind:              model.EventPredictive,
		DeviceID:          tc.DeviceID,
		Metric:            tc.Metric,
		Value:             fit.lastValue,
		Threshold:         *tc.Max,
		Confidence:        conf,
		Timestamp:         fit.lastTime,
		PredictedBreachAt: fit.lastTime.Add(until),
		TimeUntilBreach:   until,
	}, true
}

// fitTrend runs ordinary least squares with x in seconds since the first
// point. ok is false when time has zero variance.
func fitTrend(points []baseline.Point) (trendFit, bool) {
	n := float64(len(points))
	if n < 2 {
		return trendFit{}, false
	}
	t0 := points[0].Timestamp
	var sumX, sumY, sumXX, sumXY float64
	for _, p := range points {
		x := p.Timestamp.Sub(t0).Seconds()
		sumX += x
		sumY += p.Value
		sumXX += x * x
		sumXY += x * p.Value
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return trendFit{}, false
	}
	slope := (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n

	meanY := sumY / n
	var ssTot, ssRes float64
	for _, p := range points {
		x := p.Timestamp.Sub(t0).Seconds()
		pred := intercept + slope*x
		ssTot += (p.Value - meanY) * (p.Value - meanY)
		ssRes += (p.Value - pred) * (p.Value - pred)
	}
	r2 := 0.0
	if ssTot > 0 {
		r2 = 1 - ssRes/ssTot
	}
	last := points[len(points)-1]
	return trendFit{
		slope:     slope,
		intercept: intercept,
		r2:        r2,
		lastX:     last.Timestamp.Sub(t0).Seconds(),
		lastValue: last.Value,
		lastTime:  last.Timestamp,
	}, true
}

// forecastConfidence scales with fit quality and shrinks as the projected
// crossing moves further out.
func forecastConfidence(r2 float64, until, horizon time.Duration) int {
	if r2 < 0 {
		r2 = 0
	}
	frac := until.Seconds() / horizon.Seconds()
	if frac > 1 {
		frac = 1
	}
	conf := int(math.Round(r2 * 99 * (1 - 0.3*frac)))
	if conf > 99 {
		conf = 99
	}
	return conf
}
