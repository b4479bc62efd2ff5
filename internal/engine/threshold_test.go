package engine

import (
	"testing"
	"time"

	"homepulse/internal/model"
)

func f64(v float64) *float64 {
	return &v
}

func sampleAt(value float64, i int) model.MetricSample {
	return model.MetricSample{
		DeviceID:  "hvac",
		Metric:    "power_kwh",
		Value:     value,
		Unit:      "kWh",
		Timestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute),
	}
}

func TestBreachHysteresis(t *testing.T) {
	tc := model.ThresholdConfig{ID: "t1", DeviceID: "hvac", Metric: "power_kwh", Max: f64(10), Enabled: true}
	values := []float64{9, 11, 12, 10.5, 13}
	inBreach := false
	breaches := 0
	for i, v := range values {
		ev, emitted, nowInBreach := EvaluateThreshold(sampleAt(v, i), tc, inBreach)
		inBreach = nowInBreach
		if emitted && ev.Kind == model.EventBreach {
			breaches++
		}
	}
	if breaches != 1 {
		t.Fatalf("expected exactly 1 breach event, got %d", breaches)
	}
	if !inBreach {
		t.Fatalf("stream should still be in breach")
	}
}

func TestClearReArmsBreach(t *testing.T) {
	tc := model.ThresholdConfig{ID: "t1", DeviceID: "hvac", Metric: "power_kwh", Max: f64(10), Enabled: true}
	values := []float64{11, 9.5, 12}
	inBreach := false
	var kinds []model.EventKind
	for i, v := range values {
		ev, emitted, nowInBreach := EvaluateThreshold(sampleAt(v, i), tc, inBreach)
		inBreach = nowInBreach
		if emitted {
			kinds = append(kinds, ev.Kind)
		}
	}
	want := []model.EventKind{model.EventBreach, model.EventClear, model.EventBreach}
	if len(kinds) != len(want) {
		t.Fatalf("expected %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], kinds[i])
		}
	}
}

func TestBreachDeviationPct(t *testing.T) {
	tc := model.ThresholdConfig{ID: "t1", DeviceID: "hvac", Metric: "power_kwh", Max: f64(10), Enabled: true}
	ev, emitted, _ := EvaluateThreshold(sampleAt(10.4, 0), tc, false)
	if !emitted {
		t.Fatalf("expected breach")
	}
	if ev.DeviationPct != 4 {
		t.Fatalf("expected deviation 4%%, got %d", ev.DeviationPct)
	}
}

func TestFloorBreach(t *testing.T) {
	tc := model.ThresholdConfig{ID: "t2", DeviceID: "tank", Metric: "water_pressure", Min: f64(2), Max: f64(8), Enabled: true}
	s := model.MetricSample{DeviceID: "tank", Metric: "water_pressure", Value: 1.5, Timestamp: time.Now()}
	ev, emitted, inBreach := EvaluateThreshold(s, tc, false)
	if !emitted || ev.Kind != model.EventBreach {
		t.Fatalf("expected floor breach")
	}
	if !inBreach {
		t.Fatalf("stream should be in breach")
	}
	if ev.Threshold != 2 {
		t.Fatalf("expected floor threshold 2, got %v", ev.Threshold)
	}
	if ev.DeviationPct != 25 {
		t.Fatalf("expected deviation 25%%, got %d", ev.DeviationPct)
	}
}

func TestInsideRangeNoEvent(t *testing.T) {
	tc := model.ThresholdConfig{ID: "t1", DeviceID: "hvac", Metric: "power_kwh", Min: f64(1), Max: f64(10), Enabled: true}
	_, emitted, inBreach := EvaluateThreshold(sampleAt(5, 0), tc, false)
	if emitted || inBreach {
		t.Fatalf("in-range sample must not emit")
	}
}
