package baseline

import (
	"math"
	"testing"
	"time"
)

func pointAt(v float64, i int) Point {
	return Point{
		Timestamp: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute),
		Value:     v,
	}
}

func TestWindowWrapsOldest(t *testing.T) {
	w := NewWindow(3)
	for i := 0; i < 5; i++ {
		w.Add(pointAt(float64(i), i))
	}
	if w.Len() != 3 || w.Cap() != 3 {
		t.Fatalf("len/cap: %d/%d", w.Len(), w.Cap())
	}
	// Oldest two were overwritten.
	for i, want := range []float64{2, 3, 4} {
		if got := w.At(i).Value; got != want {
			t.Fatalf("at %d: expected %v, got %v", i, want, got)
		}
	}
	last, ok := w.Last()
	if !ok || last.Value != 4 {
		t.Fatalf("last: %v %v", last.Value, ok)
	}
}

func TestWindowTailOrder(t *testing.T) {
	w := NewWindow(4)
	for i := 0; i < 6; i++ {
		w.Add(pointAt(float64(i), i))
	}
	tail := w.Tail(2)
	if len(tail) != 2 || tail[0].Value != 4 || tail[1].Value != 5 {
		t.Fatalf("tail: %+v", tail)
	}
	// Asking past the fill returns everything retained.
	if got := len(w.Tail(10)); got != 4 {
		t.Fatalf("oversized tail: %d", got)
	}
}

func TestMeanStdDev(t *testing.T) {
	w := NewWindow(8)
	for i, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		w.Add(pointAt(v, i))
	}
	mean, stddev := w.MeanStdDev()
	if mean != 5 {
		t.Fatalf("mean: expected 5, got %v", mean)
	}
	// Population stddev of the classic sequence is exactly 2.
	if math.Abs(stddev-2) > 1e-12 {
		t.Fatalf("stddev: expected 2, got %v", stddev)
	}
}

func TestMeanStdDevEmpty(t *testing.T) {
	w := NewWindow(4)
	mean, stddev := w.MeanStdDev()
	if mean != 0 || stddev != 0 {
		t.Fatalf("empty window: %v %v", mean, stddev)
	}
	if _, ok := w.Last(); ok {
		t.Fatalf("empty window has no last point")
	}
}

func TestStoreEvictsOldest(t *testing.T) {
	s := NewStore(2)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s.Update("a|m", Stats{DeviceID: "a", Metric: "m", UpdatedAt: base})
	s.Update("b|m", Stats{DeviceID: "b", Metric: "m", UpdatedAt: base.Add(time.Minute)})
	s.Update("c|m", Stats{DeviceID: "c", Metric: "m", UpdatedAt: base.Add(2 * time.Minute)})

	if _, ok := s.Get("a|m"); ok {
		t.Fatalf("stalest stream should have been evicted")
	}
	if _, ok := s.Get("c|m"); !ok {
		t.Fatalf("newest stream must survive")
	}
	if got := len(s.GetAll()); got != 2 {
		t.Fatalf("expected 2 retained streams, got %d", got)
	}
}
