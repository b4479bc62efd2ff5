package baseline

import (
	"math"
	"time"
)

type Point struct {
	Timestamp time.Time
	Value     float64
}

// Window is a fixed-capacity ring buffer of samples for one metric stream.
// Once full, each Add overwrites the oldest point, so memory per stream is
// bounded regardless of how long the stream runs.
type Window struct {
	buf  []Point
	head int
	size int
}

func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = 96
	}
	return &Window{buf: make([]Point, capacity)}
}

func (w *Window) Add(p Point) {
	idx := (w.head + w.size) % len(w.buf)
	w.buf[idx] = p
	if w.size < len(w.buf) {
		w.size++
	} else {
		w.head = (w.head + 1) % len(w.buf)
	}
}

func (w *Window) Len() int {
	return w.size
}

func (w *Window) Cap() int {
	return len(w.buf)
}

// At returns the i-th point in insertion order, 0 being the oldest retained.
func (w *Window) At(i int) Point {
	return w.buf[(w.head+i)%len(w.buf)]
}

func (w *Window) Last() (Point, bool) {
	if w.size == 0 {
		return Point{}, false
	}
	return w.At(w.size - 1), true
}

// Tail returns up to n most recent points in chronological order.
func (w *Window) Tail(n int) []Point {
	if n > w.size {
		n = w.size
	}
	out := make([]Point, 0, n)
	for i := w.size - n; i < w.size; i++ {
		out = append(out, w.At(i))
	}
	return out
}

// MeanStdDev computes the trailing mean and population standard deviation
// over the whole window.
func (w *Window) MeanStdDev() (mean, stddev float64) {
	if w.size == 0 {
		return 0, 0
	}
	for i := 0; i < w.size; i++ {
		mean += w.At(i).Value
	}
	mean /= float64(w.size)
	var variance float64
	for i := 0; i < w.size; i++ {
		d := w.At(i).Value - mean
		variance += d * d
	}
	variance /= float64(w.size)
	return mean, math.Sqrt(variance)
}
