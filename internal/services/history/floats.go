package history

import "math"

// Floats is a numeric buffer with summary statistics. Empty buffers report 0.
type Floats struct {
	*Buffer[float64]
}

func NewFloats(capacity int) *Floats {
	return &Floats{Buffer: New[float64](capacity)}
}

func (f *Floats) Mean() float64 {
	if f.size == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < f.size; i++ {
		sum += f.At(i)
	}
	return sum / float64(f.size)
}

// StdDev is the population standard deviation.
func (f *Floats) StdDev() float64 {
	if f.size < 2 {
		return 0
	}
	m := f.Mean()
	var ss float64
	for i := 0; i < f.size; i++ {
		d := f.At(i) - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(f.size))
}

// MeanAbsDelta averages |x[i]-x[i-1]| over the newest n values.
func (f *Floats) MeanAbsDelta(n int) float64 {
	vals := f.LastN(n)
	if len(vals) < 2 {
		return 0
	}
	var sum float64
	for i := 1; i < len(vals); i++ {
		sum += math.Abs(vals[i] - vals[i-1])
	}
	return sum / float64(len(vals)-1)
}

// LastValue returns the newest value or 0.
func (f *Floats) LastValue() float64 {
	v, _ := f.Last()
	return v
}
