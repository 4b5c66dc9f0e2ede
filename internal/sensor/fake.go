package sensor

import (
	"math"
	"sync"
)

// Fake is a scripted Reader. A NaN value reads as a transient fault.
type Fake struct {
	mu     sync.Mutex
	values []float64
	index  int
	reads  int
}

// NewFake returns a reader that yields values in order and then repeats
// the last one.
func NewFake(values ...float64) *Fake {
	return &Fake{values: values}
}

// Read returns the next scripted value.
func (f *Fake) Read() (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reads++
	if len(f.values) == 0 {
		return 0, false
	}
	v := f.values[f.index]
	if f.index < len(f.values)-1 {
		f.index++
	}
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// Reads returns how many times Read was called.
func (f *Fake) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}
