package service

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"reflow_oven/internal/models"
)

var ErrNonIncreasingTime = errors.New("sample time must increase")

// Buffer holds the samples of the current run in time order.
// All readers receive copies.
type Buffer struct {
	mu      sync.RWMutex
	samples []models.Sample
}

func NewBuffer() *Buffer {
	return &Buffer{samples: make([]models.Sample, 0, 512)}
}

// Append adds s; its time must be greater than the last sample's.
func (b *Buffer) Append(s models.Sample) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n := len(b.samples); n > 0 && s.TimeS <= b.samples[n-1].TimeS {
		return fmt.Errorf("%w: %.3f after %.3f", ErrNonIncreasingTime, s.TimeS, b.samples[n-1].TimeS)
	}
	b.samples = append(b.samples, s)
	return nil
}

func (b *Buffer) All() []models.Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]models.Sample(nil), b.samples...)
}

// Since returns the samples strictly after t.
func (b *Buffer) Since(t float64) []models.Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	i := sort.Search(len(b.samples), func(i int) bool { return b.samples[i].TimeS > t })
	return append([]models.Sample(nil), b.samples[i:]...)
}

func (b *Buffer) Last() (models.Sample, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.samples) == 0 {
		return models.Sample{}, false
	}
	return b.samples[len(b.samples)-1], true
}

func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = b.samples[:0]
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.samples)
}
