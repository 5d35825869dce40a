package clock

import (
	"sync"
	"time"
)

// Clock abstracts time operations for testability.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d. Mock clocks advance instead of blocking.
	Sleep(d time.Duration)
}

// Real is a Clock backed by the system clock.
type Real struct{}

// Now returns the current time.
func (Real) Now() time.Time { return time.Now() }

// Sleep pauses the calling goroutine for d.
func (Real) Sleep(d time.Duration) { time.Sleep(d) }

// Mock is a Clock whose time only moves when told to.
type Mock struct {
	mu sync.Mutex
	T  time.Time

	// Slept records every duration passed to Sleep.
	Slept []time.Duration
}

// NewMock returns a Mock set to t.
func NewMock(t time.Time) *Mock {
	return &Mock{T: t}
}

// Now returns the mocked time.
func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.T
}

// Sleep advances the mocked time by d without blocking.
func (m *Mock) Sleep(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Slept = append(m.Slept, d)
	m.T = m.T.Add(d)
}

// Advance moves the mocked time forward by d.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.T = m.T.Add(d)
}
