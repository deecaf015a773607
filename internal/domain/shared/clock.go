package shared

import "time"

// Clock abstracts wall-clock reads and sleeps. Everything time-dependent
// (lock staleness, heartbeat freshness, wait budgets, backoff) takes a Clock
// so tests can drive time explicitly.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// RealClock is the production clock, backed by the system time
type RealClock struct{}

// NewRealClock returns a Clock over the system time
func NewRealClock() Clock {
	return &RealClock{}
}

// Now reports the current system time in UTC
func (r *RealClock) Now() time.Time {
	return time.Now().UTC()
}

// Sleep blocks the caller for the given duration
func (r *RealClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

// MockClock is a test clock whose time only moves when told to. Sleep does
// not block; it advances the clock instead, so waits and backoffs run
// instantly under test while their durations stay observable.
type MockClock struct {
	CurrentTime time.Time
}

// NewMockClock creates a MockClock at startTime; a zero startTime means the
// current system time
func NewMockClock(startTime time.Time) *MockClock {
	if startTime.IsZero() {
		startTime = time.Now()
	}
	return &MockClock{CurrentTime: startTime}
}

// Now reports the mock's current time
func (m *MockClock) Now() time.Time {
	return m.CurrentTime
}

// Sleep advances the mock's time by d without blocking
func (m *MockClock) Sleep(d time.Duration) {
	m.CurrentTime = m.CurrentTime.Add(d)
}

// Advance moves the mock's time forward by d
func (m *MockClock) Advance(d time.Duration) {
	m.CurrentTime = m.CurrentTime.Add(d)
}

// SetTime pins the mock's time to t
func (m *MockClock) SetTime(t time.Time) {
	m.CurrentTime = t
}
