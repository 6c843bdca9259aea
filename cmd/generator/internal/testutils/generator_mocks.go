package testutils

import (
	"sync"
	"time"
)

type MockClock struct {
	CurrentTime time.Time
}

func (m *MockClock) Now() time.Time { return m.CurrentTime }

// MockRand returns ValFloat, or walks through Seq when set.
type MockRand struct {
	ValFloat float64
	Seq      []float64
	i        int
	mu       sync.Mutex
}

func (m *MockRand) Float64() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Seq) == 0 {
		return m.ValFloat
	}
	v := m.Seq[m.i%len(m.Seq)]
	m.i++
	return v
}
