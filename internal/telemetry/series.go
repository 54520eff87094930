package telemetry

import "sync"

// Snapshot is the plot payload shape: parallel x and y arrays.
type Snapshot struct {
	X []string  `json:"x"`
	Y []float64 `json:"y"`
}

// Series keeps the timestamp and value rings in lockstep so both always
// have the same length.
type Series struct {
	mu     sync.RWMutex
	times  *Ring[string]
	values *Ring[float64]
}

func NewSeries(capacity int) *Series {
	return &Series{
		times:  NewRing[string](capacity),
		values: NewRing[float64](capacity),
	}
}

// Append adds a sample and returns the full series contents afterwards.
func (s *Series) Append(ts string, v float64) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.times.Push(ts)
	s.values.Push(v)
	return Snapshot{X: s.times.Slice(), Y: s.values.Slice()}
}

func (s *Series) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{X: s.times.Slice(), Y: s.values.Slice()}
}

func (s *Series) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.times.Len()
}

func (s *Series) Cap() int {
	return s.times.Cap()
}

func (s *Series) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.times.Reset()
	s.values.Reset()
}
