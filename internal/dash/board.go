// Package dash keeps a bounded per-field history of every decoded ensemble
// for the plotting dashboard.
package dash

import (
	"sort"
	"sync"
	"time"

	"github.com/rowetechinc/river/internal/decoder"
	"github.com/rowetechinc/river/internal/telemetry"
)

// VoltageField is the series name used for the system voltage.
const VoltageField = "voltage"

// Board implements bridge.Sink.
type Board struct {
	mu        sync.RWMutex
	capacity  int
	format    string
	fields    map[string]*telemetry.Series
	ensembles int

	now func() time.Time
}

type Snapshot struct {
	Fields    map[string]telemetry.Snapshot `json:"fields"`
	Ensembles int                           `json:"ensembles"`
}

func NewBoard(capacity int, timestampFormat string) *Board {
	if capacity < 1 {
		capacity = 1
	}
	if timestampFormat == "" {
		timestampFormat = time.RFC3339Nano
	}
	return &Board{
		capacity: capacity,
		format:   timestampFormat,
		fields:   make(map[string]*telemetry.Series),
		now:      time.Now,
	}
}

// AddEnsemble appends the voltage and every named field of e. Frames without
// a timestamp are stamped with the local clock.
func (b *Board) AddEnsemble(e decoder.Ensemble) {
	at := b.now()
	if e.HasData() {
		at = e.Data.Time
	}
	ts := at.Format(b.format)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.ensembles++
	if v, ok := e.Voltage(); ok {
		b.series(VoltageField).Append(ts, v)
	}
	for name, v := range e.Fields {
		b.series(name).Append(ts, v)
	}
}

// series must be called with mu held.
func (b *Board) series(name string) *telemetry.Series {
	s, ok := b.fields[name]
	if !ok {
		s = telemetry.NewSeries(b.capacity)
		b.fields[name] = s
	}
	return s
}

func (b *Board) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := Snapshot{
		Fields:    make(map[string]telemetry.Snapshot, len(b.fields)),
		Ensembles: b.ensembles,
	}
	for name, s := range b.fields {
		out.Fields[name] = s.Snapshot()
	}
	return out
}

// Names returns the field names in sorted order.
func (b *Board) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.fields))
	for name := range b.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Series returns one field's window and whether the field exists.
func (b *Board) Series(name string) (telemetry.Snapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.fields[name]
	if !ok {
		return telemetry.Snapshot{}, false
	}
	return s.Snapshot(), true
}
