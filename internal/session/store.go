package session

import (
	"strings"
	"sync"

	"github.com/rowetechinc/river/internal/decoder"
)

// Store is the single shared session record. Every method takes the one
// mutex; update rates are low enough that finer locking buys nothing.
type Store struct {
	mu           sync.RWMutex
	state        State
	errorHistory int

	capturing bool
	capture   strings.Builder
}

func NewStore(errorHistory int) *Store {
	if errorHistory < 1 {
		errorHistory = 1
	}
	return &Store{
		errorHistory: errorHistory,
		state: State{
			SerialStatus: []string{},
			SerialErrors: []string{},
		},
	}
}

func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

func (s *Store) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Connected
}

// BeginConnect records the requested parameters and resets the error
// history for the new attempt.
func (s *Store) BeginConnect(port string, baud int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.SelectedPort = port
	s.state.SelectedBaud = baud
	s.state.SerialErrors = s.state.SerialErrors[:0]
}

func (s *Store) MarkConnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Connected = true
	s.state.HasError = false
	s.state.LastError = ""
	s.state.SerialStatus = []string{StatusConnected}
	s.state.SerialErrors = []string{}
	s.state.EnsembleCount = 0
	s.state.BytesRead = 0
	s.state.BreakPhase = BreakIdle
}

func (s *Store) MarkDisconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markDisconnected()
}

// MarkFaulted ends the session after a transport fault and records msg in
// the same update, so no observer sees a clean disconnect in between.
// Unlike MarkDisconnected it leaves HasError and LastError set for clients
// to show; the next MarkConnected clears them.
func (s *Store) MarkFaulted(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markDisconnected()
	s.recordError(msg)
}

func (s *Store) markDisconnected() {
	s.state.Connected = false
	s.state.HasError = false
	s.state.LastError = ""
	s.state.SerialStatus = []string{StatusDisconnected}
	s.state.SerialErrors = []string{}
	s.state.BreakPhase = BreakIdle
	s.capturing = false
	s.capture.Reset()
}

// RecordError flags the session as errored and appends msg to the bounded
// history, dropping the oldest entries.
func (s *Store) RecordError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordError(msg)
}

func (s *Store) recordError(msg string) {
	s.state.HasError = true
	s.state.LastError = msg
	s.state.SerialErrors = append(s.state.SerialErrors, msg)
	if n := len(s.state.SerialErrors); n > s.errorHistory {
		s.state.SerialErrors = append([]string{}, s.state.SerialErrors[n-s.errorHistory:]...)
	}
}

// SetRawASCII stores the latest text chunk and, while a BREAK capture is
// open, appends it to the capture.
func (s *Store) SetRawASCII(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.RawASCII = text
	if s.capturing {
		s.capture.WriteString(text)
	}
}

func (s *Store) AddBytes(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.BytesRead += int64(n)
}

func (s *Store) SetEnsembleNumber(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.EnsembleNumber = n
	s.state.EnsembleCount++
}

// BeginBreak clears the raw text and opens a capture for the response.
func (s *Store) BeginBreak() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.RawASCII = ""
	s.state.BreakPhase = BreakSent
	s.capturing = true
	s.capture.Reset()
}

func (s *Store) SetBreakPhase(p BreakPhase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.BreakPhase = p
}

// EndCapture closes the BREAK capture and returns everything captured.
func (s *Store) EndCapture() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capturing = false
	text := s.capture.String()
	s.capture.Reset()
	return text
}

func (s *Store) SetBreakResult(r decoder.BreakResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LastBreak = &r
	s.state.BreakPhase = BreakDecoded
}
