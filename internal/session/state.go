package session

import (
	"encoding/json"

	"github.com/rowetechinc/river/internal/decoder"
)

const (
	StatusConnected    = "Connected"
	StatusDisconnected = "Disconnected"
)

// BreakPhase tracks the BREAK command state machine.
type BreakPhase int

const (
	BreakIdle BreakPhase = iota
	BreakSent
	BreakAwaitingSettle
	BreakDecoded
)

var breakPhaseNames = map[BreakPhase]string{
	BreakIdle:           "idle",
	BreakSent:           "break_sent",
	BreakAwaitingSettle: "awaiting_settle",
	BreakDecoded:        "decoded",
}

var breakPhaseFromName = map[string]BreakPhase{
	"idle":            BreakIdle,
	"break_sent":      BreakSent,
	"awaiting_settle": BreakAwaitingSettle,
	"decoded":         BreakDecoded,
}

func (p BreakPhase) String() string {
	if s, ok := breakPhaseNames[p]; ok {
		return s
	}
	return "unknown"
}

func (p BreakPhase) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *BreakPhase) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if v, ok := breakPhaseFromName[s]; ok {
		*p = v
	}
	return nil
}

// State is a snapshot of the serial session. Store hands out copies; a
// State is never shared with the store.
type State struct {
	Connected      bool                 `json:"is_serial_connected"`
	SerialStatus   []string             `json:"serial_status"`
	SelectedPort   string               `json:"selected_serial_port"`
	SelectedBaud   int                  `json:"selected_baud"`
	HasError       bool                 `json:"is_serial_error"`
	LastError      string               `json:"last_error,omitempty"`
	SerialErrors   []string             `json:"serial_error_status"`
	RawASCII       string               `json:"serial_raw_ascii"`
	BreakPhase     BreakPhase           `json:"break_phase"`
	LastBreak      *decoder.BreakResult `json:"adcp_break,omitempty"`
	EnsembleNumber int                  `json:"adcp_ens_num"`
	EnsembleCount  int                  `json:"ensemble_count"`
	BytesRead      int64                `json:"bytes_read"`
}

// Clone returns a deep copy.
func (s *State) Clone() State {
	c := *s
	c.SerialStatus = append([]string{}, s.SerialStatus...)
	c.SerialErrors = append([]string{}, s.SerialErrors...)
	if s.LastBreak != nil {
		b := *s.LastBreak
		b.Lines = append([]string{}, s.LastBreak.Lines...)
		c.LastBreak = &b
	}
	return c
}
