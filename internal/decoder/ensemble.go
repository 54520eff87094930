// Package decoder turns the instrument byte stream into ensembles and parses
// BREAK banners.
package decoder

import (
	"fmt"
	"time"
)

// Ensemble is one decoded frame of sensor data.
type Ensemble struct {
	Data   *EnsembleData      `json:"data,omitempty"`
	Setup  *SystemSetup       `json:"setup,omitempty"`
	Fields map[string]float64 `json:"fields,omitempty"`
}

// EnsembleData is the sequencing metadata carried by most frames.
type EnsembleData struct {
	Number int       `json:"number"`
	Time   time.Time `json:"time"`
}

type SystemSetup struct {
	Voltage float64 `json:"voltage"`
}

// HasData reports whether the frame carried ensemble metadata.
func (e Ensemble) HasData() bool { return e.Data != nil }

// Voltage returns the system voltage and whether the frame carried one.
func (e Ensemble) Voltage() (float64, bool) {
	if e.Setup == nil {
		return 0, false
	}
	return e.Setup.Voltage, true
}

// String is used in log output.
func (e Ensemble) String() string {
	if e.Data == nil {
		return "ensemble(no data)"
	}
	return fmt.Sprintf("ensemble #%d @ %s", e.Data.Number, e.Data.Time.Format(time.RFC3339Nano))
}
