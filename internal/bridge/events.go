package bridge

import (
	"github.com/rowetechinc/river/internal/decoder"
	"github.com/rowetechinc/river/internal/telemetry"
)

// Event names published to observers.
const (
	EventSerialComm   = "serial_comm"
	EventEnsemble     = "adcp_ens"
	EventBootstrap    = "bootstrap"
	EventUpdatePlot   = "update_plot"
	EventStatusReport = "status_report"
	EventSessionState = "session_state"
)

// Publisher fans events out to observers. Publish must not block on slow
// observers; delivery is best effort.
type Publisher interface {
	Publish(event string, payload any)
}

// Sink receives every decoded ensemble, typically a plotting dashboard.
type Sink interface {
	AddEnsemble(e decoder.Ensemble)
}

type SerialCommPayload struct {
	Data string `json:"data"`
}

type EnsemblePayload struct {
	Number int `json:"adcp_ens_num"`
}

// PlotPayload carries the whole rolling window, not a delta.
type PlotPayload = telemetry.Snapshot

type StatusReportPayload struct {
	Data  string `json:"data"`
	Count int    `json:"count"`
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, any) {}
