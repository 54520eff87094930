// Package bridge owns the serial session: opening and closing the port, the
// background reader loop, BREAK handling and the events published while a
// session is live.
package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rowetechinc/river/internal/config"
	"github.com/rowetechinc/river/internal/decoder"
	"github.com/rowetechinc/river/internal/logging"
	"github.com/rowetechinc/river/internal/serialport"
	"github.com/rowetechinc/river/internal/session"
	"github.com/rowetechinc/river/internal/telemetry"
)

// Options are the timing and sizing knobs of a Manager.
type Options struct {
	PollInterval    time.Duration
	SettleInterval  time.Duration
	BreakDuration   time.Duration
	StopTimeout     time.Duration
	LineEnding      string
	PlotCapacity    int
	TimestampFormat string
	ErrorHistory    int
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		PollInterval:    cfg.Serial.PollInterval,
		SettleInterval:  cfg.Serial.SettleInterval,
		BreakDuration:   cfg.Serial.BreakDuration,
		StopTimeout:     cfg.Serial.StopTimeout,
		LineEnding:      cfg.Serial.LineEnding,
		PlotCapacity:    cfg.Telemetry.Capacity,
		TimestampFormat: cfg.Telemetry.TimestampFormat,
		ErrorHistory:    cfg.Serial.ErrorHistory,
	}
}

func (o *Options) setDefaults() {
	d := OptionsFromConfig(config.Default())
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.SettleInterval <= 0 {
		o.SettleInterval = d.SettleInterval
	}
	if o.BreakDuration <= 0 {
		o.BreakDuration = d.BreakDuration
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = d.StopTimeout
	}
	if o.LineEnding == "" {
		o.LineEnding = d.LineEnding
	}
	if o.PlotCapacity <= 0 {
		o.PlotCapacity = d.PlotCapacity
	}
	if o.TimestampFormat == "" {
		o.TimestampFormat = d.TimestampFormat
	}
	if o.ErrorHistory <= 0 {
		o.ErrorHistory = d.ErrorHistory
	}
}

// PortLister is implemented by openers that can enumerate their ports.
type PortLister interface {
	List() ([]serialport.Info, error)
}

// Manager is the connection manager. At most one port is open at a time.
type Manager struct {
	opener   serialport.Opener
	newCodec func() decoder.Codec
	pub      Publisher
	sink     Sink
	opts     Options
	log      zerolog.Logger

	store   *session.Store
	voltage *telemetry.Series

	// opMu serialises Connect and Disconnect. mu guards port and run and is
	// the only lock the reader loop takes.
	opMu    sync.Mutex
	mu      sync.Mutex
	port    serialport.Port
	run     *reader
	breakMu sync.Mutex
}

// New builds a Manager. newCodec is called once per connection so partial
// frames never leak between sessions.
func New(opener serialport.Opener, newCodec func() decoder.Codec, pub Publisher, opts Options, log zerolog.Logger) *Manager {
	opts.setDefaults()
	if pub == nil {
		pub = nopPublisher{}
	}
	if newCodec == nil {
		newCodec = func() decoder.Codec { return decoder.NewLineCodec() }
	}
	return &Manager{
		opener:   opener,
		newCodec: newCodec,
		pub:      pub,
		opts:     opts,
		log:      logging.Component(log, "bridge"),
		store:    session.NewStore(opts.ErrorHistory),
		voltage:  telemetry.NewSeries(opts.PlotCapacity),
	}
}

// SetSink attaches the ensemble sink. Call before the first Connect.
func (m *Manager) SetSink(s Sink) {
	m.sink = s
}

func (m *Manager) State() session.State {
	return m.store.Snapshot()
}

func (m *Manager) Connected() bool {
	return m.store.Connected()
}

// Plot returns the current voltage window.
func (m *Manager) Plot() telemetry.Snapshot {
	return m.voltage.Snapshot()
}

// ListPorts enumerates the ports the opener knows about.
func (m *Manager) ListPorts() ([]serialport.Info, error) {
	if l, ok := m.opener.(PortLister); ok {
		return l.List()
	}
	return []serialport.Info{}, nil
}

func (m *Manager) BaudRates() []int {
	return serialport.BaudRates()
}

// Connect opens the named port and starts the reader loop. Connecting while
// a session is open is a no-op. The returned state is the session after the
// attempt, including a recorded error on failure.
func (m *Manager) Connect(name string, baud int) (session.State, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	open := m.port != nil
	m.mu.Unlock()
	if open {
		m.log.Debug().Str("port", name).Msg("already connected")
		return m.store.Snapshot(), nil
	}

	m.store.BeginConnect(name, baud)
	p, err := m.opener.Open(name, baud)
	if err != nil {
		cerr := &ConnectionError{Port: name, Baud: baud, Err: err}
		m.log.Error().Err(err).Str("port", name).Int("baud", baud).Msg("open failed")
		m.store.RecordError(cerr.Error())
		m.publishState()
		return m.store.Snapshot(), cerr
	}

	r := newReader(m, p, m.newCodec())
	m.mu.Lock()
	m.port = p
	m.run = r
	m.mu.Unlock()
	m.store.MarkConnected()
	go r.loop()

	m.log.Info().Str("port", name).Int("baud", baud).Msg("connected")
	m.publishState()
	return m.store.Snapshot(), nil
}

// Disconnect stops the reader loop and closes the port. It is safe to call
// when nothing is open.
func (m *Manager) Disconnect() session.State {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	p, r := m.port, m.run
	m.port, m.run = nil, nil
	m.mu.Unlock()

	if r != nil {
		r.stop()
		select {
		case <-r.done:
		case <-time.After(m.opts.StopTimeout):
			m.log.Warn().Dur("timeout", m.opts.StopTimeout).Msg("reader loop did not stop in time")
		}
	}
	if p != nil {
		if err := p.Close(); err != nil {
			m.log.Warn().Err(err).Msg("close failed")
		}
		m.log.Info().Msg("disconnected")
	}

	m.store.MarkDisconnected()
	m.publishState()
	return m.store.Snapshot()
}

// SendBreak sends a BREAK, waits for the instrument to answer and decodes
// the captured text. It returns nil, nil when no port is open. Only the
// caller blocks during the settle interval.
func (m *Manager) SendBreak() (*decoder.BreakResult, error) {
	m.breakMu.Lock()
	defer m.breakMu.Unlock()

	m.mu.Lock()
	p, r := m.port, m.run
	m.mu.Unlock()
	if p == nil {
		return nil, nil
	}

	m.store.BeginBreak()
	m.publishState()
	if err := p.Break(m.opts.BreakDuration); err != nil {
		m.store.EndCapture()
		m.store.SetBreakPhase(session.BreakIdle)
		terr := &TransportError{Op: "break", Err: err}
		m.teardown(r, terr)
		return nil, terr
	}

	m.store.SetBreakPhase(session.BreakAwaitingSettle)
	m.publishState()
	time.Sleep(m.opts.SettleInterval)
	if r.stopped() {
		m.store.EndCapture()
		return nil, ErrNotConnected
	}

	res := r.codec.DecodeBreak(m.store.EndCapture())
	m.store.SetBreakResult(res)
	m.log.Info().Str("serial", res.SerialNumber).Str("firmware", res.Firmware).Msg("break decoded")
	m.publishState()
	m.store.SetBreakPhase(session.BreakIdle)
	m.publishState()
	return &res, nil
}

// SendCommand writes text followed by the configured line ending.
func (m *Manager) SendCommand(text string) error {
	m.mu.Lock()
	p, r := m.port, m.run
	m.mu.Unlock()
	if p == nil {
		return ErrNotConnected
	}

	if _, err := p.Write([]byte(text + m.opts.LineEnding)); err != nil {
		terr := &TransportError{Op: "write", Err: err}
		m.teardown(r, terr)
		return terr
	}
	m.log.Debug().Str("cmd", text).Msg("command sent")
	return nil
}

// RunHeartbeat publishes status_report every interval until ctx is done.
// It runs whether or not a port is open.
func (m *Manager) RunHeartbeat(ctx context.Context, interval time.Duration, message string) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	count := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count++
			m.pub.Publish(EventStatusReport, StatusReportPayload{Data: message, Count: count})
		}
	}
}

// teardown closes the session owned by r after a transport fault. It does
// nothing if r is no longer the current session.
func (m *Manager) teardown(r *reader, cause error) {
	m.mu.Lock()
	if r == nil || m.run != r {
		m.mu.Unlock()
		return
	}
	p := m.port
	m.port, m.run = nil, nil
	r.stop()
	if err := p.Close(); err != nil {
		m.log.Warn().Err(err).Msg("close after fault failed")
	}
	m.store.MarkFaulted(cause.Error())
	m.mu.Unlock()

	m.log.Error().Err(cause).Msg("session torn down")
	m.publishState()
}

func (m *Manager) publishState() {
	m.pub.Publish(EventSessionState, m.store.Snapshot())
}
