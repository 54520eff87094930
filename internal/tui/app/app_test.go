package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rowetechinc/river/internal/decoder"
	"github.com/rowetechinc/river/internal/serialport"
	"github.com/rowetechinc/river/internal/session"
	"github.com/rowetechinc/river/internal/telemetry"
	"github.com/rowetechinc/river/internal/tui/client"
	"github.com/rowetechinc/river/internal/tui/views/eventlog"
)

type fakeStream struct{ gaps uint64 }

func (f *fakeStream) Listen(context.Context) tea.Cmd { return func() tea.Msg { return nil } }
func (f *fakeStream) ReadLoop(context.Context) tea.Cmd { return func() tea.Msg { return nil } }
func (f *fakeStream) Gaps() uint64 { return f.gaps }

type fakeAPI struct {
	connectPort string
	connectBaud int
	connectErr  error
	command     string
	breakRes    *decoder.BreakResult
}

func (f *fakeAPI) Ports(context.Context) ([]serialport.Info, error) {
	return []serialport.Info{{Name: "/dev/ttyUSB0", IsUSB: true}, {Name: "SIM1", Simulated: true}}, nil
}

func (f *fakeAPI) Bauds(context.Context) ([]int, error) { return []int{9600, 115200}, nil }

func (f *fakeAPI) Connect(_ context.Context, port string, baud int) (session.State, error) {
	f.connectPort, f.connectBaud = port, baud
	if f.connectErr != nil {
		return session.State{}, f.connectErr
	}
	return session.State{
		Connected:    true,
		SerialStatus: []string{session.StatusConnected},
		SelectedPort: port,
		SelectedBaud: baud,
	}, nil
}

func (f *fakeAPI) Disconnect(context.Context) (session.State, error) {
	return session.State{SerialStatus: []string{session.StatusDisconnected}}, nil
}

func (f *fakeAPI) Break(context.Context) (*decoder.BreakResult, error) { return f.breakRes, nil }

func (f *fakeAPI) Command(_ context.Context, text string) error {
	f.command = text
	return nil
}

func (f *fakeAPI) Plot(context.Context) (telemetry.Snapshot, error) { return telemetry.Snapshot{}, nil }

func newTestModel(api *fakeAPI) Model {
	m := New(&fakeStream{}, api, Options{GlamourStyle: "notty"})
	m = step(m, tea.WindowSizeMsg{Width: 120, Height: 40})
	return step(m, client.WSConnectedMsg{})
}

func step(m Model, msg tea.Msg) Model {
	next, _ := m.Update(msg)
	return next.(Model)
}

// run feeds msg and then every message produced by the returned command,
// skipping batches and animation ticks.
func run(m Model, msg tea.Msg) Model {
	next, cmd := m.Update(msg)
	m = next.(Model)
	if cmd == nil {
		return m
	}
	out := cmd()
	switch out.(type) {
	case nil, tea.BatchMsg:
		return m
	}
	return step(m, out)
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func lastLog(m Model) eventlog.Entry {
	return m.log.Entries[len(m.log.Entries)-1]
}

func TestDisconnectedOverlay(t *testing.T) {
	m := New(&fakeStream{}, &fakeAPI{}, Options{})
	m = step(m, tea.WindowSizeMsg{Width: 100, Height: 30})
	if v := m.View(); !strings.Contains(v, "DISCONNECTED") {
		t.Error("unlinked view should say DISCONNECTED")
	}
	m = step(m, client.WSConnectedMsg{})
	if v := m.View(); strings.Contains(v, "DISCONNECTED") {
		t.Error("linked view should not say DISCONNECTED")
	}
}

func TestConnectThroughPortPicker(t *testing.T) {
	api := &fakeAPI{}
	m := newTestModel(api)

	m = run(m, keyMsg("c"))
	if m.overlay != OverlayPorts {
		t.Fatalf("overlay = %v, want ports", m.overlay)
	}
	if len(m.ports) != 2 || len(m.bauds) != 2 {
		t.Fatalf("ports/bauds not loaded: %v %v", m.ports, m.bauds)
	}
	if v := m.View(); !strings.Contains(v, "SIM1  (simulated)") {
		t.Errorf("picker view:\n%s", v)
	}

	m = step(m, keyMsg("j"))
	m = step(m, keyMsg("l"))
	m = run(m, keyMsg("enter"))

	if api.connectPort != "SIM1" || api.connectBaud != 115200 {
		t.Errorf("connect(%q, %d), want SIM1 115200", api.connectPort, api.connectBaud)
	}
	if !m.state.Connected || m.overlay != OverlayNone || m.busy != "" {
		t.Errorf("state after connect: %+v overlay=%v busy=%q", m.state, m.overlay, m.busy)
	}
}

func TestConnectFailureLogged(t *testing.T) {
	api := &fakeAPI{connectErr: errors.New("error opening serial port COM9 at 115200 baud: busy")}
	m := newTestModel(api)
	m = run(m, keyMsg("c"))
	m = run(m, keyMsg("enter"))

	if m.state.Connected {
		t.Error("should stay disconnected")
	}
	if e := lastLog(m); e.Kind != eventlog.KindError || !strings.Contains(e.Message, "COM9") {
		t.Errorf("last log = %+v", e)
	}
}

func TestCommandEntry(t *testing.T) {
	api := &fakeAPI{}
	m := newTestModel(api)

	m = step(m, keyMsg(":"))
	if m.overlay != OverlayCommand {
		t.Fatalf("overlay = %v, want command", m.overlay)
	}
	m = step(m, keyMsg("CSHOW q"))
	m = run(m, keyMsg("enter"))

	if api.command != "CSHOW q" {
		t.Errorf("sent %q, want %q", api.command, "CSHOW q")
	}
	if m.overlay != OverlayNone {
		t.Error("enter should close the command line")
	}
}

func TestBreakRequiresConnection(t *testing.T) {
	m := newTestModel(&fakeAPI{})
	m = step(m, keyMsg("b"))
	if m.overlay != OverlayNone {
		t.Error("break while disconnected should not open the overlay")
	}
	if e := lastLog(m); e.Kind != eventlog.KindError {
		t.Errorf("last log = %+v", e)
	}
}

func TestBreakShowsResult(t *testing.T) {
	api := &fakeAPI{breakRes: &decoder.BreakResult{
		Banner:       "Rowe Technologies Inc. ADCP",
		SerialNumber: "01300000000000000000000000000123",
		Lines:        []string{"Rowe Technologies Inc. ADCP"},
	}}
	m := newTestModel(api)
	m = step(m, client.SessionStateMsg{State: session.State{Connected: true, SerialStatus: []string{session.StatusConnected}}})

	m = run(m, keyMsg("b"))
	if m.overlay != OverlayBreak || m.busy != "" {
		t.Fatalf("overlay=%v busy=%q", m.overlay, m.busy)
	}
	if v := m.View(); !strings.Contains(v, "01300000000000000000000000000123") {
		t.Errorf("break view:\n%s", v)
	}
	m = step(m, keyMsg("esc"))
	if m.overlay != OverlayNone {
		t.Error("esc should close the break overlay")
	}
}

func TestLastBreakKeptAfterIdle(t *testing.T) {
	m := newTestModel(&fakeAPI{})
	m = step(m, client.SessionStateMsg{State: session.State{
		Connected:    true,
		SerialStatus: []string{session.StatusConnected},
		BreakPhase:   session.BreakIdle,
		LastBreak:    &decoder.BreakResult{SerialNumber: "0130000000000000000000000000000A"},
	}})
	if m.brk.Result == nil || m.brk.Result.SerialNumber != "0130000000000000000000000000000A" {
		t.Errorf("break result = %+v", m.brk.Result)
	}
}

func TestStreamUpdatesViews(t *testing.T) {
	m := newTestModel(&fakeAPI{})
	m = step(m, client.SessionStateMsg{State: session.State{
		Connected: true, SerialStatus: []string{session.StatusConnected}, SelectedPort: "SIM1", SelectedBaud: 115200,
	}})
	m = step(m, client.SerialCommMsg{Data: "E000001,12.1\r\n"})
	m = step(m, client.EnsembleMsg{Number: 1})
	m = step(m, client.PlotMsg{Plot: telemetry.Snapshot{X: []string{"t1"}, Y: []float64{12.1}}})
	m = step(m, client.StatusReportMsg{})

	if got := m.console.Lines(); len(got) != 1 || got[0] != "E000001,12.1" {
		t.Errorf("console = %q", got)
	}
	if m.gauge.Value() != 12.1 {
		t.Errorf("gauge = %v, want 12.1", m.gauge.Value())
	}
	v := m.View()
	for _, want := range []string{"SIM1 @ 115200", "ens #1", "last 12.10V", "E000001,12.1"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q:\n%s", want, v)
		}
	}
}

func TestFaultLoggedOnStateChange(t *testing.T) {
	m := newTestModel(&fakeAPI{})
	m = step(m, client.SessionStateMsg{State: session.State{Connected: true, SerialStatus: []string{session.StatusConnected}}})
	m = step(m, client.SessionStateMsg{State: session.State{
		SerialStatus: []string{session.StatusDisconnected}, HasError: true, LastError: "serial read: device gone",
	}})
	if e := lastLog(m); e.Kind != eventlog.KindError || !strings.Contains(e.Message, "device gone") {
		t.Errorf("last log = %+v", e)
	}
}

func TestQuit(t *testing.T) {
	m := newTestModel(&fakeAPI{})
	_, cmd := m.Update(keyMsg("q"))
	if cmd == nil {
		t.Fatal("q should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
	if m.ctx.Err() == nil {
		t.Error("quit should cancel the client context")
	}
}
