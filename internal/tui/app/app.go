package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rowetechinc/river/internal/decoder"
	"github.com/rowetechinc/river/internal/serialport"
	"github.com/rowetechinc/river/internal/session"
	"github.com/rowetechinc/river/internal/telemetry"
	"github.com/rowetechinc/river/internal/tui/client"
	"github.com/rowetechinc/river/internal/tui/theme"
	"github.com/rowetechinc/river/internal/tui/views/breakinfo"
	"github.com/rowetechinc/river/internal/tui/views/console"
	"github.com/rowetechinc/river/internal/tui/views/eventlog"
	"github.com/rowetechinc/river/internal/tui/views/gauge"
	"github.com/rowetechinc/river/internal/tui/views/plot"
	"github.com/rowetechinc/river/internal/tui/views/status"
)

// API is the control surface the TUI drives; *client.HTTPClient satisfies it.
type API interface {
	Ports(ctx context.Context) ([]serialport.Info, error)
	Bauds(ctx context.Context) ([]int, error)
	Connect(ctx context.Context, port string, baud int) (session.State, error)
	Disconnect(ctx context.Context) (session.State, error)
	Break(ctx context.Context) (*decoder.BreakResult, error)
	Command(ctx context.Context, text string) error
	Plot(ctx context.Context) (telemetry.Snapshot, error)
}

// Stream is the event feed; *client.WSClient satisfies it.
type Stream interface {
	Listen(ctx context.Context) tea.Cmd
	ReadLoop(ctx context.Context) tea.Cmd
	Gaps() uint64
}

type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayPorts
	OverlayCommand
	OverlayLog
	OverlayBreak
)

// Replies from API calls.
type (
	portsMsg struct {
		ports []serialport.Info
		bauds []int
		err   error
	}
	stateMsg struct {
		op    string
		state session.State
		err   error
	}
	breakMsg struct {
		res *decoder.BreakResult
		err error
	}
	commandMsg struct {
		text string
		err  error
	}
	plotMsg struct {
		plot telemetry.Snapshot
		err  error
	}
)

type Model struct {
	ws     Stream
	api    API
	ctx    context.Context
	cancel context.CancelFunc

	keys    KeyMap
	width   int
	height  int
	overlay Overlay

	linked bool
	state  session.State
	busy   string

	ports   []serialport.Info
	bauds   []int
	portIdx int
	baudIdx int

	input     textinput.Model
	statusBar status.Model
	voltage   plot.Model
	gauge     gauge.Model
	console   console.Model
	log       eventlog.Model
	brk       *breakinfo.Model
}

// Options tunes presentation.
type Options struct {
	GlamourStyle string
	VoltageMin   float64
	VoltageMax   float64
}

func New(ws Stream, api API, opts Options) Model {
	if opts.VoltageMax <= opts.VoltageMin {
		opts.VoltageMin, opts.VoltageMax = 0, 24
	}
	ctx, cancel := context.WithCancel(context.Background())

	in := textinput.New()
	in.Prompt = "> "
	in.Placeholder = "CSHOW"
	in.CharLimit = 256

	brk := breakinfo.New(opts.GlamourStyle)

	return Model{
		ws:        ws,
		api:       api,
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		input:     in,
		statusBar: status.New(),
		voltage:   plot.New("VOLTAGE", "V"),
		gauge:     gauge.New(opts.VoltageMin, opts.VoltageMax),
		console:   console.New(),
		log:       eventlog.New(),
		brk:       &brk,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.ws.Listen(m.ctx), m.fetchPorts())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.input.Width = max(msg.Width-8, 10)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case gauge.TickMsg:
		return m, m.gauge.Update(msg)

	case client.WSConnectedMsg:
		m.linked = true
		m.statusBar.Linked = true
		m.log.Add(eventlog.KindLink, "websocket connected")
		return m, tea.Batch(m.ws.ReadLoop(m.ctx), m.fetchPlot())

	case client.WSDisconnectedMsg:
		m.linked = false
		m.statusBar.Linked = false
		if msg.Err != nil {
			m.log.Add(eventlog.KindLink, "websocket lost: %v", msg.Err)
		}
		return m, m.ws.Listen(m.ctx)

	case client.SerialCommMsg:
		m.console.Write(msg.Data)
		return m, m.ws.ReadLoop(m.ctx)

	case client.EnsembleMsg:
		m.state.EnsembleNumber = msg.Number
		m.statusBar.State.EnsembleNumber = msg.Number
		return m, m.ws.ReadLoop(m.ctx)

	case client.BootstrapMsg:
		m.voltage.Set(msg.Plot)
		m.log.Add(eventlog.KindSerial, "first ensemble, plot reset")
		return m, m.ws.ReadLoop(m.ctx)

	case client.PlotMsg:
		return m, tea.Batch(m.setPlot(msg.Plot), m.ws.ReadLoop(m.ctx))

	case client.StatusReportMsg:
		m.statusBar.Heartbeat = msg.Payload.Count
		m.statusBar.Gaps = m.ws.Gaps()
		return m, m.ws.ReadLoop(m.ctx)

	case client.SessionStateMsg:
		m.applyState(msg.State)
		return m, m.ws.ReadLoop(m.ctx)

	case portsMsg:
		if msg.err != nil {
			m.log.Add(eventlog.KindError, "list ports: %v", msg.err)
			return m, nil
		}
		m.ports = msg.ports
		if len(msg.bauds) > 0 {
			m.bauds = msg.bauds
		}
		m.portIdx = min(m.portIdx, max(len(m.ports)-1, 0))
		m.baudIdx = min(m.baudIdx, max(len(m.bauds)-1, 0))
		return m, nil

	case stateMsg:
		m.busy = ""
		if msg.err != nil {
			m.log.Add(eventlog.KindError, "%s: %v", msg.op, msg.err)
		} else {
			m.log.Add(eventlog.KindControl, "%s ok", msg.op)
		}
		m.applyState(msg.state)
		return m, nil

	case breakMsg:
		m.busy = ""
		if msg.err != nil {
			m.log.Add(eventlog.KindError, "break: %v", msg.err)
			return m, nil
		}
		m.brk.Set(msg.res)
		if msg.res != nil {
			m.log.Add(eventlog.KindBreak, "%s", firstNonEmpty(msg.res.Banner, msg.res.SerialNumber, "no answer"))
		}
		return m, nil

	case commandMsg:
		if msg.err != nil {
			m.log.Add(eventlog.KindError, "command %q: %v", msg.text, msg.err)
		} else {
			m.log.Add(eventlog.KindControl, "sent %q", msg.text)
		}
		return m, nil

	case plotMsg:
		if msg.err == nil {
			return m, m.setPlot(msg.plot)
		}
		return m, nil
	}

	if m.overlay == OverlayCommand {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) setPlot(s telemetry.Snapshot) tea.Cmd {
	m.voltage.Set(s)
	if n := len(s.Y); n > 0 {
		return m.gauge.SetTarget(s.Y[n-1])
	}
	return nil
}

// applyState takes a server state. A zero State (from a failed call that
// returned no body) is ignored.
func (m *Model) applyState(st session.State) {
	if st.SerialStatus == nil && !st.Connected && st.SelectedPort == "" && !st.HasError {
		return
	}
	wasConnected := m.state.Connected
	m.state = st
	m.statusBar.State = st
	if st.LastBreak != nil {
		m.brk.Set(st.LastBreak)
	}
	switch {
	case st.Connected && !wasConnected:
		m.console.Clear()
		m.voltage.Reset()
		m.log.Add(eventlog.KindSerial, "opened %s @ %d", st.SelectedPort, st.SelectedBaud)
	case !st.Connected && wasConnected:
		if st.HasError {
			m.log.Add(eventlog.KindError, "serial closed: %s", st.LastError)
		} else {
			m.log.Add(eventlog.KindSerial, "serial closed")
		}
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.overlay {
	case OverlayCommand:
		return m.commandKey(msg)
	case OverlayPorts:
		return m.portsKey(msg)
	case OverlayLog:
		switch {
		case key.Matches(msg, m.keys.Escape):
			m.overlay = OverlayNone
		case key.Matches(msg, m.keys.Up):
			m.log.ScrollUp(1)
		case key.Matches(msg, m.keys.Down):
			m.log.ScrollDown(1)
		}
		return m, nil
	case OverlayBreak:
		if key.Matches(msg, m.keys.Escape) {
			m.overlay = OverlayNone
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Ports):
		m.overlay = OverlayPorts
		return m, m.fetchPorts()

	case key.Matches(msg, m.keys.Disconnect):
		m.busy = "disconnecting"
		return m, m.disconnect()

	case key.Matches(msg, m.keys.Break):
		if !m.state.Connected {
			m.log.Add(eventlog.KindError, "break: not connected")
			return m, nil
		}
		m.overlay = OverlayBreak
		m.busy = "BREAK"
		m.brk.Set(nil)
		return m, m.sendBreak()

	case key.Matches(msg, m.keys.Command):
		m.overlay = OverlayCommand
		m.input.SetValue("")
		return m, m.input.Focus()

	case key.Matches(msg, m.keys.Log):
		m.overlay = OverlayLog
		return m, nil

	case key.Matches(msg, m.keys.Clear):
		m.console.Clear()
		return m, nil
	}
	return m, nil
}

func (m Model) commandKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.overlay = OverlayNone
		m.input.Blur()
		return m, nil
	case key.Matches(msg, m.keys.Enter):
		text := strings.TrimSpace(m.input.Value())
		m.overlay = OverlayNone
		m.input.Blur()
		if text == "" {
			return m, nil
		}
		return m, m.sendCommand(text)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) portsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.overlay = OverlayNone
	case key.Matches(msg, m.keys.Up):
		if len(m.ports) > 0 {
			m.portIdx = (m.portIdx - 1 + len(m.ports)) % len(m.ports)
		}
	case key.Matches(msg, m.keys.Down):
		if len(m.ports) > 0 {
			m.portIdx = (m.portIdx + 1) % len(m.ports)
		}
	case key.Matches(msg, m.keys.Left):
		if m.baudIdx > 0 {
			m.baudIdx--
		}
	case key.Matches(msg, m.keys.Right):
		if m.baudIdx < len(m.bauds)-1 {
			m.baudIdx++
		}
	case key.Matches(msg, m.keys.Refresh):
		return m, m.fetchPorts()
	case key.Matches(msg, m.keys.Enter):
		if len(m.ports) == 0 {
			return m, nil
		}
		m.overlay = OverlayNone
		m.busy = "connecting"
		return m, m.connect(m.ports[m.portIdx].Name, m.selectedBaud())
	}
	return m, nil
}

// selectedBaud is 0 (server default) until the baud list has loaded.
func (m Model) selectedBaud() int {
	if m.baudIdx < len(m.bauds) {
		return m.bauds[m.baudIdx]
	}
	return 0
}

// --- commands ---

func (m Model) fetchPorts() tea.Cmd {
	api, ctx := m.api, m.ctx
	return func() tea.Msg {
		ports, err := api.Ports(ctx)
		if err != nil {
			return portsMsg{err: err}
		}
		bauds, err := api.Bauds(ctx)
		return portsMsg{ports: ports, bauds: bauds, err: err}
	}
}

func (m Model) fetchPlot() tea.Cmd {
	api, ctx := m.api, m.ctx
	return func() tea.Msg {
		p, err := api.Plot(ctx)
		return plotMsg{plot: p, err: err}
	}
}

func (m Model) connect(port string, baud int) tea.Cmd {
	api, ctx := m.api, m.ctx
	return func() tea.Msg {
		st, err := api.Connect(ctx, port, baud)
		return stateMsg{op: fmt.Sprintf("connect %s", port), state: st, err: err}
	}
}

func (m Model) disconnect() tea.Cmd {
	api, ctx := m.api, m.ctx
	return func() tea.Msg {
		st, err := api.Disconnect(ctx)
		return stateMsg{op: "disconnect", state: st, err: err}
	}
}

func (m Model) sendBreak() tea.Cmd {
	api, ctx := m.api, m.ctx
	return func() tea.Msg {
		res, err := api.Break(ctx)
		return breakMsg{res: res, err: err}
	}
}

func (m Model) sendCommand(text string) tea.Cmd {
	api, ctx := m.api, m.ctx
	return func() tea.Msg {
		return commandMsg{text: text, err: api.Command(ctx, text)}
	}
}

// --- view ---

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	if !m.linked {
		return m.renderDisconnected()
	}

	switch m.overlay {
	case OverlayLog:
		return m.log.View(m.width, m.height)
	case OverlayBreak:
		return m.renderBreak()
	case OverlayPorts:
		return m.renderPorts()
	}

	top := lipgloss.JoinVertical(lipgloss.Left,
		m.statusBar.View(),
		m.voltage.View(m.width),
		theme.Panel(m.width).Render(m.gauge.View(m.width-4)),
	)
	consoleH := max(m.height-lipgloss.Height(top)-3, 4)
	sections := []string{top, m.console.View(m.width, consoleH)}

	if m.overlay == OverlayCommand {
		sections = append(sections, m.input.View())
	} else {
		sections = append(sections, m.helpLine())
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) helpLine() string {
	help := "  c:connect  x:disconnect  b:break  ::command  e:events  ctrl+l:clear  q:quit"
	if m.busy != "" {
		help = "  " + m.busy + "..." + help
	}
	return theme.StyleDimmed.Render(help)
}

func (m Model) renderDisconnected() string {
	msg := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorError).Render("DISCONNECTED")
	sub := theme.StyleDimmed.Render("waiting for the river server, q to quit")
	box := theme.StyleBorder.Padding(1, 4).Render(lipgloss.JoinVertical(lipgloss.Center, msg, sub))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func (m Model) renderPorts() string {
	lines := []string{theme.StyleHeader.Render("SERIAL PORTS"), ""}
	if len(m.ports) == 0 {
		lines = append(lines, theme.StyleDimmed.Render("  no ports found (r to refresh)"))
	}
	for i, p := range m.ports {
		label := p.Name
		switch {
		case p.Simulated:
			label += "  (simulated)"
		case p.IsUSB && p.Product != "":
			label += "  " + p.Product
		}
		if i == m.portIdx {
			lines = append(lines, theme.StyleSelected.Render("> "+label))
		} else {
			lines = append(lines, "  "+label)
		}
	}
	baud := "default"
	if b := m.selectedBaud(); b > 0 {
		baud = fmt.Sprintf("%d", b)
	}
	lines = append(lines, "", "baud: "+theme.StyleSelected.Render(baud),
		theme.StyleDimmed.Render("j/k:port  h/l:baud  enter:connect  r:refresh  esc:close"))
	return theme.Panel(m.width).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m Model) renderBreak() string {
	if m.busy == "BREAK" {
		return theme.Panel(m.width).Render(lipgloss.JoinVertical(lipgloss.Left,
			theme.StyleHeader.Render("BREAK"),
			theme.StyleDimmed.Render("waiting for the instrument to settle...")))
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.brk.View(m.width), theme.StyleDimmed.Render("  esc:close"))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
