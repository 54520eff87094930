package ws

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/rowetechinc/river/internal/bridge"
	"github.com/rowetechinc/river/internal/dash"
	"github.com/rowetechinc/river/internal/decoder"
	"github.com/rowetechinc/river/internal/serialport"
	"github.com/rowetechinc/river/internal/session"
	"github.com/rowetechinc/river/internal/telemetry"
)

type fakeController struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	lastPort   string
	lastBaud   int
	commands   []string
}

func (f *fakeController) ListPorts() ([]serialport.Info, error) {
	return []serialport.Info{{Name: "/dev/ttyUSB0"}, {Name: "SIM0", Simulated: true}}, nil
}

func (f *fakeController) BaudRates() []int { return serialport.BaudRates() }

func (f *fakeController) Connect(port string, baud int) (session.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPort, f.lastBaud = port, baud
	if f.connectErr != nil {
		return session.State{SelectedPort: port, HasError: true}, f.connectErr
	}
	f.connected = true
	return f.state(), nil
}

func (f *fakeController) Disconnect() session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return f.state()
}

func (f *fakeController) SendBreak() (*decoder.BreakResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return nil, nil
	}
	res := decoder.ParseBreak(decoder.FormatBreakBanner("ADCP", "01", "0.2", "Profile"))
	return &res, nil
}

func (f *fakeController) SendCommand(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return bridge.ErrNotConnected
	}
	f.commands = append(f.commands, text)
	return nil
}

func (f *fakeController) State() session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state()
}

func (f *fakeController) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeController) state() session.State {
	st := session.State{Connected: f.connected, SerialStatus: []string{session.StatusDisconnected}}
	if f.connected {
		st.SerialStatus = []string{session.StatusConnected}
	}
	return st
}

func (f *fakeController) Plot() telemetry.Snapshot {
	return telemetry.Snapshot{X: []string{"t0"}, Y: []float64{12.1}}
}

func newTestServer(t *testing.T, ctl Controller) (*httptest.Server, *Broadcaster) {
	t.Helper()
	b := NewBroadcaster("/rti", 16, 0, zerolog.Nop())
	s := NewServer(ctl, b, nil, zerolog.Nop())
	s.SetDefaultBaud(115200)
	board := dash.NewBoard(10, "")
	board.AddEnsemble(decoder.Ensemble{Fields: map[string]float64{"heading": 12}})
	s.SetBoard(board)

	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		b.Close()
	})
	return srv, b
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestConnectLifecycle(t *testing.T) {
	ctl := &fakeController{}
	srv, _ := newTestServer(t, ctl)

	resp := post(t, srv.URL+"/api/connect", `{"port":"/dev/ttyUSB0"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("connect status = %d", resp.StatusCode)
	}
	var st session.State
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.Connected {
		t.Error("expected connected state")
	}
	ctl.mu.Lock()
	baud := ctl.lastBaud
	ctl.mu.Unlock()
	if baud != 115200 {
		t.Errorf("default baud = %d", baud)
	}
	var h healthResponse
	json.NewDecoder(get(t, srv.URL+"/api/health").Body).Decode(&h)
	if !h.Connected {
		t.Error("health should report connected")
	}

	resp = post(t, srv.URL+"/api/command", `{"command":"CSHOW"}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("command status = %d", resp.StatusCode)
	}
	ctl.mu.Lock()
	cmds := append([]string{}, ctl.commands...)
	ctl.mu.Unlock()
	if len(cmds) != 1 || cmds[0] != "CSHOW" {
		t.Errorf("commands = %v", cmds)
	}

	resp = post(t, srv.URL+"/api/break", ``)
	var res decoder.BreakResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decode break: %v", err)
	}
	if res.SerialNumber != "01" {
		t.Errorf("break serial = %q", res.SerialNumber)
	}

	resp = post(t, srv.URL+"/api/disconnect", ``)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("disconnect status = %d", resp.StatusCode)
	}
	if ctl.Connected() {
		t.Error("still connected")
	}
	h = healthResponse{}
	json.NewDecoder(get(t, srv.URL+"/api/health").Body).Decode(&h)
	if h.Connected {
		t.Error("health should report disconnected")
	}
}

func TestErrorStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		ctl    *fakeController
		path   string
		body   string
		status int
	}{
		{"connect failure", &fakeController{connectErr: &bridge.ConnectionError{Port: "COM9", Baud: 9600, Err: errors.New("busy")}}, "/api/connect", `{"port":"COM9","baud":9600}`, http.StatusConflict},
		{"connect bad json", &fakeController{}, "/api/connect", `{`, http.StatusBadRequest},
		{"connect missing port", &fakeController{}, "/api/connect", `{"baud":9600}`, http.StatusBadRequest},
		{"command when disconnected", &fakeController{}, "/api/command", `{"command":"START"}`, http.StatusConflict},
		{"command bad json", &fakeController{}, "/api/command", `nope`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, tt.ctl)
			resp := post(t, srv.URL+tt.path, tt.body)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
}

func TestBreakWhenDisconnectedIsNull(t *testing.T) {
	srv, _ := newTestServer(t, &fakeController{})
	resp := post(t, srv.URL+"/api/break", ``)
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if got := strings.TrimSpace(buf.String()); got != "null" {
		t.Errorf("body = %q, want null", got)
	}
}

func TestReadEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, &fakeController{})

	var ports []serialport.Info
	json.NewDecoder(get(t, srv.URL+"/api/ports").Body).Decode(&ports)
	if len(ports) != 2 || !ports[1].Simulated {
		t.Errorf("ports = %+v", ports)
	}

	var bauds []int
	json.NewDecoder(get(t, srv.URL+"/api/bauds").Body).Decode(&bauds)
	if len(bauds) == 0 || bauds[0] != 921600 {
		t.Errorf("bauds = %v", bauds)
	}

	var plot telemetry.Snapshot
	json.NewDecoder(get(t, srv.URL+"/api/plot").Body).Decode(&plot)
	if len(plot.Y) != 1 || plot.Y[0] != 12.1 {
		t.Errorf("plot = %+v", plot)
	}

	var board dash.Snapshot
	json.NewDecoder(get(t, srv.URL+"/api/dash").Body).Decode(&board)
	if board.Ensembles != 1 || len(board.Fields["heading"].Y) != 1 {
		t.Errorf("dash = %+v", board)
	}
	if resp := get(t, srv.URL+"/api/dash?field=missing"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing field status = %d", resp.StatusCode)
	}

	var h healthResponse
	json.NewDecoder(get(t, srv.URL+"/api/health").Body).Decode(&h)
	if h.Status != "ok" || h.Connected {
		t.Errorf("health = %+v", h)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, &fakeController{})
	if resp := get(t, srv.URL+"/api/connect"); resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/connect = %d", resp.StatusCode)
	}
	if resp := post(t, srv.URL+"/api/state", ``); resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST /api/state = %d", resp.StatusCode)
	}
}

func TestWebsocketReceivesEvents(t *testing.T) {
	srv, b := newTestServer(t, &fakeController{})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for b.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	b.Publish(bridge.EventStatusReport, bridge.StatusReportPayload{Data: "Server generated event", Count: 1})

	env := readEnvelope(t, conn)
	if env.Event != bridge.EventStatusReport {
		t.Fatalf("event = %q", env.Event)
	}
	var pl bridge.StatusReportPayload
	if err := json.Unmarshal(env.Data, &pl); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if pl.Count != 1 || pl.Data != "Server generated event" {
		t.Errorf("payload = %+v", pl)
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		host    string
		want    bool
	}{
		{"no origin", nil, "", "example.com", true},
		{"same host", nil, "http://bridge.local:8080", "bridge.local:8080", true},
		{"localhost", nil, "http://localhost:5173", "bridge.local:8080", true},
		{"loopback v6", nil, "http://[::1]:3000", "bridge.local:8080", true},
		{"foreign", nil, "http://evil.example", "bridge.local:8080", false},
		{"allowlist hit", []string{"https://ops.example"}, "https://ops.example", "bridge.local", true},
		{"allowlist miss", []string{"https://ops.example"}, "http://localhost", "bridge.local", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(&fakeController{}, nil, tt.allowed, zerolog.Nop())
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := s.checkOrigin(r); got != tt.want {
				t.Errorf("checkOrigin = %v, want %v", got, tt.want)
			}
		})
	}
}
