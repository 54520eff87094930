package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"github.com/rowetechinc/river/internal/bridge"
	"github.com/rowetechinc/river/internal/session"
	"github.com/rowetechinc/river/internal/telemetry"
	"github.com/rowetechinc/river/internal/ws"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	pongTimeout        = 60 * time.Second
	pingInterval       = 30 * time.Second
)

// WSClient follows the bridge event stream on /ws.
type WSClient struct {
	url       string
	namespace string

	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	seq     uint64
	gaps    uint64
	pingCtx context.CancelFunc
}

// NewWSClient creates a client for url. An empty namespace accepts every
// envelope.
func NewWSClient(url, namespace string) *WSClient {
	return &WSClient{url: url, namespace: namespace}
}

// --- Bubble Tea messages ---

type WSConnectedMsg struct{}

type WSDisconnectedMsg struct{ Err error }

// SerialCommMsg carries raw ASCII read from the port.
type SerialCommMsg struct{ Data string }

// EnsembleMsg carries the latest decoded ensemble number.
type EnsembleMsg struct{ Number int }

// BootstrapMsg seeds the plot on the first ensemble of a connection.
type BootstrapMsg struct{ Plot telemetry.Snapshot }

// PlotMsg carries the full voltage window after an append.
type PlotMsg struct{ Plot telemetry.Snapshot }

// StatusReportMsg is the server heartbeat.
type StatusReportMsg struct{ Payload bridge.StatusReportPayload }

// SessionStateMsg carries the server's session state.
type SessionStateMsg struct{ State session.State }

// Listen returns a command that dials the server, retrying with backoff until
// it connects or ctx is cancelled.
func (c *WSClient) Listen(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		delay := reconnectBaseDelay
		for {
			select {
			case <-ctx.Done():
				return nil
			default:
			}

			conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
			if err != nil {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(delay):
				}
				delay = min(delay*2, reconnectMaxDelay)
				continue
			}

			c.mu.Lock()
			if c.pingCtx != nil {
				c.pingCtx()
			}
			pingCtx, pingCancel := context.WithCancel(ctx)
			c.conn = conn
			c.seq = 0
			c.pingCtx = pingCancel
			c.mu.Unlock()

			go c.pingLoop(pingCtx, conn)

			return WSConnectedMsg{}
		}
	}
}

// ReadLoop returns a command that blocks until the next recognised event.
// Issue it again after every message it yields.
func (c *WSClient) ReadLoop(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return WSDisconnectedMsg{Err: errors.New("no connection")}
		}

		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongTimeout))
		})
		_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				c.mu.Lock()
				if c.conn == conn {
					c.conn = nil
				}
				c.mu.Unlock()
				conn.Close()
				return WSDisconnectedMsg{Err: err}
			}

			var env ws.RawEnvelope
			if err := json.Unmarshal(data, &env); err != nil {
				continue
			}
			if c.namespace != "" && env.Namespace != c.namespace {
				continue
			}
			c.track(env.Seq)

			if msg := Dispatch(env); msg != nil {
				return msg
			}
		}
	}
}

// track records the last sequence number and counts skipped ones. The join
// snapshot carries seq 0 and is ignored.
func (c *WSClient) track(seq uint64) {
	if seq == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seq != 0 && seq > c.seq+1 {
		c.gaps += seq - c.seq - 1
	}
	c.seq = seq
}

func (c *WSClient) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			cc := c.conn
			c.mu.Unlock()
			if cc != conn {
				return
			}
			c.writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Seq returns the last seen sequence number.
func (c *WSClient) Seq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Gaps is the number of events missed because of server-side drops.
func (c *WSClient) Gaps() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gaps
}

// Close drops the current connection. A pending ReadLoop returns
// WSDisconnectedMsg.
func (c *WSClient) Close() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	if c.pingCtx != nil {
		c.pingCtx()
		c.pingCtx = nil
	}
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// Dispatch converts an envelope into its Bubble Tea message. Unknown events
// and undecodable payloads yield nil.
func Dispatch(env ws.RawEnvelope) tea.Msg {
	switch env.Event {
	case bridge.EventSerialComm:
		var p bridge.SerialCommPayload
		if json.Unmarshal(env.Data, &p) == nil {
			return SerialCommMsg{Data: p.Data}
		}
	case bridge.EventEnsemble:
		var p bridge.EnsemblePayload
		if json.Unmarshal(env.Data, &p) == nil {
			return EnsembleMsg{Number: p.Number}
		}
	case bridge.EventBootstrap:
		var p telemetry.Snapshot
		if json.Unmarshal(env.Data, &p) == nil {
			return BootstrapMsg{Plot: p}
		}
	case bridge.EventUpdatePlot:
		var p telemetry.Snapshot
		if json.Unmarshal(env.Data, &p) == nil {
			return PlotMsg{Plot: p}
		}
	case bridge.EventStatusReport:
		var p bridge.StatusReportPayload
		if json.Unmarshal(env.Data, &p) == nil {
			return StatusReportMsg{Payload: p}
		}
	case bridge.EventSessionState:
		var p session.State
		if json.Unmarshal(env.Data, &p) == nil {
			return SessionStateMsg{State: p}
		}
	}
	return nil
}
