package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// dialPair returns the server-side conn of a fresh websocket and the client
// side used to read what the broadcaster writes.
func dialPair(t *testing.T) (server, clientConn *websocket.Conn) {
	t.Helper()

	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		connCh <- c
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	cc, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { cc.Close() })

	select {
	case sc := <-connCh:
		return sc, cc
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server-side WebSocket connection")
		return nil, nil
	}
}

func readEnvelope(t *testing.T, c *websocket.Conn) RawEnvelope {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env RawEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	return env
}

func TestPublishEnvelopeAndOrder(t *testing.T) {
	b := NewBroadcaster("/rti", 16, 0, zerolog.Nop())
	defer b.Close()

	sc, cc := dialPair(t)
	if _, err := b.AddClient(sc); err != nil {
		t.Fatalf("AddClient: %v", err)
	}

	b.Publish("serial_comm", map[string]string{"data": "a"})
	b.Publish("adcp_ens", map[string]int{"adcp_ens_num": 7})
	b.Publish("update_plot", map[string][]float64{"y": {1}})

	wantEvents := []string{"serial_comm", "adcp_ens", "update_plot"}
	for i, want := range wantEvents {
		env := readEnvelope(t, cc)
		if env.Namespace != "/rti" {
			t.Errorf("namespace = %q", env.Namespace)
		}
		if env.Event != want {
			t.Errorf("event[%d] = %q, want %q", i, env.Event, want)
		}
		if env.Seq != uint64(i+1) {
			t.Errorf("seq[%d] = %d, want %d", i, env.Seq, i+1)
		}
	}
}

func TestSnapshotSentOnJoin(t *testing.T) {
	b := NewBroadcaster("/rti", 4, 0, zerolog.Nop())
	defer b.Close()
	b.SetSnapshot(func() (string, any) {
		return "session_state", map[string]bool{"is_serial_connected": false}
	})

	sc, cc := dialPair(t)
	if _, err := b.AddClient(sc); err != nil {
		t.Fatalf("AddClient: %v", err)
	}
	env := readEnvelope(t, cc)
	if env.Event != "session_state" || env.Seq != 0 {
		t.Errorf("join message = %+v", env)
	}
}

func TestSubscriberDropsWhenFull(t *testing.T) {
	b := NewBroadcaster("/rti", 4, 0, zerolog.Nop())
	defer b.Close()

	sub := b.Subscribe(2)
	for i := 0; i < 5; i++ {
		b.Publish("status_report", i)
	}

	if got := sub.Dropped(); got != 3 {
		t.Errorf("Dropped() = %d, want 3", got)
	}
	first := <-sub.C
	second := <-sub.C
	if first.Seq != 1 || second.Seq != 2 {
		t.Errorf("kept seqs %d,%d, want 1,2", first.Seq, second.Seq)
	}

	st := b.Stats()
	if st.Published != 5 || st.Dropped != 3 || st.Subscribers != 1 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster("/rti", 4, 0, zerolog.Nop())
	sub := b.Subscribe(1)
	b.Unsubscribe(sub)
	b.Unsubscribe(sub)

	if _, ok := <-sub.C; ok {
		t.Error("channel still open after Unsubscribe")
	}
	b.Publish("status_report", nil)

	b.Close()
	late := b.Subscribe(1)
	if _, ok := <-late.C; ok {
		t.Error("subscription after Close should be closed")
	}
}

func TestAddClientMaxConnections(t *testing.T) {
	b := NewBroadcaster("/rti", 4, 1, zerolog.Nop())
	defer b.Close()

	sc, _ := dialPair(t)
	c, err := b.AddClient(sc)
	if err != nil {
		t.Fatalf("AddClient: %v", err)
	}

	sc2, _ := dialPair(t)
	if _, err := b.AddClient(sc2); !errors.Is(err, ErrTooManyConnections) {
		t.Fatalf("expected ErrTooManyConnections, got %v", err)
	}

	b.RemoveClient(c)
	b.RemoveClient(c)
	if got := b.ClientCount(); got != 0 {
		t.Errorf("ClientCount() = %d after remove", got)
	}
	if _, err := b.AddClient(sc2); err != nil {
		t.Errorf("AddClient after remove: %v", err)
	}
}

func TestSlowClientDoesNotBlockPublish(t *testing.T) {
	b := NewBroadcaster("/rti", 1, 0, zerolog.Nop())
	defer b.Close()

	sc, _ := dialPair(t)
	if _, err := b.AddClient(sc); err != nil {
		t.Fatalf("AddClient: %v", err)
	}

	done := make(chan struct{})
	go func() {
		// The client never reads; publishing must still complete.
		for i := 0; i < 10000; i++ {
			b.Publish("serial_comm", strings.Repeat("x", 512))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish blocked on a slow client")
	}
	if b.Stats().Dropped == 0 {
		t.Error("expected drops for a client that never reads")
	}
}
