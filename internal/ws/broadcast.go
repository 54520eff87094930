package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/rowetechinc/river/internal/logging"
)

// ErrTooManyConnections is returned by AddClient when the limit is reached.
var ErrTooManyConnections = errors.New("too many websocket connections")

type client struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	dropped atomic.Uint64
}

func newClient(conn *websocket.Conn, buf int) *client {
	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, buf),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// Subscription is an in-process observer. C is closed by Unsubscribe or
// Close.
type Subscription struct {
	ID      string
	C       <-chan Envelope
	ch      chan Envelope
	dropped atomic.Uint64
}

// Dropped is the number of events discarded because C was full.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

type Stats struct {
	Clients     int    `json:"clients"`
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
}

// Broadcaster implements bridge.Publisher. A full client queue drops the
// message for that client only; the publisher never blocks.
type Broadcaster struct {
	namespace  string
	bufSize    int
	maxClients int
	log        zerolog.Logger

	// pubMu orders sequence assignment with enqueueing.
	pubMu     sync.Mutex
	seq       uint64
	published atomic.Uint64
	dropped   atomic.Uint64

	mu       sync.RWMutex
	clients  map[*client]bool
	subs     map[string]*Subscription
	snapshot func() (string, any)
	closed   bool
}

// NewBroadcaster creates a broadcaster. maxClients <= 0 means no limit.
func NewBroadcaster(namespace string, bufSize, maxClients int, log zerolog.Logger) *Broadcaster {
	if bufSize < 1 {
		bufSize = 1
	}
	return &Broadcaster{
		namespace:  namespace,
		bufSize:    bufSize,
		maxClients: maxClients,
		log:        logging.Component(log, "broadcast"),
		clients:    make(map[*client]bool),
		subs:       make(map[string]*Subscription),
	}
}

// SetSnapshot registers the event sent to each websocket client as it joins.
func (b *Broadcaster) SetSnapshot(fn func() (event string, payload any)) {
	b.mu.Lock()
	b.snapshot = fn
	b.mu.Unlock()
}

func (b *Broadcaster) AddClient(conn *websocket.Conn) (*client, error) {
	b.mu.RLock()
	snap := b.snapshot
	b.mu.RUnlock()

	var first []byte
	if snap != nil {
		event, payload := snap()
		data, err := json.Marshal(Envelope{Namespace: b.namespace, Event: event, Data: payload})
		if err != nil {
			b.log.Error().Err(err).Msg("marshal join snapshot")
		} else {
			first = data
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.New("broadcaster closed")
	}
	if b.maxClients > 0 && len(b.clients) >= b.maxClients {
		b.log.Warn().Int("max", b.maxClients).Msg("rejecting websocket client")
		return nil, ErrTooManyConnections
	}
	c := newClient(conn, b.bufSize)
	if first != nil {
		c.send <- first
	}
	b.clients[c] = true
	b.log.Debug().Str("client", c.id).Msg("client added")
	return c, nil
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
	b.mu.Unlock()
}

// Subscribe registers an in-process observer with a queue of buf events.
func (b *Broadcaster) Subscribe(buf int) *Subscription {
	if buf < 1 {
		buf = b.bufSize
	}
	ch := make(chan Envelope, buf)
	s := &Subscription{ID: uuid.NewString(), C: ch, ch: ch}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return s
	}
	b.subs[s.ID] = s
	return s
}

func (b *Broadcaster) Unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s.ID]; ok {
		delete(b.subs, s.ID)
		close(s.ch)
	}
}

// Publish wraps payload in an Envelope and queues it for every observer.
func (b *Broadcaster) Publish(event string, payload any) {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	b.seq++
	env := Envelope{Namespace: b.namespace, Event: event, Seq: b.seq, Data: payload}
	data, err := json.Marshal(env)
	if err != nil {
		b.log.Error().Err(err).Str("event", event).Msg("marshal failed")
		return
	}
	b.published.Add(1)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			c.dropped.Add(1)
			b.dropped.Add(1)
		}
	}
	for _, s := range b.subs {
		select {
		case s.ch <- env:
		default:
			s.dropped.Add(1)
			b.dropped.Add(1)
		}
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *Broadcaster) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Stats{
		Clients:     len(b.clients),
		Subscribers: len(b.subs),
		Published:   b.published.Load(),
		Dropped:     b.dropped.Load(),
	}
}

// Close disconnects every client and closes every subscription.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for c := range b.clients {
		delete(b.clients, c)
		close(c.send)
	}
	for id, s := range b.subs {
		delete(b.subs, id)
		close(s.ch)
	}
}
