// Package serialport provides the port transport used by the bridge: a
// narrow Port interface, an OS implementation on go.bug.st/serial and a
// registry that routes named ports (such as the simulator) to other openers.
package serialport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Port is an open connection handle.
type Port interface {
	// Available returns the number of bytes that can be read without
	// blocking.
	Available() (int, error)
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	// Break holds the line in the break condition for d.
	Break(d time.Duration) error
	Close() error
}

type Opener interface {
	Open(name string, baud int) (Port, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(name string, baud int) (Port, error)

func (f OpenerFunc) Open(name string, baud int) (Port, error) { return f(name, baud) }

var (
	ErrInvalidPort = errors.New("invalid port name")
	ErrInvalidBaud = errors.New("invalid baud rate")
)

// System opens OS serial ports, 8N1.
type System struct {
	// ReadTimeout bounds each Available probe.
	ReadTimeout time.Duration
}

func (s System) Open(name string, baud int) (Port, error) {
	if name == "" {
		return nil, ErrInvalidPort
	}
	if baud <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBaud, baud)
	}

	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	if err := p.SetReadTimeout(s.ReadTimeout); err != nil {
		p.Close()
		return nil, err
	}
	return newBufferedPort(p), nil
}

// rawPort is the subset of serial.Port the buffered adapter needs.
type rawPort interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Break(d time.Duration) error
	Close() error
}

// bufferedPort derives Available from a short-timeout read: whatever the
// probe returns is held in pending until Read drains it.
type bufferedPort struct {
	raw rawPort

	mu      sync.Mutex
	pending []byte
	scratch []byte
}

func newBufferedPort(raw rawPort) *bufferedPort {
	return &bufferedPort{
		raw:     raw,
		scratch: make([]byte, 4096),
	}
}

func (b *bufferedPort) Available() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, err := b.raw.Read(b.scratch)
	if n > 0 {
		b.pending = append(b.pending, b.scratch[:n]...)
	}
	return len(b.pending), err
}

func (b *bufferedPort) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) == 0 {
		return b.raw.Read(p)
	}
	n := copy(p, b.pending)
	b.pending = b.pending[n:]
	if len(b.pending) == 0 {
		b.pending = nil
	}
	return n, nil
}

func (b *bufferedPort) Write(p []byte) (int, error) {
	return b.raw.Write(p)
}

func (b *bufferedPort) Break(d time.Duration) error {
	return b.raw.Break(d)
}

func (b *bufferedPort) Close() error {
	return b.raw.Close()
}
