//go:build linux

package sim

import (
	"bytes"
	"context"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/creack/pty"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/rowetechinc/river/internal/decoder"
	"github.com/rowetechinc/river/internal/logging"
	"github.com/rowetechinc/river/internal/serialport"
)

// Device owns both ends of the pty. The instrument side is the master; the
// bridge side is the slave, handed out through Open.
type Device struct {
	cfg Config
	log zerolog.Logger

	master  *os.File
	slave   *os.File
	slaveFd int

	writeMu sync.Mutex
	open    atomic.Bool
	paused  atomic.Bool
	next    int

	breaks    chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

func New(cfg Config, log zerolog.Logger) (*Device, error) {
	cfg.setDefaults()

	master, slave, err := pty.Open()
	if err != nil {
		return nil, err
	}
	fd := int(slave.Fd())
	if err := makeRaw(fd); err != nil {
		master.Close()
		slave.Close()
		return nil, err
	}

	return &Device{
		cfg:     cfg,
		log:     logging.Component(log, "sim").With().Str("port", cfg.Name).Logger(),
		master:  master,
		slave:   slave,
		slaveFd: fd,
		next:    cfg.StartNumber,
		breaks:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}, nil
}

// makeRaw puts the slave into raw 8-bit mode so frames pass unmodified
// and nothing is echoed back to the instrument side.
func makeRaw(fd int) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB
	t.Cflag |= unix.CS8
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0
	return unix.IoctlSetTermios(fd, unix.TCSETS, t)
}

// Name is the identifier the device is registered under.
func (d *Device) Name() string { return d.cfg.Name }

// Path is the slave device path, e.g. /dev/pts/4.
func (d *Device) Path() string { return d.slave.Name() }

// Run emits frames and services commands until ctx is cancelled or the
// device is closed.
func (d *Device) Run(ctx context.Context) {
	go d.commandLoop()

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.done:
			return
		case <-d.breaks:
			d.writeMaster([]byte(banner(d.cfg)))
		case <-ticker.C:
			if !d.open.Load() || d.paused.Load() {
				continue
			}
			d.writeMaster(decoder.EncodeFrame(frame(d.cfg, d.next, d.cfg.Now())))
			d.next++
		}
	}
}

func (d *Device) commandLoop() {
	buf := make([]byte, 256)
	var line []byte
	for {
		n, err := d.master.Read(buf)
		if err != nil {
			select {
			case <-d.done:
			default:
				d.log.Debug().Err(err).Msg("command reader stopped")
			}
			return
		}
		line = append(line, buf[:n]...)
		for {
			i := bytes.IndexAny(line, "\r\n")
			if i < 0 {
				break
			}
			cmd := strings.TrimSpace(string(line[:i]))
			line = line[i+1:]
			if cmd != "" {
				d.handleCommand(cmd)
			}
		}
	}
}

func (d *Device) handleCommand(cmd string) {
	d.log.Debug().Str("cmd", cmd).Msg("command")
	switch strings.ToUpper(cmd) {
	case "START":
		d.paused.Store(false)
	case "STOP":
		d.paused.Store(true)
	}
	d.writeMaster([]byte(cmd + "\r\n"))
}

func (d *Device) writeMaster(p []byte) {
	if !d.open.Load() {
		return
	}
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	if _, err := d.master.Write(p); err != nil {
		d.log.Warn().Err(err).Msg("write failed")
	}
}

// Open hands out the bridge side. Only one handle may be open at a time.
func (d *Device) Open(name string, baud int) (serialport.Port, error) {
	select {
	case <-d.done:
		return nil, os.ErrClosed
	default:
	}
	if baud <= 0 {
		return nil, serialport.ErrInvalidBaud
	}
	if !d.open.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	d.log.Info().Int("baud", baud).Str("path", d.Path()).Msg("opened")
	return &port{d: d}, nil
}

func (d *Device) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.done)
		d.open.Store(false)
		if cerr := d.master.Close(); cerr != nil {
			err = cerr
		}
		if cerr := d.slave.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}

// port is the bridge-side handle on the slave end.
type port struct {
	d      *Device
	closed atomic.Bool
}

func (p *port) Available() (int, error) {
	if p.closed.Load() {
		return 0, os.ErrClosed
	}
	return unix.IoctlGetInt(p.d.slaveFd, unix.TIOCINQ)
}

func (p *port) Read(b []byte) (int, error) {
	if p.closed.Load() {
		return 0, os.ErrClosed
	}
	return p.d.slave.Read(b)
}

func (p *port) Write(b []byte) (int, error) {
	if p.closed.Load() {
		return 0, os.ErrClosed
	}
	return p.d.slave.Write(b)
}

func (p *port) Break(time.Duration) error {
	if p.closed.Load() {
		return os.ErrClosed
	}
	select {
	case p.d.breaks <- struct{}{}:
	default:
	}
	return nil
}

func (p *port) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.d.open.Store(false)
	// Stale input would otherwise be delivered to the next session.
	return unix.IoctlSetInt(p.d.slaveFd, unix.TCFLSH, unix.TCIFLUSH)
}
