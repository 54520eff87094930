package bridge

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rowetechinc/river/internal/decoder"
	"github.com/rowetechinc/river/internal/serialport"
)

// reader is one run of the background loop, bound to a single open port.
type reader struct {
	m     *Manager
	port  serialport.Port
	codec decoder.Codec
	log   zerolog.Logger

	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}

	// bootstrapped is touched only by the loop goroutine.
	bootstrapped bool
}

func newReader(m *Manager, p serialport.Port, c decoder.Codec) *reader {
	return &reader{
		m:     m,
		port:  p,
		codec: c,
		log:   m.log.With().Str("loop", "reader").Logger(),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (r *reader) stop() {
	r.quitOnce.Do(func() { close(r.quit) })
}

func (r *reader) stopped() bool {
	select {
	case <-r.quit:
		return true
	default:
		return false
	}
}

// publish drops events once the run has been stopped, so nothing is
// emitted for a session after its teardown.
func (r *reader) publish(event string, payload any) {
	if r.stopped() {
		return
	}
	r.m.pub.Publish(event, payload)
}

func (r *reader) loop() {
	defer close(r.done)

	idle := time.NewTimer(r.m.opts.PollInterval)
	defer idle.Stop()

	for {
		if r.stopped() {
			return
		}

		n, err := r.port.Available()
		if err != nil {
			r.fail(&TransportError{Op: "poll", Err: err})
			return
		}
		if n == 0 {
			idle.Reset(r.m.opts.PollInterval)
			select {
			case <-r.quit:
				return
			case <-idle.C:
			}
			continue
		}

		buf := make([]byte, n)
		got, err := r.port.Read(buf)
		if err != nil {
			r.fail(&TransportError{Op: "read", Err: err})
			return
		}
		if got == 0 {
			continue
		}
		if err := r.process(buf[:got]); err != nil {
			r.fail(err)
			return
		}
	}
}

func (r *reader) fail(err error) {
	if r.stopped() {
		// The port was closed under us by Disconnect.
		r.log.Debug().Err(err).Msg("reader exiting after stop")
		return
	}
	r.m.teardown(r, err)
}

// process handles one chunk. A panic in a downstream handler is turned into
// an error so the session is torn down instead of the process.
func (r *reader) process(chunk []byte) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("processing chunk: %v", rec)
		}
	}()

	r.m.store.AddBytes(len(chunk))

	text, derr := asciiText(chunk)
	if derr == nil {
		r.m.store.SetRawASCII(text)
		r.publish(EventSerialComm, SerialCommPayload{Data: text})
	} else {
		r.log.Debug().Err(derr).Msg("chunk not shown as text")
	}

	ensembles, aerr := r.codec.Add(chunk)
	if aerr != nil {
		var perr *decoder.ProtocolError
		if errors.As(aerr, &perr) {
			r.log.Warn().Err(aerr).Msg("frame dropped")
		} else {
			r.log.Warn().Err(aerr).Msg("decoder error")
		}
	}
	for _, e := range ensembles {
		r.handleEnsemble(e)
	}
	return nil
}
