//go:build !linux

package sim

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rowetechinc/river/internal/serialport"
)

type Device struct {
	cfg Config
}

func New(cfg Config, log zerolog.Logger) (*Device, error) {
	return nil, ErrUnsupported
}

func (d *Device) Name() string { return d.cfg.Name }

func (d *Device) Path() string { return "" }

func (d *Device) Run(ctx context.Context) {}

func (d *Device) Open(name string, baud int) (serialport.Port, error) {
	return nil, ErrUnsupported
}

func (d *Device) Close() error { return nil }
