// Package sim runs a fake ADCP behind a pseudo-terminal. The bridge talks
// to it through the same Port interface as a real instrument: it streams
// ensemble sentences, prints its banner on BREAK, pauses on STOP, resumes on
// START and echoes anything else.
package sim

import (
	"errors"
	"math"
	"time"

	"github.com/rowetechinc/river/internal/decoder"
)

var (
	ErrBusy        = errors.New("simulator port already open")
	ErrUnsupported = errors.New("simulator requires linux")
)

type Config struct {
	Name        string
	Interval    time.Duration
	StartNumber int
	BaseVoltage float64
	Serial      string
	Firmware    string
	// Now is the frame clock; defaults to time.Now.
	Now func() time.Time
}

func (c *Config) setDefaults() {
	if c.Name == "" {
		c.Name = "SIM0"
	}
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.StartNumber <= 0 {
		c.StartNumber = 1
	}
	if c.BaseVoltage == 0 {
		c.BaseVoltage = 12.2
	}
	if c.Serial == "" {
		c.Serial = "01300000000000000000000000000001"
	}
	if c.Firmware == "" {
		c.Firmware = "0.2.132 simulated"
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// frame builds ensemble n. Voltage drifts slowly around the base value.
func frame(cfg Config, n int, at time.Time) decoder.Ensemble {
	phase := float64(n) / 10
	return decoder.Ensemble{
		Data:  &decoder.EnsembleData{Number: n, Time: at.UTC()},
		Setup: &decoder.SystemSetup{Voltage: round(cfg.BaseVoltage+0.3*math.Sin(phase), 3)},
		Fields: map[string]float64{
			"heading":     round(math.Mod(float64(n)*3.6, 360), 2),
			"pitch":       round(1.5*math.Sin(phase/2), 2),
			"roll":        round(0.8*math.Cos(phase/3), 2),
			"temperature": round(14+0.5*math.Sin(phase/5), 2),
		},
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func banner(cfg Config) string {
	return decoder.FormatBreakBanner("Rowe Technologies Inc. ADCP (simulated)", cfg.Serial, cfg.Firmware, "Profile")
}
