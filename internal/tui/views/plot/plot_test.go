package plot

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rowetechinc/river/internal/telemetry"
)

func TestSparklineScales(t *testing.T) {
	got := Sparkline([]float64{10, 12, 14}, 10)
	if got != "▁▅█" {
		t.Errorf("Sparkline() = %q", got)
	}
}

func TestSparklineKeepsNewest(t *testing.T) {
	got := Sparkline([]float64{0, 0, 1, 2}, 2)
	if utf8.RuneCountInString(got) != 2 {
		t.Fatalf("Sparkline() = %q, want 2 runes", got)
	}
	if got != "▁█" {
		t.Errorf("Sparkline() = %q, want newest two points", got)
	}
}

func TestSparklineFlatAndEmpty(t *testing.T) {
	if got := Sparkline([]float64{5, 5, 5}, 10); got != "▅▅▅" {
		t.Errorf("flat = %q", got)
	}
	if got := Sparkline(nil, 10); got != "" {
		t.Errorf("empty = %q", got)
	}
}

func TestViewStats(t *testing.T) {
	m := New("VOLTAGE", "V")
	if out := m.View(80); !strings.Contains(out, "waiting for ensembles") {
		t.Errorf("empty view:\n%s", out)
	}
	m.Set(telemetry.Snapshot{
		X: []string{"2024-05-01 12:00:01.000000", "2024-05-01 12:00:02.000000"},
		Y: []float64{12.1, 12.3},
	})
	out := m.View(100)
	for _, want := range []string{"last 12.30V", "min 12.10", "max 12.30", "n=2", "12:00:02"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q:\n%s", want, out)
		}
	}
}
