package gauge

import (
	"strings"
	"testing"
)

func TestFirstReadingJumps(t *testing.T) {
	m := New(0, 20)
	if cmd := m.SetTarget(12.5); cmd != nil {
		t.Error("first reading should not animate")
	}
	if m.Value() != 12.5 {
		t.Errorf("Value() = %v, want 12.5", m.Value())
	}
}

func TestSpringSettlesOnTarget(t *testing.T) {
	m := New(0, 20)
	m.SetTarget(10)
	if cmd := m.SetTarget(14); cmd == nil {
		t.Fatal("second reading should start the animation")
	}

	frames := 0
	for cmd := m.Update(TickMsg{}); cmd != nil; cmd = m.Update(TickMsg{}) {
		frames++
		if frames > 300 {
			t.Fatalf("spring did not settle, value %v", m.Value())
		}
	}
	if m.Value() != 14 {
		t.Errorf("Value() = %v, want 14", m.Value())
	}
	if frames == 0 {
		t.Error("expected intermediate frames")
	}
}

func TestUpdateIgnoresOtherMessages(t *testing.T) {
	m := New(0, 20)
	m.SetTarget(5)
	if cmd := m.Update("key"); cmd != nil {
		t.Error("non-tick message should be ignored")
	}
}

func TestViewLabel(t *testing.T) {
	m := New(0, 20)
	if out := m.View(60); !strings.Contains(out, "--.--V") {
		t.Errorf("unset gauge:\n%s", out)
	}
	m.SetTarget(12.3)
	out := m.View(60)
	if !strings.Contains(out, "12.30V") {
		t.Errorf("gauge label:\n%s", out)
	}
	if strings.Count(out, "█")+strings.Count(out, "░") != 42 {
		t.Errorf("bar width wrong:\n%s", out)
	}
}
