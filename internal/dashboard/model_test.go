package dashboard

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/fanout/internal/event"
)

func snapshot(state string, agents ...event.AgentSnapshot) snapshotMsg {
	return snapshotMsg(event.NewSnapshotEvent("0123456789abcdef", state, agents))
}

func TestModel_QuitCancelsOnce(t *testing.T) {
	tests := []struct {
		name string
		key  tea.KeyMsg
	}{
		{"q", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}},
		{"ctrl+c", tea.KeyMsg{Type: tea.KeyCtrlC}},
		{"esc", tea.KeyMsg{Type: tea.KeyEsc}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			var model tea.Model = NewModel("run", func() { calls++ })

			model, cmd := model.Update(tt.key)
			if cmd != nil {
				t.Error("quitting should wait for the run to finish")
			}
			model, _ = model.Update(tt.key)
			if calls != 1 {
				t.Errorf("cancel called %d times, want 1", calls)
			}
			if !strings.Contains(model.View(), "stopping") {
				t.Error("view should show that the run is stopping")
			}
		})
	}
}

func TestModel_OtherKeysIgnored(t *testing.T) {
	calls := 0
	var model tea.Model = NewModel("run", func() { calls++ })
	model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}})
	if calls != 0 {
		t.Errorf("cancel called %d times, want 0", calls)
	}
}

func TestModel_FinishedQuits(t *testing.T) {
	var model tea.Model = NewModel("run", nil)

	model, cmd := model.Update(stateMsg("cancelling"))
	if cmd != nil {
		t.Error("cancelling should not quit")
	}
	_, cmd = model.Update(stateMsg("finished"))
	if cmd == nil {
		t.Fatal("finished should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected a quit command")
	}
}

func TestModel_RendersSnapshot(t *testing.T) {
	var model tea.Model = NewModel("0123456789abcdef", nil)
	if !strings.Contains(model.View(), "waiting for agents") {
		t.Error("empty dashboard should wait for agents")
	}

	model, _ = model.Update(snapshot("running",
		event.AgentSnapshot{Agent: "testing0", Count: 51, Received: 51, Running: true},
		event.AgentSnapshot{Agent: "testing1", Count: 40, Received: 30, Dropped: 10, Anomalies: 1},
	))
	view := model.View()

	for _, want := range []string{"01234567", "running", "testing0", "51", "testing1", "exited"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
	if strings.Contains(view, "0123456789abcdef") {
		t.Error("run id should be shortened")
	}
}

func TestModel_Rate(t *testing.T) {
	m := NewModel("run", nil)
	first := event.NewSnapshotEvent("run", "running", []event.AgentSnapshot{{Agent: "testing0", Count: 10}})
	m.applySnapshot(first, first.Timestamp())
	if m.rows[0].rate != 0 {
		t.Errorf("first snapshot rate = %v, want 0", m.rows[0].rate)
	}

	second := event.NewSnapshotEvent("run", "running", []event.AgentSnapshot{{Agent: "testing0", Count: 60}})
	m.applySnapshot(second, first.Timestamp().Add(500*time.Millisecond))
	if got := m.rows[0].rate; got != 100 {
		t.Errorf("rate = %v, want 100", got)
	}
}
