package dashboard

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/fanout/internal/event"
)

// updateBuffer bounds the number of run updates queued for the program.
const updateBuffer = 64

// App runs the dashboard program for one run.
type App struct {
	program *tea.Program
	bus     *event.Bus
	subs    []string
	updates chan tea.Msg
	done    chan struct{}
}

// New creates a dashboard subscribed to bus. cancel stops the run.
func New(bus *event.Bus, runID string, cancel func(), opts ...tea.ProgramOption) *App {
	a := &App{
		program: tea.NewProgram(NewModel(runID, cancel), append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)...),
		bus:     bus,
		updates: make(chan tea.Msg, updateBuffer),
		done:    make(chan struct{}),
	}

	// Snapshots are dropped when the program falls behind; the next one
	// supersedes them. State changes always get through.
	a.subs = append(a.subs,
		bus.Subscribe(event.TypeSnapshot, func(e event.Event) {
			select {
			case a.updates <- snapshotMsg(e.(event.SnapshotEvent)):
			default:
			}
		}),
		bus.Subscribe(event.TypeStateChanged, func(e event.Event) {
			select {
			case a.updates <- stateMsg(e.(event.StateChangedEvent).To):
			case <-a.done:
			}
		}),
	)
	return a
}

// Run shows the dashboard until the run finishes or Quit is called.
func (a *App) Run() error {
	go a.relay()
	_, err := a.program.Run()
	close(a.done)
	for _, id := range a.subs {
		a.bus.Unsubscribe(id)
	}
	return err
}

// Quit stops the program.
func (a *App) Quit() {
	a.program.Quit()
}

func (a *App) relay() {
	for {
		select {
		case msg := <-a.updates:
			a.program.Send(msg)
		case <-a.done:
			return
		}
	}
}
