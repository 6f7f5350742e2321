package orchestrator

import (
	"context"
	"os"
	"os/exec"
	"time"

	"github.com/sourcegraph/conc/panics"

	"github.com/Iron-Ham/fanout/internal/agent"
	"github.com/Iron-Ham/fanout/internal/capture"
	"github.com/Iron-Ham/fanout/internal/channel"
	"github.com/Iron-Ham/fanout/internal/errors"
	"github.com/Iron-Ham/fanout/internal/logging"
)

// Agent is a launched publisher.
type Agent interface {
	Name() string
	// PID is the agent's process id, or 0 for in-process agents.
	PID() int
	// Interrupt asks the agent to finish its lifecycle. It does not wait.
	Interrupt() error
	// Wait blocks until the agent has exited and returns its failure, if any.
	Wait() error
}

// Launcher starts agents. Launch returns once the agent is running; errors
// are fatal to the run.
type Launcher interface {
	Launch(ctx context.Context, name string) (Agent, error)
}

// ProcessLauncher runs each agent as "<Executable> agent --service NAME".
// The child gets this process's environment plus Env, which is how channel
// configuration reaches it.
type ProcessLauncher struct {
	// Executable defaults to the running binary.
	Executable string
	Env        []string
	// OutputSize is the number of bytes of agent output kept.
	OutputSize int
}

// Launch starts the agent process. It is not tied to ctx: cancelling a run
// interrupts agents, it never kills them.
func (l *ProcessLauncher) Launch(_ context.Context, name string) (Agent, error) {
	exe := l.Executable
	if exe == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, errors.NewAgentError("resolve executable", errors.Join(errors.ErrAgentLaunch, err)).WithAgent(name)
		}
		exe = self
	}

	out := capture.NewRingBuffer(l.OutputSize)
	cmd := exec.Command(exe, "agent", "--service", name)
	cmd.Env = append(os.Environ(), l.Env...)
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		return nil, errors.NewAgentError("start process", errors.Join(errors.ErrAgentLaunch, err)).WithAgent(name)
	}
	return &processAgent{name: name, cmd: cmd, output: out}, nil
}

type processAgent struct {
	name   string
	cmd    *exec.Cmd
	output *capture.RingBuffer
}

func (a *processAgent) Name() string { return a.name }
func (a *processAgent) PID() int     { return a.cmd.Process.Pid }

func (a *processAgent) Interrupt() error {
	err := a.cmd.Process.Signal(os.Interrupt)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (a *processAgent) Wait() error {
	if err := a.cmd.Wait(); err != nil {
		return errors.NewAgentError("process exited", errors.Join(errors.ErrAgentExited, err)).
			WithAgent(a.name).
			WithPID(a.PID())
	}
	return nil
}

// Output returns the captured stdout and stderr of the agent.
func (a *processAgent) Output() *capture.RingBuffer { return a.output }

// TaskLauncher runs each agent as a goroutine with its own channel handle.
// A panicking agent fails alone.
type TaskLauncher struct {
	Opener   channel.Opener
	Channel  channel.Config
	Interval time.Duration
	Logger   *logging.Logger
}

// Launch binds the agent's publisher and starts its lifecycle. The agent
// stops when ctx is done or when interrupted.
func (l *TaskLauncher) Launch(ctx context.Context, name string) (Agent, error) {
	a, err := agent.Start(agent.Options{
		Service:  name,
		Opener:   l.Opener,
		Channel:  l.Channel,
		Interval: l.Interval,
		Logger:   l.Logger,
	})
	if err != nil {
		return nil, errors.NewAgentError("bind publisher", errors.Join(errors.ErrAgentLaunch, err)).WithAgent(name)
	}

	taskCtx, cancel := context.WithCancel(ctx)
	t := &taskAgent{name: name, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		defer cancel()
		var catcher panics.Catcher
		catcher.Try(func() { t.err = a.Run(taskCtx) })
		if r := catcher.Recovered(); r != nil {
			t.err = errors.NewAgentError("task panicked", errors.Join(errors.ErrAgentExited, r.AsError())).WithAgent(name)
		}
	}()
	return t, nil
}

type taskAgent struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func (t *taskAgent) Name() string { return t.name }
func (t *taskAgent) PID() int     { return 0 }

func (t *taskAgent) Interrupt() error {
	t.cancel()
	return nil
}

func (t *taskAgent) Wait() error {
	<-t.done
	return t.err
}
