package orchestrator

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"golang.org/x/time/rate"

	"github.com/Iron-Ham/fanout/internal/capture"
	"github.com/Iron-Ham/fanout/internal/channel"
	"github.com/Iron-Ham/fanout/internal/errors"
	"github.com/Iron-Ham/fanout/internal/event"
	"github.com/Iron-Ham/fanout/internal/logging"
	"github.com/Iron-Ham/fanout/internal/sequence"
	"github.com/Iron-Ham/fanout/internal/subscriber"
)

// State is the phase of a run. A run only moves forward.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateCancelling
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateCancelling:
		return "cancelling"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// outputTailLines is how much of a failed agent's output is logged.
const outputTailLines = 20

// Options configures an Orchestrator.
type Options struct {
	// Agents is the number of agents, named NamePrefix0..NamePrefix{Agents-1}.
	Agents     int
	NamePrefix string
	Channel    channel.Config
	// Opener opens the orchestrator's side of every channel. It must reach
	// the same channels the launched agents open.
	Opener   channel.Opener
	Launcher Launcher
	// ProgressEvery logs progress each time a count crosses a multiple of
	// it. Zero disables progress logs.
	ProgressEvery uint64
	// ForwardInterrupt interrupts running agents on cancellation.
	ForwardInterrupt bool
	// SnapshotInterval is the period of snapshot events. Zero disables them.
	SnapshotInterval time.Duration
	// AnomalyLogRate limits anomaly warnings per agent per second. Zero
	// logs every anomaly.
	AnomalyLogRate  float64
	AnomalyLogBurst int
	Bus             *event.Bus
	Logger          *logging.Logger
}

// Orchestrator runs one fan-out. Create it with New and call Run once.
type Orchestrator struct {
	opts   Options
	runID  string
	bus    *event.Bus
	logger *logging.Logger

	state   atomic.Int32
	reapers conc.WaitGroup
	reaped  chan struct{}

	mu      sync.Mutex
	tracked []*tracked
}

// tracked is one agent with its subscription. Only the poll loop touches
// the validator; count and anomalies are also read by snapshots.
type tracked struct {
	name      string
	ch        *channel.Channel
	sub       *subscriber.Subscriber
	agent     Agent
	running   atomic.Bool
	lost      atomic.Bool
	validator sequence.Validator
	count     atomic.Uint64
	anomalies atomic.Uint64
	warnings  *rate.Limiter
	logger    *logging.Logger
}

// New validates opts and creates an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Agents < 1 {
		return nil, errors.NewValidationError("must be at least 1").WithField("agents").WithValue(opts.Agents)
	}
	if opts.Opener == nil {
		return nil, errors.NewValidationError("a channel opener is required").WithField("opener")
	}
	if opts.Launcher == nil {
		return nil, errors.NewValidationError("an agent launcher is required").WithField("launcher")
	}
	if err := opts.Channel.Validate(); err != nil {
		return nil, err
	}
	for _, name := range AgentNames(opts.NamePrefix, opts.Agents) {
		if err := channel.ValidateName(name); err != nil {
			return nil, err
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	bus := opts.Bus
	if bus == nil {
		bus = event.NewBus(logger)
	}
	runID := uuid.NewString()

	return &Orchestrator{
		opts:   opts,
		runID:  runID,
		bus:    bus,
		logger: logger.With("run_id", runID),
		reaped: make(chan struct{}),
	}, nil
}

// AgentNames returns the channel names of n agents.
func AgentNames(prefix string, n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return names
}

// RunID returns the unique id of this run.
func (o *Orchestrator) RunID() string { return o.runID }

// State returns the current phase.
func (o *Orchestrator) State() State { return State(o.state.Load()) }

// Reaped is closed once every launched agent has exited. It never closes if
// an agent ignores its interrupt.
func (o *Orchestrator) Reaped() <-chan struct{} { return o.reaped }

// Run subscribes to every channel, launches the agents and polls until ctx
// is done. It returns the final counts. Startup failures abort the run and
// interrupt whatever was already launched. Run must be called once.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	started := time.Now().UTC()
	o.logger.Info("starting run", "agents", o.opts.Agents)

	err := o.start(ctx)
	go func() {
		o.reapers.Wait()
		close(o.reaped)
	}()
	if err != nil {
		o.interruptAgents()
		o.release()
		o.setState(StateFinished)
		return nil, err
	}

	o.setState(StateRunning)
	o.poll(ctx)

	o.setState(StateCancelling)
	if o.opts.ForwardInterrupt {
		o.interruptAgents()
	}

	summary := o.summarize(started)
	o.publishSnapshot()
	o.release()
	o.setState(StateFinished)
	o.logger.Info("run finished", "duration", summary.Finished.Sub(summary.Started))
	return summary, nil
}

// start opens a subscriber on every channel before any agent exists, so
// each subscriber sees its agent's stream from Start.
func (o *Orchestrator) start(ctx context.Context) error {
	names := AgentNames(o.opts.NamePrefix, o.opts.Agents)

	limit := rate.Inf
	if o.opts.AnomalyLogRate > 0 {
		limit = rate.Limit(o.opts.AnomalyLogRate)
	}
	burst := max(o.opts.AnomalyLogBurst, 1)

	for _, name := range names {
		ch, err := o.opts.Opener.Open(name, o.opts.Channel)
		if err != nil {
			return err
		}
		sub, err := subscriber.Bind(ch, name)
		if err != nil {
			_ = ch.Close()
			return err
		}
		o.mu.Lock()
		o.tracked = append(o.tracked, &tracked{
			name:     name,
			ch:       ch,
			sub:      sub,
			warnings: rate.NewLimiter(limit, burst),
			logger:   o.logger.WithAgent(name),
		})
		o.mu.Unlock()
	}

	for _, t := range o.tracked {
		a, err := o.opts.Launcher.Launch(ctx, t.name)
		if err != nil {
			t.logger.Error("failed to launch agent", "error", err)
			return err
		}
		t.agent = a
		t.running.Store(true)
		t.logger.Info("agent launched", "pid", a.PID())
		o.bus.Publish(event.NewAgentLaunchedEvent(t.name, a.PID()))
		o.reapers.Go(func() { o.reap(t) })
	}
	return nil
}

// reap waits for an agent to exit. It has no effect on polling.
func (o *Orchestrator) reap(t *tracked) {
	err := t.agent.Wait()
	t.running.Store(false)
	if err != nil {
		t.logger.Warn("agent exited with error", "pid", t.agent.PID(), "error", err)
		if c, ok := t.agent.(interface{ Output() *capture.RingBuffer }); ok {
			out := c.Output()
			t.logger.Debug("agent output captured", "bytes", out.Total(), "truncated", out.Truncated())
			for _, line := range out.Tail(outputTailLines) {
				t.logger.Warn("agent output", "line", line)
			}
		}
	} else {
		t.logger.Debug("agent exited", "pid", t.agent.PID())
	}
	o.bus.Publish(event.NewAgentExitedEvent(t.name, t.agent.PID(), err))
}

// poll drains every subscriber in order until ctx is done. A cycle that has
// begun always completes.
func (o *Orchestrator) poll(ctx context.Context) {
	lastSnapshot := time.Now()
	for ctx.Err() == nil {
		for _, t := range o.tracked {
			if t.lost.Load() {
				continue
			}
			o.drain(t)
			runtime.Gosched()
		}
		if o.opts.SnapshotInterval > 0 && time.Since(lastSnapshot) >= o.opts.SnapshotInterval {
			o.publishSnapshot()
			lastSnapshot = time.Now()
		}
	}
}

func (o *Orchestrator) drain(t *tracked) {
	envs, err := t.sub.Drain()
	if len(envs) > 0 {
		before := t.count.Load()
		for _, e := range envs {
			if a, ok := t.validator.Observe(e); !ok {
				t.anomalies.Add(1)
				o.bus.Publish(event.NewSequenceAnomalyEvent(t.name, a.Expected, a.Observed))
				if t.warnings.Allow() {
					t.logger.Warn("sequence mismatch", "expected", a.Expected, "observed", a.Observed, "missed", a.Missed())
				}
			}
		}
		count := t.validator.Expected()
		t.count.Store(count)
		o.bus.Publish(event.NewMessagesDrainedEvent(t.name, len(envs), envs[len(envs)-1].Sequence))

		if every := o.opts.ProgressEvery; every > 0 && count/every > before/every {
			t.logger.Info("progress", "count", count)
			o.bus.Publish(event.NewProgressEvent(t.name, count))
		}
	}
	if err == nil {
		return
	}
	o.bus.Publish(event.NewDrainFailedEvent(t.name, err))
	switch {
	case errors.IsRetryable(err):
		t.logger.Warn("drain failed", "error", err, "severity", errors.GetSeverity(err))
	case errors.IsFatal(err):
		// A closed or reclaimed port never delivers again.
		t.lost.Store(true)
		t.logger.Error("subscriber lost, no longer polling", "error", err)
	default:
		t.logger.Error("drain failed", "error", err)
	}
}

func (o *Orchestrator) interruptAgents() {
	for _, t := range o.tracked {
		if t.agent == nil || !t.running.Load() {
			continue
		}
		if err := t.agent.Interrupt(); err != nil {
			t.logger.Warn("failed to interrupt agent", "error", err)
		}
	}
}

func (o *Orchestrator) summarize(started time.Time) *Summary {
	s := &Summary{
		RunID:   o.runID,
		Started: started,
		Agents:  make([]AgentResult, 0, len(o.tracked)),
	}
	for _, t := range o.tracked {
		r := AgentResult{Agent: t.name, Count: t.count.Load(), Anomalies: t.anomalies.Load()}
		if stats, err := t.sub.Stats(); err == nil {
			r.Received = stats.Received
			r.Dropped = stats.Dropped
		} else {
			t.logger.Warn("failed to read subscriber stats", "error", err)
		}
		s.Agents = append(s.Agents, r)
	}
	s.Finished = time.Now().UTC()
	return s
}

// release detaches every subscriber and closes the channel handles.
func (o *Orchestrator) release() {
	for _, t := range o.tracked {
		if err := t.sub.Close(); err != nil {
			t.logger.Warn("failed to close subscriber", "error", err)
		}
		if err := t.ch.Close(); err != nil {
			t.logger.Warn("failed to close channel", "error", err)
		}
	}
}

func (o *Orchestrator) setState(s State) {
	from := State(o.state.Swap(int32(s)))
	if from == s {
		return
	}
	o.logger.Debug("state changed", "from", from.String(), "to", s.String())
	o.bus.Publish(event.NewStateChangedEvent(from.String(), s.String()))
}

// Snapshot returns the state of every agent. Counts are those of the last
// completed drain and may lag while the run is polling.
func (o *Orchestrator) Snapshot() []event.AgentSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]event.AgentSnapshot, 0, len(o.tracked))
	for _, t := range o.tracked {
		snap := event.AgentSnapshot{
			Agent:     t.name,
			Count:     t.count.Load(),
			Anomalies: t.anomalies.Load(),
			Running:   t.running.Load(),
		}
		if stats, err := t.sub.Stats(); err == nil {
			snap.Received = stats.Received
			snap.Dropped = stats.Dropped
		}
		out = append(out, snap)
	}
	return out
}

func (o *Orchestrator) publishSnapshot() {
	o.bus.Publish(event.NewSnapshotEvent(o.runID, o.State().String(), o.Snapshot()))
}
