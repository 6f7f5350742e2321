package event

import "time"

// Event is implemented by everything published on a Bus.
type Event interface {
	// EventType returns the "category.action" identifier of the event.
	EventType() string
	Timestamp() time.Time
}

// Event types.
const (
	TypeAgentLaunched   = "agent.launched"
	TypeAgentExited     = "agent.exited"
	TypeMessagesDrained = "messages.drained"
	TypeSequenceAnomaly = "sequence.anomaly"
	TypeDrainFailed     = "drain.failed"
	TypeProgress        = "run.progress"
	TypeSnapshot        = "run.snapshot"
	TypeStateChanged    = "run.state_changed"
)

type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{eventType: eventType, timestamp: time.Now()}
}

// -----------------------------------------------------------------------------
// Agent Lifecycle Events
// -----------------------------------------------------------------------------

// AgentLaunchedEvent is emitted once an agent is running. PID is zero for
// agents run as goroutines.
type AgentLaunchedEvent struct {
	baseEvent
	Agent string
	PID   int
}

// NewAgentLaunchedEvent creates an AgentLaunchedEvent.
func NewAgentLaunchedEvent(agent string, pid int) AgentLaunchedEvent {
	return AgentLaunchedEvent{
		baseEvent: newBaseEvent(TypeAgentLaunched),
		Agent:     agent,
		PID:       pid,
	}
}

// AgentExitedEvent is emitted when an agent has been reaped.
type AgentExitedEvent struct {
	baseEvent
	Agent string
	PID   int
	Err   error // nil on a clean exit
}

// NewAgentExitedEvent creates an AgentExitedEvent.
func NewAgentExitedEvent(agent string, pid int, err error) AgentExitedEvent {
	return AgentExitedEvent{
		baseEvent: newBaseEvent(TypeAgentExited),
		Agent:     agent,
		PID:       pid,
		Err:       err,
	}
}

// -----------------------------------------------------------------------------
// Delivery Events
// -----------------------------------------------------------------------------

// MessagesDrainedEvent is emitted when a drain returned at least one envelope.
type MessagesDrainedEvent struct {
	baseEvent
	Agent        string
	Count        int
	LastSequence uint64
}

// NewMessagesDrainedEvent creates a MessagesDrainedEvent.
func NewMessagesDrainedEvent(agent string, count int, last uint64) MessagesDrainedEvent {
	return MessagesDrainedEvent{
		baseEvent:    newBaseEvent(TypeMessagesDrained),
		Agent:        agent,
		Count:        count,
		LastSequence: last,
	}
}

// SequenceAnomalyEvent is emitted for every sequence mismatch.
type SequenceAnomalyEvent struct {
	baseEvent
	Agent    string
	Expected uint64
	Observed uint64
}

// NewSequenceAnomalyEvent creates a SequenceAnomalyEvent.
func NewSequenceAnomalyEvent(agent string, expected, observed uint64) SequenceAnomalyEvent {
	return SequenceAnomalyEvent{
		baseEvent: newBaseEvent(TypeSequenceAnomaly),
		Agent:     agent,
		Expected:  expected,
		Observed:  observed,
	}
}

// DrainFailedEvent is emitted when a drain hit a transport error.
type DrainFailedEvent struct {
	baseEvent
	Agent string
	Err   error
}

// NewDrainFailedEvent creates a DrainFailedEvent.
func NewDrainFailedEvent(agent string, err error) DrainFailedEvent {
	return DrainFailedEvent{
		baseEvent: newBaseEvent(TypeDrainFailed),
		Agent:     agent,
		Err:       err,
	}
}

// -----------------------------------------------------------------------------
// Run Events
// -----------------------------------------------------------------------------

// ProgressEvent is emitted each time an agent's count crosses a progress
// boundary.
type ProgressEvent struct {
	baseEvent
	Agent string
	Count uint64
}

// NewProgressEvent creates a ProgressEvent.
func NewProgressEvent(agent string, count uint64) ProgressEvent {
	return ProgressEvent{
		baseEvent: newBaseEvent(TypeProgress),
		Agent:     agent,
		Count:     count,
	}
}

// AgentSnapshot is the state of one agent at a point in the run.
type AgentSnapshot struct {
	Agent     string
	Count     uint64
	Received  uint64
	Dropped   uint64
	Anomalies uint64
	Running   bool
}

// SnapshotEvent carries the state of every agent, in agent order.
type SnapshotEvent struct {
	baseEvent
	RunID  string
	State  string
	Agents []AgentSnapshot
}

// NewSnapshotEvent creates a SnapshotEvent.
func NewSnapshotEvent(runID, state string, agents []AgentSnapshot) SnapshotEvent {
	return SnapshotEvent{
		baseEvent: newBaseEvent(TypeSnapshot),
		RunID:     runID,
		State:     state,
		Agents:    agents,
	}
}

// StateChangedEvent is emitted on every orchestrator state transition.
type StateChangedEvent struct {
	baseEvent
	From string
	To   string
}

// NewStateChangedEvent creates a StateChangedEvent.
func NewStateChangedEvent(from, to string) StateChangedEvent {
	return StateChangedEvent{
		baseEvent: newBaseEvent(TypeStateChanged),
		From:      from,
		To:        to,
	}
}
