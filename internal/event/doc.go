// Package event provides a synchronous pub-sub bus that decouples the
// orchestrator from the components observing a run: the metrics collector
// and the live dashboard subscribe to it, the poll loop publishes to it.
//
// # Event Types
//
// Types follow the "category.action" convention:
//   - agent.launched, agent.exited
//   - messages.drained, sequence.anomaly, drain.failed
//   - run.progress, run.snapshot, run.state_changed
//
// # Usage
//
//	bus := event.NewBus(logger)
//	bus.Subscribe(event.TypeSequenceAnomaly, func(e event.Event) {
//	    a := e.(event.SequenceAnomalyEvent)
//	    ...
//	})
//	bus.Publish(event.NewSequenceAnomalyEvent("testing0", 4, 9))
package event
