// Package orchestrator runs a fan-out: it launches one publisher agent per
// channel, subscribes to every channel, and polls them round-robin until the
// run is cancelled, validating sequences and keeping a per-agent count.
//
// # Lifecycle
//
// A run moves linearly through Starting, Running, Cancelling and Finished.
// Starting opens a subscriber on each channel and then launches its agent; a
// failure of either aborts the run. Running drains every subscriber each
// cycle without sleeping, yielding between subscribers. Cancelling begins
// when the context is done: the current cycle completes, running agents are
// sent an interrupt (never killed), and the run finishes without waiting for
// them to exit.
//
// # Topologies
//
// A [Launcher] decides what an agent is. [ProcessLauncher] starts this
// binary's agent command as a child process, with its output captured for
// diagnostics. [TaskLauncher] runs the agent as a goroutine in this process.
// The channel semantics are the same either way.
package orchestrator
