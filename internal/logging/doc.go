// Package logging provides structured logging for fanout processes.
//
// This package wraps Go's log/slog. Every line carries a timestamp, a level and
// a message, followed by structured attributes such as the agent or channel a
// component is bound to.
//
// # Levels
//
// Five levels are supported: [LevelTrace], [LevelDebug], [LevelInfo],
// [LevelWarn] and [LevelError]. TRACE sits below DEBUG and is used for
// per-message records such as every envelope a publisher sends; it is off
// unless explicitly enabled.
//
// # Process Setup
//
// A process configures logging exactly once at entry with [Setup]. Later calls
// return the logger created by the first call. Components never reach for a
// global: the logger is passed to them explicitly, and tests use [NopLogger]
// or [New] with a buffer.
//
//	logger, err := logging.Setup(logging.Options{Level: "info", Format: "text"})
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	agentLog := logger.WithAgent("testing0")
//	agentLog.Info("agent started", "pid", os.Getpid())
//
// # Output
//
// Text output (the default) is meant for humans:
//
//	time=2026-10-19T10:00:00.000Z level=WARN msg="sequence mismatch" agent=testing1 expected=40 observed=52
//
// JSON output is selected with Format "json". When Options.File is set, lines
// go to that file through a [RotatingWriter] instead of stdout.
package logging
