// Package agent runs one publisher bound to one channel for the life of a
// context: the body of both the agent process and an in-process task.
package agent

import (
	"context"
	"time"

	"github.com/Iron-Ham/fanout/internal/channel"
	"github.com/Iron-Ham/fanout/internal/errors"
	"github.com/Iron-Ham/fanout/internal/logging"
	"github.com/Iron-Ham/fanout/internal/publisher"
)

// Options configures an agent.
type Options struct {
	// Service is the channel name the agent publishes on.
	Service  string
	Opener   channel.Opener
	Channel  channel.Config
	Interval time.Duration
	Logger   *logging.Logger
}

// Agent is a publisher bound to its channel and ready to run.
type Agent struct {
	service  string
	ch       *channel.Channel
	pub      *publisher.Publisher
	interval time.Duration
	logger   *logging.Logger
}

// Start opens the service channel and attaches a publisher to it. Failures
// here are transport or capacity errors and are fatal to the agent.
func Start(opts Options) (*Agent, error) {
	if opts.Opener == nil {
		return nil, errors.NewValidationError("agent requires a channel opener").WithField("opener")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	logger = logger.WithAgent(opts.Service)

	ch, err := opts.Opener.Open(opts.Service, opts.Channel)
	if err != nil {
		return nil, err
	}
	pub, err := publisher.Bind(ch, logger)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	return &Agent{
		service:  opts.Service,
		ch:       ch,
		pub:      pub,
		interval: opts.Interval,
		logger:   logger,
	}, nil
}

// Service returns the channel name.
func (a *Agent) Service() string { return a.service }

// Sent returns the number of envelopes published so far.
func (a *Agent) Sent() uint64 { return a.pub.Sequence() }

// Run publishes Start, Ticks until ctx is done, then End, and releases the
// channel. It must be called once.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("agent started", "interval", a.interval)

	err := publisher.Run(ctx, a.pub, a.interval)
	if closeErr := a.ch.Close(); closeErr != nil {
		a.logger.Warn("failed to close channel", "error", closeErr)
	}

	if err != nil {
		a.logger.Error("agent failed", "sent", a.pub.Sequence(), "error", err)
		return err
	}
	a.logger.Info("agent stopped", "sent", a.pub.Sequence())
	return nil
}

// Run starts an agent and runs it until ctx is done.
func Run(ctx context.Context, opts Options) error {
	a, err := Start(opts)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}
