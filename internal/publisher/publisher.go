// Package publisher emits the Start, Tick..., End lifecycle of one agent onto
// a channel.
package publisher

import (
	"context"
	"time"

	"github.com/Iron-Ham/fanout/internal/channel"
	"github.com/Iron-Ham/fanout/internal/envelope"
	"github.com/Iron-Ham/fanout/internal/errors"
	"github.com/Iron-Ham/fanout/internal/logging"
)

// DefaultInterval is the heartbeat period between Tick messages.
const DefaultInterval = 10 * time.Millisecond

// Publisher owns a channel writer and the sequence counter of its stream.
// The counter starts at 0 and advances by one per successful Send.
type Publisher struct {
	w      *channel.Writer
	seq    uint64
	logger *logging.Logger
}

// Bind attaches a publisher to ch.
func Bind(ch *channel.Channel, logger *logging.Logger) (*Publisher, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	w, err := ch.NewWriter()
	if err != nil {
		return nil, err
	}
	return &Publisher{w: w, logger: logger.WithChannel(ch.Name())}, nil
}

// Send writes one envelope carrying payload. It never waits on subscribers;
// an error means the channel is unusable and the publisher should stop.
func (p *Publisher) Send(payload envelope.Payload) error {
	env := envelope.New(p.seq, payload)
	if p.logger.TraceEnabled() {
		p.logger.Trace("[TX] " + env.String())
	}
	if err := p.w.Write(env); err != nil {
		return err
	}
	p.seq++
	return nil
}

// Sequence returns the sequence number the next Send will use, which equals
// the number of envelopes sent so far.
func (p *Publisher) Sequence() uint64 {
	return p.seq
}

// Close detaches the publisher from its channel.
func (p *Publisher) Close() error {
	return p.w.Close()
}

// Run sends Start, then a Tick every interval until ctx is done, then End.
// A failed Start or Tick aborts the run. End is attempted whenever Start
// went out; its failure is returned but nothing is retried.
func Run(ctx context.Context, p *Publisher, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if err := p.Send(envelope.Start); err != nil {
		return errors.Wrap(err, "send start")
	}
	p.logger.Debug("publisher started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			if err := p.Send(envelope.Tick); err != nil {
				runErr = errors.Wrap(err, "send tick")
				break loop
			}
		}
	}

	if err := p.Send(envelope.End); err != nil {
		p.logger.Warn("end marker not sent", "error", err)
		return errors.Join(runErr, errors.Wrap(err, "send end"))
	}
	p.logger.Debug("publisher stopped", "sent", p.seq)
	return runErr
}
