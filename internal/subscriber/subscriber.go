// Package subscriber reads an agent's channel without blocking.
package subscriber

import (
	"github.com/Iron-Ham/fanout/internal/channel"
	"github.com/Iron-Ham/fanout/internal/envelope"
)

// Subscriber is a named reader on one channel.
type Subscriber struct {
	id string
	r  *channel.Reader
}

// Bind attaches a subscriber identified by id to ch. The subscriber's first
// drain includes up to HistorySize samples written before it attached.
func Bind(ch *channel.Channel, id string) (*Subscriber, error) {
	r, err := ch.NewReader()
	if err != nil {
		return nil, err
	}
	return &Subscriber{id: id, r: r}, nil
}

// ID returns the identifier the subscriber was bound with.
func (s *Subscriber) ID() string { return s.id }

// Drain returns every envelope currently available, in channel order, and
// never waits for more. An empty result is normal. A returned error is a
// transport failure; callers may log it and drain again later.
func (s *Subscriber) Drain() ([]envelope.Envelope, error) {
	return s.r.Drain()
}

// Stats returns the received and dropped counters of the subscription.
func (s *Subscriber) Stats() (channel.Stats, error) {
	return s.r.Stats()
}

// Close detaches the subscriber.
func (s *Subscriber) Close() error {
	return s.r.Close()
}
