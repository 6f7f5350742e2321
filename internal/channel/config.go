package channel

import (
	"fmt"
	"regexp"

	"github.com/Iron-Ham/fanout/internal/errors"
)

// Default channel limits.
const (
	DefaultBufferSize     = 30
	DefaultHistorySize    = 30
	DefaultMaxPublishers  = 5
	DefaultMaxSubscribers = 5
)

// maxLimit bounds every configurable count so a segment stays a sane size.
const maxLimit = 1 << 16

// MaxNameLength is the longest accepted channel name.
const MaxNameLength = 64

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9._-]*$`)

// Config is fixed when a channel is created. Every participant opening the
// channel by name must pass an identical Config.
type Config struct {
	// BufferSize is the number of undelivered samples kept per subscriber
	// before the oldest unread sample is evicted.
	BufferSize int `json:"buffer_size" yaml:"buffer_size"`
	// HistorySize is the number of recent samples replayed to a subscriber
	// when it attaches.
	HistorySize    int `json:"history_size" yaml:"history_size"`
	MaxPublishers  int `json:"max_publishers" yaml:"max_publishers"`
	MaxSubscribers int `json:"max_subscribers" yaml:"max_subscribers"`
}

// DefaultConfig returns the default channel limits.
func DefaultConfig() Config {
	return Config{
		BufferSize:     DefaultBufferSize,
		HistorySize:    DefaultHistorySize,
		MaxPublishers:  DefaultMaxPublishers,
		MaxSubscribers: DefaultMaxSubscribers,
	}
}

// Validate checks that every limit is within range.
func (c Config) Validate() error {
	checks := []struct {
		field string
		value int
		min   int
	}{
		{"buffer_size", c.BufferSize, 1},
		{"history_size", c.HistorySize, 0},
		{"max_publishers", c.MaxPublishers, 1},
		{"max_subscribers", c.MaxSubscribers, 1},
	}
	for _, chk := range checks {
		if chk.value < chk.min || chk.value > maxLimit {
			return errors.NewValidationError(fmt.Sprintf("must be between %d and %d", chk.min, maxLimit)).
				WithField(chk.field).
				WithValue(chk.value)
		}
	}
	return nil
}

// capacity is the number of ring slots: enough to serve both a full
// subscriber buffer and a full history replay.
func (c Config) capacity() int {
	return max(c.BufferSize, c.HistorySize)
}

// ValidateName reports whether name can identify a channel. Names are used
// as file names by the shared memory transport.
func ValidateName(name string) error {
	if name == "" || len(name) > MaxNameLength || !namePattern.MatchString(name) {
		return errors.NewChannelError(fmt.Sprintf("name %q must match [A-Za-z0-9._-]{1,%d} and not start with '.'", name, MaxNameLength), errors.ErrInvalidName).
			WithChannel(name)
	}
	return nil
}
