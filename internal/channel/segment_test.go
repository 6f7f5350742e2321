package channel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/fanout/internal/envelope"
	"github.com/Iron-Ham/fanout/internal/errors"
)

func alwaysAlive(int) bool { return true }

func newSegment(t *testing.T, cfg Config) segment {
	t.Helper()
	seg := make(segment, segmentSize(cfg))
	seg.init(cfg)
	require.NoError(t, seg.check(cfg))
	return seg
}

func writeN(seg segment, pub int, from, n uint64) {
	for i := from; i < from+n; i++ {
		seg.write(pub, envelope.Envelope{Timestamp: time.Now().UTC(), Sequence: i, Payload: envelope.Tick})
	}
}

func sequences(envs []envelope.Envelope) []uint64 {
	out := make([]uint64, len(envs))
	for i, e := range envs {
		out[i] = e.Sequence
	}
	return out
}

func TestSegment_Check(t *testing.T) {
	cfg := DefaultConfig()
	seg := newSegment(t, cfg)

	other := cfg
	other.BufferSize = 10
	assert.ErrorIs(t, seg.check(other), errors.ErrConfigMismatch)

	bad := make(segment, len(seg))
	copy(bad, seg)
	bad[offMagic] ^= 0xff
	assert.ErrorIs(t, bad.check(cfg), errors.ErrCorrupted)

	assert.ErrorIs(t, seg[:len(seg)-1].check(cfg), errors.ErrCorrupted)
	assert.ErrorIs(t, seg[:8].check(cfg), errors.ErrCorrupted)
}

func TestSegment_DrainInOrder(t *testing.T) {
	seg := newSegment(t, DefaultConfig())
	pub, err := seg.attach(portPublisher, 1, 1, alwaysAlive)
	require.NoError(t, err)
	sub, err := seg.attach(portSubscriber, 1, 2, alwaysAlive)
	require.NoError(t, err)

	writeN(seg, pub, 0, 10)
	got, err := seg.drain(sub)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, sequences(got))

	got, err = seg.drain(sub)
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.Equal(t, uint64(10), seg.sent(pub))
	assert.Equal(t, Stats{Received: 10}, seg.stats(sub))
}

func TestSegment_DrainOverflow(t *testing.T) {
	cfg := Config{BufferSize: 5, HistorySize: 3, MaxPublishers: 1, MaxSubscribers: 1}
	seg := newSegment(t, cfg)
	pub, err := seg.attach(portPublisher, 1, 1, alwaysAlive)
	require.NoError(t, err)
	sub, err := seg.attach(portSubscriber, 1, 2, alwaysAlive)
	require.NoError(t, err)

	writeN(seg, pub, 0, 12)
	got, err := seg.drain(sub)
	require.NoError(t, err)
	assert.Equal(t, []uint64{7, 8, 9, 10, 11}, sequences(got))
	assert.Equal(t, Stats{Received: 5, Dropped: 7}, seg.stats(sub))
}

func TestSegment_HistoryReplay(t *testing.T) {
	cfg := Config{BufferSize: 4, HistorySize: 6, MaxPublishers: 1, MaxSubscribers: 2}
	seg := newSegment(t, cfg)
	pub, err := seg.attach(portPublisher, 1, 1, alwaysAlive)
	require.NoError(t, err)

	writeN(seg, pub, 0, 3)
	early, err := seg.attach(portSubscriber, 1, 2, alwaysAlive)
	require.NoError(t, err)
	got, err := seg.drain(early)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1, 2}, sequences(got), "history covers everything written so far")

	writeN(seg, pub, 3, 10)
	late, err := seg.attach(portSubscriber, 1, 3, alwaysAlive)
	require.NoError(t, err)
	got, err = seg.drain(late)
	require.NoError(t, err)
	// History replays six samples but the buffer bound still applies.
	assert.Equal(t, []uint64{9, 10, 11, 12}, sequences(got))
	assert.Equal(t, uint64(2), seg.stats(late).Dropped)
}

func TestSegment_Capacity(t *testing.T) {
	cfg := Config{BufferSize: 1, HistorySize: 0, MaxPublishers: 2, MaxSubscribers: 1}
	seg := newSegment(t, cfg)

	_, err := seg.attach(portPublisher, 10, 1, alwaysAlive)
	require.NoError(t, err)
	_, err = seg.attach(portPublisher, 20, 2, alwaysAlive)
	require.NoError(t, err)
	_, err = seg.attach(portPublisher, 30, 3, alwaysAlive)
	assert.ErrorIs(t, err, errors.ErrCapacityExceeded)

	// Subscribers have their own table.
	_, err = seg.attach(portSubscriber, 30, 4, alwaysAlive)
	require.NoError(t, err)

	deadTen := func(pid int) bool { return pid != 10 }
	idx, err := seg.attach(portPublisher, 30, 5, deadTen)
	require.NoError(t, err, "slot of a dead process is reclaimed")
	assert.Equal(t, 0, idx)
	assert.True(t, seg.owns(portPublisher, idx, 30, 5))
	assert.False(t, seg.owns(portPublisher, idx, 10, 1))
}

func TestSegment_RefsAndSweep(t *testing.T) {
	seg := newSegment(t, DefaultConfig())
	p, _ := seg.attach(portPublisher, 1, 1, alwaysAlive)
	_, _ = seg.attach(portSubscriber, 2, 2, alwaysAlive)
	assert.Equal(t, 2, seg.refs())

	subs, stale := seg.ports(portSubscriber, func(pid int) bool { return pid != 2 })
	assert.Equal(t, 1, subs)
	assert.Equal(t, 1, stale)

	assert.Equal(t, 1, seg.sweep(func(pid int) bool { return pid != 2 }))
	assert.Equal(t, 1, seg.refs())

	seg.detach(portPublisher, p)
	assert.Equal(t, 0, seg.refs())
}

func TestSegment_Abandoned(t *testing.T) {
	exited := func(pid int) bool { return pid != 7 }

	tests := []struct {
		name  string
		setup func(seg segment)
		want  bool
	}{
		{"fresh", func(segment) {}, false},
		{"exited ports without samples", func(seg segment) {
			_, _ = seg.attach(portSubscriber, 7, 1, alwaysAlive)
		}, false},
		{"samples from exited ports", func(seg segment) {
			pub, _ := seg.attach(portPublisher, 7, 1, alwaysAlive)
			writeN(seg, pub, 0, 3)
		}, true},
		{"samples with a live port", func(seg segment) {
			pub, _ := seg.attach(portPublisher, 8, 1, alwaysAlive)
			writeN(seg, pub, 0, 3)
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seg := newSegment(t, DefaultConfig())
			tt.setup(seg)
			assert.Equal(t, tt.want, seg.abandoned(exited))
		})
	}
}

func TestSegment_DrainCorruptRecord(t *testing.T) {
	seg := newSegment(t, DefaultConfig())
	pub, _ := seg.attach(portPublisher, 1, 1, alwaysAlive)
	sub, _ := seg.attach(portSubscriber, 1, 2, alwaysAlive)

	writeN(seg, pub, 0, 4)
	seg.ring(2)[16] = 0 // invalid payload

	got, err := seg.drain(sub)
	assert.ErrorIs(t, err, errors.ErrCorrupted)
	assert.Equal(t, []uint64{0, 1}, sequences(got))

	got, err = seg.drain(sub)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3}, sequences(got), "the bad record is skipped")
}
