// Package channel implements named, capacity-bounded, multi-producer
// multi-consumer channels carrying envelopes between publishers and
// subscribers.
//
// A channel is a fixed-size segment: a header holding its configuration and
// write position, one slot per attached publisher and subscriber, and a ring
// of encoded envelopes. The same layout is served by two transports:
//
//   - [SharedMemory] maps a file (under /dev/shm when available) so that
//     independent processes share one channel, serialized by flock(2).
//   - [Registry] keeps segments in process memory for agents run as
//     goroutines and for tests.
//
// # Overflow
//
// Writes never block. Each subscriber keeps its own cursor; when it falls
// more than BufferSize samples behind, the oldest unread samples are skipped
// and counted as dropped. A newly attached subscriber starts up to
// HistorySize samples behind the write position.
//
// # Lifecycle
//
// Opening a channel by name creates it if needed, or attaches to the existing
// one when the configuration matches ([errors.ErrConfigMismatch] otherwise).
// Attaching a publisher or subscriber claims a slot, failing with
// [errors.ErrCapacityExceeded] when none is free. A channel is destroyed when
// its last port detaches; slots held by processes that no longer exist are
// reclaimed first so a crashed agent never keeps a channel alive.
package channel
