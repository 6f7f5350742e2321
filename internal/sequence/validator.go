// Package sequence detects gaps in a channel's sequence numbers.
package sequence

import "github.com/Iron-Ham/fanout/internal/envelope"

// Anomaly records a sequence number that differed from the one expected.
type Anomaly struct {
	Expected uint64
	Observed uint64
}

// Missed returns how many samples were skipped. It is zero when the
// observed sequence went backwards, as after a publisher restart.
func (a Anomaly) Missed() uint64 {
	if a.Observed > a.Expected {
		return a.Observed - a.Expected
	}
	return 0
}

// Validator tracks the next expected sequence number of one channel. It
// resynchronizes on every envelope, so a gap is reported once and the
// stream that follows it validates cleanly. Not safe for concurrent use.
type Validator struct {
	expected uint64
}

// Observe checks e against the expected sequence and advances past it.
// ok is false when e.Sequence was not the expected value.
func (v *Validator) Observe(e envelope.Envelope) (a Anomaly, ok bool) {
	ok = e.Sequence == v.expected
	if !ok {
		a = Anomaly{Expected: v.expected, Observed: e.Sequence}
	}
	v.expected = e.Sequence + 1
	return a, ok
}

// Expected returns the next sequence number the validator expects, which is
// also the count of samples the publisher had sent as of the last one seen.
func (v *Validator) Expected() uint64 {
	return v.expected
}
