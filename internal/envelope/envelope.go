// Package envelope defines the unit of transfer carried by channels: a
// timestamped, sequenced lifecycle marker, and its fixed-size binary form.
package envelope

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/Iron-Ham/fanout/internal/errors"
)

// Payload is the lifecycle marker carried by an Envelope.
type Payload uint8

const (
	// Start is sent exactly once, first.
	Start Payload = iota + 1
	// Tick is sent zero or more times on the publisher's period.
	Tick
	// End is sent once, last. Delivery is best-effort.
	End
)

// String returns the payload name.
func (p Payload) String() string {
	switch p {
	case Start:
		return "Start"
	case Tick:
		return "Tick"
	case End:
		return "End"
	default:
		return fmt.Sprintf("Payload(%d)", uint8(p))
	}
}

// Valid reports whether p is one of the known variants.
func (p Payload) Valid() bool {
	return p >= Start && p <= End
}

// Envelope is one message on a channel.
type Envelope struct {
	Timestamp time.Time
	Sequence  uint64
	Payload   Payload
}

// New builds an envelope stamped with the current UTC time.
func New(seq uint64, payload Payload) Envelope {
	return Envelope{
		Timestamp: time.Now().UTC(),
		Sequence:  seq,
		Payload:   payload,
	}
}

// String formats the envelope as a log line fragment.
func (e Envelope) String() string {
	return fmt.Sprintf("[%s] [Seq=%d] [%s]", e.Timestamp.Format(time.RFC3339Nano), e.Sequence, e.Payload)
}

// Size is the encoded length of an envelope in bytes.
const Size = 24

// Layout: sequence u64 | unix nanos i64 | payload u8 | 7 bytes padding.
const (
	offSequence  = 0
	offTimestamp = 8
	offPayload   = 16
)

// Encode writes e into dst, which must be at least Size bytes.
func Encode(dst []byte, e Envelope) {
	_ = dst[Size-1]
	binary.LittleEndian.PutUint64(dst[offSequence:], e.Sequence)
	binary.LittleEndian.PutUint64(dst[offTimestamp:], uint64(e.Timestamp.UnixNano()))
	dst[offPayload] = byte(e.Payload)
	clear(dst[offPayload+1 : Size])
}

// Decode reads an envelope from src. It fails with errors.ErrCorrupted when
// the payload byte is not a known variant.
func Decode(src []byte) (Envelope, error) {
	if len(src) < Size {
		return Envelope{}, errors.Wrapf(errors.ErrCorrupted, "envelope too short (%d bytes)", len(src))
	}
	p := Payload(src[offPayload])
	if !p.Valid() {
		return Envelope{}, errors.Wrapf(errors.ErrCorrupted, "unknown payload %d", uint8(p))
	}
	return Envelope{
		Sequence:  binary.LittleEndian.Uint64(src[offSequence:]),
		Timestamp: time.Unix(0, int64(binary.LittleEndian.Uint64(src[offTimestamp:]))).UTC(),
		Payload:   p,
	}, nil
}
