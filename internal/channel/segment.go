package channel

import (
	"encoding/binary"

	"github.com/Iron-Ham/fanout/internal/envelope"
	"github.com/Iron-Ham/fanout/internal/errors"
)

// Segment layout. All integers are little endian.
//
//	header   magic u32 | version u32 | buffer u32 | history u32 |
//	         max publishers u32 | max subscribers u32 | reserved 8 | written u64
//	publisher slots   pid u32 | token u32 | sent u64
//	subscriber slots  pid u32 | token u32 | cursor u64 | received u64 | dropped u64
//	ring     capacity * envelope.Size
//
// A zero token marks a free slot. Tokens are unique among the ports of one
// process, so pid and token together identify the owner of a slot.
const (
	segmentMagic   uint32 = 0x464e4f54
	segmentVersion uint32 = 1

	headerSize  = 40
	pubSlotSize = 16
	subSlotSize = 32

	offMagic   = 0
	offVersion = 4
	offBuffer  = 8
	offHistory = 12
	offMaxPub  = 16
	offMaxSub  = 20
	offWritten = 32

	offSlotPID      = 0
	offSlotToken    = 4
	offSlotSent     = 8
	offSlotCursor   = 8
	offSlotReceived = 16
	offSlotDropped  = 24
)

type portKind int

const (
	portPublisher portKind = iota
	portSubscriber
)

func (k portKind) String() string {
	if k == portPublisher {
		return "publisher"
	}
	return "subscriber"
}

var le = binary.LittleEndian

// segmentSize returns the number of bytes a channel with cfg occupies.
func segmentSize(cfg Config) int {
	return headerSize +
		cfg.MaxPublishers*pubSlotSize +
		cfg.MaxSubscribers*subSlotSize +
		cfg.capacity()*envelope.Size
}

// segment is a view over channel memory. Callers hold the channel lock for
// every access.
type segment []byte

func (s segment) init(cfg Config) {
	clear(s)
	le.PutUint32(s[offMagic:], segmentMagic)
	le.PutUint32(s[offVersion:], segmentVersion)
	le.PutUint32(s[offBuffer:], uint32(cfg.BufferSize))
	le.PutUint32(s[offHistory:], uint32(cfg.HistorySize))
	le.PutUint32(s[offMaxPub:], uint32(cfg.MaxPublishers))
	le.PutUint32(s[offMaxSub:], uint32(cfg.MaxSubscribers))
}

func (s segment) config() Config {
	return Config{
		BufferSize:     int(le.Uint32(s[offBuffer:])),
		HistorySize:    int(le.Uint32(s[offHistory:])),
		MaxPublishers:  int(le.Uint32(s[offMaxPub:])),
		MaxSubscribers: int(le.Uint32(s[offMaxSub:])),
	}
}

// check verifies that s holds a channel created with cfg.
func (s segment) check(cfg Config) error {
	if err := s.checkHeader(); err != nil {
		return err
	}
	if got := s.config(); got != cfg {
		return errors.Wrapf(errors.ErrConfigMismatch, "existing %+v, requested %+v", got, cfg)
	}
	return nil
}

// checkHeader verifies magic, version and that the length matches the
// stored configuration.
func (s segment) checkHeader() error {
	if len(s) < headerSize {
		return errors.Wrapf(errors.ErrCorrupted, "segment too short (%d bytes)", len(s))
	}
	if le.Uint32(s[offMagic:]) != segmentMagic {
		return errors.Wrap(errors.ErrCorrupted, "bad magic")
	}
	if v := le.Uint32(s[offVersion:]); v != segmentVersion {
		return errors.Wrapf(errors.ErrCorrupted, "unsupported version %d", v)
	}
	if want := segmentSize(s.config()); len(s) != want {
		return errors.Wrapf(errors.ErrCorrupted, "segment is %d bytes, expected %d", len(s), want)
	}
	return nil
}

func (s segment) written() uint64 {
	return le.Uint64(s[offWritten:])
}

func (s segment) table(kind portKind) (base, size, count int) {
	cfg := s.config()
	if kind == portPublisher {
		return headerSize, pubSlotSize, cfg.MaxPublishers
	}
	return headerSize + cfg.MaxPublishers*pubSlotSize, subSlotSize, cfg.MaxSubscribers
}

func (s segment) slot(kind portKind, i int) []byte {
	base, size, _ := s.table(kind)
	off := base + i*size
	return s[off : off+size]
}

func (s segment) ring(seq uint64) []byte {
	cfg := s.config()
	base := headerSize + cfg.MaxPublishers*pubSlotSize + cfg.MaxSubscribers*subSlotSize
	off := base + int(seq%uint64(cfg.capacity()))*envelope.Size
	return s[off : off+envelope.Size]
}

func slotActive(b []byte) bool { return le.Uint32(b[offSlotToken:]) != 0 }
func slotPID(b []byte) int     { return int(le.Uint32(b[offSlotPID:])) }

func (s segment) claim(kind portKind, pid int, token uint32) (int, bool) {
	_, _, count := s.table(kind)
	for i := range count {
		b := s.slot(kind, i)
		if slotActive(b) {
			continue
		}
		clear(b)
		le.PutUint32(b[offSlotPID:], uint32(pid))
		le.PutUint32(b[offSlotToken:], token)
		return i, true
	}
	return -1, false
}

// attach claims a free slot of the given kind, reclaiming slots held by dead
// processes when the table is full. New subscribers start history samples
// behind the write position.
func (s segment) attach(kind portKind, pid int, token uint32, alive func(int) bool) (int, error) {
	idx, ok := s.claim(kind, pid, token)
	if !ok && s.sweep(alive) > 0 {
		idx, ok = s.claim(kind, pid, token)
	}
	if !ok {
		_, _, count := s.table(kind)
		return -1, errors.Wrapf(errors.ErrCapacityExceeded, "all %d %s slots in use", count, kind)
	}
	if kind == portSubscriber {
		written := s.written()
		replay := min(uint64(s.config().HistorySize), written)
		le.PutUint64(s.slot(kind, idx)[offSlotCursor:], written-replay)
	}
	return idx, nil
}

func (s segment) detach(kind portKind, idx int) {
	clear(s.slot(kind, idx))
}

// owns reports whether slot idx is still held by the port (pid, token).
func (s segment) owns(kind portKind, idx, pid int, token uint32) bool {
	b := s.slot(kind, idx)
	return slotPID(b) == pid && le.Uint32(b[offSlotToken:]) == token
}

// sweep frees every slot whose owning process is gone and returns how many
// were freed.
func (s segment) sweep(alive func(int) bool) int {
	freed := 0
	for _, kind := range []portKind{portPublisher, portSubscriber} {
		_, _, count := s.table(kind)
		for i := range count {
			b := s.slot(kind, i)
			if slotActive(b) && !alive(slotPID(b)) {
				clear(b)
				freed++
			}
		}
	}
	return freed
}

// ports counts active slots, and among them those owned by dead processes.
func (s segment) ports(kind portKind, alive func(int) bool) (active, stale int) {
	_, _, count := s.table(kind)
	for i := range count {
		b := s.slot(kind, i)
		if !slotActive(b) {
			continue
		}
		active++
		if alive != nil && !alive(slotPID(b)) {
			stale++
		}
	}
	return active, stale
}

func (s segment) refs() int {
	pubs, _ := s.ports(portPublisher, nil)
	subs, _ := s.ports(portSubscriber, nil)
	return pubs + subs
}

// abandoned frees the slots of dead processes and reports whether the
// segment holds samples but no port. The last detach destroys a live
// channel, so only a crashed run leaves such a segment behind. An empty
// segment without ports may belong to a handle that has not attached yet.
func (s segment) abandoned(alive func(int) bool) bool {
	s.sweep(alive)
	return s.refs() == 0 && s.written() > 0
}

// write stores e at the head of the ring. It never blocks on subscribers:
// whatever a slow subscriber has not read is simply overwritten.
func (s segment) write(idx int, e envelope.Envelope) {
	written := s.written()
	envelope.Encode(s.ring(written), e)
	le.PutUint64(s[offWritten:], written+1)

	b := s.slot(portPublisher, idx)
	le.PutUint64(b[offSlotSent:], le.Uint64(b[offSlotSent:])+1)
}

// drain returns every sample between the subscriber's cursor and the write
// position. A subscriber more than BufferSize samples behind loses the
// oldest ones, which are counted as dropped. On a decode failure the
// samples before it are returned along with the error and the cursor moves
// past the bad record.
func (s segment) drain(idx int) ([]envelope.Envelope, error) {
	b := s.slot(portSubscriber, idx)
	written := s.written()
	cursor := min(le.Uint64(b[offSlotCursor:]), written)

	if limit := uint64(s.config().BufferSize); written-cursor > limit {
		lost := written - limit - cursor
		le.PutUint64(b[offSlotDropped:], le.Uint64(b[offSlotDropped:])+lost)
		cursor = written - limit
	}

	out := make([]envelope.Envelope, 0, written-cursor)
	var err error
	for ; cursor < written; cursor++ {
		e, decErr := envelope.Decode(s.ring(cursor))
		if decErr != nil {
			err = errors.Wrapf(decErr, "sample %d", cursor)
			cursor++
			break
		}
		out = append(out, e)
	}

	le.PutUint64(b[offSlotCursor:], cursor)
	le.PutUint64(b[offSlotReceived:], le.Uint64(b[offSlotReceived:])+uint64(len(out)))
	return out, err
}

// Stats are a subscriber's delivery counters.
type Stats struct {
	Received uint64 `json:"received" yaml:"received"`
	Dropped  uint64 `json:"dropped" yaml:"dropped"`
}

func (s segment) stats(idx int) Stats {
	b := s.slot(portSubscriber, idx)
	return Stats{
		Received: le.Uint64(b[offSlotReceived:]),
		Dropped:  le.Uint64(b[offSlotDropped:]),
	}
}
