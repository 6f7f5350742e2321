package channel

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/fanout/internal/envelope"
	"github.com/Iron-Ham/fanout/internal/errors"
)

// Channel is a handle to a named channel. Publishers and subscribers attach
// through it with NewWriter and NewReader. A Channel is safe for concurrent
// use, and independent handles to the same channel (in this or another
// process) need no external locking.
type Channel struct {
	name   string
	cfg    Config
	binder binder
	pid    int

	mu     sync.Mutex
	back   backing
	ports  map[*port]struct{}
	closed bool
}

func open(b binder, name string, cfg Config) (*Channel, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.NewChannelError("open", err).WithChannel(name)
	}
	back, err := b.bind(name, cfg)
	if err != nil {
		return nil, errors.NewChannelError("open", err).WithChannel(name)
	}
	return &Channel{
		name:   name,
		cfg:    cfg,
		binder: b,
		pid:    os.Getpid(),
		back:   back,
		ports:  make(map[*port]struct{}),
	}, nil
}

// Name returns the channel name.
func (c *Channel) Name() string { return c.name }

// Config returns the channel configuration.
func (c *Channel) Config() Config { return c.cfg }

// Written returns the total number of samples written to the channel.
func (c *Channel) Written() (uint64, error) {
	var n uint64
	err := c.withSegment("read", func(seg segment) error {
		n = seg.written()
		return nil
	})
	return n, err
}

// NewWriter attaches a publisher port.
func (c *Channel) NewWriter() (*Writer, error) {
	p, err := c.attach(portPublisher)
	if err != nil {
		return nil, err
	}
	return &Writer{port: p}, nil
}

// NewReader attaches a subscriber port. The reader first receives up to
// HistorySize samples already in the channel.
func (c *Channel) NewReader() (*Reader, error) {
	p, err := c.attach(portSubscriber)
	if err != nil {
		return nil, err
	}
	return &Reader{port: p}, nil
}

// Close detaches every port created through this handle and releases the
// mapping. The channel is destroyed if no port remains attached anywhere.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	if err := c.back.lock(); err != nil {
		errs = append(errs, err)
	} else {
		seg := segment(c.back.bytes())
		for p := range c.ports {
			if seg.owns(p.kind, p.slot, c.pid, p.token) {
				seg.detach(p.kind, p.slot)
			}
			p.closed = true
		}
		clear(c.ports)
		if err := c.collect(seg); err != nil {
			errs = append(errs, err)
		}
		if err := c.back.unlock(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.back.close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.NewChannelError("close", errors.Join(errs...)).WithChannel(c.name)
	}
	return nil
}

// collect sweeps dead ports and destroys the channel once nothing references
// it. Callers hold both locks.
func (c *Channel) collect(seg segment) error {
	seg.sweep(processAlive)
	if seg.refs() > 0 {
		return nil
	}
	stale, err := c.back.stale()
	if err != nil || stale {
		return err
	}
	return c.back.destroy()
}

func (c *Channel) attach(kind portKind) (*port, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, c.portError("attach", kind, errors.ErrChannelClosed)
	}
	if len(c.ports) == 0 {
		if err := c.rebindIfStale(); err != nil {
			return nil, c.portError("attach", kind, err)
		}
	}

	if err := c.back.lock(); err != nil {
		return nil, c.portError("attach", kind, err)
	}
	token := nextToken()
	idx, err := segment(c.back.bytes()).attach(kind, c.pid, token, processAlive)
	if unlockErr := c.back.unlock(); err == nil {
		err = unlockErr
	}
	if err != nil {
		return nil, c.portError("attach", kind, err)
	}

	p := &port{ch: c, kind: kind, slot: idx, token: token}
	c.ports[p] = struct{}{}
	return p, nil
}

// rebindIfStale replaces the backing when the channel it points at was
// destroyed after its last port left. Called with c.mu held and no ports
// attached through this handle.
func (c *Channel) rebindIfStale() error {
	if err := c.back.lock(); err != nil {
		return err
	}
	stale, err := c.back.stale()
	if unlockErr := c.back.unlock(); err == nil {
		err = unlockErr
	}
	if err != nil || !stale {
		return err
	}

	back, err := c.binder.bind(c.name, c.cfg)
	if err != nil {
		return err
	}
	_ = c.back.close()
	c.back = back
	return nil
}

func (c *Channel) withSegment(op string, fn func(seg segment) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.NewChannelError(op, errors.ErrChannelClosed).WithChannel(c.name)
	}
	if err := c.back.lock(); err != nil {
		return errors.NewChannelError(op, err).WithChannel(c.name)
	}
	err := fn(segment(c.back.bytes()))
	if unlockErr := c.back.unlock(); err == nil && unlockErr != nil {
		return errors.NewChannelError(op, unlockErr).WithChannel(c.name)
	}
	return err
}

func (c *Channel) portError(op string, kind portKind, cause error) *errors.ChannelError {
	return errors.NewChannelError(op, cause).WithChannel(c.name).WithPort(kind.String())
}

var portTokens atomic.Uint32

func nextToken() uint32 {
	for {
		if t := portTokens.Add(1); t != 0 {
			return t
		}
	}
}

// port is one attached slot.
type port struct {
	ch     *Channel
	kind   portKind
	slot   int
	token  uint32
	closed bool
}

// use runs fn against the port's slot under the channel lock.
func (p *port) use(op string, fn func(seg segment) error) error {
	c := p.ch
	return c.withSegment(op, func(seg segment) error {
		if p.closed {
			return c.portError(op, p.kind, errors.ErrChannelClosed)
		}
		if !seg.owns(p.kind, p.slot, c.pid, p.token) {
			p.closed = true
			delete(c.ports, p)
			return c.portError(op, p.kind, errors.Wrap(errors.ErrChannelClosed, "slot was reclaimed"))
		}
		return fn(seg)
	})
}

func (p *port) close() error {
	c := p.ch
	c.mu.Lock()
	defer c.mu.Unlock()

	if p.closed || c.closed {
		return nil
	}
	p.closed = true
	delete(c.ports, p)

	if err := c.back.lock(); err != nil {
		return c.portError("detach", p.kind, err)
	}
	seg := segment(c.back.bytes())
	if seg.owns(p.kind, p.slot, c.pid, p.token) {
		seg.detach(p.kind, p.slot)
	}
	err := c.collect(seg)
	if unlockErr := c.back.unlock(); err == nil {
		err = unlockErr
	}
	if err != nil {
		return c.portError("detach", p.kind, err)
	}
	return nil
}

// Writer is a publisher port.
type Writer struct {
	*port
}

// Write appends e to the channel. It never waits for subscribers; it fails
// only when the port or channel is gone.
func (w *Writer) Write(e envelope.Envelope) error {
	return w.use("write", func(seg segment) error {
		seg.write(w.slot, e)
		return nil
	})
}

// Close detaches the publisher.
func (w *Writer) Close() error { return w.close() }

// Reader is a subscriber port.
type Reader struct {
	*port
}

// Drain returns every sample available to the reader without waiting. An
// empty result is normal. Errors are transport failures; envelopes returned
// alongside an error were read before the failure and are valid.
func (r *Reader) Drain() ([]envelope.Envelope, error) {
	var out []envelope.Envelope
	err := r.use("drain", func(seg segment) error {
		var err error
		out, err = seg.drain(r.slot)
		if err != nil {
			return r.ch.portError("drain", r.kind, err).WithRetryable(true).WithSeverity(errors.SeverityWarning)
		}
		return nil
	})
	return out, err
}

// Stats returns the reader's delivery counters.
func (r *Reader) Stats() (Stats, error) {
	var st Stats
	err := r.use("stats", func(seg segment) error {
		st = seg.stats(r.slot)
		return nil
	})
	return st, err
}

// Close detaches the subscriber.
func (r *Reader) Close() error { return r.close() }
