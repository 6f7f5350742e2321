package channel

import (
	"errors"

	"golang.org/x/sys/unix"
)

// backing is the memory a Channel handle operates on, together with the lock
// that serializes every participant sharing it.
type backing interface {
	lock() error
	unlock() error
	bytes() []byte
	// stale reports whether the channel this handle was bound to has been
	// destroyed, so a new open by name would yield a different segment.
	stale() (bool, error)
	destroy() error
	close() error
}

// binder creates or attaches to the backing for a named channel.
type binder interface {
	bind(name string, cfg Config) (backing, error)
}

// Opener opens channels by name.
type Opener interface {
	Open(name string, cfg Config) (*Channel, error)
}

// processAlive reports whether pid names a running process. EPERM means the
// process exists but belongs to someone else.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
