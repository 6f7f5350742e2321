package channel

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/Iron-Ham/fanout/internal/errors"
)

// FileExt is the suffix of channel files in a shared memory directory.
const FileExt = ".chan"

// SharedMemory is a cross-process channel transport. Each channel is a file
// in Dir mapped into every participant's address space; flock(2) on the file
// serializes access. Dir is created on first use.
type SharedMemory struct {
	Dir string
}

// DefaultDir returns the directory channels live in when none is configured:
// /dev/shm/fanout when tmpfs shared memory is available, otherwise a fanout
// directory under the system temp dir.
func DefaultDir() string {
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		return "/dev/shm/fanout"
	}
	return filepath.Join(os.TempDir(), "fanout")
}

// Open creates or attaches to the named channel.
func (s SharedMemory) Open(name string, cfg Config) (*Channel, error) {
	return open(s, name, cfg)
}

// Path returns the file backing the named channel.
func (s SharedMemory) Path(name string) string {
	return filepath.Join(s.dir(), name+FileExt)
}

func (s SharedMemory) dir() string {
	if s.Dir == "" {
		return DefaultDir()
	}
	return s.Dir
}

func (s SharedMemory) bind(name string, cfg Config) (backing, error) {
	if err := os.MkdirAll(s.dir(), 0o755); err != nil {
		return nil, fmt.Errorf("create channel directory: %w", err)
	}
	path := s.Path(name)

	// The file may be unlinked by its last user between our open and our
	// lock; retry until the locked file is the one at path.
	for {
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open channel file: %w", err)
		}
		b := &shmBacking{path: path, file: f}
		if err := b.lock(); err != nil {
			_ = f.Close()
			return nil, err
		}

		current, err := b.stale()
		if err != nil {
			_ = b.unlock()
			_ = f.Close()
			return nil, err
		}
		if current {
			_ = b.unlock()
			_ = f.Close()
			continue
		}

		err = b.mapSegment(cfg)
		if errors.Is(err, errAbandoned) {
			err = b.destroy()
			_ = b.unlock()
			_ = b.close()
			if err != nil {
				return nil, err
			}
			continue
		}
		_ = b.unlock()
		if err != nil {
			_ = b.close()
			return nil, err
		}
		return b, nil
	}
}

// errAbandoned reports a channel file whose every participant has exited.
// bind unlinks it and creates the channel afresh.
var errAbandoned = errors.New("channel abandoned")

type shmBacking struct {
	path string
	file *os.File
	data []byte
}

// mapSegment must be called with the lock held. An empty file is a channel
// being created and is sized and initialized here. A file left behind by
// participants that all exited yields errAbandoned.
func (b *shmBacking) mapSegment(cfg Config) error {
	info, err := b.file.Stat()
	if err != nil {
		return fmt.Errorf("stat channel file: %w", err)
	}

	size := info.Size()
	fresh := size == 0
	if fresh {
		size = int64(segmentSize(cfg))
		if err := b.file.Truncate(size); err != nil {
			return fmt.Errorf("size channel file: %w", err)
		}
	} else if size < headerSize {
		return errors.Wrapf(errors.ErrCorrupted, "channel file is %d bytes", size)
	}

	data, err := unix.Mmap(int(b.file.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("map channel file: %w", err)
	}
	b.data = data

	seg := segment(data)
	if fresh {
		seg.init(cfg)
		return nil
	}
	if err := seg.checkHeader(); err != nil {
		return err
	}
	if seg.abandoned(processAlive) {
		return errAbandoned
	}
	return seg.check(cfg)
}

func (b *shmBacking) lock() error {
	if err := unix.Flock(int(b.file.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("flock: %w", err)
	}
	return nil
}

func (b *shmBacking) unlock() error {
	if err := unix.Flock(int(b.file.Fd()), unix.LOCK_UN); err != nil {
		return fmt.Errorf("funlock: %w", err)
	}
	return nil
}

func (b *shmBacking) bytes() []byte { return b.data }

// stale reports whether path no longer names the file this handle holds.
func (b *shmBacking) stale() (bool, error) {
	held, err := b.file.Stat()
	if err != nil {
		return false, fmt.Errorf("stat channel file: %w", err)
	}
	current, err := os.Stat(b.path)
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat channel path: %w", err)
	}
	return !os.SameFile(held, current), nil
}

// destroy unlinks the channel file. It must be called with the lock held so
// no other participant can attach in between.
func (b *shmBacking) destroy() error {
	if err := os.Remove(b.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove channel file: %w", err)
	}
	return nil
}

func (b *shmBacking) close() error {
	var errs []error
	if b.data != nil {
		if err := unix.Munmap(b.data); err != nil {
			errs = append(errs, fmt.Errorf("unmap channel file: %w", err))
		}
		b.data = nil
	}
	if b.file != nil {
		if err := b.file.Close(); err != nil {
			errs = append(errs, err)
		}
		b.file = nil
	}
	return errors.Join(errs...)
}
