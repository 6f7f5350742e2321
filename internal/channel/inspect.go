package channel

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sys/unix"
)

// Info describes a channel found in a shared memory directory.
type Info struct {
	Name        string `json:"name" yaml:"name"`
	Path        string `json:"path" yaml:"path"`
	Config      Config `json:"config" yaml:"config"`
	Written     uint64 `json:"written" yaml:"written"`
	Publishers  int    `json:"publishers" yaml:"publishers"`
	Subscribers int    `json:"subscribers" yaml:"subscribers"`
	// Stale counts attached ports whose process no longer exists.
	Stale int `json:"stale" yaml:"stale"`
}

// List reads every channel in dir without attaching to it. Files that are
// being created or are not channel segments are skipped. A missing directory
// yields an empty list.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read channel directory: %w", err)
	}

	var infos []Info
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), FileExt) {
			continue
		}
		info, ok, err := inspect(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if ok {
			infos = append(infos, info)
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// inspect snapshots one channel file under a shared lock.
func inspect(path string) (Info, bool, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Info{}, false, nil
	}
	if err != nil {
		return Info{}, false, fmt.Errorf("open channel file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_SH); err != nil {
		return Info{}, false, fmt.Errorf("flock: %w", err)
	}
	data, err := io.ReadAll(f)
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	if err != nil {
		return Info{}, false, fmt.Errorf("read channel file: %w", err)
	}

	seg := segment(data)
	if seg.checkHeader() != nil {
		return Info{}, false, nil
	}
	pubs, stalePubs := seg.ports(portPublisher, processAlive)
	subs, staleSubs := seg.ports(portSubscriber, processAlive)
	return Info{
		Name:        strings.TrimSuffix(filepath.Base(path), FileExt),
		Path:        path,
		Config:      seg.config(),
		Written:     seg.written(),
		Publishers:  pubs,
		Subscribers: subs,
		Stale:       stalePubs + staleSubs,
	}, true, nil
}
