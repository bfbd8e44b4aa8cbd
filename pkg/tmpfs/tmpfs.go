// Package tmpfs mounts and unmounts the RAM backed ~/Lingle directory.
package tmpfs

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sys/unix"

	"github.com/Flammable-Bunny/Lingle/pkg/api"
	"github.com/Flammable-Bunny/Lingle/pkg/exitcode"
	"github.com/Flammable-Bunny/Lingle/pkg/links"
	"github.com/Flammable-Bunny/Lingle/pkg/runner"
	"github.com/Flammable-Bunny/Lingle/pkg/scripts"
	"github.com/Flammable-Bunny/Lingle/pkg/storage"
)

const toggleCooldown = 3 * time.Second

// Status describes the tmpfs as seen by the kernel and by lingle's state
type Status struct {
	Mounted bool
	Enabled bool
	// Total and Free are only set while mounted
	Total uint64
	Free  uint64
}

// Manager switches the tmpfs on and off
type Manager struct {
	Store  *storage.Store
	Runner runner.Runner
	Links  *links.Service
	Params scripts.TmpfsParams

	lock       sync.Mutex
	lastToggle time.Time
	now        func() time.Time
}

func (m *Manager) clock() time.Time {
	if m.now != nil {
		return m.now()
	}
	return time.Now()
}

// IsMounted reports whether path is the root of a tmpfs mount
func IsMounted(path string) (bool, error) {
	var fs unix.Statfs_t
	err := unix.Statfs(path, &fs)
	if err != nil {
		if eris.Is(err, unix.ENOENT) {
			return false, nil
		}
		return false, eris.Wrapf(err, "Failed to inspect %s", path)
	}

	if int64(fs.Type) != unix.TMPFS_MAGIC {
		return false, nil
	}

	// the directory might just live on a tmpfs (i.e. a tmpfs /home); only a different device than the parent
	// makes it a mount point
	var self, parent unix.Stat_t
	if err := unix.Stat(path, &self); err != nil {
		return false, eris.Wrapf(err, "Failed to stat %s", path)
	}
	if err := unix.Stat(filepath.Dir(path), &parent); err != nil {
		return false, eris.Wrapf(err, "Failed to stat %s", filepath.Dir(path))
	}
	return self.Dev != parent.Dev, nil
}

func (m *Manager) Status(ctx context.Context) (Status, error) {
	state, err := m.Store.GetState(ctx)
	if err != nil {
		return Status{}, err
	}

	target := api.PathsFrom(ctx).LingleDir()
	mounted, err := IsMounted(target)
	if err != nil {
		return Status{}, exitcode.Wrap(exitcode.Tmpfs, err)
	}

	status := Status{Mounted: mounted, Enabled: state.Tmpfs}
	if mounted {
		var fs unix.Statfs_t
		if unix.Statfs(target, &fs) == nil {
			status.Total = fs.Blocks * uint64(fs.Bsize)
			status.Free = fs.Bavail * uint64(fs.Bsize)
		}
	}
	return status, nil
}

func (m *Manager) runScript(ctx context.Context, name string) error {
	err := scripts.EnsureScripts(ctx, m.Params)
	if err != nil {
		return exitcode.Wrap(exitcode.IO, err)
	}

	path := filepath.Join(api.PathsFrom(ctx).ScriptsDir(), name)
	res, err := m.Runner.RunElevated(ctx, "bash "+runner.Quote(path))
	return runner.Check(res, err, exitcode.Tmpfs, name)
}

// Enable adds the fstab entry, mounts the tmpfs and recreates the instance slots and practice map links
func (m *Manager) Enable(ctx context.Context) error {
	ctx = api.WithTask(ctx, "tmpfs")
	err := m.runScript(ctx, scripts.TmpfsEnableName)
	if err != nil {
		return err
	}

	state, err := m.Store.UpdateState(ctx, func(s *storage.State) error {
		s.Tmpfs = true
		return nil
	})
	if err != nil {
		return err
	}

	err = links.CreateSlots(ctx, state.InstanceCount)
	if err != nil {
		return err
	}

	if state.PracticeMaps && m.Links != nil {
		created, err := m.Links.LinkPracticeMapsNow(ctx)
		if err != nil {
			return err
		}
		api.Log(ctx).Info().Msgf("Linked %d practice maps", created)
	}

	api.Log(ctx).Info().Msg("tmpfs enabled")
	return nil
}

// Disable unmounts the tmpfs and removes the fstab entry. All worlds inside it are lost.
func (m *Manager) Disable(ctx context.Context) error {
	ctx = api.WithTask(ctx, "tmpfs")
	err := m.runScript(ctx, scripts.TmpfsDisableName)
	if err != nil {
		return err
	}

	_, err = m.Store.UpdateState(ctx, func(s *storage.State) error {
		s.Tmpfs = false
		return nil
	})
	if err != nil {
		return err
	}

	api.Log(ctx).Info().Msg("tmpfs disabled")
	return nil
}

// Toggle flips the tmpfs state and returns the new one. Toggles less than three seconds apart are rejected.
func (m *Manager) Toggle(ctx context.Context) (bool, error) {
	m.lock.Lock()
	now := m.clock()
	if !m.lastToggle.IsZero() && now.Sub(m.lastToggle) < toggleCooldown {
		m.lock.Unlock()
		return false, exitcode.New(exitcode.State, "tmpfs was toggled less than 3 seconds ago")
	}
	m.lastToggle = now
	m.lock.Unlock()

	state, err := m.Store.GetState(ctx)
	if err != nil {
		return false, err
	}

	if state.Tmpfs {
		return false, m.Disable(ctx)
	}
	return true, m.Enable(ctx)
}
