package worlds

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rotisserie/eris"

	"github.com/Flammable-Bunny/Lingle/pkg/api"
	"github.com/Flammable-Bunny/Lingle/pkg/exitcode"
	"github.com/Flammable-Bunny/Lingle/pkg/storage"
)

// ADW (auto delete worlds) keeps the tmpfs from filling up by deleting all but the newest worlds of every slot
type ADW struct {
	Store        *storage.Store
	Keep         int
	IgnorePrefix string
	// Debounce delays a prune triggered by new worlds so that Minecraft can finish creating them
	Debounce time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
}

func (a *ADW) keep() int {
	if a.Keep < 1 {
		return 6
	}
	return a.Keep
}

func (a *ADW) debounce() time.Duration {
	if a.Debounce <= 0 {
		return 500 * time.Millisecond
	}
	return a.Debounce
}

type worldEntry struct {
	name  string
	mtime time.Time
}

// PruneDir deletes everything in dir except the keep newest entries. Entries starting with ignorePrefix and
// symlinks don't count and are never deleted.
func PruneDir(ctx context.Context, dir string, keep int, ignorePrefix string) Report {
	report := Report{Deleted: []string{}}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !eris.Is(err, os.ErrNotExist) {
			report.Errors = append(report.Errors, eris.Wrapf(err, "Failed to list %s", dir))
		}
		return report
	}

	worlds := make([]worldEntry, 0, len(entries))
	for _, entry := range entries {
		if ignorePrefix != "" && strings.HasPrefix(entry.Name(), ignorePrefix) {
			continue
		}
		if entry.Type()&os.ModeSymlink != 0 {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			// deleted while we were looking at it
			continue
		}
		worlds = append(worlds, worldEntry{name: entry.Name(), mtime: info.ModTime()})
	}
	report.Scanned = len(worlds)

	sort.SliceStable(worlds, func(i, j int) bool {
		return worlds[i].mtime.After(worlds[j].mtime)
	})

	if len(worlds) <= keep {
		return report
	}

	for _, world := range worlds[keep:] {
		path := filepath.Join(dir, world.name)
		err := os.RemoveAll(path)
		if err != nil {
			report.Errors = append(report.Errors, eris.Wrapf(err, "Failed to delete %s", path))
			continue
		}
		report.Deleted = append(report.Deleted, path)
	}

	if len(report.Deleted) > 0 {
		api.Log(ctx).Debug().Str("path", dir).Msgf("Deleted %d old worlds", len(report.Deleted))
	}
	return report
}

// PruneOnce prunes every tmpfs slot regardless of whether ADW is enabled
func (a *ADW) PruneOnce(ctx context.Context) (Report, error) {
	report := Report{Deleted: []string{}}
	state, err := a.Store.GetState(ctx)
	if err != nil {
		return report, err
	}

	paths := api.PathsFrom(ctx)
	for idx := 1; idx <= state.InstanceCount; idx++ {
		report.merge(PruneDir(ctx, paths.Slot(idx), a.keep(), a.IgnorePrefix))
	}

	return report, exitcode.Wrap(exitcode.ADW, report.Err())
}

// Running reports whether the background worker is active
func (a *ADW) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Start launches the background worker if ADW and the tmpfs are enabled. It returns whether the worker runs.
// A worker which is already running is restarted to pick up a changed configuration.
func (a *ADW) Start(ctx context.Context) (bool, error) {
	a.Stop()

	state, err := a.Store.GetState(ctx)
	if err != nil {
		return false, err
	}

	if !state.ADW || !state.Tmpfs {
		return false, nil
	}

	ctx = api.WithTask(ctx, "adw")
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		api.Log(ctx).Warn().Err(err).Msg("Could not watch the tmpfs; falling back to the timer")
		watcher = nil
	} else {
		paths := api.PathsFrom(ctx)
		for idx := 1; idx <= state.InstanceCount; idx++ {
			if err := watcher.Add(paths.Slot(idx)); err != nil {
				api.Log(ctx).Debug().Err(err).Str("path", paths.Slot(idx)).Msg("Not watching slot")
			}
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.running = true
	a.cancel = cancel
	a.doneCh = make(chan struct{})
	done := a.doneCh
	a.mu.Unlock()

	go a.run(runCtx, done, watcher, state.ADWInterval)

	api.Log(ctx).Info().Int("interval", state.ADWInterval).Int("keep", a.keep()).Msg("Auto Delete Worlds started")
	return true, nil
}

// Stop terminates the background worker and waits for it to exit
func (a *ADW) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	cancel := a.cancel
	done := a.doneCh
	a.mu.Unlock()

	cancel()
	<-done
}

func (a *ADW) run(ctx context.Context, done chan struct{}, watcher *fsnotify.Watcher, intervalSecs int) {
	defer func() {
		if watcher != nil {
			watcher.Close()
		}

		a.mu.Lock()
		a.running = false
		if a.cancel != nil {
			a.cancel()
			a.cancel = nil
		}
		a.mu.Unlock()
		close(done)
	}()

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if watcher != nil {
		events = watcher.Events
		errs = watcher.Errors
	}

	interval := time.Duration(intervalSecs) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	debounceTicker := time.NewTicker(100 * time.Millisecond)
	defer debounceTicker.Stop()

	var pendingSince time.Time
	prune := func() bool {
		pendingSince = time.Time{}
		state, err := a.Store.GetState(ctx)
		if err != nil {
			api.Log(ctx).Error().Err(err).Msg("Failed to reload state")
			return true
		}

		if !state.ADW || !state.Tmpfs {
			api.Log(ctx).Info().Msg("Auto Delete Worlds was disabled; stopping")
			return false
		}

		if newInterval := time.Duration(state.ADWInterval) * time.Second; newInterval != interval {
			interval = newInterval
			ticker.Reset(interval)
		}

		report, err := a.PruneOnce(ctx)
		if err != nil {
			api.Log(ctx).Error().Err(err).Msg("Prune failed")
		}
		if len(report.Deleted) > 0 {
			api.Log(ctx).Info().Msgf("Deleted %d worlds", len(report.Deleted))
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if !prune() {
				return
			}

		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				pendingSince = time.Now()
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			api.Log(ctx).Warn().Err(err).Msg("Watcher error")

		case <-debounceTicker.C:
			if !pendingSince.IsZero() && time.Since(pendingSince) >= a.debounce() {
				if !prune() {
					return
				}
			}
		}
	}
}
