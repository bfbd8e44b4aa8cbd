package worlds

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/Flammable-Bunny/Lingle/pkg/api"
	"github.com/Flammable-Bunny/Lingle/pkg/storage"
)

// Report summarizes a cleanup run
type Report struct {
	Scanned int
	Deleted []string
	Errors  []error
}

func (r *Report) merge(other Report) {
	r.Scanned += other.Scanned
	r.Deleted = append(r.Deleted, other.Deleted...)
	r.Errors = append(r.Errors, other.Errors...)
}

// Err combines all collected errors
func (r Report) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}

	msgs := make([]string, len(r.Errors))
	for idx, sub := range r.Errors {
		msgs[idx] = sub.Error()
	}
	return eris.Errorf("%d worlds could not be removed: %s", len(r.Errors), strings.Join(msgs, "; "))
}

// Bopper deletes worlds according to the user's keep rules
type Bopper struct {
	Store *storage.Store
}

// RunOnce cleans the saves of every selected instance and, with the tmpfs enabled, every tmpfs slot
func (b *Bopper) RunOnce(ctx context.Context) (Report, error) {
	report := Report{Deleted: []string{}}
	state, err := b.Store.GetState(ctx)
	if err != nil {
		return report, err
	}

	if !state.WorldBopper || len(state.BopperInstances) == 0 {
		return report, nil
	}

	ctx = api.WithTask(ctx, "worldbopper")
	paths := api.PathsFrom(ctx)
	dirs := make([]string, 0)
	for _, name := range state.BopperInstances {
		dirs = append(dirs, paths.InstanceSaves(name))
	}

	if state.Tmpfs {
		slots := state.InstanceCount
		if slots < 1 {
			slots = 1
		}
		for idx := 1; idx <= slots; idx++ {
			dirs = append(dirs, paths.Slot(idx))
		}
	}

	// an instance's saves usually point to a tmpfs slot; don't scan the same directory twice
	seen := make(map[string]bool)
	for _, dir := range dirs {
		resolved, err := filepath.EvalSymlinks(dir)
		if err != nil {
			continue
		}
		if seen[resolved] {
			continue
		}
		seen[resolved] = true

		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.merge(CleanDir(ctx, dir, state.BopperRules))
	}

	api.Log(ctx).Info().Int("scanned", report.Scanned).Int("deleted", len(report.Deleted)).Msg("World Bopper finished")
	return report, nil
}

// CleanDir applies rules to every world directory in dir. Symlinked worlds (practice maps) are never touched.
func CleanDir(ctx context.Context, dir string, rules []storage.KeepRule) Report {
	report := Report{Deleted: []string{}}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !eris.Is(err, os.ErrNotExist) {
			report.Errors = append(report.Errors, eris.Wrapf(err, "Failed to list %s", dir))
		}
		return report
	}

	for _, entry := range entries {
		if !entry.IsDir() || entry.Type()&os.ModeSymlink != 0 {
			continue
		}

		world := filepath.Join(dir, entry.Name())
		report.Scanned++
		if !ShouldDelete(world, rules) {
			continue
		}

		err := os.RemoveAll(world)
		if err != nil {
			report.Errors = append(report.Errors, eris.Wrapf(err, "Failed to delete %s", world))
			continue
		}

		api.Log(ctx).Debug().Str("path", world).Msg("Deleted world")
		report.Deleted = append(report.Deleted, world)
	}

	return report
}
