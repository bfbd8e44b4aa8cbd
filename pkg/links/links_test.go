package links

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Flammable-Bunny/Lingle/pkg/api"
	"github.com/Flammable-Bunny/Lingle/pkg/exitcode"
	"github.com/Flammable-Bunny/Lingle/pkg/runner"
	"github.com/Flammable-Bunny/Lingle/pkg/storage"
)

type fixture struct {
	ctx   context.Context
	paths api.Paths
	store *storage.Store
	rec   *runner.Recorder
	svc   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	home := t.TempDir()
	paths := api.Paths{Home: home}
	store, err := storage.Open(paths.StateDB())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	rec := &runner.Recorder{}
	return &fixture{
		ctx:   api.WithLingleContext(context.Background(), api.LingleCtxParams{Paths: paths}),
		paths: paths,
		store: store,
		rec:   rec,
		svc:   &Service{Store: store, Runner: rec},
	}
}

func (f *fixture) instance(t *testing.T, name string, worlds ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(f.paths.InstanceDir(name), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(f.paths.InstanceDir(name), "instance.cfg"), []byte("name="+name+"\n"), 0644))
	for _, world := range worlds {
		require.NoError(t, os.MkdirAll(filepath.Join(f.paths.InstanceSaves(name), world), 0755))
	}
}

func (f *fixture) practiceMap(t *testing.T, name string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(f.paths.SavesDir(), name), 0755))
}

func TestListInstances(t *testing.T) {
	f := newFixture(t)

	instances, err := f.svc.ListInstances(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, instances)

	f.instance(t, "MCSR2")
	f.instance(t, "MCSR1")
	require.NoError(t, os.MkdirAll(filepath.Join(f.paths.PrismInstances(), "_MMC_TEMP"), 0755))

	instances, err = f.svc.ListInstances(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"MCSR1", "MCSR2"}, instances)
}

func TestSymlinkInstances(t *testing.T) {
	f := newFixture(t)
	f.instance(t, "MCSR1", "Random Speedrun #1")
	f.instance(t, "MCSR2")

	require.NoError(t, f.svc.SymlinkInstances(f.ctx, []string{"MCSR1", "MCSR2"}))

	for idx, name := range []string{"MCSR1", "MCSR2"} {
		target, err := os.Readlink(f.paths.InstanceSaves(name))
		require.NoError(t, err)
		assert.Equal(t, f.paths.Slot(idx+1), target)
		assert.DirExists(t, f.paths.Slot(idx+1))
	}

	state, err := f.store.GetState(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, state.InstanceCount)

	// linking again is a no-op for links that already point to the right slot
	require.NoError(t, f.svc.SymlinkInstances(f.ctx, []string{"MCSR1", "MCSR2"}))

	// reordering moves the link
	require.NoError(t, f.svc.SymlinkInstances(f.ctx, []string{"MCSR2"}))
	target, err := os.Readlink(f.paths.InstanceSaves("MCSR2"))
	require.NoError(t, err)
	assert.Equal(t, f.paths.Slot(1), target)
}

func TestSymlinkInstancesErrors(t *testing.T) {
	f := newFixture(t)

	err := f.svc.SymlinkInstances(f.ctx, nil)
	assert.Equal(t, exitcode.Misuse, exitcode.From(err))

	err = f.svc.SymlinkInstances(f.ctx, []string{"ghost"})
	assert.Equal(t, exitcode.Instance, exitcode.From(err))
	assert.Contains(t, err.Error(), "ghost")

	err = f.svc.SymlinkInstances(f.ctx, []string{"../etc"})
	assert.Equal(t, exitcode.Misuse, exitcode.From(err))
}

func TestSelectMaps(t *testing.T) {
	f := newFixture(t)
	f.practiceMap(t, "Zero Practice")
	f.practiceMap(t, "Portal Practice")

	maps, err := f.svc.ListPracticeMaps(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Portal Practice", "Zero Practice"}, maps)

	require.NoError(t, f.svc.SelectMaps(f.ctx, []string{"Zero Practice", "Zero Practice"}))
	state, err := f.store.GetState(f.ctx)
	require.NoError(t, err)
	assert.True(t, state.PracticeMaps)
	assert.Equal(t, []string{"Zero Practice"}, state.SelectedMaps)

	err = f.svc.SelectMaps(f.ctx, []string{"Missing"})
	assert.Equal(t, exitcode.Misuse, exitcode.From(err))

	require.NoError(t, f.svc.SelectMaps(f.ctx, nil))
	state, err = f.store.GetState(f.ctx)
	require.NoError(t, err)
	assert.False(t, state.PracticeMaps)
}

func TestLinkPracticeMapsNow(t *testing.T) {
	f := newFixture(t)
	f.practiceMap(t, "Zero Practice")
	f.practiceMap(t, "Portal Practice")

	_, err := f.store.UpdateState(f.ctx, func(s *storage.State) error {
		s.InstanceCount = 2
		s.SelectedMaps = []string{"Zero Practice", "Portal Practice"}
		return nil
	})
	require.NoError(t, err)

	// a real world with the same name must survive, a stale link gets replaced
	require.NoError(t, os.MkdirAll(filepath.Join(f.paths.Slot(2), "Portal Practice"), 0755))
	require.NoError(t, os.MkdirAll(f.paths.Slot(1), 0755))
	require.NoError(t, os.Symlink("/nowhere", filepath.Join(f.paths.Slot(1), "Zero Practice")))

	created, err := f.svc.LinkPracticeMapsNow(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, created)

	target, err := os.Readlink(filepath.Join(f.paths.Slot(1), "Zero Practice"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.paths.SavesDir(), "Zero Practice"), target)

	info, err := os.Lstat(filepath.Join(f.paths.Slot(2), "Portal Practice"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLinkPracticeMapsNowWithoutInstances(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.LinkPracticeMapsNow(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestPreparePracticeMapLinks(t *testing.T) {
	f := newFixture(t)

	ran, err := f.svc.PreparePracticeMapLinks(f.ctx)
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Empty(t, f.rec.Calls())

	_, err = f.store.UpdateState(f.ctx, func(s *storage.State) error {
		s.Tmpfs = true
		s.PracticeMaps = true
		s.InstanceCount = 3
		s.SelectedMaps = []string{"Zero Practice"}
		return nil
	})
	require.NoError(t, err)

	ran, err = f.svc.PreparePracticeMapLinks(f.ctx)
	require.NoError(t, err)
	assert.True(t, ran)

	scriptPath := filepath.Join(f.paths.ScriptsDir(), "link_practice_maps.sh")
	assert.Equal(t, []string{"/bin/bash " + scriptPath}, f.rec.Lines())

	script, err := os.ReadFile(scriptPath)
	require.NoError(t, err)
	assert.Contains(t, string(script), "seq 1 3")
}

func TestInstallStartupService(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.InstallStartupService(f.ctx, "runner"))
	lines := f.rec.Lines()
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "root: install -D -m 0644 "))
	assert.Contains(t, lines[0], "/etc/systemd/system/lingle-startup.service && systemctl daemon-reload && systemctl enable --now lingle-startup.service")

	f.rec.Handler = func(runner.Cmd) (runner.Result, error) {
		return runner.Result{ExitCode: 127, Output: "Error executing command as another user: Not authorized"}, nil
	}
	err := f.svc.InstallStartupService(f.ctx, "runner")
	require.Error(t, err)
	assert.Equal(t, exitcode.Permission, exitcode.From(err))
	assert.Contains(t, err.Error(), "polkit")
}
