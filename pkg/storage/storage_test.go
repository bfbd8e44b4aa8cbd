package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "data", "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestDefaultState(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	state, err := store.GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultADWInterval, state.ADWInterval)
	assert.False(t, state.Tmpfs)
	assert.Equal(t, UnsetKeybind, state.Keybind("Thin_Key"))

	exists, err := store.HasState(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStateRoundTrip(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	state := DefaultState()
	state.Tmpfs = true
	state.InstanceCount = 4
	state.SelectedMaps = []string{"Zero Practice", "Bastion Practice"}
	state.ADWInterval = 0
	state.BopperRules = []KeepRule{
		{Prefix: "Random Speedrun", Condition: "reached_nether", MinSizeMB: -4},
		{Prefix: "Set Speedrun", Condition: "world_size"},
	}
	state.Keybinds["Thin_Key"] = "Alt-J"
	require.NoError(t, store.SaveState(ctx, state))

	loaded, err := store.GetState(ctx)
	require.NoError(t, err)
	assert.True(t, loaded.Tmpfs)
	assert.Equal(t, 4, loaded.InstanceCount)
	assert.Equal(t, []string{"Zero Practice", "Bastion Practice"}, loaded.SelectedMaps)
	assert.Equal(t, 1, loaded.ADWInterval, "interval is clamped to one second")
	assert.Equal(t, DefaultMinSizeMB, loaded.BopperRules[0].MinSizeMB)
	assert.Equal(t, 0, loaded.BopperRules[1].MinSizeMB, "a size of zero is kept")
	assert.Equal(t, "Alt-J", loaded.Keybind("Thin_Key"))
}

func TestKeepRuleDefaultSize(t *testing.T) {
	var rules []KeepRule
	err := json.Unmarshal([]byte(`[{"prefix": "A", "condition": "world_size"}, {"prefix": "B", "minSizeMB": 0}]`), &rules)
	require.NoError(t, err)
	assert.Equal(t, DefaultMinSizeMB, rules[0].MinSizeMB)
	assert.Equal(t, 0, rules[1].MinSizeMB)
}

func TestUpdateState(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	_, err := store.UpdateState(ctx, func(s *State) error {
		s.ADW = true
		return nil
	})
	require.NoError(t, err)

	_, err = store.UpdateState(ctx, func(s *State) error {
		s.Tmpfs = true
		return eris.New("abort")
	})
	require.Error(t, err)

	state, err := store.GetState(ctx)
	require.NoError(t, err)
	assert.True(t, state.ADW)
	assert.False(t, state.Tmpfs, "failed updates must be rolled back")
}

func TestImportLegacyConfig(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	legacyPath := filepath.Join(t.TempDir(), "config.json")

	imported, err := store.ImportLegacyConfig(ctx, legacyPath)
	require.NoError(t, err)
	assert.False(t, imported)

	legacy := `{"tmpfs":true,"instanceCount":2,"practiceMaps":true,"selectedMaps":["Portal Practice"],"adw":true,"adwInterval":120,"distro":"arch","gpu":"amd"}`
	require.NoError(t, os.WriteFile(legacyPath, []byte(legacy), 0600))

	imported, err = store.ImportLegacyConfig(ctx, legacyPath)
	require.NoError(t, err)
	assert.True(t, imported)

	state, err := store.GetState(ctx)
	require.NoError(t, err)
	assert.True(t, state.Tmpfs)
	assert.Equal(t, 2, state.InstanceCount)
	assert.Equal(t, []string{"Portal Practice"}, state.SelectedMaps)
	assert.Equal(t, 120, state.ADWInterval)
	assert.Equal(t, "arch", state.Distro)
	assert.Equal(t, "amd", state.GPU)

	imported, err = store.ImportLegacyConfig(ctx, legacyPath)
	require.NoError(t, err)
	assert.False(t, imported, "existing state is never overwritten")
}

func TestApps(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	missing, err := store.GetApp(ctx, "ModCheck")
	require.NoError(t, err)
	assert.Nil(t, missing)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.RecordApp(ctx, AppRecord{Name: "Ninjabrain Bot", Version: "1.5.1", InstalledAt: now}))
	require.NoError(t, store.RecordApp(ctx, AppRecord{Name: "ModCheck", Version: "v3.0"}))
	assert.Error(t, store.RecordApp(ctx, AppRecord{}))

	app, err := store.GetApp(ctx, "Ninjabrain Bot")
	require.NoError(t, err)
	assert.Equal(t, "1.5.1", app.Version)
	assert.True(t, now.Equal(app.InstalledAt))

	apps, err := store.ListApps(ctx)
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, "ModCheck", apps[0].Name)
}

func TestStamps(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	stamp, err := store.GetStamp(ctx, "obs-pipewire")
	require.NoError(t, err)
	assert.Empty(t, stamp)

	require.NoError(t, store.SetStamp(ctx, "obs-pipewire", "https://example.com/a.tar.gz#abc"))
	stamp, err = store.GetStamp(ctx, "obs-pipewire")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a.tar.gz#abc", stamp)
}

func TestSecondOpenTimesOut(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")
	store, err := Open(dbPath)
	require.NoError(t, err)
	defer store.Close()

	_, err = Open(dbPath)
	assert.Error(t, err)
}
