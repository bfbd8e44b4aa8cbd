package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Flammable-Bunny/Lingle/pkg/exitcode"
)

func execute(t *testing.T, home string, args ...string) (string, error) {
	t.Helper()

	isRoot = func() bool { return false }
	rootFlags.home = ""
	rootFlags.debug = false
	rootFlags.yes = false
	rootFlags.nogui = false
	app = environment{}

	out := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(append([]string{"--home", home}, args...))

	err := rootCmd.ExecuteContext(context.Background())
	app.close()
	return out.String(), err
}

func TestVersionSkipsSetup(t *testing.T) {
	home := t.TempDir()
	out, err := execute(t, home, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "lingle dev")
	assert.NoDirExists(t, filepath.Join(home, ".local", "share", "lingle"))
}

func TestRefusesRoot(t *testing.T) {
	home := t.TempDir()
	_, err := execute(t, home, "version")
	require.NoError(t, err)

	isRoot = func() bool { return true }
	defer func() { isRoot = func() bool { return false } }()

	rootCmd.SetArgs([]string{"--home", home, "adw", "interval"})
	err = rootCmd.ExecuteContext(context.Background())
	app.close()
	assert.Equal(t, exitcode.Misuse, exitcode.From(err))
}

func TestUsageErrors(t *testing.T) {
	home := t.TempDir()

	_, err := execute(t, home, "submission")
	assert.Equal(t, exitcode.Misuse, exitcode.From(err))

	_, err = execute(t, home, "adw", "interval", "--bogus")
	assert.Equal(t, exitcode.Misuse, exitcode.From(err))

	_, err = execute(t, home, "adw", "interval", "soon")
	assert.Equal(t, exitcode.Misuse, exitcode.From(err))

	_, err = execute(t, home, "waywall", "res1440", "maybe")
	assert.Equal(t, exitcode.Misuse, exitcode.From(err))

	_, err = execute(t, home, "maps", "select", "Missing Map")
	assert.Equal(t, exitcode.Misuse, exitcode.From(err))
}

func TestADWInterval(t *testing.T) {
	home := t.TempDir()

	out, err := execute(t, home, "adw", "interval")
	require.NoError(t, err)
	assert.Equal(t, "300\n", out)

	_, err = execute(t, home, "adw", "interval", "0")
	require.NoError(t, err)

	out, err = execute(t, home, "adw", "interval")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out, "the interval is clamped to one second")

	_, err = execute(t, home, "adw", "enable")
	require.NoError(t, err)

	out, err = execute(t, home, "doctor")
	require.NoError(t, err)
	assert.Contains(t, out, "Auto Delete Worlds: true (every 1s)")
}

func TestBopperRules(t *testing.T) {
	home := t.TempDir()

	_, err := execute(t, home, "bopper", "add-rule", "--prefix", "Random Speedrun", "--condition", "reached_nether")
	require.NoError(t, err)
	_, err = execute(t, home, "bopper", "add-rule", "--prefix", "Set Speedrun", "--condition", "world_size",
		"--min-size", "25")
	require.NoError(t, err)

	_, err = execute(t, home, "bopper", "add-rule", "--prefix", "X", "--condition", "reached_moon")
	assert.Equal(t, exitcode.Misuse, exitcode.From(err))

	_, err = execute(t, home, "bopper", "add-rule", "--prefix", "X", "--condition", "world_size", "--min-size=-1")
	assert.Equal(t, exitcode.Misuse, exitcode.From(err))

	_, err = execute(t, home, "bopper", "add-rule", "--prefix", "Tiny", "--condition", "world_size", "--min-size=0")
	require.NoError(t, err)

	out, err := execute(t, home, "bopper", "rules")
	require.NoError(t, err)
	assert.Contains(t, out, "Random Speedrun")
	assert.Contains(t, out, "Reached Nether")
	assert.Contains(t, out, "larger than 25 MB")
	assert.Contains(t, out, "larger than 0 MB")

	_, err = execute(t, home, "bopper", "remove-rule", "1")
	require.NoError(t, err)

	_, err = execute(t, home, "bopper", "remove-rule", "5")
	assert.Equal(t, exitcode.Misuse, exitcode.From(err))

	out, err = execute(t, home, "bopper", "rules")
	require.NoError(t, err)
	assert.NotContains(t, out, "Random Speedrun")
	assert.Contains(t, out, "Set Speedrun")
}

func TestBopperInstances(t *testing.T) {
	home := t.TempDir()
	instance := filepath.Join(home, ".local", "share", "PrismLauncher", "instances", "MCSR")
	require.NoError(t, os.MkdirAll(instance, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(instance, "instance.cfg"), []byte("[General]\n"), 0644))

	_, err := execute(t, home, "bopper", "instances", "Nope")
	assert.Equal(t, exitcode.Instance, exitcode.From(err))

	out, err := execute(t, home, "bopper", "instances", "MCSR")
	require.NoError(t, err)
	assert.Equal(t, "MCSR\n", out)
}

func TestRemaps(t *testing.T) {
	home := t.TempDir()

	_, err := execute(t, home, "waywall", "remap", "add", "F1", "F2")
	require.NoError(t, err)
	_, err = execute(t, home, "waywall", "remap", "add", "F3", "F4", "--permanent")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(home, ".config", "waywall", "remaps.lua"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `["F1"] = "F2"`)
	assert.Contains(t, string(data), `["F3"] = "F4"`)

	out, err := execute(t, home, "waywall", "remap", "remove", "1")
	require.NoError(t, err)
	assert.NotContains(t, out, "F1")
	assert.Contains(t, out, "F3")

	_, err = execute(t, home, "waywall", "remap", "remove", "7")
	assert.Equal(t, exitcode.Misuse, exitcode.From(err))
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{" yes ", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"sure\n", false},
	}

	for _, tt := range tests {
		out := new(bytes.Buffer)
		assert.Equal(t, tt.want, confirm(strings.NewReader(tt.input), out, "Continue?"), "input %q", tt.input)
		assert.Equal(t, "Continue? [y/N] ", out.String())
	}
}

func TestParseSwitch(t *testing.T) {
	for _, value := range []string{"on", "ON", "true", "1", "enable"} {
		enabled, ok := parseSwitch(value)
		assert.True(t, ok, value)
		assert.True(t, enabled, value)
	}

	for _, value := range []string{"off", "False", "0", "disabled"} {
		enabled, ok := parseSwitch(value)
		assert.True(t, ok, value)
		assert.False(t, enabled, value)
	}

	_, ok := parseSwitch("toggle")
	assert.False(t, ok)
}
