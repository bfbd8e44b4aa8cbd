package prism

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
	"github.com/Flammable-Bunny/Lingle/pkg/system"
)

func newCtx(t *testing.T) (context.Context, api.Paths) {
	t.Helper()
	paths := api.Paths{Home: t.TempDir()}
	return api.WithLingleContext(context.Background(), api.LingleCtxParams{Paths: paths}), paths
}

func TestConfigureInstances(t *testing.T) {
	ctx, paths := newCtx(t)

	require.NoError(t, os.MkdirAll(paths.InstanceDir("MCSR1"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(paths.InstanceDir("MCSR1"), "instance.cfg"),
		[]byte("InstanceType=OneSix\nJavaPath=/usr/bin/java\nname=MCSR1\nUseNativeGLFW=false\n"), 0644))
	require.NoError(t, os.MkdirAll(paths.InstanceDir("MCSR2"), 0755))

	result, err := ConfigureInstances(ctx, []string{"MCSR1", "MCSR2", "Gone"}, system.Dnf, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"MCSR1", "MCSR2"}, result.Configured)
	assert.Equal(t, []string{"Gone (directory not found)"}, result.Skipped)
	assert.Equal(t, 2, result.Updated)
	assert.Equal(t, 5+7, result.Added)

	data, err := os.ReadFile(filepath.Join(paths.InstanceDir("MCSR1"), "instance.cfg"))
	require.NoError(t, err)
	assert.Equal(t, strings.Join([]string{
		"InstanceType=OneSix",
		"JavaPath=" + java21,
		"name=MCSR1",
		"UseNativeGLFW=true",
		"IgnoreJavaCompatibility=true",
		"AutomaticJavaDownload=false",
		"JavaDir=java",
		"CustomGLFWPath=" + GLFWPath,
		"WrapperCommand=waywall wrap --",
	}, "\n")+"\n", string(data))
}

func TestConfigureInstancesNvidia(t *testing.T) {
	ctx, paths := newCtx(t)
	require.NoError(t, os.MkdirAll(paths.InstanceDir("MCSR1"), 0755))

	_, err := ConfigureInstances(ctx, []string{"MCSR1"}, system.Pacman, true)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(paths.InstanceDir("MCSR1"), "instance.cfg"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "JavaPath="+java17+"\n")
	assert.Contains(t, string(data), "OverrideEnv=true\n")
	assert.Contains(t, string(data), `Env=@Variant(\0\0\0\b`)
}

func TestConfigureInstancesNoneFound(t *testing.T) {
	ctx, _ := newCtx(t)

	_, err := ConfigureInstances(ctx, []string{"A", "B"}, system.Apt, false)
	require.Error(t, err)
	assert.Equal(t, exitcode.Instance, exitcode.From(err))
	assert.Contains(t, err.Error(), "A (directory not found), B (directory not found)")

	_, err = ConfigureInstances(ctx, nil, system.Apt, false)
	assert.Equal(t, exitcode.Instance, exitcode.From(err))
}
