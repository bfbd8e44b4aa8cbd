// Package prism rewrites Prism Launcher instance configs so Minecraft runs under waywall.
package prism

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/Flammable-Bunny/Lingle/pkg/api"
	"github.com/Flammable-Bunny/Lingle/pkg/exitcode"
	"github.com/Flammable-Bunny/Lingle/pkg/system"
)

const (
	GLFWPath       = "/usr/local/lib64/waywall-glfw/libglfw.so"
	WrapperCommand = "waywall wrap --"

	java17 = "/usr/lib/jvm/java-17-openjdk/bin/java"
	java21 = "/usr/lib/jvm/java-21-openjdk/bin/java"

	// QVariant encoded environment map {__GL_THREADED_OPTIMIZATIONS: "0"}
	nvidiaEnv = `@Variant(\0\0\0\b\0\0\0\x1\0\0\0\x36\0_\0_\0G\0L\0_\0T\0H\0R\0E\0\x41\0D\0E\0D\0_\0O\0P\0T\0I\0M\0I\0Z\0\x41\0T\0I\0O\0N\0S\0\0\0\n\0\0\0\x2\0\x30)`
)

// Setting is one instance.cfg key
type Setting struct {
	Key   string
	Value string
}

// Result summarizes a ConfigureInstances run
type Result struct {
	Configured []string
	Skipped    []string
	Updated    int
	Added      int
}

// JavaPath returns the JDK the distro's package manager installs for Minecraft
func JavaPath(pm system.PackageManager) string {
	if pm == system.Dnf {
		return java21
	}
	return java17
}

// Settings lists the instance.cfg keys lingle forces, in write order
func Settings(pm system.PackageManager, nvidia bool) []Setting {
	settings := []Setting{
		{"IgnoreJavaCompatibility", "true"},
		{"AutomaticJavaDownload", "false"},
		{"JavaDir", "java"},
		{"JavaPath", JavaPath(pm)},
		{"CustomGLFWPath", GLFWPath},
		{"UseNativeGLFW", "true"},
		{"WrapperCommand", WrapperCommand},
	}

	if nvidia {
		settings = append(settings, Setting{"OverrideEnv", "true"}, Setting{"Env", nvidiaEnv})
	}
	return settings
}

// applySettings overwrites the first "key=" line of every setting or appends it
func applySettings(lines []string, settings []Setting) ([]string, int, int) {
	updated, added := 0, 0
	for _, s := range settings {
		found := false
		for idx, line := range lines {
			if strings.HasPrefix(line, s.Key+"=") {
				lines[idx] = s.Key + "=" + s.Value
				found = true
				updated++
				break
			}
		}

		if !found {
			lines = append(lines, s.Key+"="+s.Value)
			added++
		}
	}
	return lines, updated, added
}

func configureOne(path string, settings []Setting) (int, int, error) {
	var lines []string
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		content := strings.TrimRight(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
		if content != "" {
			lines = strings.Split(content, "\n")
		}
	case eris.Is(err, os.ErrNotExist):
	default:
		return 0, 0, eris.Wrapf(err, "Failed to read %s", path)
	}

	lines, updated, added := applySettings(lines, settings)
	err = os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "Failed to write %s", path)
	}
	return updated, added, nil
}

// ConfigureInstances points the given instances at waywall's GLFW and the system JDK. Instances without a
// directory are skipped; configuring none of them is an error.
func ConfigureInstances(ctx context.Context, names []string, pm system.PackageManager, nvidia bool) (Result, error) {
	ctx = api.WithTask(ctx, "prism")
	paths := api.PathsFrom(ctx)
	settings := Settings(pm, nvidia)
	result := Result{Configured: []string{}, Skipped: []string{}}

	api.Log(ctx).Debug().Str("java", JavaPath(pm)).Bool("nvidia", nvidia).Msg("Configuring instances")
	for _, name := range names {
		dir := paths.InstanceDir(name)
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			api.Log(ctx).Warn().Str("instance", name).Msg("Instance directory not found, skipping")
			result.Skipped = append(result.Skipped, name+" (directory not found)")
			continue
		}

		updated, added, err := configureOne(filepath.Join(dir, "instance.cfg"), settings)
		if err != nil {
			return result, exitcode.Wrap(exitcode.Instance, err)
		}

		api.Log(ctx).Info().Str("instance", name).Int("updated", updated).Int("added", added).Msg("Configured")
		result.Configured = append(result.Configured, name)
		result.Updated += updated
		result.Added += added
	}

	if len(result.Configured) == 0 {
		if len(result.Skipped) > 0 {
			return result, exitcode.Errorf(exitcode.Instance, "No instances could be configured. Skipped: %s",
				strings.Join(result.Skipped, ", "))
		}
		return result, exitcode.New(exitcode.Instance, "No instances could be configured")
	}

	return result, nil
}
