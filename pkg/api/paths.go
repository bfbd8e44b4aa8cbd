package api

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Paths describes where lingle and the tools it manages keep their files
type Paths struct {
	Home string
}

// NewPaths resolves the layout for the given home directory. An empty home means the current user's home.
func NewPaths(home string) (Paths, error) {
	if home == "" {
		var err error
		home, err = os.UserHomeDir()
		if err != nil {
			return Paths{}, eris.Wrap(err, "Failed to determine the home directory")
		}
	}

	home, err := filepath.Abs(home)
	if err != nil {
		return Paths{}, eris.Wrapf(err, "Failed to resolve %s", home)
	}

	return Paths{Home: home}, nil
}

func (p Paths) DataDir() string {
	return filepath.Join(p.Home, ".local", "share", "lingle")
}

func (p Paths) ScriptsDir() string {
	return filepath.Join(p.DataDir(), "scripts")
}

// SavesDir holds the practice maps which get linked into every instance
func (p Paths) SavesDir() string {
	return filepath.Join(p.DataDir(), "saves")
}

func (p Paths) StateDB() string {
	return filepath.Join(p.DataDir(), "state.db")
}

// LegacyConfig is the JSON state file written by older releases
func (p Paths) LegacyConfig() string {
	return filepath.Join(p.DataDir(), "config.json")
}

// LingleDir is the tmpfs mount point
func (p Paths) LingleDir() string {
	return filepath.Join(p.Home, "Lingle")
}

// Slot returns the tmpfs directory used by the n-th instance (1-based)
func (p Paths) Slot(n int) string {
	return filepath.Join(p.LingleDir(), strconv.Itoa(n))
}

func (p Paths) PrismInstances() string {
	return filepath.Join(p.Home, ".local", "share", "PrismLauncher", "instances")
}

func (p Paths) InstanceDir(name string) string {
	return filepath.Join(p.PrismInstances(), name)
}

func (p Paths) InstanceSaves(name string) string {
	return filepath.Join(p.InstanceDir(name), "minecraft", "saves")
}

func (p Paths) WaywallDir() string {
	return filepath.Join(p.Home, ".config", "waywall")
}

func (p Paths) ConfigDir() string {
	return filepath.Join(p.Home, ".config", "lingle")
}

// AppsDir receives downloaded MCSR tools (ModCheck, Ninjabrain Bot, ...)
func (p Paths) AppsDir() string {
	return filepath.Join(p.Home, "mcsr-apps")
}

func (p Paths) OBSPlugins() string {
	return filepath.Join(p.Home, ".config", "obs-studio", "plugins")
}

func (p Paths) SpeedrunIGT() string {
	return filepath.Join(p.Home, "speedrunigt")
}

// ToHomeRelative turns a path below the home directory into "/rel/path". Other paths are returned cleaned.
func (p Paths) ToHomeRelative(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}

	rel, err := filepath.Rel(p.Home, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return abs
	}

	if rel == "." {
		return "/"
	}
	return "/" + filepath.ToSlash(rel)
}
