package worlds

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/Flammable-Bunny/Lingle/pkg/storage"
)

// KeepCondition describes what a world has to achieve to survive a World Bopper run
type KeepCondition string

const (
	AlwaysDelete      KeepCondition = "always_delete"
	ReachedNether     KeepCondition = "reached_nether"
	ReachedBastion    KeepCondition = "reached_bastion"
	ReachedFortress   KeepCondition = "reached_fortress"
	ReachedStronghold KeepCondition = "reached_stronghold"
	ReachedEnd        KeepCondition = "reached_end"
	WorldSize         KeepCondition = "world_size"
)

// Conditions lists all conditions in display order
var Conditions = []KeepCondition{
	AlwaysDelete,
	ReachedNether,
	ReachedBastion,
	ReachedFortress,
	ReachedStronghold,
	ReachedEnd,
	WorldSize,
}

var displayNames = map[KeepCondition]string{
	AlwaysDelete:      "Always delete",
	ReachedNether:     "Reached Nether",
	ReachedBastion:    "Reached Bastion",
	ReachedFortress:   "Reached Fortress",
	ReachedStronghold: "Reached Stronghold",
	ReachedEnd:        "Reached End",
	WorldSize:         "World size (MB)",
}

func (c KeepCondition) DisplayName() string {
	name, ok := displayNames[c]
	if !ok {
		return string(c)
	}
	return name
}

func (c KeepCondition) Valid() bool {
	_, ok := displayNames[c]
	return ok
}

// ParseCondition accepts either the identifier or the display name. Unknown names fall back to AlwaysDelete.
func ParseCondition(name string) KeepCondition {
	trimmed := strings.TrimSpace(name)
	for _, c := range Conditions {
		if string(c) == strings.ToLower(trimmed) || strings.EqualFold(c.DisplayName(), trimmed) {
			return c
		}
	}
	return AlwaysDelete
}

// structure markers: a data/*.dat file containing the name, or a path only present in worlds that generated it
var structureMarkers = map[KeepCondition]struct {
	name string
	path string
}{
	ReachedBastion:    {"bastion", filepath.Join("minecraft", "structures", "bastion")},
	ReachedFortress:   {"fortress", filepath.Join("minecraft", "structures", "fortress")},
	ReachedStronghold: {"stronghold", filepath.Join("data", "Stronghold")},
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func hasStructure(worldDir string, c KeepCondition) bool {
	marker := structureMarkers[c]

	matches, _ := filepath.Glob(filepath.Join(worldDir, "data", "*.dat"))
	for _, match := range matches {
		if strings.Contains(strings.ToLower(filepath.Base(match)), marker.name) {
			return true
		}
	}

	if _, err := os.Stat(filepath.Join(worldDir, "level.dat")); err == nil {
		_, err := os.Stat(filepath.Join(worldDir, marker.path))
		return err == nil
	}
	return false
}

// DirSize sums the size of all regular files below dir
func DirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, eris.Wrapf(err, "Failed to measure %s", dir)
	}
	return total, nil
}

// MatchRule returns the first rule with a non-empty prefix matching name
func MatchRule(name string, rules []storage.KeepRule) (storage.KeepRule, bool) {
	for _, rule := range rules {
		if rule.Prefix != "" && strings.HasPrefix(name, rule.Prefix) {
			return rule, true
		}
	}
	return storage.KeepRule{}, false
}

// ShouldDelete decides whether worldDir gets deleted. Worlds no rule applies to are kept.
func ShouldDelete(worldDir string, rules []storage.KeepRule) bool {
	rule, ok := MatchRule(filepath.Base(worldDir), rules)
	if !ok {
		return false
	}

	switch c := ParseCondition(rule.Condition); c {
	case AlwaysDelete:
		return true
	case ReachedNether:
		return !isDir(filepath.Join(worldDir, "DIM-1"))
	case ReachedEnd:
		return !isDir(filepath.Join(worldDir, "DIM1"))
	case ReachedBastion, ReachedFortress, ReachedStronghold:
		return !hasStructure(worldDir, c)
	case WorldSize:
		size, err := DirSize(worldDir)
		if err != nil {
			return true
		}
		minSize := rule.MinSizeMB
		if minSize < 0 {
			minSize = storage.DefaultMinSizeMB
		}
		return size/(1024*1024) < int64(minSize)
	default:
		return false
	}
}
