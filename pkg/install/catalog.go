// Package install sets up distro packages and the tools used for MCSR runs.
package install

import (
	_ "embed"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/Flammable-Bunny/Lingle/pkg/system"
)

// Kind decides which step installs an entry
type Kind string

const (
	KindPackage  Kind = "package"
	KindWaywall  Kind = "waywall"
	KindPrism    Kind = "prism"
	KindDiscord  Kind = "discord"
	KindOBS      Kind = "obs"
	KindDebounce Kind = "debounce"
	KindNvidia   Kind = "nvidia"
	KindJemalloc Kind = "jemalloc"
	KindApp      Kind = "app"
)

// Entry is a single installable item
type Entry struct {
	Name string
	Kind Kind
	// Steps is the weight of this entry in the progress display. 0 counts as 1.
	Steps int `yaml:"steps,omitempty"`
	// Code is reported when installing this entry fails
	Code     int                              `yaml:"code,omitempty"`
	Repo     string                           `yaml:"repo,omitempty"`
	Packages map[system.PackageManager]string `yaml:"packages,omitempty"`
}

// PackagesFor returns the distro packages for pm. ok is false if pm isn't listed at all.
func (e *Entry) PackagesFor(pm system.PackageManager) (pkgs []string, ok bool) {
	value, ok := e.Packages[pm]
	if !ok {
		return nil, false
	}
	return strings.Fields(value), true
}

func (e *Entry) weight() int {
	if e.Steps < 1 {
		return 1
	}
	return e.Steps
}

type Catalog struct {
	Entries []*Entry `yaml:"packages"`
}

//go:embed packages.yml
var catalogData []byte

var (
	defaultCatalog *Catalog
	catalogErr     error
	catalogOnce    sync.Once
)

// ParseCatalog reads a catalog in the format of packages.yml
func ParseCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	err := yaml.Unmarshal(data, &cat)
	if err != nil {
		return nil, eris.Wrap(err, "Failed to parse package catalog")
	}

	seen := make(map[string]bool)
	for idx, entry := range cat.Entries {
		if entry.Name == "" {
			return nil, eris.Errorf("Catalog entry %d has no name", idx)
		}
		if seen[strings.ToLower(entry.Name)] {
			return nil, eris.Errorf("Catalog entry %s is listed twice", entry.Name)
		}
		seen[strings.ToLower(entry.Name)] = true

		if entry.Kind == KindApp && entry.Repo == "" {
			return nil, eris.Errorf("App %s has no repository", entry.Name)
		}
		if entry.Code == 0 {
			entry.Code = CodeInstallFailed
		}
	}

	return &cat, nil
}

// DefaultCatalog returns the embedded catalog
func DefaultCatalog() (*Catalog, error) {
	catalogOnce.Do(func() {
		defaultCatalog, catalogErr = ParseCatalog(catalogData)
	})
	return defaultCatalog, catalogErr
}

// Find looks an entry up by its (case insensitive) name
func (c *Catalog) Find(name string) *Entry {
	name = strings.TrimSpace(name)
	for _, entry := range c.Entries {
		if strings.EqualFold(entry.Name, name) {
			return entry
		}
	}
	return nil
}

// Names returns the display names in catalog order
func (c *Catalog) Names() []string {
	names := make([]string, len(c.Entries))
	for idx, entry := range c.Entries {
		names[idx] = entry.Name
	}
	return names
}
