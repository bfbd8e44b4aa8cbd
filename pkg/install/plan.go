package install

import (
	"github.com/Flammable-Bunny/Lingle/pkg/exitcode"
	"github.com/Flammable-Bunny/Lingle/pkg/system"
)

// Plan is a validated selection of catalog entries for one package manager
type Plan struct {
	PackageManager system.PackageManager
	Selected       []*Entry
	// Steps is the total used for progress reporting
	Steps int

	catalog *Catalog
}

// NewPlan resolves selection against the embedded catalog
func NewPlan(selection []string, pm system.PackageManager) (*Plan, error) {
	cat, err := DefaultCatalog()
	if err != nil {
		return nil, err
	}
	return cat.Plan(selection, pm)
}

// Plan resolves selection. Entries are kept in catalog order and duplicates are dropped.
func (c *Catalog) Plan(selection []string, pm system.PackageManager) (*Plan, error) {
	if len(selection) == 0 {
		return nil, exitcode.New(exitcode.Misuse, "Nothing selected for installation")
	}

	chosen := make(map[*Entry]bool)
	for _, name := range selection {
		entry := c.Find(name)
		if entry == nil {
			return nil, exitcode.Errorf(exitcode.Misuse, "Unknown package %q", name)
		}
		chosen[entry] = true
	}

	plan := &Plan{PackageManager: pm, catalog: c}
	for _, entry := range c.Entries {
		if chosen[entry] {
			plan.Selected = append(plan.Selected, entry)
			plan.Steps += entry.weight()
		}
	}
	return plan, nil
}

// Has reports whether an entry of kind was selected
func (p *Plan) Has(kind Kind) bool {
	return p.First(kind) != nil
}

// First returns the first selected entry of kind
func (p *Plan) First(kind Kind) *Entry {
	for _, entry := range p.Selected {
		if entry.Kind == kind {
			return entry
		}
	}
	return nil
}

// All returns the selected entries of kind
func (p *Plan) All(kind Kind) []*Entry {
	result := make([]*Entry, 0)
	for _, entry := range p.Selected {
		if entry.Kind == kind {
			result = append(result, entry)
		}
	}
	return result
}
