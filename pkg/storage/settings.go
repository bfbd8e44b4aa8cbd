package storage

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	bolt "go.etcd.io/bbolt"
)

var settingsBucket = []byte("settings")

var stateKey = []byte("state")

const (
	DefaultADWInterval = 300
	DefaultMinSizeMB   = 10
	UnsetKeybind       = "Not_Set_Yet"
)

// Remap translates one key into another while waywall's remaps are active
type Remap struct {
	From      string `json:"fromKey"`
	To        string `json:"toKey"`
	Permanent bool   `json:"permanent"`
}

// KeepRule decides whether worlds whose name starts with Prefix survive a World Bopper run
type KeepRule struct {
	Prefix    string `json:"prefix"`
	Condition string `json:"condition"`
	MinSizeMB int    `json:"minSizeMB"`
}

// UnmarshalJSON fills in DefaultMinSizeMB for rules saved without a size
func (r *KeepRule) UnmarshalJSON(data []byte) error {
	type plain KeepRule
	rule := plain{MinSizeMB: DefaultMinSizeMB}
	err := json.Unmarshal(data, &rule)
	if err != nil {
		return err
	}

	*r = KeepRule(rule)
	return nil
}

// State holds everything the user toggled through lingle
type State struct {
	Tmpfs           bool              `json:"tmpfs"`
	InstanceCount   int               `json:"instanceCount"`
	PracticeMaps    bool              `json:"practiceMaps"`
	SelectedMaps    []string          `json:"selectedMaps"`
	ADW             bool              `json:"adw"`
	ADWInterval     int               `json:"adwInterval"`
	Distro          string            `json:"distro"`
	GPU             string            `json:"gpu"`
	Keybinds        map[string]string `json:"keybinds"`
	Remaps          []Remap           `json:"remaps"`
	WorldBopper     bool              `json:"worldBopperEnabled"`
	BopperInstances []string          `json:"worldBopperSelectedInstances"`
	BopperRules     []KeepRule        `json:"boppableWorlds"`
}

// DefaultState returns the state of a fresh installation
func DefaultState() *State {
	return &State{
		ADWInterval:     DefaultADWInterval,
		SelectedMaps:    []string{},
		Keybinds:        map[string]string{},
		Remaps:          []Remap{},
		BopperInstances: []string{},
		BopperRules:     []KeepRule{},
	}
}

// Normalize enforces the invariants of a loaded state
func (s *State) Normalize() {
	if s.ADWInterval < 1 {
		s.ADWInterval = 1
	}
	if s.InstanceCount < 0 {
		s.InstanceCount = 0
	}
	if s.SelectedMaps == nil {
		s.SelectedMaps = []string{}
	}
	if s.Keybinds == nil {
		s.Keybinds = map[string]string{}
	}
	if s.Remaps == nil {
		s.Remaps = []Remap{}
	}
	if s.BopperInstances == nil {
		s.BopperInstances = []string{}
	}
	if s.BopperRules == nil {
		s.BopperRules = []KeepRule{}
	}
	for idx := range s.BopperRules {
		if s.BopperRules[idx].MinSizeMB < 0 {
			s.BopperRules[idx].MinSizeMB = DefaultMinSizeMB
		}
	}
}

// Keybind returns the stored bind for name or UnsetKeybind
func (s *State) Keybind(name string) string {
	value, ok := s.Keybinds[name]
	if !ok || value == "" {
		return UnsetKeybind
	}
	return value
}

func (s *Store) GetState(ctx context.Context) (*State, error) {
	state := DefaultState()
	err := s.view(ctx, func(tx *bolt.Tx) error {
		item := tx.Bucket(settingsBucket).Get(stateKey)
		if item == nil {
			return nil
		}

		return json.Unmarshal(item, state)
	})
	if err != nil {
		return nil, eris.Wrap(err, "Failed to load state")
	}

	state.Normalize()
	return state, nil
}

func (s *Store) SaveState(ctx context.Context, state *State) error {
	state.Normalize()
	encoded, err := json.Marshal(state)
	if err != nil {
		return eris.Wrap(err, "Failed to encode state")
	}

	err = s.update(ctx, func(tx *bolt.Tx) error {
		return tx.Bucket(settingsBucket).Put(stateKey, encoded)
	})
	return eris.Wrap(err, "Failed to save state")
}

// UpdateState loads the state, passes it to fn and saves the result in a single transaction
func (s *Store) UpdateState(ctx context.Context, fn func(*State) error) (*State, error) {
	var result *State
	err := s.BatchUpdate(ctx, func(ctx context.Context) error {
		state, err := s.GetState(ctx)
		if err != nil {
			return err
		}

		err = fn(state)
		if err != nil {
			return err
		}

		result = state
		return s.SaveState(ctx, state)
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// HasState reports whether a state has been saved before
func (s *Store) HasState(ctx context.Context) (bool, error) {
	found := false
	err := s.view(ctx, func(tx *bolt.Tx) error {
		found = tx.Bucket(settingsBucket).Get(stateKey) != nil
		return nil
	})
	return found, err
}

// ImportLegacyConfig imports the JSON config written by older lingle releases if no state exists yet.
// It returns true if something was imported.
func (s *Store) ImportLegacyConfig(ctx context.Context, path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, eris.Wrapf(err, "Failed to read %s", path)
	}

	if !gjson.ValidBytes(data) {
		return false, eris.Errorf("%s is not valid JSON", path)
	}

	imported := false
	err = s.BatchUpdate(ctx, func(ctx context.Context) error {
		exists, err := s.HasState(ctx)
		if err != nil || exists {
			return err
		}

		legacy := gjson.ParseBytes(data)
		state := DefaultState()
		state.Tmpfs = legacy.Get("tmpfs").Bool()
		state.InstanceCount = int(legacy.Get("instanceCount").Int())
		state.PracticeMaps = legacy.Get("practiceMaps").Bool()
		legacy.Get("selectedMaps").ForEach(func(_, value gjson.Result) bool {
			state.SelectedMaps = append(state.SelectedMaps, value.String())
			return true
		})
		state.ADW = legacy.Get("adw").Bool()
		if interval := legacy.Get("adwInterval"); interval.Exists() {
			state.ADWInterval = int(interval.Int())
		}
		state.Distro = legacy.Get("distro").String()
		state.GPU = legacy.Get("gpu").String()

		imported = true
		return s.SaveState(ctx, state)
	})
	if err != nil {
		return false, eris.Wrapf(err, "Failed to import %s", path)
	}

	return imported, nil
}
