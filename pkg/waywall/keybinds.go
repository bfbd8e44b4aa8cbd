package waywall

import (
	"context"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"github.com/Flammable-Bunny/Lingle/pkg/api"
	"github.com/Flammable-Bunny/Lingle/pkg/exitcode"
	"github.com/Flammable-Bunny/Lingle/pkg/keys"
	"github.com/Flammable-Bunny/Lingle/pkg/storage"
)

// Bind describes a keybind lingle manages in config.lua
type Bind struct {
	Title       string
	Placeholder string
	Var         string
	// Star binds fire regardless of held modifiers ("*-KEY")
	Star      bool
	StateName string
}

var Binds = []Bind{
	{"Thin key", "thinplaceholder", "thin_key", true, "Thin_Key"},
	{"Wide key", "wideplaceholder", "wide_key", true, "Wide_Key"},
	{"Tall key", "tallplaceholder", "tall_key", true, "Tall_Key"},
	{"Show Ninbot key", "shownbbplaceholder", "show_ninbot_key", true, "NBB_Key"},
	{"Fullscreen key", "fullscreenplaceholder", "toggle_fullscreen_key", false, "Fullscreen_Key"},
	{"Launch Apps key", "openappsplaceholder", "open_ninbot_key", false, "Apps_Key"},
	{"Toggle Remaps key", "toggleremapsplaceholder", "toggle_remaps_key", false, "Remaps_Key"},
}

// older configs use these names for the same binds
var legacyBindVars = map[string]string{
	"toggle_ninbot_key":  "NBB_Key",
	"launch_paceman_key": "Apps_Key",
}

var tableBinds = map[string]string{
	"thin_key": "thin",
	"wide_key": "wide",
	"tall_key": "tall",
}

// FindBind looks a bind up by state name, variable or title
func FindBind(name string) (Bind, bool) {
	for _, bind := range Binds {
		if strings.EqualFold(bind.StateName, name) || strings.EqualFold(bind.Var, name) ||
			strings.EqualFold(bind.Title, name) {
			return bind, true
		}
	}
	return Bind{}, false
}

// SetKeybind writes value into the variable. Resolution binds (thin_key, wide_key, tall_key) live in tables
// like `local thin = { key = "*-B", ... }` and are left alone if the table doesn't exist.
func (c *Config) SetKeybind(varName, value string, withStar bool) error {
	content, err := c.read(ConfigFile)
	if err != nil {
		return err
	}

	if strings.ContainsAny(value, "\"\n\\") {
		return exitcode.Errorf(exitcode.Misuse, "Invalid keybind %q", value)
	}

	inner := value
	if withStar {
		inner = "*-" + value
	}

	if table, ok := tableBinds[varName]; ok {
		re := regexp.MustCompile(`(?m)^(\s*local\s+` + table + `\s*=\s*\{\s*key\s*=\s*")([^"]+)(")`)
		if !re.MatchString(content) {
			log.Warn().Str("table", table).Msg("Resolution table not found in config.lua")
			return nil
		}
		content = replaceGroups(re, content, inner)
	} else {
		re := regexp.MustCompile(`(?m)^(\s*local\s+` + regexp.QuoteMeta(varName) + `\s*=\s*")([^"]+)(")`)
		if re.MatchString(content) {
			content = replaceGroups(re, content, inner)
		} else {
			content = content + "\nlocal " + varName + ` = "` + inner + `"` + "\n"
		}
	}

	return c.write(ConfigFile, content)
}

var (
	tableBindPattern  = regexp.MustCompile(`(?m)^\s*local\s+(thin|wide|tall)\s*=\s*\{\s*key\s*=\s*"([^"]+)"`)
	simpleBindPattern = regexp.MustCompile(`(?m)^\s*local\s+(\w+_key)\s*=\s*"([^"]+)"`)
)

func cleanBind(value string) (string, bool) {
	value = strings.TrimPrefix(value, "*-")
	if strings.TrimSpace(value) == "" || strings.Contains(strings.ToLower(value), "placeholder") {
		return "", false
	}
	return value, true
}

// DetectKeybinds reads the configured binds from config.lua keyed by state name. Placeholders are skipped.
func (c *Config) DetectKeybinds() (map[string]string, error) {
	content, err := c.read(ConfigFile)
	if err != nil {
		return nil, err
	}
	if content == "" {
		return nil, exitcode.Wrap(exitcode.IO, eris.Errorf("Config file not found or empty: %s", c.path(ConfigFile)))
	}

	result := make(map[string]string)
	for _, m := range tableBindPattern.FindAllStringSubmatch(content, -1) {
		value, ok := cleanBind(m[2])
		if !ok {
			continue
		}
		bind, _ := FindBind(m[1] + "_key")
		result[bind.StateName] = value
	}

	for _, m := range simpleBindPattern.FindAllStringSubmatch(content, -1) {
		value, ok := cleanBind(m[2])
		if !ok {
			continue
		}

		stateName, ok := legacyBindVars[m[1]]
		if !ok {
			bind, found := FindBind(m[1])
			if !found || tableBinds[bind.Var] != "" {
				continue
			}
			stateName = bind.StateName
		}
		result[stateName] = value
	}

	return result, nil
}

// SyncKeybinds copies the binds found in config.lua into the state and returns them
func (c *Config) SyncKeybinds(ctx context.Context, store *storage.Store) (map[string]string, error) {
	detected, err := c.DetectKeybinds()
	if err != nil {
		return nil, err
	}

	_, err = store.UpdateState(ctx, func(state *storage.State) error {
		for name, value := range detected {
			state.Keybinds[name] = value
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detected, nil
}

// ApplyKeybind validates value, writes it to config.lua and stores it. It returns the canonical bind.
func (c *Config) ApplyKeybind(ctx context.Context, store *storage.Store, name, value string) (string, error) {
	bind, ok := FindBind(name)
	if !ok {
		return "", exitcode.Errorf(exitcode.Misuse, "Unknown keybind %q", name)
	}

	canonical, err := keys.Normalize(value)
	if err != nil {
		return "", err
	}

	err = c.SetKeybind(bind.Var, canonical, bind.Star)
	if err != nil {
		return "", err
	}

	_, err = store.UpdateState(ctx, func(state *storage.State) error {
		state.Keybinds[bind.StateName] = canonical
		return nil
	})
	if err != nil {
		return "", err
	}

	api.Log(ctx).Info().Str("bind", bind.StateName).Str("key", canonical).Msg("Keybind updated")
	return canonical, nil
}

// ResetKeybind restores the placeholder and marks the bind as unset
func (c *Config) ResetKeybind(ctx context.Context, store *storage.Store, name string) error {
	bind, ok := FindBind(name)
	if !ok {
		return exitcode.Errorf(exitcode.Misuse, "Unknown keybind %q", name)
	}

	err := c.SetKeybind(bind.Var, bind.Placeholder, bind.Star)
	if err != nil {
		return err
	}

	_, err = store.UpdateState(ctx, func(state *storage.State) error {
		state.Keybinds[bind.StateName] = storage.UnsetKeybind
		return nil
	})
	return err
}
