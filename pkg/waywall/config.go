// Package waywall edits the user's waywall Lua configuration in place. Only the assignments lingle manages are
// touched; everything else in the files is preserved byte for byte.
package waywall

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/Flammable-Bunny/Lingle/pkg/api"
	"github.com/Flammable-Bunny/Lingle/pkg/exitcode"
)

const (
	ConfigFile = "config.lua"
	InitFile   = "init.lua"
	RemapsFile = "remaps.lua"
)

// PathVars lists the resource path variables found in init.lua
var PathVars = []string{
	"pacem_path",
	"nb_path",
	"overlay_path",
	"bg_path",
	"stretched_overlay_path",
	"tall_overlay_path",
	"thin_overlay_path",
	"wide_overlay_path",
}

// PathPlaceholders are the values the stock config ships with for unset paths
var PathPlaceholders = map[string]string{
	"pacem_path":   "pacemanpathplaceholder",
	"nb_path":      "ninjabrainbotpathplaceholder",
	"overlay_path": "measuringoverlaypathplaceholder",
	"lingle_path":  "linglepathplaceholder",
}

// mirror layout for 1440p monitors
var mirrors1440 = []struct {
	table  string
	values map[string]string
}{
	{"e_count", map[string]string{"x": "1500", "y": "400", "size": "5", "colorkey": "false"}},
	{"thin_pie", map[string]string{"x": "1490", "y": "645", "size": "4", "colorkey": "false"}},
	{"thin_percent", map[string]string{"enabled": "false", "x": "1568", "y": "1050", "size": "6"}},
	{"tall_pie", map[string]string{"x": "1490", "y": "645", "size": "4", "colorkey": "false"}},
	{"tall_percent", map[string]string{"enabled": "false", "x": "1568", "y": "1050", "size": "6"}},
}

var pathPattern = regexp.MustCompile(`(?m)^\s*local\s+(` + strings.Join(PathVars, "|") +
	`)\s*=\s*waywall_config_path\s*\.\.\s*"resources/([^"]+)"`)

var remapsAnchor = regexp.MustCompile(`(?m)^local keyboard_remaps = require`)

// Config edits the files in a waywall config directory
type Config struct {
	Dir string
}

func New(paths api.Paths) *Config {
	return &Config{Dir: paths.WaywallDir()}
}

func (c *Config) path(name string) string {
	return filepath.Join(c.Dir, name)
}

func (c *Config) read(name string) (string, error) {
	data, err := os.ReadFile(c.path(name))
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", exitcode.Wrap(exitcode.IO, eris.Wrapf(err, "Failed to read %s", c.path(name)))
	}
	return string(data), nil
}

func (c *Config) write(name, content string) error {
	err := os.MkdirAll(c.Dir, 0755)
	if err != nil {
		return exitcode.Wrap(exitcode.IO, eris.Wrapf(err, "Failed to create %s", c.Dir))
	}

	err = os.WriteFile(c.path(name), []byte(content), 0644)
	if err != nil {
		return exitcode.Wrap(exitcode.IO, eris.Wrapf(err, "Failed to write %s", c.path(name)))
	}
	return nil
}

// replaceGroups replaces every match of re with prefix + value + suffix, where prefix and suffix are the
// first and (optional) third capture group.
func replaceGroups(re *regexp.Regexp, content, value string) string {
	return re.ReplaceAllStringFunc(content, func(match string) string {
		groups := re.FindStringSubmatch(match)
		suffix := ""
		if len(groups) > 3 {
			suffix = groups[3]
		}
		return groups[1] + value + suffix
	})
}

func togglePattern(key string) *regexp.Regexp {
	return regexp.MustCompile(`(?m)^(\s*local\s+` + regexp.QuoteMeta(key) + `\s*=\s*)(true|false)`)
}

// GetToggle reads a boolean "local <key> = true|false" from config.lua. def is returned if the file or the
// assignment is missing.
func (c *Config) GetToggle(key string, def bool) bool {
	content, err := c.read(ConfigFile)
	if err != nil {
		return def
	}

	m := togglePattern(key).FindStringSubmatch(content)
	if m == nil {
		return def
	}
	return m[2] == "true"
}

func luaBool(value bool) string {
	if value {
		return "true"
	}
	return "false"
}

// SetToggle rewrites every assignment of key or prepends a new one. Enabling res_1440 also moves the mirrors.
func (c *Config) SetToggle(key string, value bool) error {
	content, err := c.read(ConfigFile)
	if err != nil {
		return err
	}

	re := togglePattern(key)
	if re.MatchString(content) {
		content = replaceGroups(re, content, luaBool(value))
	} else {
		content = "local " + key + " = " + luaBool(value) + "\n" + content
	}

	if key == "res_1440" && value {
		for _, mirror := range mirrors1440 {
			content = updateTable(content, mirror.table, mirror.values)
		}
	}

	return c.write(ConfigFile, content)
}

// updateTable sets fields of "local <table> = { ... }". Fields missing from the table stay missing.
func updateTable(content, table string, values map[string]string) string {
	re := regexp.MustCompile(`(?m)^(\s*local\s+` + regexp.QuoteMeta(table) + `\s*=\s*\{)([^}]+)(\})`)
	loc := re.FindStringSubmatchIndex(content)
	if loc == nil {
		return content
	}

	body := content[loc[4]:loc[5]]
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		field := regexp.MustCompile(`\b(` + regexp.QuoteMeta(key) + `\s*=\s*)([^,\s}]+)`)
		body = field.ReplaceAllString(body, "${1}"+strings.ReplaceAll(values[key], "$", "$$"))
	}

	return content[:loc[4]] + body + content[loc[5]:]
}

// ReadPaths returns the resource paths set in init.lua as "/resources/<file>"
func (c *Config) ReadPaths() (map[string]string, error) {
	result := make(map[string]string)
	content, err := c.read(InitFile)
	if err != nil {
		return result, err
	}

	for _, m := range pathPattern.FindAllStringSubmatch(content, -1) {
		result[m[1]] = "/resources/" + m[2]
	}
	return result, nil
}

// SetPathVar points a resource variable in init.lua at homeRelative
func (c *Config) SetPathVar(name, homeRelative string) error {
	content, err := c.read(InitFile)
	if err != nil {
		return err
	}

	file := strings.TrimPrefix(homeRelative, "/")
	if strings.ContainsAny(file, "\"\n") {
		return exitcode.Errorf(exitcode.Misuse, "Invalid path %q", homeRelative)
	}

	re := regexp.MustCompile(`(?m)^(\s*local\s+` + regexp.QuoteMeta(name) +
		`\s*=\s*waywall_config_path\s*\.\.\s*"resources/)([^"]+)(")`)
	line := "local " + name + ` = waywall_config_path .. "resources/` + file + `"` + "\n"

	switch {
	case re.MatchString(content):
		content = replaceGroups(re, content, file)
	case remapsAnchor.MatchString(content):
		loc := remapsAnchor.FindStringIndex(content)
		content = content[:loc[0]] + line + content[loc[0]:]
	default:
		content = content + "\n" + line
	}

	return c.write(InitFile, content)
}

// RegisterExecutable records where the lingle binary lives so the waywall config can launch it
func (c *Config) RegisterExecutable(paths api.Paths, executable string) error {
	resolved, err := filepath.EvalSymlinks(executable)
	if err == nil {
		executable = resolved
	}
	return c.SetPathVar("lingle_path", paths.ToHomeRelative(executable))
}
