package keys

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/Flammable-Bunny/Lingle/pkg/exitcode"
)

var keyNames = []string{
	"ESC", "1", "2", "3", "4", "5", "6", "7", "8", "9", "0", "MINUS", "EQUAL", "BACKSPACE", "TAB",
	"Q", "W", "E", "R", "T", "Y", "U", "I", "O", "P", "LEFTBRACE", "RIGHTBRACE", "BACKSLASH", "LEFTCTRL",
	"A", "S", "D", "F", "G", "H", "J", "K", "L", "SEMICOLON", "APOSTROPHE", "ENTER", "GRAVE", "LEFTSHIFT",
	"Z", "X", "C", "V", "B", "N", "M", "COMMA", "DOT", "SLASH", "KPASTERISK", "LEFTALT", "SPACE", "CAPSLOCK",
	"F1", "F2", "F3", "F4", "F5", "F6", "F7", "F8", "F9", "F10", "F11", "F12",
	"F13", "F14", "F15", "F16", "F17", "F18", "F19", "F20", "F21", "F22", "F23", "F24",
	"NUMLOCK", "SCROLLLOCK", "KP7", "KP8", "KP9", "KPMINUS", "KP4", "KP5", "KP6", "KPPLUS",
	"KP1", "KP2", "KP3", "KP0", "KPDOT", "KPSLASH", "SYSRQ",
	"HOME", "UP", "PAGEUP", "LEFT", "RIGHT", "END", "DOWN", "PAGEDOWN", "INSERT", "DELETE", "PAUSE",
	"LEFTMETA", "COMPOSE", "STOP", "AGAIN", "PROPS", "UNDO", "COPY", "PASTE", "FIND", "CUT", "HELP",
}

var mouseButtons = []string{"lmb", "mmb", "rmb", "mb4", "mb5", "mb6", "mb7", "mb8", "mb9", "mb10", "mb11",
	"mb12", "mb13", "mb14", "mb15", "mb16", "mb17", "mb18"}

// Modifiers maps accepted modifier spellings (lowercase) to waywall's names
var Modifiers = map[string]string{
	"shift":   "Shift",
	"ctrl":    "Ctrl",
	"control": "Ctrl",
	"alt":     "Alt",
	"mod1":    "Alt",
	"super":   "Super",
	"mod4":    "Super",
	"win":     "Super",
	"meta":    "Super",
}

var modifierOrder = []string{"Ctrl", "Alt", "Shift", "Super"}

// common aliases people type instead of the evdev names
var aliases = map[string]string{
	"ESCAPE":    "ESC",
	"-":         "MINUS",
	"=":         "EQUAL",
	"[":         "LEFTBRACE",
	"]":         "RIGHTBRACE",
	"\\":        "BACKSLASH",
	";":         "SEMICOLON",
	"'":         "APOSTROPHE",
	"`":         "GRAVE",
	",":         "COMMA",
	".":         "DOT",
	"PERIOD":    "DOT",
	"/":         "SLASH",
	"RETURN":    "ENTER",
	"BACKQUOTE": "GRAVE",
	"PGUP":      "PAGEUP",
	"PGDN":      "PAGEDOWN",
	"DEL":       "DELETE",
	"INS":       "INSERT",
	"PRINT":     "SYSRQ",
	"MENU":      "COMPOSE",
}

var (
	keySet   = make(map[string]bool)
	mouseSet = make(map[string]bool)
)

func init() {
	for _, name := range keyNames {
		keySet[name] = true
	}
	for _, name := range mouseButtons {
		mouseSet[name] = true
	}
}

// ValidKeyNames returns the sorted list of known key names
func ValidKeyNames() []string {
	result := make([]string, len(keyNames))
	copy(result, keyNames)
	sort.Strings(result)
	return result
}

func ValidMouseButtons() []string {
	result := make([]string, len(mouseButtons))
	copy(result, mouseButtons)
	return result
}

// IsModifierKey reports whether name is a key that only modifies other keys
func IsModifierKey(name string) bool {
	if _, ok := Modifiers[strings.ToLower(name)]; ok {
		return true
	}

	switch strings.ToUpper(name) {
	case "LEFTSHIFT", "LEFTCTRL", "LEFTALT", "LEFTMETA", "CAPSLOCK", "NUMLOCK":
		return true
	}
	return false
}

// IsValidKeybind checks that bind isn't blank and doesn't end with a modifier
func IsValidKeybind(bind string) bool {
	if strings.TrimSpace(bind) == "" {
		return false
	}

	parts := strings.Split(bind, "-")
	last := strings.ToLower(parts[len(parts)-1])
	if last == "" {
		return false
	}
	_, isMod := Modifiers[last]
	return !isMod
}

// Format builds a waywall bind string from modifiers (any accepted spelling) and a key
func Format(mods []string, key string) string {
	present := make(map[string]bool)
	for _, mod := range mods {
		if name, ok := Modifiers[strings.ToLower(mod)]; ok {
			present[name] = true
		}
	}

	var sb strings.Builder
	for _, name := range modifierOrder {
		if present[name] {
			sb.WriteString(name)
			sb.WriteByte('-')
		}
	}
	sb.WriteString(key)
	return sb.String()
}

func canonicalKey(name string) (string, bool) {
	lower := strings.ToLower(name)
	if mouseSet[lower] {
		return lower, true
	}
	if lower == "mouse1" || lower == "button1" {
		return "lmb", true
	}

	upper := strings.ToUpper(name)
	if keySet[upper] {
		return upper, true
	}
	if alias, ok := aliases[upper]; ok {
		return alias, true
	}
	return "", false
}

// Normalize turns user input like "ctrl+shift+f", "Ctrl-F" or "*-F" into waywall's canonical form.
// The leading "*-" wildcard is dropped; callers add it back where a bind needs it.
func Normalize(bind string) (string, error) {
	bind = strings.TrimSpace(bind)
	bind = strings.TrimPrefix(bind, "*-")
	if bind == "" {
		return "", exitcode.New(exitcode.Misuse, "Empty keybind")
	}

	// "-" on its own is the minus key, so only split on separators between two tokens
	var tokens []string
	if bind == "-" || bind == "+" {
		tokens = []string{bind}
	} else {
		tokens = strings.FieldsFunc(bind, func(r rune) bool {
			return r == '+' || r == '-' || r == ' '
		})
		if strings.HasSuffix(bind, "--") || strings.HasSuffix(bind, "+-") {
			tokens = append(tokens, "-")
		}
	}

	if len(tokens) == 0 {
		return "", exitcode.Errorf(exitcode.Misuse, "Invalid keybind %q", bind)
	}

	mods := tokens[:len(tokens)-1]
	for _, mod := range mods {
		if _, ok := Modifiers[strings.ToLower(mod)]; !ok {
			return "", exitcode.Wrap(exitcode.Misuse, eris.Errorf("Unknown modifier %q in %q", mod, bind))
		}
	}

	last := tokens[len(tokens)-1]
	if _, isMod := Modifiers[strings.ToLower(last)]; isMod {
		return "", exitcode.Errorf(exitcode.Misuse, "Keybind %q ends with a modifier", bind)
	}

	key, ok := canonicalKey(last)
	if !ok {
		return "", exitcode.Errorf(exitcode.Misuse, "Unknown key %q", last)
	}

	return Format(mods, key), nil
}
