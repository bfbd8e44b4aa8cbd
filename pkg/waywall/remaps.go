package waywall

import (
	"context"
	"regexp"
	"strings"

	"github.com/Flammable-Bunny/Lingle/pkg/exitcode"
	"github.com/Flammable-Bunny/Lingle/pkg/keys"
	"github.com/Flammable-Bunny/Lingle/pkg/storage"
)

var (
	remappedSection = regexp.MustCompile(`(?s)remapped_kb\s*=\s*\{([^}]*)\}`)
	normalSection   = regexp.MustCompile(`(?s)normal_kb\s*=\s*\{([^}]*)\}`)
	remapEntry      = regexp.MustCompile(`\["([^"]+)"\]\s*=\s*"([^"]+)"`)
)

func writeEntries(sb *strings.Builder, remaps []storage.Remap, permanent bool) {
	for _, remap := range remaps {
		if remap.Permanent != permanent || remap.From == "" || remap.To == "" {
			continue
		}
		sb.WriteString("\t\t[\"")
		sb.WriteString(remap.From)
		sb.WriteString("\"] = \"")
		sb.WriteString(remap.To)
		sb.WriteString("\",\n")
	}
}

// RenderRemaps produces the contents of remaps.lua. Permanent remaps go to remapped_kb, toggleable ones to
// normal_kb.
func RenderRemaps(remaps []storage.Remap) string {
	var sb strings.Builder
	sb.WriteString("return {\n")
	sb.WriteString("\tremapped_kb = {\n")
	sb.WriteString("\t\t-- Add any playing remaps here\n")
	writeEntries(&sb, remaps, true)
	sb.WriteString("\n\t},\n\n")
	sb.WriteString("\tnormal_kb = {\n")
	sb.WriteString("\t\t-- Add any remaps you want to keep when disabling normal remaps (not necessary)\n")
	writeEntries(&sb, remaps, false)
	sb.WriteString("\n\t},\n\n")
	sb.WriteString("}\n")
	return sb.String()
}

func (c *Config) WriteRemaps(remaps []storage.Remap) error {
	for _, remap := range remaps {
		if strings.ContainsAny(remap.From+remap.To, "\"\n\\") {
			return exitcode.Errorf(exitcode.Misuse, "Invalid remap %q -> %q", remap.From, remap.To)
		}
	}
	return c.write(RemapsFile, RenderRemaps(remaps))
}

func parseSection(re *regexp.Regexp, content string, permanent bool) []storage.Remap {
	result := []storage.Remap{}
	m := re.FindStringSubmatch(content)
	if m == nil {
		return result
	}

	for _, entry := range remapEntry.FindAllStringSubmatch(m[1], -1) {
		result = append(result, storage.Remap{From: entry[1], To: entry[2], Permanent: permanent})
	}
	return result
}

// ReadRemaps parses remaps.lua. A missing file yields no remaps.
func (c *Config) ReadRemaps() ([]storage.Remap, error) {
	content, err := c.read(RemapsFile)
	if err != nil {
		return nil, err
	}

	result := parseSection(remappedSection, content, true)
	result = append(result, parseSection(normalSection, content, false)...)
	return result, nil
}

// AddRemap stores a new remap and rewrites remaps.lua. An existing remap for the same key is replaced.
func (c *Config) AddRemap(ctx context.Context, store *storage.Store, remap storage.Remap) ([]storage.Remap, error) {
	from, err := keys.Normalize(remap.From)
	if err != nil {
		return nil, err
	}
	to, err := keys.Normalize(remap.To)
	if err != nil {
		return nil, err
	}
	remap.From = from
	remap.To = to

	return c.updateRemaps(ctx, store, func(remaps []storage.Remap) []storage.Remap {
		result := make([]storage.Remap, 0, len(remaps)+1)
		for _, existing := range remaps {
			if existing.From != remap.From {
				result = append(result, existing)
			}
		}
		return append(result, remap)
	})
}

// RemoveRemap deletes the remap for from. Removing a key without a remap is not an error.
func (c *Config) RemoveRemap(ctx context.Context, store *storage.Store, from string) ([]storage.Remap, error) {
	canonical, err := keys.Normalize(from)
	if err != nil {
		canonical = from
	}

	return c.updateRemaps(ctx, store, func(remaps []storage.Remap) []storage.Remap {
		result := make([]storage.Remap, 0, len(remaps))
		for _, existing := range remaps {
			if existing.From != canonical && existing.From != from {
				result = append(result, existing)
			}
		}
		return result
	})
}

func (c *Config) updateRemaps(ctx context.Context, store *storage.Store, fn func([]storage.Remap) []storage.Remap) ([]storage.Remap, error) {
	var result []storage.Remap
	_, err := store.UpdateState(ctx, func(state *storage.State) error {
		state.Remaps = fn(state.Remaps)
		result = state.Remaps

		// a failed write rolls the state back
		return c.WriteRemaps(state.Remaps)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
