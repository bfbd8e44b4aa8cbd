package runner

import (
	"strings"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/syntax"
)

// Quote returns s quoted for bash. Values which can't be quoted (i.e. contain NUL bytes) are replaced by ''.
func Quote(s string) string {
	quoted, err := syntax.Quote(s, syntax.LangBash)
	if err != nil {
		return "''"
	}
	return quoted
}

// QuoteAll quotes every item and joins them with spaces
func QuoteAll(items ...string) string {
	quoted := make([]string, len(items))
	for idx, item := range items {
		quoted[idx] = Quote(item)
	}
	return strings.Join(quoted, " ")
}

// ValidateScript parses src as a bash script and returns a positioned error if it is malformed
func ValidateScript(name, src string) error {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	_, err := parser.Parse(strings.NewReader(src), name)
	if err != nil {
		return eris.Wrapf(err, "Generated script %s is invalid", name)
	}
	return nil
}
