package condition

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// templatePattern matches {{node.attr}} references.
var templatePattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][\w-]*)\.([A-Za-z_][\w-]*)\s*\}\}`)

// ResolveTemplate substitutes {{node.attr}} references against the live
// attribute snapshot. Unresolved references are left verbatim.
func (e *Evaluator) ResolveTemplate(text string, ctx Context) string {
	if text == "" {
		return text
	}
	return templatePattern.ReplaceAllStringFunc(text, func(match string) string {
		parts := templatePattern.FindStringSubmatch(match)
		attrs, ok := ctx.Attributes[parts[1]]
		if !ok {
			return match
		}
		value, ok := attrs[parts[2]]
		if !ok {
			return match
		}
		return renderValue(value)
	})
}

// renderValue produces the substitution text for a template value: strings
// verbatim, everything else as JSON.
func renderValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
