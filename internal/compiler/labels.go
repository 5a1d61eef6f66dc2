// Package compiler turns raw edge labels and boxed attribute values into
// the typed views the runtime consumes: guard expressions, annotations,
// permission verbs and coerced attribute values.
package compiler

import (
	"regexp"
	"strings"

	"github.com/switchyard-dev/switchyard/pkg/domain"
)

// Permission verbs recognized in edge labels.
const (
	VerbReads  = "reads"
	VerbWrites = "writes"
	VerbStores = "stores"
)

// guardPattern matches when:"expr", unless:"expr" and if:"expr", with
// either quote style.
var guardPattern = regexp.MustCompile(`(?i)\b(when|unless|if)\s*:\s*(?:"((?:[^"\\]|\\.)*)"|'((?:[^'\\]|\\.)*)')`)

// verbPattern matches a permission verb token with an optional field list,
// either reads[a, b] or reads: a, b.
var verbPattern = regexp.MustCompile(`(?i)\b(reads|writes|stores)\b(?:\s*\[([^\]]*)\]|\s*:\s*([A-Za-z_][\w]*(?:\s*,\s*[A-Za-z_][\w]*)*))?`)

// simpleGuardMarkers are the literal substrings whose presence makes a
// guard non-"simple". Crude but deterministic; kept for compatibility.
var simpleGuardMarkers = []string{"tool", "external", "api", "call"}

// EdgeSpec is the decoded form of one edge label.
type EdgeSpec struct {
	Guard  string   // guard expression, "" when unguarded
	Negate bool     // true for unless: guards
	Auto   bool     // @auto annotation present
	Verb   string   // reads|writes|stores, "" when none
	Fields []string // field restriction for permission edges
	Raw    string   // original label text
}

// ParseEdge decodes the label (or type) text of an edge.
func ParseEdge(e domain.Edge) EdgeSpec {
	text := e.Text()
	spec := EdgeSpec{Raw: text}
	if text == "" {
		return spec
	}

	spec.Auto = strings.Contains(text, "@auto")

	if m := guardPattern.FindStringSubmatch(text); m != nil {
		spec.Guard = m[2]
		if spec.Guard == "" {
			spec.Guard = m[3]
		}
		spec.Negate = strings.EqualFold(m[1], "unless")
	}

	if m := verbPattern.FindStringSubmatch(text); m != nil {
		spec.Verb = strings.ToLower(m[1])
		fieldText := m[2]
		if fieldText == "" {
			fieldText = m[3]
		}
		for _, f := range strings.Split(fieldText, ",") {
			if f = strings.TrimSpace(f); f != "" {
				spec.Fields = append(spec.Fields, f)
			}
		}
	}

	return spec
}

// HasGuard reports whether the edge carries a guard expression.
func (s EdgeSpec) HasGuard() bool {
	return s.Guard != ""
}

// SimpleGuard reports whether the guard qualifies for automatic resolution:
// it must not reference tool/external/api/call. An unguarded edge is not
// simple (it has nothing to evaluate).
func (s EdgeSpec) SimpleGuard() bool {
	if s.Guard == "" {
		return false
	}
	lower := strings.ToLower(s.Guard)
	for _, marker := range simpleGuardMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	return true
}
