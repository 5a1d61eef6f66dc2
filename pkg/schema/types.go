// Package schema implements the declared attribute type system: typed
// parse/serialize for string, number, boolean, object, array and
// generic<...> values, plus JSON Schema validation for tool definitions.
//
// The round-trip law Parse(Serialize(v)) == v holds for every supported
// type; ingestion stores raw values and the runtime coerces lazily.
package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Type is one declared attribute type.
type Type interface {
	// Name returns the declared type name (e.g. "number", "generic<foo>").
	Name() string
	// Parse coerces a raw ingestion value into the canonical Go value.
	Parse(raw any) (any, error)
	// Serialize renders the canonical value back to its string form.
	Serialize(v any) (string, error)
}

// TypeOf resolves a declared type name to a Type. Unknown declarations and
// generic<...> fall back to pass-through generics.
func TypeOf(decl string) Type {
	d := strings.ToLower(strings.TrimSpace(decl))
	switch {
	case d == "string" || d == "":
		return StringType{}
	case d == "number":
		return NumberType{}
	case d == "boolean" || d == "bool":
		return BoolType{}
	case d == "object":
		return ObjectType{}
	case d == "array":
		return ArrayType{}
	case strings.HasPrefix(d, "generic<") && strings.HasSuffix(d, ">"):
		return GenericType{Inner: strings.TrimSuffix(strings.TrimPrefix(d, "generic<"), ">")}
	default:
		return GenericType{Inner: d}
	}
}

// Coerce parses raw with the declared type, silently falling back to the
// raw value when parsing fails. This mirrors the ingestion contract: an
// unparsable attribute is kept as-is, never an error.
func Coerce(decl string, raw any) any {
	v, err := TypeOf(decl).Parse(raw)
	if err != nil {
		return raw
	}
	return v
}

// StringType passes strings through and renders other values as JSON.
type StringType struct{}

func (StringType) Name() string { return "string" }

func (StringType) Parse(raw any) (any, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case nil:
		return "", nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("cannot render %T as string: %w", raw, err)
		}
		return string(b), nil
	}
}

func (StringType) Serialize(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("expected string, got %T", v)
	}
	return s, nil
}

// NumberType canonicalizes every numeric representation to float64.
type NumberType struct{}

func (NumberType) Name() string { return "number" }

func (NumberType) Parse(raw any) (any, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("not a number: %q", v)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("expected number, got %T", raw)
	}
}

func (NumberType) Serialize(v any) (string, error) {
	f, err := NumberType{}.Parse(v)
	if err != nil {
		return "", err
	}
	return strconv.FormatFloat(f.(float64), 'f', -1, 64), nil
}

// BoolType accepts booleans and their string forms.
type BoolType struct{}

func (BoolType) Name() string { return "boolean" }

func (BoolType) Parse(raw any) (any, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(v)))
		if err != nil {
			return nil, fmt.Errorf("not a boolean: %q", v)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("expected boolean, got %T", raw)
	}
}

func (BoolType) Serialize(v any) (string, error) {
	b, ok := v.(bool)
	if !ok {
		return "", fmt.Errorf("expected boolean, got %T", v)
	}
	return strconv.FormatBool(b), nil
}

// ObjectType canonicalizes to map[string]any, JSON-parsing string literals.
type ObjectType struct{}

func (ObjectType) Name() string { return "object" }

func (ObjectType) Parse(raw any) (any, error) {
	switch v := raw.(type) {
	case map[string]any:
		return v, nil
	case string:
		var out map[string]any
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, fmt.Errorf("not an object literal: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected object, got %T", raw)
	}
}

func (ObjectType) Serialize(v any) (string, error) {
	if _, ok := v.(map[string]any); !ok {
		return "", fmt.Errorf("expected object, got %T", v)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ArrayType canonicalizes to []any, JSON-parsing string literals.
type ArrayType struct{}

func (ArrayType) Name() string { return "array" }

func (ArrayType) Parse(raw any) (any, error) {
	switch v := raw.(type) {
	case []any:
		return v, nil
	case string:
		var out []any
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, fmt.Errorf("not an array literal: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected array, got %T", raw)
	}
}

func (ArrayType) Serialize(v any) (string, error) {
	if _, ok := v.([]any); !ok {
		return "", fmt.Errorf("expected array, got %T", v)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// GenericType carries values as JSON: Parse decodes string literals that
// hold valid JSON and passes everything else through; Serialize quotes the
// strings Parse would decode, so every value survives the round trip.
type GenericType struct {
	Inner string
}

func (t GenericType) Name() string {
	if t.Inner == "" {
		return "generic"
	}
	return "generic<" + t.Inner + ">"
}

func (t GenericType) Parse(raw any) (any, error) {
	if s, ok := raw.(string); ok {
		var out any
		if err := json.Unmarshal([]byte(s), &out); err == nil {
			return out, nil
		}
		// Not a JSON literal: the raw string survives.
	}
	return raw, nil
}

func (t GenericType) Serialize(v any) (string, error) {
	if s, ok := v.(string); ok && !json.Valid([]byte(s)) {
		return s, nil
	}
	// The value is structured, or a string that itself parses as JSON; in
	// the latter case marshaling quotes it so Parse returns the string,
	// not its decoding.
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// LooksLikeJSON reports whether a string plausibly holds a JSON object or
// array literal.
func LooksLikeJSON(s string) bool {
	trimmed := strings.TrimSpace(s)
	return (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]"))
}
