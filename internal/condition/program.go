package condition

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Program is a compiled expression in the same restricted HCL sub-language
// guards use. Runtime-constructed code_generation tools compile once at
// registration and evaluate per call with an `input` variable; the sandbox
// properties are identical to guard evaluation.
type Program struct {
	expr   hclsyntax.Expression
	source string
}

// Compile parses an expression, failing eagerly so a broken implementation
// is rejected at tool construction rather than first call.
func Compile(source string) (*Program, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(source), "implementation", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, fmt.Errorf("implementation does not parse: %s", diags.Error())
	}
	return &Program{expr: expr, source: source}, nil
}

// Source returns the original expression text.
func (p *Program) Source() string {
	return p.source
}

// Run evaluates the program with the call input bound to the `input`
// variable and returns the result as a plain Go value.
func (p *Program) Run(input map[string]any) (any, error) {
	fields := make(map[string]cty.Value, len(input))
	for name, v := range input {
		fields[name] = goToCty(v)
	}
	inputVal := cty.EmptyObjectVal
	if len(fields) > 0 {
		inputVal = cty.ObjectVal(fields)
	}

	val, diags := p.expr.Value(&hcl.EvalContext{
		Variables: map[string]cty.Value{"input": inputVal},
	})
	if diags.HasErrors() {
		return nil, fmt.Errorf("evaluation failed: %s", diags.Error())
	}
	return ctyToGo(val)
}

// ctyToGo converts an evaluation result back to plain Go values through its
// JSON shape, mirroring goToCty.
func ctyToGo(val cty.Value) (any, error) {
	if val.IsNull() {
		return nil, nil
	}
	raw, err := ctyjson.Marshal(val, val.Type())
	if err != nil {
		return nil, fmt.Errorf("result is not serializable: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
