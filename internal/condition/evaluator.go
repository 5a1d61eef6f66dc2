// Package condition evaluates guard expressions and templates over the
// machine snapshot. Expressions are HCL native-syntax expressions evaluated
// against an explicit variable scope; nothing from the host process,
// filesystem or environment is reachable from a guard.
package condition

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/switchyard-dev/switchyard/internal/compiler"
	"github.com/switchyard-dev/switchyard/pkg/domain"
)

// Context is the complete variable scope visible to guard expressions.
type Context struct {
	ErrorCount  int
	ActiveState string
	Attributes  map[string]map[string]any
}

// BuildContext assembles the evaluation scope fresh from a graph snapshot.
func BuildContext(g *domain.Graph, errorCount int, activeState string) Context {
	return Context{
		ErrorCount:  errorCount,
		ActiveState: activeState,
		Attributes:  compiler.GraphAttributes(g),
	}
}

// Evaluator evaluates guards fail-closed: any parse or evaluation error is
// logged and reported as false, so a malformed guard blocks its edge
// instead of always passing.
type Evaluator struct {
	logger *slog.Logger
}

// New creates an evaluator. A nil logger disables logging.
func New(logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Evaluator{logger: logger}
}

// Evaluate resolves templates in expr and evaluates it to a boolean.
func (e *Evaluator) Evaluate(expr string, ctx Context) bool {
	if expr == "" {
		return true
	}
	resolved := e.ResolveTemplate(expr, ctx)

	parsed, diags := hclsyntax.ParseExpression([]byte(resolved), "guard", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		e.logger.Warn("guard parse failed, treating as false", "expr", expr, "err", diags.Error())
		return false
	}

	val, diags := parsed.Value(e.scope(ctx))
	if diags.HasErrors() {
		e.logger.Warn("guard evaluation failed, treating as false", "expr", expr, "err", diags.Error())
		return false
	}

	boolVal, err := convert.Convert(val, cty.Bool)
	if err != nil || boolVal.IsNull() {
		e.logger.Warn("guard did not produce a boolean, treating as false", "expr", expr)
		return false
	}
	return boolVal.True()
}

// scope builds the HCL evaluation context. Only these variables exist.
func (e *Evaluator) scope(ctx Context) *hcl.EvalContext {
	attrNodes := make(map[string]cty.Value, len(ctx.Attributes))
	for node, attrs := range ctx.Attributes {
		attrVals := make(map[string]cty.Value, len(attrs))
		for name, v := range attrs {
			attrVals[name] = goToCty(v)
		}
		if len(attrVals) > 0 {
			attrNodes[node] = cty.ObjectVal(attrVals)
		}
	}

	vars := map[string]cty.Value{
		"errorCount":  cty.NumberIntVal(int64(ctx.ErrorCount)),
		"activeState": cty.StringVal(ctx.ActiveState),
	}
	if len(attrNodes) > 0 {
		vars["attributes"] = cty.ObjectVal(attrNodes)
	} else {
		vars["attributes"] = cty.EmptyObjectVal
	}
	return &hcl.EvalContext{Variables: vars}
}

// goToCty converts an unboxed attribute value through its JSON shape. The
// round trip is slower than direct construction but covers every value the
// ingestion contract can produce.
func goToCty(v any) cty.Value {
	switch t := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType)
	case string:
		return cty.StringVal(t)
	case bool:
		return cty.BoolVal(t)
	case float64:
		return cty.NumberFloatVal(t)
	case int:
		return cty.NumberIntVal(int64(t))
	case int64:
		return cty.NumberIntVal(t)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return cty.StringVal(fmt.Sprintf("%v", v))
	}
	impliedType, err := ctyjson.ImpliedType(raw)
	if err != nil {
		return cty.StringVal(string(raw))
	}
	val, err := ctyjson.Unmarshal(raw, impliedType)
	if err != nil {
		return cty.StringVal(string(raw))
	}
	return val
}
