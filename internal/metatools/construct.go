package metatools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/switchyard-dev/switchyard/internal/condition"
	"github.com/switchyard-dev/switchyard/pkg/domain"
	"github.com/switchyard-dev/switchyard/pkg/registry"
	"github.com/switchyard-dev/switchyard/pkg/schema"
)

type constructInput struct {
	Name           string         `mapstructure:"name"`
	Description    string         `mapstructure:"description"`
	InputSchema    map[string]any `mapstructure:"input_schema"`
	Strategy       string         `mapstructure:"implementation_strategy"`
	Implementation string         `mapstructure:"implementation"`
}

type compositionSpec struct {
	Tools []string `mapstructure:"tools"`
}

// ConstructTool builds a tool at run time: the handler is registered, the
// tool is persisted into the machine as a tool-typed node, and the dynamic
// record is kept so list_tools can report it.
func (m *Manager) ConstructTool(input map[string]any) (any, error) {
	var spec constructInput
	if err := mapstructure.Decode(input, &spec); err != nil {
		return nil, fmt.Errorf("construct_tool: bad input: %w", err)
	}
	if spec.Name == "" {
		return nil, fmt.Errorf("construct_tool: name is required")
	}
	if spec.Implementation == "" {
		return nil, fmt.Errorf("construct_tool: implementation is required")
	}

	def := domain.ToolDefinition{
		Name:        spec.Name,
		Description: spec.Description,
		InputSchema: spec.InputSchema,
	}
	strategy := domain.ToolStrategy(spec.Strategy)

	handler, err := m.buildHandler(def, strategy, spec.Implementation)
	if err != nil {
		return nil, err
	}
	if err := m.registry.RegisterStatic(def, handler); err != nil {
		return nil, fmt.Errorf("construct_tool: %w", err)
	}

	tool := domain.DynamicTool{
		Definition:     def,
		Strategy:       strategy,
		Implementation: spec.Implementation,
		Created:        m.now(),
	}
	if err := m.persistToolNode(tool); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.dynamic[def.Name] = tool
	m.mu.Unlock()

	m.logger.Info("tool constructed", "tool", def.Name, "strategy", string(strategy))
	return map[string]any{"registered": true, "name": def.Name, "strategy": string(strategy)}, nil
}

// buildHandler realizes a strategy as a registry handler. The returned
// handler validates input against the declared schema before executing.
func (m *Manager) buildHandler(def domain.ToolDefinition, strategy domain.ToolStrategy, implementation string) (registry.Handler, error) {
	var inner registry.Handler
	switch strategy {
	case domain.StrategyAgentBacked:
		inner = agentBackedHandler(implementation)
	case domain.StrategyCodeGeneration:
		program, err := condition.Compile(implementation)
		if err != nil {
			return nil, fmt.Errorf("construct_tool %q: %w", def.Name, err)
		}
		inner = func(ctx context.Context, input map[string]any) (any, error) {
			result, err := program.Run(input)
			if err != nil {
				return nil, &domain.ToolExecutionError{Name: def.Name, Source: implementation, Err: err}
			}
			return result, nil
		}
	case domain.StrategyComposition:
		chain, err := decodeComposition(implementation)
		if err != nil {
			return nil, fmt.Errorf("construct_tool %q: %w", def.Name, err)
		}
		for _, name := range chain.Tools {
			if !m.registry.Has(name) {
				return nil, fmt.Errorf("construct_tool %q: composition references unknown tool %q", def.Name, name)
			}
		}
		inner = m.compositionHandler(def.Name, chain.Tools)
	default:
		return nil, fmt.Errorf("construct_tool %q: unknown implementation_strategy %q", def.Name, strategy)
	}

	compiled, err := compileOptionalSchema(def.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("construct_tool %q: %w", def.Name, err)
	}
	return func(ctx context.Context, input map[string]any) (any, error) {
		if err := schema.ValidateInput(compiled, input); err != nil {
			return nil, &domain.ToolExecutionError{Name: def.Name, Err: fmt.Errorf("input rejected: %w", err)}
		}
		return inner(ctx, input)
	}, nil
}

// inputRefPattern matches {{key}} references in agent_backed prompts.
var inputRefPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][\w-]*)\s*\}\}`)

// agentBackedHandler defers execution: invoking the tool yields the prompt
// an agent should run later, with input values substituted.
func agentBackedHandler(prompt string) registry.Handler {
	return func(ctx context.Context, input map[string]any) (any, error) {
		rendered := inputRefPattern.ReplaceAllStringFunc(prompt, func(match string) string {
			key := inputRefPattern.FindStringSubmatch(match)[1]
			v, ok := input[key]
			if !ok {
				return match
			}
			if s, isStr := v.(string); isStr {
				return s
			}
			raw, err := json.Marshal(v)
			if err != nil {
				return match
			}
			return string(raw)
		})
		return map[string]any{"deferred": true, "prompt": rendered}, nil
	}
}

// compositionHandler chains tools: the output of each call feeds the next
// as input, with non-map results wrapped under "value".
func (m *Manager) compositionHandler(name string, tools []string) registry.Handler {
	return func(ctx context.Context, input map[string]any) (any, error) {
		current := input
		var result any = input
		for _, tool := range tools {
			var err error
			result, err = m.registry.Execute(ctx, tool, current)
			if err != nil {
				return nil, &domain.ToolExecutionError{
					Name: name,
					Err:  fmt.Errorf("composition step %q: %w", tool, err),
				}
			}
			if next, ok := result.(map[string]any); ok {
				current = next
			} else {
				current = map[string]any{"value": result}
			}
		}
		return result, nil
	}
}

func decodeComposition(implementation string) (compositionSpec, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(implementation), &raw); err != nil {
		return compositionSpec{}, fmt.Errorf("composition implementation is not JSON: %w", err)
	}
	var spec compositionSpec
	if err := mapstructure.Decode(raw, &spec); err != nil {
		return compositionSpec{}, err
	}
	if len(spec.Tools) == 0 {
		return compositionSpec{}, fmt.Errorf("composition declares no tools")
	}
	return spec, nil
}

func compileOptionalSchema(doc map[string]any) (*jsonschema.Schema, error) {
	if len(doc) == 0 {
		return nil, nil
	}
	return schema.CompileInputSchema(doc)
}

// persistToolNode mirrors a constructed tool into the machine as a
// tool-typed node so serialization and rehydration see it.
func (m *Manager) persistToolNode(tool domain.DynamicTool) error {
	return m.applyMutation(func(g *domain.Graph) error {
		node := domain.Node{
			Name: tool.Definition.Name,
			Type: domain.KindTool,
			Attributes: []domain.Attribute{
				{Name: "description", Type: "string", Value: tool.Definition.Description},
				{Name: "input_schema", Type: "object", Value: tool.Definition.InputSchema},
				{Name: "implementation_strategy", Type: "string", Value: string(tool.Strategy)},
				{Name: "implementation", Type: "string", Value: tool.Implementation},
				{Name: "created", Type: "string", Value: tool.Created.UTC().Format(timeLayout)},
			},
		}
		g.Nodes = append(g.Nodes, node)
		return nil
	})
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

// strategyOf normalizes a strategy attribute value, defaulting empty to
// agent_backed for legacy tool nodes.
func strategyOf(s string) domain.ToolStrategy {
	switch domain.ToolStrategy(strings.TrimSpace(strings.ToLower(s))) {
	case domain.StrategyCodeGeneration:
		return domain.StrategyCodeGeneration
	case domain.StrategyComposition:
		return domain.StrategyComposition
	default:
		return domain.StrategyAgentBacked
	}
}
