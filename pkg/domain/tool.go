package domain

import "time"

// ToolDefinition is the schema handed verbatim to the model client as its
// function-calling contract.
type ToolDefinition struct {
	Name        string         `json:"name" mapstructure:"name"`
	Description string         `json:"description,omitempty" mapstructure:"description"`
	InputSchema map[string]any `json:"input_schema,omitempty" mapstructure:"input_schema"`
}

// ToolStrategy selects how a runtime-constructed tool executes.
type ToolStrategy string

const (
	// StrategyAgentBacked defers execution to a later agent run: invoking
	// the tool yields a prompt, not a computed value.
	StrategyAgentBacked ToolStrategy = "agent_backed"
	// StrategyCodeGeneration compiles an expression into a callable
	// closure at registration time.
	StrategyCodeGeneration ToolStrategy = "code_generation"
	// StrategyComposition chains existing tools declaratively.
	StrategyComposition ToolStrategy = "composition"
)

// DynamicTool is a tool defined at run time. It is mirrored into the graph
// as a tool-typed node so it survives serialization and is reconstructed on
// reload from the same strategy tag.
type DynamicTool struct {
	Definition     ToolDefinition `json:"definition"`
	Strategy       ToolStrategy   `json:"strategy"`
	Implementation string         `json:"implementation"`
	Created        time.Time      `json:"created"`
}

// ToolExecution records one tool call performed during an agent activation.
type ToolExecution struct {
	Name    string         `json:"name"`
	Input   map[string]any `json:"input,omitempty"`
	Result  any            `json:"result,omitempty"`
	IsError bool           `json:"is_error,omitempty"`
	Error   string         `json:"error,omitempty"`
}
