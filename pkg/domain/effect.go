package domain

// EffectType identifies the kind of side effect a step asks the host to run.
type EffectType string

const (
	// EffectInvokeAgent asks the host to drive a tool-use conversation for
	// the named node and report the agent's decision.
	EffectInvokeAgent EffectType = "invoke_llm"
	// EffectToolCall asks the host to execute a single named tool.
	EffectToolCall EffectType = "tool_call"
)

// Effect is a declarative side-effect request emitted by the pure step
// function. The engine never performs I/O itself; an effect executor
// (pkg/runner) runs effects against the real model client and tool
// registry and folds the results back in.
type Effect struct {
	Type   EffectType `json:"type"`
	PathID string     `json:"path_id"`
	Node   string     `json:"node"`

	// invoke_llm
	SystemPrompt string           `json:"system_prompt,omitempty"`
	Prompt       string           `json:"prompt,omitempty"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	ModelID      string           `json:"model_id,omitempty"`

	// tool_call
	ToolName  string         `json:"tool_name,omitempty"`
	ToolInput map[string]any `json:"tool_input,omitempty"`
}

// ContextWrite is one attribute mutation staged by a set_context_value
// call, applied to the snapshot when the agent result is folded back.
type ContextWrite struct {
	Node      string `json:"node"`
	Attribute string `json:"attribute"`
	Value     any    `json:"value"`
}

// AgentResult is what the effect executor reports back after running one
// agent activation. It is applied by path id.
type AgentResult struct {
	PathID         string          `json:"path_id"`
	Node           string          `json:"node"`
	NextNode       string          `json:"next_node,omitempty"`
	TransitionName string          `json:"transition_name,omitempty"`
	Output         string          `json:"output,omitempty"`
	Stalled        bool            `json:"stalled,omitempty"`
	ToolExecutions []ToolExecution `json:"tool_executions,omitempty"`
	ContextWrites  []ContextWrite  `json:"context_writes,omitempty"`
	Turns          int             `json:"turns,omitempty"`
}

// StepResult is the outcome of one pure step: zero or more effects to run,
// the next immutable snapshot, and the aggregate status.
type StepResult struct {
	Effects []Effect        `json:"effects,omitempty"`
	State   *ExecutionState `json:"state"`
	Status  RunStatus       `json:"status"`
}
