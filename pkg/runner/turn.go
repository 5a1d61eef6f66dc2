package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/switchyard-dev/switchyard/pkg/domain"
	"github.com/switchyard-dev/switchyard/pkg/ports"
)

// ToolHandler executes one tool call on behalf of a turn.
type ToolHandler func(ctx context.Context, name string, input map[string]any) (any, error)

// TurnExecutor drives one node's agent activation as a sequence of
// discrete model round-trips, so a host can pause or inspect between
// turns. It owns no state: the conversation lives in domain.TurnState and
// survives checkpoints.
type TurnExecutor struct {
	client   ports.ModelClient
	maxTurns int
	logger   *slog.Logger
}

// NewTurnExecutor builds a turn executor. maxTurns bounds runaway
// tool-use loops independent of the node-invocation limit.
func NewTurnExecutor(client ports.ModelClient, maxTurns int, logger *slog.Logger) *TurnExecutor {
	if maxTurns <= 0 {
		maxTurns = domain.DefaultLimits().MaxTurns
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &TurnExecutor{client: client, maxTurns: maxTurns, logger: logger}
}

// InitializeConversation seeds the conversation for an invoke_llm effect.
func (e *TurnExecutor) InitializeConversation(effect domain.Effect) *domain.TurnState {
	prompt := effect.Prompt
	if prompt == "" {
		prompt = fmt.Sprintf("You are at node %q. Decide how to proceed using the available tools.", effect.Node)
	}
	return &domain.TurnState{
		PathID:         effect.PathID,
		NodeName:       effect.Node,
		Conversation:   []domain.Message{domain.TextMessage(domain.RoleUser, prompt)},
		SystemPrompt:   effect.SystemPrompt,
		ModelID:        effect.ModelID,
		WaitingForTurn: true,
	}
}

// TurnOutcome is the result of one ExecuteTurn call.
type TurnOutcome struct {
	IsComplete bool
	Text       string
	Turn       *domain.TurnState
}

// ExecuteTurn performs exactly one model call, executes any tool
// invocations sequentially (tool calls within a turn are never
// parallelized, keeping context-write ordering deterministic), and appends
// the results to the conversation. The turn is complete when the model
// issues no tool calls or when decided reports a transition was chosen.
func (e *TurnExecutor) ExecuteTurn(ctx context.Context, turn *domain.TurnState, tools []domain.ToolDefinition, call ToolHandler, decided func() bool) (*TurnOutcome, error) {
	if e.client == nil {
		return nil, fmt.Errorf("node %q requires an agent decision but no model client is configured", turn.NodeName)
	}

	turn.TurnCount++
	if turn.TurnCount > e.maxTurns {
		e.logger.Error("turn limit exceeded", "node", turn.NodeName, "turns", turn.TurnCount, "limit", e.maxTurns)
		return nil, &domain.TurnLimitError{Node: turn.NodeName, Turns: turn.TurnCount, Limit: e.maxTurns}
	}

	resp, err := e.client.InvokeWithTools(ctx, domain.ModelRequest{
		Messages:     turn.Conversation,
		Tools:        tools,
		SystemPrompt: turn.SystemPrompt,
		Model:        turn.ModelID,
	})
	if err != nil {
		return nil, fmt.Errorf("model call for node %q: %w", turn.NodeName, err)
	}

	turn.Conversation = append(turn.Conversation, domain.Message{
		Role:    domain.RoleAssistant,
		Content: resp.Content,
	})

	uses := resp.ToolUses()
	if len(uses) == 0 {
		turn.WaitingForTurn = false
		return &TurnOutcome{IsComplete: true, Text: resp.TextContent(), Turn: turn}, nil
	}

	var results []domain.ContentBlock
	for _, use := range uses {
		output, callErr := call(ctx, use.Name, use.Input)
		if callErr != nil {
			e.logger.Warn("tool call failed", "node", turn.NodeName, "tool", use.Name, "err", callErr)
			results = append(results, domain.ToolResultBlock(use.ID, callErr.Error(), true))
			continue
		}
		results = append(results, domain.ToolResultBlock(use.ID, renderToolResult(output), false))
	}
	turn.Conversation = append(turn.Conversation, domain.Message{
		Role:    domain.RoleUser,
		Content: results,
	})

	if decided != nil && decided() {
		turn.WaitingForTurn = false
		return &TurnOutcome{IsComplete: true, Text: resp.TextContent(), Turn: turn}, nil
	}
	return &TurnOutcome{IsComplete: false, Text: resp.TextContent(), Turn: turn}, nil
}

func renderToolResult(output any) string {
	switch t := output.(type) {
	case nil:
		return "ok"
	case string:
		return t
	}
	raw, err := json.Marshal(output)
	if err != nil {
		return fmt.Sprintf("%v", output)
	}
	return string(raw)
}
