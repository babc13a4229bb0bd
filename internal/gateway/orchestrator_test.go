package gateway

import (
	"context"
	"fmt"
	"testing"

	"cottbot/internal/tools"
	"cottbot/internal/types"
)

// scriptedClient replays canned completion results and records the
// transcript it was called with.
type scriptedClient struct {
	responses []*types.CompletionResult
	err       error
	calls     [][]types.ConversationMessage
}

func (c *scriptedClient) Complete(ctx context.Context, model string, messages []types.ConversationMessage, defs []types.ToolDefinition) (*types.CompletionResult, error) {
	snapshot := make([]types.ConversationMessage, len(messages))
	copy(snapshot, messages)
	c.calls = append(c.calls, snapshot)

	if c.err != nil {
		return nil, c.err
	}
	idx := len(c.calls) - 1
	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	}
	return c.responses[idx], nil
}

func toolCallResponse(text string, calls ...types.ToolCall) *types.CompletionResult {
	return &types.CompletionResult{
		Text:      text,
		ToolCalls: calls,
		Usage:     types.UsageMetadata{PromptTokens: 100, CompletionTokens: 20},
	}
}

func staticTool(name, result string) *tools.Tool {
	return &tools.Tool{
		Name:        name,
		Description: "returns a fixed answer",
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return result, nil
		},
	}
}

func userTurn(text string) []types.ConversationMessage {
	return []types.ConversationMessage{types.TextMessage(types.RoleUser, text)}
}

func TestRunReturnsFinalText(t *testing.T) {
	client := &scriptedClient{responses: []*types.CompletionResult{
		{Text: "the answer", Usage: types.UsageMetadata{PromptTokens: 50, CompletionTokens: 10}},
	}}
	orch := NewOrchestrator(client, tools.NewRegistry(), 5)

	text, snap, err := orch.Run(context.Background(), "moonshotai/kimi-k2", userTurn("question"))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if text != "the answer" {
		t.Errorf("text = %q", text)
	}
	if snap.PromptTokens != 50 || snap.CompletionTokens != 10 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.Cost <= 0 {
		t.Errorf("cost = %v, want > 0", snap.Cost)
	}
	if len(client.calls) != 1 {
		t.Errorf("completion calls = %d, want 1", len(client.calls))
	}
}

func TestRunToolRoundTrip(t *testing.T) {
	client := &scriptedClient{responses: []*types.CompletionResult{
		toolCallResponse("", types.ToolCall{ID: "call_1", Name: "lookup", RawArguments: `{"q":"x"}`}),
		{Text: "done", Usage: types.UsageMetadata{PromptTokens: 120, CompletionTokens: 15}},
	}}
	registry := tools.NewRegistry()
	registry.MustRegister(staticTool("lookup", "lookup says hi"))

	orch := NewOrchestrator(client, registry, 5)
	text, snap, err := orch.Run(context.Background(), "moonshotai/kimi-k2", userTurn("question"))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if text != "done" {
		t.Errorf("text = %q", text)
	}
	// Usage covers both completion calls.
	if snap.PromptTokens != 220 || snap.CompletionTokens != 35 {
		t.Errorf("snapshot = %+v", snap)
	}

	if len(client.calls) != 2 {
		t.Fatalf("completion calls = %d, want 2", len(client.calls))
	}
	// The second call sees the tool round-trip appended to the transcript.
	second := client.calls[1]
	if len(second) != 3 {
		t.Fatalf("second transcript length = %d, want 3", len(second))
	}
	asst := second[1]
	if asst.Role != types.RoleAssistant || len(asst.ToolCalls) != 1 || asst.ToolCalls[0].ID != "call_1" {
		t.Errorf("assistant message = %+v", asst)
	}
	toolMsg := second[2]
	if toolMsg.Role != types.RoleTool || toolMsg.ToolCallID != "call_1" || toolMsg.Text != "lookup says hi" {
		t.Errorf("tool message = %+v", toolMsg)
	}
}

func TestRunToolResultsKeepRequestOrder(t *testing.T) {
	client := &scriptedClient{responses: []*types.CompletionResult{
		toolCallResponse("",
			types.ToolCall{ID: "call_a", Name: "alpha"},
			types.ToolCall{ID: "call_b", Name: "beta"},
			types.ToolCall{ID: "call_c", Name: "gamma"},
		),
		{Text: "done"},
	}}
	registry := tools.NewRegistry()
	registry.MustRegister(staticTool("alpha", "result a"))
	registry.MustRegister(staticTool("beta", "result b"))
	registry.MustRegister(staticTool("gamma", "result c"))

	orch := NewOrchestrator(client, registry, 5)
	if _, _, err := orch.Run(context.Background(), "moonshotai/kimi-k2", userTurn("go")); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	second := client.calls[1]
	wantOrder := []string{"call_a", "call_b", "call_c"}
	toolMsgs := second[len(second)-3:]
	for i, m := range toolMsgs {
		if m.ToolCallID != wantOrder[i] {
			t.Errorf("tool message %d keyed %q, want %q", i, m.ToolCallID, wantOrder[i])
		}
	}
}

func TestRunSkipsToolCallWithoutID(t *testing.T) {
	client := &scriptedClient{responses: []*types.CompletionResult{
		toolCallResponse("",
			types.ToolCall{Name: "alpha"}, // no invocation ID
			types.ToolCall{ID: "call_b", Name: "beta"},
		),
		{Text: "done"},
	}}
	registry := tools.NewRegistry()
	registry.MustRegister(staticTool("alpha", "result a"))
	registry.MustRegister(staticTool("beta", "result b"))

	orch := NewOrchestrator(client, registry, 5)
	if _, _, err := orch.Run(context.Background(), "moonshotai/kimi-k2", userTurn("go")); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	second := client.calls[1]
	var toolMsgs []types.ConversationMessage
	for _, m := range second {
		if m.Role == types.RoleTool {
			toolMsgs = append(toolMsgs, m)
		}
	}
	if len(toolMsgs) != 1 || toolMsgs[0].ToolCallID != "call_b" {
		t.Errorf("tool messages = %+v", toolMsgs)
	}
}

func TestRunStopsAtIterationCeiling(t *testing.T) {
	// Every response demands another tool call; the loop must stop at 5
	// completion calls and return without error.
	client := &scriptedClient{responses: []*types.CompletionResult{
		toolCallResponse("still working", types.ToolCall{ID: "call_x", Name: "loop"}),
	}}
	registry := tools.NewRegistry()
	registry.MustRegister(staticTool("loop", "keep going"))

	orch := NewOrchestrator(client, registry, 5)
	text, _, err := orch.Run(context.Background(), "moonshotai/kimi-k2", userTurn("go"))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(client.calls) != 5 {
		t.Errorf("completion calls = %d, want 5", len(client.calls))
	}
	if text != "still working" {
		t.Errorf("text = %q, want last produced text", text)
	}
}

func TestRunCompletionErrorSurfaces(t *testing.T) {
	client := &scriptedClient{err: fmt.Errorf("endpoint down")}
	orch := NewOrchestrator(client, tools.NewRegistry(), 5)

	_, _, err := orch.Run(context.Background(), "moonshotai/kimi-k2", userTurn("go"))
	if err == nil {
		t.Fatal("expected error")
	}
	if len(client.calls) != 1 {
		t.Errorf("completion calls = %d, want 1 (no retry)", len(client.calls))
	}
}
