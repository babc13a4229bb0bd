package gateway

import (
	"context"

	"cottbot/internal/logging"
	"cottbot/internal/pricing"
	"cottbot/internal/tools"
	"cottbot/internal/types"
	"cottbot/internal/usage"

	"golang.org/x/sync/errgroup"
)

// Orchestrator drives the completion/tool-execute loop for one trigger
// event. Terminal states: a response without tool calls, or the iteration
// ceiling; the ceiling still returns whatever text was last produced.
type Orchestrator struct {
	client        types.CompletionClient
	registry      *tools.Registry
	maxIterations int
}

// NewOrchestrator creates the loop driver.
func NewOrchestrator(client types.CompletionClient, registry *tools.Registry, maxIterations int) *Orchestrator {
	return &Orchestrator{
		client:        client,
		registry:      registry,
		maxIterations: maxIterations,
	}
}

// Run executes the loop against messages, mutating the transcript in place
// as tool round-trips happen. The returned snapshot covers every completion
// call made, including the one that failed when err is non-nil.
func (o *Orchestrator) Run(ctx context.Context, model string, messages []types.ConversationMessage) (string, usage.Snapshot, error) {
	var acc usage.Accumulator
	var lastText string
	declarations := o.registry.Declarations()

	for iteration := 1; iteration <= o.maxIterations; iteration++ {
		logging.GatewayDebug("Run: call #%d model=%s messages=%d", iteration, model, len(messages))

		result, err := o.client.Complete(ctx, model, messages, declarations)
		if err != nil {
			return "", acc.Snapshot(), err
		}
		acc.Add(result.Usage, pricing.Calculate(model, result.Usage.PromptTokens, result.Usage.CompletionTokens))
		logging.GatewayDebug("Run: response #%d prompt=%d completion=%d tool_calls=%d",
			iteration, result.Usage.PromptTokens, result.Usage.CompletionTokens, len(result.ToolCalls))

		lastText = result.Text
		if len(result.ToolCalls) == 0 {
			return result.Text, acc.Snapshot(), nil
		}

		messages = append(messages, types.ConversationMessage{
			Role:      types.RoleAssistant,
			Text:      result.Text,
			ToolCalls: result.ToolCalls,
		})
		messages = append(messages, o.executeToolCalls(ctx, result.ToolCalls)...)
	}

	logging.Gateway("Run: iteration ceiling (%d) reached for model %s", o.maxIterations, model)
	return lastText, acc.Snapshot(), nil
}

// executeToolCalls runs the calls concurrently but appends results in
// request order, preserving the model-call ordering contract. Calls without
// an invocation ID are skipped; the model gets no result message for them.
func (o *Orchestrator) executeToolCalls(ctx context.Context, calls []types.ToolCall) []types.ConversationMessage {
	results := make([]string, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		if call.ID == "" {
			logging.GatewayError("executeToolCalls: call to %s missing ID, skipped", call.Name)
			continue
		}
		i, call := i, call
		g.Go(func() error {
			logging.Tools("Executing tool: %s", call.Name)
			results[i] = o.registry.Execute(gctx, call)
			return nil
		})
	}
	g.Wait()

	var out []types.ConversationMessage
	for i, call := range calls {
		if call.ID == "" {
			continue
		}
		out = append(out, types.ConversationMessage{
			Role:       types.RoleTool,
			Text:       results[i],
			ToolCallID: call.ID,
		})
	}
	return out
}
