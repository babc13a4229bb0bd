// Package tokens approximates the token cost of conversation messages so
// the context builder can enforce an input budget without a real tokenizer.
// The heuristic is ~4 characters per token plus fixed per-message overhead.
package tokens

import (
	"fmt"
	"strings"

	"cottbot/internal/types"
)

const (
	charsPerToken = 4

	// contentOverhead covers message framing around the content itself.
	contentOverhead = 10

	// messageOverhead covers role and structural fields per message.
	messageOverhead = 5

	// toolCallOverhead is added per tool-call entry on a message.
	toolCallOverhead = 20
)

// Estimator estimates token counts for message sequences.
type Estimator struct{}

// New returns an estimator with the default calibration.
func New() *Estimator {
	return &Estimator{}
}

// EstimateText approximates the tokens in a single string.
func (e *Estimator) EstimateText(text string) int {
	if text == "" {
		return 0
	}
	return (len(text)+charsPerToken-1)/charsPerToken + contentOverhead
}

// EstimateMessage approximates the tokens one message contributes.
// Multipart content is serialized to a canonical string form before
// measuring.
func (e *Estimator) EstimateMessage(msg types.ConversationMessage) int {
	total := 0
	if content := serializeContent(msg); content != "" {
		total += e.EstimateText(content)
	}
	total += messageOverhead
	total += len(msg.ToolCalls) * toolCallOverhead
	return total
}

// Estimate approximates the total tokens of a message sequence.
func (e *Estimator) Estimate(messages []types.ConversationMessage) int {
	total := 0
	for _, msg := range messages {
		total += e.EstimateMessage(msg)
	}
	return total
}

// TrimToLimit returns a subsequence of messages whose estimated total stays
// within limit. The (at most one) system message is always retained and
// placed first; its cost counts against the budget. The remaining messages
// are walked newest to oldest, keeping each message only while the running
// total stays within limit, and stopping at the first message that would
// exceed it. The result is therefore the system message followed by a
// contiguous suffix of the non-system messages, order preserved.
func (e *Estimator) TrimToLimit(messages []types.ConversationMessage, limit int) []types.ConversationMessage {
	var system *types.ConversationMessage
	others := make([]types.ConversationMessage, 0, len(messages))
	for i := range messages {
		if messages[i].Role == types.RoleSystem && system == nil {
			system = &messages[i]
			continue
		}
		others = append(others, messages[i])
	}

	current := 0
	trimmed := make([]types.ConversationMessage, 0, len(messages))
	if system != nil {
		trimmed = append(trimmed, *system)
		current = e.EstimateMessage(*system)
	}

	kept := make([]types.ConversationMessage, 0, len(others))
	for i := len(others) - 1; i >= 0; i-- {
		cost := e.EstimateMessage(others[i])
		if current+cost > limit {
			break
		}
		kept = append(kept, others[i])
		current += cost
	}

	// kept is newest-first; restore chronological order.
	for i := len(kept) - 1; i >= 0; i-- {
		trimmed = append(trimmed, kept[i])
	}
	return trimmed
}

// serializeContent renders a message's content as the canonical string used
// for length measurement.
func serializeContent(msg types.ConversationMessage) string {
	if !msg.IsMultipart() {
		return msg.Text
	}
	var sb strings.Builder
	for i, part := range msg.Parts {
		if i > 0 {
			sb.WriteByte('\n')
		}
		switch part.Type {
		case "text":
			sb.WriteString(part.Text)
		case "image_url":
			fmt.Fprintf(&sb, "[image: %s]", part.ImageURL)
		}
	}
	return sb.String()
}
