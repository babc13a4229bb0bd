// Package gateway is the message-to-completion pipeline: context assembly,
// the iterative tool-call loop, and the service that strings the stages
// together for one trigger event.
package gateway

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"cottbot/internal/logging"
	"cottbot/internal/tokens"
	"cottbot/internal/types"
)

// ErrNothingToRespond signals that the assembled context carries no user
// content, so no completion call should be made.
var ErrNothingToRespond = errors.New("nothing to respond to")

const attachmentPlaceholder = "[Message with attachments]"

// BuildInput is everything the builder needs for one trigger event.
type BuildInput struct {
	// History is the raw recent channel history, any order.
	History []types.ChatMessage

	// Trigger is the message addressed to the bot.
	Trigger types.ChatMessage

	// SystemPrompt is the resolved prompt text, empty when unavailable.
	SystemPrompt string

	// Descriptions are the ingestor's textual attachment renderings.
	Descriptions []string

	// ImageURLs are image attachments passed through for a vision model;
	// non-empty makes the final turn multipart.
	ImageURLs []string

	// ReplyChain marks the trigger as a reply-chain continuation, enabling
	// chain-first reordering.
	ReplyChain bool
}

// ContextBuilder assembles the bounded prompt context.
type ContextBuilder struct {
	estimator    *tokens.Estimator
	historyLimit int
	maxTokens    int
	mention      *regexp.Regexp
}

// NewContextBuilder creates a builder. selfID is the bot's own identity,
// used to strip mention tokens and may be empty.
func NewContextBuilder(estimator *tokens.Estimator, selfID string, historyLimit, maxTokens int) *ContextBuilder {
	b := &ContextBuilder{
		estimator:    estimator,
		historyLimit: historyLimit,
		maxTokens:    maxTokens,
	}
	if selfID != "" {
		b.mention = regexp.MustCompile(`<@!?` + regexp.QuoteMeta(selfID) + `>`)
	}
	return b
}

// stripMention removes the bot's mention token and trims the result.
func (b *ContextBuilder) stripMention(text string) string {
	if b.mention != nil {
		text = b.mention.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(text)
}

// Build produces the ordered prompt context for one trigger event.
func (b *ContextBuilder) Build(in BuildInput) ([]types.ConversationMessage, error) {
	history := b.prioritize(in)

	var messages []types.ConversationMessage
	if in.SystemPrompt != "" {
		messages = append(messages, types.TextMessage(types.RoleSystem, in.SystemPrompt))
	}

	for _, m := range history {
		text := b.stripMention(m.Content)
		if text == "" && len(m.Attachments) == 0 {
			continue
		}
		if m.FromBot {
			if text == "" {
				text = attachmentPlaceholder
			}
			messages = append(messages, types.TextMessage(types.RoleAssistant, text))
		} else {
			if text == "" {
				text = attachmentPlaceholder
			}
			messages = append(messages, types.TextMessage(types.RoleUser, speakerLabel(m)+": "+text))
		}
	}

	final, ok := b.finalTurn(in)
	if ok {
		messages = append(messages, final)
	}

	if len(messages) == 0 || (len(messages) == 1 && messages[0].Role == types.RoleSystem) {
		return nil, ErrNothingToRespond
	}

	estimated := b.estimator.Estimate(messages)
	logging.ContextDebug("Build: %d messages, estimated %d tokens", len(messages), estimated)
	if estimated > b.maxTokens {
		before := len(messages)
		messages = b.estimator.TrimToLimit(messages, b.maxTokens)
		logging.Context("Build: trimmed %d -> %d messages (%d -> %d tokens)",
			before, len(messages), estimated, b.estimator.Estimate(messages))
	}
	return messages, nil
}

// prioritize orders history chronologically, caps it, applies chain-first
// reordering for reply triggers, and drops the trigger itself.
func (b *ContextBuilder) prioritize(in BuildInput) []types.ChatMessage {
	history := make([]types.ChatMessage, len(in.History))
	copy(history, in.History)
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Timestamp.Before(history[j].Timestamp)
	})
	if len(history) > b.historyLimit {
		history = history[len(history)-b.historyLimit:]
	}

	if in.ReplyChain && in.Trigger.HasReference() {
		chainIDs := b.replyChain(in.Trigger.ReferenceID, history)
		if len(chainIDs) > 0 {
			byID := make(map[string]types.ChatMessage, len(history))
			inChain := make(map[string]bool, len(chainIDs))
			for _, m := range history {
				byID[m.ID] = m
			}
			for _, id := range chainIDs {
				inChain[id] = true
			}

			// Chain messages lead in walk order (replied-to first), then
			// the unrelated history in chronological order.
			reordered := make([]types.ChatMessage, 0, len(history))
			for _, id := range chainIDs {
				if m, ok := byID[id]; ok {
					reordered = append(reordered, m)
				}
			}
			for _, m := range history {
				if !inChain[m.ID] {
					reordered = append(reordered, m)
				}
			}
			history = reordered
		}
	}

	kept := history[:0]
	for _, m := range history {
		if m.ID != in.Trigger.ID {
			kept = append(kept, m)
		}
	}
	return kept
}

// replyChain walks reference links backward from startID through the
// capped history, returning visited IDs in walk order. The walk is bounded
// by the history limit and a visited set, so missing or cyclic references
// terminate it silently.
func (b *ContextBuilder) replyChain(startID string, history []types.ChatMessage) []string {
	byID := make(map[string]types.ChatMessage, len(history))
	for _, m := range history {
		byID[m.ID] = m
	}

	visited := make(map[string]bool)
	var chain []string
	currentID := startID
	for currentID != "" && len(chain) < b.historyLimit {
		visited[currentID] = true
		chain = append(chain, currentID)
		m, ok := byID[currentID]
		if !ok || !m.HasReference() || visited[m.ReferenceID] {
			break
		}
		currentID = m.ReferenceID
	}
	return chain
}

// finalTurn composes the triggering user message. The second return is
// false when there is nothing to say at all.
func (b *ContextBuilder) finalTurn(in BuildInput) (types.ConversationMessage, bool) {
	text := b.stripMention(in.Trigger.Content)

	formatted := speakerLabel(in.Trigger) + ":"
	if text != "" {
		formatted += " " + text
	}
	if len(in.Descriptions) > 0 {
		formatted += "\n\n" + strings.Join(in.Descriptions, "\n\n")
	}
	formatted = strings.TrimSpace(formatted)

	if len(in.ImageURLs) > 0 {
		turnText := formatted
		if turnText == "" {
			turnText = "Please analyze these images."
		}
		parts := make([]types.ContentPart, 0, len(in.ImageURLs)+1)
		parts = append(parts, types.TextPart(turnText))
		for _, url := range in.ImageURLs {
			parts = append(parts, types.ImagePart(url))
		}
		return types.ConversationMessage{Role: types.RoleUser, Parts: parts}, true
	}

	if text == "" && len(in.Descriptions) == 0 {
		return types.ConversationMessage{}, false
	}
	return types.TextMessage(types.RoleUser, formatted), true
}

// speakerLabel renders a stable "DisplayName (id)" prefix so the model can
// tell speakers apart in multi-party channels.
func speakerLabel(m types.ChatMessage) string {
	name := m.AuthorName
	if name == "" {
		name = m.AuthorID
	}
	return fmt.Sprintf("%s (%s)", name, m.AuthorID)
}
