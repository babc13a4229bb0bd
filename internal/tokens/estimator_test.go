package tokens

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"cottbot/internal/types"
)

func TestEstimateText(t *testing.T) {
	e := New()

	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"one char rounds up", "a", 1 + 10},
		{"exact multiple", strings.Repeat("x", 8), 2 + 10},
		{"rounds up", strings.Repeat("x", 9), 3 + 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.EstimateText(tt.text); got != tt.want {
				t.Errorf("EstimateText(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestEstimateMessageOverheads(t *testing.T) {
	e := New()

	plain := types.TextMessage(types.RoleUser, strings.Repeat("x", 40))
	// ceil(40/4)+10 content, +5 message overhead
	if got, want := e.EstimateMessage(plain), 10+10+5; got != want {
		t.Errorf("plain message = %d, want %d", got, want)
	}

	withTools := plain
	withTools.ToolCalls = []types.ToolCall{
		{ID: "call_1", Name: "search_web"},
		{ID: "call_2", Name: "search_web"},
	}
	if got, want := e.EstimateMessage(withTools), 10+10+5+2*20; got != want {
		t.Errorf("message with tool calls = %d, want %d", got, want)
	}

	empty := types.TextMessage(types.RoleAssistant, "")
	if got, want := e.EstimateMessage(empty), 5; got != want {
		t.Errorf("empty message = %d, want %d (flat overhead only)", got, want)
	}
}

func TestEstimateMultipartSerializes(t *testing.T) {
	e := New()

	msg := types.ConversationMessage{
		Role: types.RoleUser,
		Parts: []types.ContentPart{
			types.TextPart("look at this"),
			types.ImagePart("https://cdn.example/cat.png"),
		},
	}
	// Serialized form is non-empty, so the estimate must exceed the flat
	// per-message overhead and be stable across calls.
	got := e.EstimateMessage(msg)
	if got <= 5 {
		t.Errorf("multipart estimate = %d, want > flat overhead", got)
	}
	if again := e.EstimateMessage(msg); again != got {
		t.Errorf("estimate unstable: %d vs %d", again, got)
	}
}

func TestTrimToLimitKeepsSystemFirst(t *testing.T) {
	e := New()

	messages := []types.ConversationMessage{
		types.TextMessage(types.RoleSystem, "be concise"),
		types.TextMessage(types.RoleUser, strings.Repeat("a", 400)),
		types.TextMessage(types.RoleAssistant, strings.Repeat("b", 400)),
		types.TextMessage(types.RoleUser, "newest"),
	}

	got := e.TrimToLimit(messages, 40)
	if len(got) == 0 || got[0].Role != types.RoleSystem {
		t.Fatalf("system message must be element 0, got %+v", got)
	}
	// Budget fits system + newest only.
	want := []types.ConversationMessage{
		types.TextMessage(types.RoleSystem, "be concise"),
		types.TextMessage(types.RoleUser, "newest"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("TrimToLimit mismatch (-want +got):\n%s", diff)
	}
}

func TestTrimToLimitStopsAtFirstOverflow(t *testing.T) {
	e := New()

	// Middle message is huge; the older small message would fit, but the
	// walk stops at the first overflow so only a contiguous suffix remains.
	messages := []types.ConversationMessage{
		types.TextMessage(types.RoleUser, "tiny old"),
		types.TextMessage(types.RoleUser, strings.Repeat("x", 4000)),
		types.TextMessage(types.RoleUser, "tiny new"),
	}

	got := e.TrimToLimit(messages, 50)
	want := []types.ConversationMessage{
		types.TextMessage(types.RoleUser, "tiny new"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("TrimToLimit mismatch (-want +got):\n%s", diff)
	}
}

func TestTrimToLimitNoSystemMessage(t *testing.T) {
	e := New()

	messages := []types.ConversationMessage{
		types.TextMessage(types.RoleUser, "one"),
		types.TextMessage(types.RoleUser, "two"),
	}
	got := e.TrimToLimit(messages, 1000)
	if diff := cmp.Diff(messages, got); diff != "" {
		t.Errorf("everything should fit (-want +got):\n%s", diff)
	}
}

func TestTrimToLimitResultWithinBudget(t *testing.T) {
	e := New()

	messages := []types.ConversationMessage{
		types.TextMessage(types.RoleSystem, "sys"),
		types.TextMessage(types.RoleUser, strings.Repeat("m", 100)),
		types.TextMessage(types.RoleUser, strings.Repeat("n", 100)),
		types.TextMessage(types.RoleUser, "latest"),
	}

	limit := 60
	got := e.TrimToLimit(messages, limit)
	if e.Estimate(got) > limit {
		t.Errorf("Estimate(result) = %d exceeds limit %d", e.Estimate(got), limit)
	}
}
