package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cottbot/internal/ingest"
	"cottbot/internal/ratelimit"
	"cottbot/internal/tokens"
	"cottbot/internal/tools"
	"cottbot/internal/types"
)

type fakeBans struct{ banned map[string]bool }

func (f *fakeBans) IsBanned(userID string) (bool, error) { return f.banned[userID], nil }

type fakePrefs struct{ prefs map[string]*types.Preferences }

func (f *fakePrefs) Preferences(userID string) (*types.Preferences, error) {
	if p, ok := f.prefs[userID]; ok {
		return p, nil
	}
	return &types.Preferences{UserID: userID, Model: "moonshotai/kimi-k2", PromptVariant: "femboy"}, nil
}
func (f *fakePrefs) SetModel(userID, modelID string) error         { return nil }
func (f *fakePrefs) SetPromptVariant(userID, variant string) error { return nil }

type fakePrompts struct{ text string }

func (f *fakePrompts) Resolve(variant string) (string, error) { return f.text, nil }

func testService(client types.CompletionClient) *Service {
	limiter := ratelimit.New(5*time.Second, 60*time.Second)
	return NewService(
		&fakeBans{banned: map[string]bool{"banned-user": true}},
		&fakePrefs{prefs: map[string]*types.Preferences{}},
		&fakePrompts{text: "be a helpful assistant"},
		limiter,
		ingest.New(client),
		NewContextBuilder(tokens.New(), testSelfID, 15, 12000),
		NewOrchestrator(client, tools.NewRegistry(), 5),
		nil,
	)
}

func trigFor(msg types.ChatMessage) Trigger {
	return Trigger{Message: msg, History: []types.ChatMessage{msg}}
}

func TestHandleBannedUserNoRemoteCall(t *testing.T) {
	client := &scriptedClient{responses: []*types.CompletionResult{{Text: "never"}}}
	svc := testService(client)

	reply, err := svc.Handle(context.Background(), trigFor(chatMsg("t", "banned-user", "hello", 1)))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !reply.Refusal || reply.Text != noticeBanned {
		t.Errorf("reply = %+v", reply)
	}
	if len(client.calls) != 0 {
		t.Errorf("remote calls = %d, want 0", len(client.calls))
	}
}

func TestHandleSpamNoRemoteCall(t *testing.T) {
	client := &scriptedClient{responses: []*types.CompletionResult{{Text: "never"}}}
	svc := testService(client)

	reply, err := svc.Handle(context.Background(), trigFor(chatMsg("t", "alice", strings.Repeat("a", 13), 1)))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	want := "🚫 Your message was flagged as spam: Repeated characters detected"
	if !reply.Refusal || reply.Text != want {
		t.Errorf("reply = %+v", reply)
	}
	if len(client.calls) != 0 {
		t.Errorf("remote calls = %d, want 0", len(client.calls))
	}
}

func TestHandleRateLimitedSecondMessage(t *testing.T) {
	client := &scriptedClient{responses: []*types.CompletionResult{{Text: "hi there"}}}
	svc := testService(client)

	first, err := svc.Handle(context.Background(), trigFor(chatMsg("t1", "alice", "hello", 1)))
	if err != nil {
		t.Fatalf("first Handle failed: %v", err)
	}
	if first.Refusal {
		t.Fatalf("first reply refused: %+v", first)
	}

	second, err := svc.Handle(context.Background(), trigFor(chatMsg("t2", "alice", "hello again", 1)))
	if err != nil {
		t.Fatalf("second Handle failed: %v", err)
	}
	if !second.Refusal || !strings.HasPrefix(second.Text, "⏱️ Please wait") {
		t.Errorf("second reply = %+v", second)
	}
}

func TestHandleSuccessCarriesUsageMetadata(t *testing.T) {
	client := &scriptedClient{responses: []*types.CompletionResult{
		{Text: "hi there", Usage: types.UsageMetadata{PromptTokens: 1000, CompletionTokens: 200}},
	}}
	svc := testService(client)

	reply, err := svc.Handle(context.Background(), trigFor(chatMsg("t", "alice", "hello", 1)))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if reply.Refusal {
		t.Fatalf("reply refused: %+v", reply)
	}
	if reply.Text != "hi there" {
		t.Errorf("Text = %q", reply.Text)
	}
	if reply.ModelName != "Kimi K2" {
		t.Errorf("ModelName = %q", reply.ModelName)
	}
	if reply.PromptName != "Femboy" {
		t.Errorf("PromptName = %q", reply.PromptName)
	}
	if reply.PromptTokens != 1000 || reply.CompletionTokens != 200 || reply.TotalTokens != 1200 {
		t.Errorf("token counts = %+v", reply)
	}
	if !strings.HasPrefix(reply.Cost, "$") {
		t.Errorf("Cost = %q", reply.Cost)
	}

	// The system prompt leads the transcript.
	transcript := client.calls[0]
	if transcript[0].Role != types.RoleSystem || transcript[0].Text != "be a helpful assistant" {
		t.Errorf("first message = %+v", transcript[0])
	}
}

func TestHandleEmptyInputRefuses(t *testing.T) {
	client := &scriptedClient{responses: []*types.CompletionResult{{Text: "never"}}}
	svc := testService(client)

	reply, err := svc.Handle(context.Background(), trigFor(chatMsg("t", "alice", "<@bot-1>", 1)))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !reply.Refusal || reply.Text != noticeEmptyInput {
		t.Errorf("reply = %+v", reply)
	}
	if len(client.calls) != 0 {
		t.Errorf("remote calls = %d, want 0", len(client.calls))
	}
}

func TestHandleTransportFailureNotice(t *testing.T) {
	client := &scriptedClient{err: context.DeadlineExceeded}
	svc := testService(client)

	reply, err := svc.Handle(context.Background(), trigFor(chatMsg("t", "alice", "hello", 1)))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !reply.Refusal || reply.Text != noticeTransportFail {
		t.Errorf("reply = %+v", reply)
	}
}

func TestHandleEmptyCompletionNotice(t *testing.T) {
	client := &scriptedClient{responses: []*types.CompletionResult{{Text: ""}}}
	svc := testService(client)

	reply, err := svc.Handle(context.Background(), trigFor(chatMsg("t", "alice", "hello", 1)))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !reply.Refusal || reply.Text != noticeNoResponse {
		t.Errorf("reply = %+v", reply)
	}
}

func TestHandleSpamTextFileNotice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("a", 250)))
	}))
	defer srv.Close()

	client := &scriptedClient{responses: []*types.CompletionResult{{Text: "never"}}}
	svc := testService(client)

	msg := chatMsg("t", "alice", "please read this", 1)
	msg.Attachments = []types.Attachment{{Name: "notes.txt", URL: srv.URL, ContentType: "text/plain"}}
	reply, err := svc.Handle(context.Background(), trigFor(msg))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	want := fmt.Sprintf("🚫 The text file `%q` was flagged as spam: %s", "notes.txt", "Repeated characters detected")
	if !reply.Refusal || reply.Text != want {
		t.Errorf("reply = %+v, want text %q", reply, want)
	}
	if len(client.calls) != 0 {
		t.Errorf("remote calls = %d, want 0", len(client.calls))
	}
}
