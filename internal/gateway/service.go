package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cottbot/internal/ingest"
	"cottbot/internal/logging"
	"cottbot/internal/models"
	"cottbot/internal/pricing"
	"cottbot/internal/prompt"
	"cottbot/internal/ratelimit"
	"cottbot/internal/spam"
	"cottbot/internal/types"
	"cottbot/internal/usage"

	"github.com/google/uuid"
)

// User-facing notices. Refusals short-circuit before any remote call.
const (
	noticeBanned        = "🚫 You are banned from using AI features."
	noticeSpamFmt       = "🚫 Your message was flagged as spam: %s"
	noticeSpamFileFmt   = "🚫 The text file `%q` was flagged as spam: %s"
	noticeRateLimitFmt  = "⏱️ Please wait %d more second(s) before sending another message."
	noticeEmptyInput    = "Please provide a message to respond to!"
	noticeNoResponse    = "Sorry, I couldn't generate a response."
	noticeTransportFail = "Sorry, an error occurred while generating a response."
)

// Reply is what the platform glue renders: either a refusal notice or the
// model's answer plus the usage metadata for an accounting embed.
type Reply struct {
	Text string

	// Refusal marks short-circuit notices; usage fields below are zero.
	Refusal bool

	ModelName        string
	PromptName       string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Cost             string
}

// Trigger is one inbound event addressed to the bot.
type Trigger struct {
	Message types.ChatMessage

	// History is the raw recent channel history including the trigger.
	History []types.ChatMessage

	// ReplyToBot marks the trigger as a reply to one of the bot's own
	// messages.
	ReplyToBot bool
}

// Service is the per-event pipeline:
// ban -> spam -> rate limit -> preferences -> prompt -> ingest -> build -> orchestrate.
type Service struct {
	bans         types.BanRegistry
	prefs        types.PreferenceStore
	prompts      types.PromptResolver
	limiter      *ratelimit.Limiter
	ingestor     *ingest.Ingestor
	builder      *ContextBuilder
	orchestrator *Orchestrator
	tracker      *usage.Tracker
}

// NewService wires the pipeline. tracker may be nil to disable persistent
// usage aggregation.
func NewService(
	bans types.BanRegistry,
	prefs types.PreferenceStore,
	prompts types.PromptResolver,
	limiter *ratelimit.Limiter,
	ingestor *ingest.Ingestor,
	builder *ContextBuilder,
	orchestrator *Orchestrator,
	tracker *usage.Tracker,
) *Service {
	return &Service{
		bans:         bans,
		prefs:        prefs,
		prompts:      prompts,
		limiter:      limiter,
		ingestor:     ingestor,
		builder:      builder,
		orchestrator: orchestrator,
		tracker:      tracker,
	}
}

func refusal(text string) *Reply {
	return &Reply{Text: text, Refusal: true}
}

// Handle runs the pipeline for one trigger event.
func (s *Service) Handle(ctx context.Context, trig Trigger) (*Reply, error) {
	msg := trig.Message
	requestID := strings.Split(uuid.NewString(), "-")[0]
	rlog := logging.WithRequestID(logging.CategoryGateway, requestID)
	timer := logging.StartTimer(logging.CategoryGateway, "Handle")
	defer timer.Stop()

	rlog.Info("Trigger from %s (%s)", msg.AuthorName, msg.AuthorID)

	banned, err := s.bans.IsBanned(msg.AuthorID)
	if err != nil {
		rlog.Error("Ban check failed: %v", err)
	}
	if banned {
		rlog.Info("User %s is banned", msg.AuthorID)
		return refusal(noticeBanned), nil
	}

	if verdict := spam.Classify(msg.Content); verdict.IsSpam {
		rlog.Info("Spam from %s: %s", msg.AuthorID, verdict.Reason)
		return refusal(fmt.Sprintf(noticeSpamFmt, verdict.Reason)), nil
	}

	if check := s.limiter.Check(msg.AuthorID); !check.Allowed {
		rlog.Info("Rate limited %s: %ds remaining", msg.AuthorID, check.RemainingSeconds)
		return refusal(fmt.Sprintf(noticeRateLimitFmt, check.RemainingSeconds)), nil
	}

	model, variant := s.userPreferences(msg.AuthorID, rlog)
	rlog.Info("Model: %s (%s), prompt: %s", models.DisplayName(model), model, variant)

	systemPrompt, err := s.prompts.Resolve(variant)
	if err != nil {
		rlog.Error("Prompt resolution failed for %s: %v", variant, err)
		systemPrompt = ""
	}

	ingested, err := s.ingestor.Ingest(ctx, msg.Attachments, model)
	if err != nil {
		var spamErr *ingest.SpamError
		if errors.As(err, &spamErr) {
			rlog.Info("Spam text file from %s: %s", msg.AuthorID, spamErr.Reason)
			return refusal(fmt.Sprintf(noticeSpamFileFmt, spamErr.FileName, spamErr.Reason)), nil
		}
		return nil, err
	}

	messages, err := s.builder.Build(BuildInput{
		History:      trig.History,
		Trigger:      msg,
		SystemPrompt: systemPrompt,
		Descriptions: ingested.Descriptions,
		ImageURLs:    ingested.ImageURLs,
		ReplyChain:   trig.ReplyToBot,
	})
	if err != nil {
		if errors.Is(err, ErrNothingToRespond) {
			return refusal(noticeEmptyInput), nil
		}
		return nil, err
	}

	finalText, snap, err := s.orchestrator.Run(ctx, model, messages)
	if err != nil {
		rlog.Error("Completion failed: %v", err)
		return refusal(noticeTransportFail), nil
	}
	if finalText == "" {
		rlog.Info("No response generated")
		return refusal(noticeNoResponse), nil
	}

	if s.tracker != nil {
		s.tracker.Record(msg.AuthorID, model, snap)
	}
	rlog.Info("Completed: %d tokens, cost %s", snap.TotalTokens(), pricing.Format(snap.Cost))

	return &Reply{
		Text:             finalText,
		ModelName:        models.DisplayName(model),
		PromptName:       prompt.DisplayName(variant),
		PromptTokens:     snap.PromptTokens,
		CompletionTokens: snap.CompletionTokens,
		TotalTokens:      snap.TotalTokens(),
		Cost:             pricing.Format(snap.Cost),
	}, nil
}

// userPreferences loads the user's model and prompt variant, degrading to
// defaults when the store misbehaves.
func (s *Service) userPreferences(userID string, rlog *logging.RequestLogger) (model, variant string) {
	prefs, err := s.prefs.Preferences(userID)
	if err != nil || prefs == nil {
		if err != nil {
			rlog.Error("Preference lookup failed for %s: %v", userID, err)
		}
		return models.DefaultModel, prompt.DefaultVariant
	}

	model = models.Normalize(prefs.Model)
	variant = prefs.PromptVariant
	if variant == "" {
		variant = prompt.DefaultVariant
	}
	return model, variant
}
