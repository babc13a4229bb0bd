package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cottbot/internal/config"
	"cottbot/internal/gateway"
	"cottbot/internal/ingest"
	"cottbot/internal/logging"
	"cottbot/internal/openrouter"
	"cottbot/internal/prompt"
	"cottbot/internal/ratelimit"
	"cottbot/internal/store"
	"cottbot/internal/tokens"
	"cottbot/internal/tools"
	"cottbot/internal/types"
	"cottbot/internal/usage"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	askUserID   string
	askUserName string
)

// askCmd sends a single message through the full gateway pipeline.
var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Send one message through the gateway pipeline",
	Long: `Runs a single message through the full pipeline: ban check, spam
heuristics, rate limit, preference lookup, prompt resolution, context
assembly and the tool-calling completion loop. Prints the reply plus a
usage footer.

Example:
  cottbot ask --user alice "what is the bitcoin price?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askUserID, "user", "cli", "User identity for preferences and rate limiting")
	askCmd.Flags().StringVar(&askUserName, "name", "", "Display name (defaults to the user identity)")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	svc, db, tracker, watcher, err := buildService(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer logging.CloseAll()
	if watcher != nil {
		defer watcher.Stop()
	}
	if tracker != nil {
		defer func() {
			if err := tracker.Save(); err != nil {
				logger.Warn("failed to save usage stats", zap.Error(err))
			}
		}()
	}

	name := askUserName
	if name == "" {
		name = askUserID
	}
	msg := types.ChatMessage{
		ID:         fmt.Sprintf("cli-%d", time.Now().UnixNano()),
		AuthorID:   askUserID,
		AuthorName: name,
		Content:    strings.Join(args, " "),
		Timestamp:  time.Now(),
	}

	reply, err := svc.Handle(ctx, gateway.Trigger{
		Message: msg,
		History: []types.ChatMessage{msg},
	})
	if err != nil {
		return err
	}

	fmt.Println(reply.Text)
	if !reply.Refusal {
		fmt.Printf("\n-- %s | %s | %d tokens | %s\n",
			reply.ModelName, reply.PromptName, reply.TotalTokens, reply.Cost)
	}
	return nil
}

// buildService wires the pipeline from config. The caller owns the returned
// store, tracker and watcher lifetimes.
func buildService(ctx context.Context, cfg *config.Config) (*gateway.Service, *store.Store, *usage.Tracker, *prompt.Watcher, error) {
	logSettings := logging.Settings{
		DebugMode:  cfg.Logging.DebugMode || verbose,
		Level:      cfg.Logging.Level,
		Categories: cfg.Logging.Categories,
	}
	if err := logging.Initialize(cfg.Bot.DataDir, logSettings); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	resolver := prompt.NewResolver(cfg.Prompts.Dir)
	watcher, err := prompt.NewWatcher(cfg.Prompts.Dir, resolver)
	if err != nil {
		logger.Warn("prompt hot-reload disabled", zap.Error(err))
		watcher = nil
	} else if err := watcher.Start(ctx); err != nil {
		logger.Warn("prompt hot-reload disabled", zap.Error(err))
		watcher = nil
	}

	timeout, err := cfg.RequestTimeout()
	if err != nil {
		db.Close()
		return nil, nil, nil, nil, err
	}
	client := openrouter.NewClient(openrouter.Config{
		APIKey:   cfg.OpenRouter.APIKey,
		BaseURL:  cfg.OpenRouter.BaseURL,
		Timeout:  timeout,
		SiteURL:  cfg.OpenRouter.SiteURL,
		SiteName: cfg.OpenRouter.SiteName,
	})

	registry := tools.NewRegistry()
	registry.MustRegister(tools.NewWebSearch().Tool())

	limiter := ratelimit.New(cfg.RateLimitWindow(), cfg.SweepHorizon())
	limiter.StartSweeper(ctx, cfg.SweepHorizon())

	tracker, err := usage.NewTracker(cfg.Bot.DataDir)
	if err != nil {
		logger.Warn("usage tracking disabled", zap.Error(err))
		tracker = nil
	}

	svc := gateway.NewService(
		db,
		db,
		resolver,
		limiter,
		ingest.New(client),
		gateway.NewContextBuilder(tokens.New(), cfg.Bot.SelfID, cfg.Limits.HistoryLimit, cfg.Limits.MaxInputTokens),
		gateway.NewOrchestrator(client, registry, cfg.Limits.MaxIterations),
		tracker,
	)
	return svc, db, tracker, watcher, nil
}
