package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/drover-ai/drover/internal/auth"
	"github.com/drover-ai/drover/internal/channel"
	"github.com/drover-ai/drover/internal/config"
	"github.com/drover-ai/drover/internal/inference"
	"github.com/drover-ai/drover/internal/memory"
	"github.com/drover-ai/drover/internal/orchestrator"
	"github.com/drover-ai/drover/internal/planner"
	"github.com/drover-ai/drover/internal/regulator"
	"github.com/drover-ai/drover/internal/session"
	"github.com/drover-ai/drover/internal/tools"
	"github.com/drover-ai/drover/internal/worker"
	"github.com/drover-ai/drover/pkg/models"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the channel listener for remote executors",
	Long: `Serve accepts websocket connections from remote executors, authenticates
them against the configured API key allowlist, and binds each connection
to a session. Chat requests arrive over the same channel; tool calls the
workers make are sent back to the connected executor.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func runServe(cmd *cobra.Command) error {
	// Startup fails hard on invalid auth configuration; an open
	// listener with no allowlist would accept nobody or anybody.
	guard, err := auth.NewGuard(auth.Config{
		APIKeys:         cfg.Auth.APIKeys,
		SigningSecret:   cfg.Auth.SigningSecret,
		AccessTokenTTL:  cfg.Auth.AccessTokenTTL,
		RefreshTokenTTL: cfg.Auth.RefreshTokenTTL,
	})
	if err != nil {
		return fmt.Errorf("auth configuration: %w", err)
	}

	apiKey, err := config.GetAPIKey(cfg)
	if err != nil && !cfg.Anthropic.UseBedrock {
		return err
	}
	client, err := inference.NewClient(inference.ClientConfig{
		APIKey:     apiKey,
		UseBedrock: cfg.Anthropic.UseBedrock,
		AWSRegion:  cfg.Anthropic.AWSRegion,
		AWSProfile: cfg.Anthropic.AWSProfile,
		MaxRetries: cfg.Anthropic.MaxRetries,
	})
	if err != nil {
		return fmt.Errorf("inference client: %w", err)
	}

	memoryPath := cfg.Memory.Path
	if memoryPath == "" {
		memoryPath = memory.DefaultPath()
	}
	var memoryFor func(subject string) *memory.ToolHandler
	var recall func(ctx context.Context, subject, query string) string
	if store, err := memory.Open(memoryPath); err == nil {
		defer store.Close()
		memoryFor = func(subject string) *memory.ToolHandler {
			return memory.NewToolHandler(store, subject)
		}
		recall = memoryRecall(store)
	}

	registry := tools.NewRegistry(cfg.Channel.LocalOnlyTools...)
	sessions := session.NewManager()

	// No local executor on the server side: local-only tools always
	// cross the channel to the session's connected executor.
	router := channel.NewRouter(channel.RouterConfig{
		Registry:      registry,
		MemoryFor:     memoryFor,
		InvokeTimeout: cfg.Channel.InvokeTimeout,
	})

	kinds, err := worker.LoadKinds()
	if err != nil {
		return err
	}
	kinds.CapIterations(cfg.Workers.MaxIterations)

	orch := orchestrator.New(orchestrator.Config{
		Regulator:   regulator.New(cfg.Workers.MaxConcurrent, cfg.Workers.AcquireTimeout),
		Planner:     planner.New(client, anthropic.Model(cfg.Models.Complex), kinds.Names()),
		Runtime:     worker.NewRuntime(client, registry, router, kinds),
		ModelFor:    func(c models.Complexity) string { return cfg.ModelFor(string(c)) },
		MaxRounds:   cfg.Supervision.MaxRounds,
		TaskTimeout: cfg.Workers.TaskTimeout,
		Recall:      recall,
		Compactor:   client,
	})
	go drainEvents(orch.Events())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	maxIdle := cfg.Channel.SessionIdleTimeout
	if maxIdle <= 0 {
		maxIdle = 30 * time.Minute
	}
	go sweepSessions(ctx, sessions, maxIdle)

	srv := channel.NewServer(guard, sessions, orch)
	fmt.Printf("%s listening on %s\n", color.GreenString("✓"), cfg.Channel.ListenAddr)
	return srv.ListenAndServe(ctx, cfg.Channel.ListenAddr)
}

// sweepSessions destroys sessions that pass the idle timeout. Explicit
// disconnects are handled by the channel server; this catches sessions
// whose executor went quiet without closing.
func sweepSessions(ctx context.Context, sessions *session.Manager, maxIdle time.Duration) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions.Sweep(maxIdle)
		}
	}
}

// drainEvents keeps the emitter from backing up; server progress goes
// to the log, not stdout.
func drainEvents(events <-chan orchestrator.Event) {
	for range events {
	}
}
