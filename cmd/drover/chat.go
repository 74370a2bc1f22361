package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

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

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive session in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd)
	},
}

func runChat(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	memoryPath := cfg.Memory.Path
	if memoryPath == "" {
		memoryPath = memory.DefaultPath()
	}
	var memoryFor func(subject string) *memory.ToolHandler
	var recall func(ctx context.Context, subject, query string) string
	store, err := memory.Open(memoryPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s memory store unavailable: %v\n", color.YellowString("⚠"), err)
	} else {
		defer store.Close()
		memoryFor = func(subject string) *memory.ToolHandler {
			return memory.NewToolHandler(store, subject)
		}
		recall = memoryRecall(store)
	}

	registry := tools.NewRegistry(cfg.Channel.LocalOnlyTools...)
	sessions := session.NewManager()
	sess := sessions.Create(workDir)

	router := channel.NewRouter(channel.RouterConfig{
		Registry:      registry,
		Local:         tools.NewExecutor(workDir),
		MemoryFor:     memoryFor,
		Session:       sess,
		InvokeTimeout: cfg.Channel.InvokeTimeout,
	})

	kinds, err := worker.LoadKinds()
	if err != nil {
		return err
	}
	kinds.CapIterations(cfg.Workers.MaxIterations)
	runtime := worker.NewRuntime(client, registry, router, kinds)

	ctrl, err := orchestrator.NewController(config.DataDir())
	if err != nil {
		return fmt.Errorf("control watcher: %w", err)
	}
	defer ctrl.Close()
	ctrl.Clear()

	orch := orchestrator.New(orchestrator.Config{
		Regulator:   regulator.New(cfg.Workers.MaxConcurrent, cfg.Workers.AcquireTimeout),
		Planner:     planner.New(client, anthropic.Model(cfg.Models.Complex), kinds.Names()),
		Runtime:     runtime,
		ModelFor:    func(c models.Complexity) string { return cfg.ModelFor(string(c)) },
		MaxRounds:   cfg.Supervision.MaxRounds,
		TaskTimeout: cfg.Workers.TaskTimeout,
		Control:     ctrl,
		Recall:      recall,
		Compactor:   client,
	})
	go renderEvents(orch.Events())

	if cfg.Transcripts.Enabled {
		writer := session.NewTranscriptWriter(cfg.Transcripts.Dir)
		defer func() {
			if path, err := writer.Write(sess); err == nil {
				if store != nil {
					store.IndexTranscript(context.Background(), sess.MemoryKey, path)
				}
				fmt.Printf("%s transcript saved to %s\n", color.GreenString("✓"), path)
			}
		}()
	}

	fmt.Printf("drover %s session in %s (exit to quit)\n", color.CyanString("chat"), workDir)

	prompt := color.New(color.FgCyan, color.Bold)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		prompt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		start := time.Now()
		out, err := orch.HandleChat(ctx, sess, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Printf("%s %v\n", color.RedString("✗"), err)
			continue
		}
		fmt.Println(out)
		in, tokOut := client.Tracker().Total()
		fmt.Printf("%s\n", color.New(color.Faint).Sprintf("(%s, %d tokens)",
			time.Since(start).Round(time.Millisecond), in+tokOut))
	}
	return scanner.Err()
}

// memoryRecall builds the hook that surfaces stored facts when a
// session starts.
func memoryRecall(store *memory.Store) func(ctx context.Context, subject, query string) string {
	return func(ctx context.Context, subject, query string) string {
		entries, err := store.Search(ctx, subject, query, 5)
		if err != nil || len(entries) == 0 {
			return ""
		}
		var b strings.Builder
		for _, e := range entries {
			b.WriteString("- " + e.Content + "\n")
		}
		return strings.TrimRight(b.String(), "\n")
	}
}

// renderEvents prints progress lines as the orchestrator works.
func renderEvents(events <-chan orchestrator.Event) {
	dim := color.New(color.Faint)
	for ev := range events {
		switch ev.Type {
		case orchestrator.EventRouted:
			dim.Printf("  routed as %s (%s)\n", ev.Intent, ev.Message)
		case orchestrator.EventPlanCreated:
			dim.Printf("  plan: %s\n", ev.Message)
		case orchestrator.EventStepStarted:
			dim.Printf("  ▸ %s\n", ev.StepTitle)
		case orchestrator.EventStepDone:
			fmt.Printf("  %s %s\n", color.GreenString("✓"), ev.StepTitle)
		case orchestrator.EventStepFailed:
			fmt.Printf("  %s %s\n", color.RedString("✗"), ev.StepTitle)
		case orchestrator.EventSupervision:
			fmt.Printf("  %s %s\n", color.YellowString("↻"), ev.Message)
		}
	}
}
