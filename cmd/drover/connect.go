package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/drover-ai/drover/internal/channel"
	"github.com/drover-ai/drover/internal/tools"
)

var (
	connectURL    string
	connectAPIKey string
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect this machine to a drover server as an executor",
	Long: `Connect opens the duplex channel to a running drover server. Tool calls
made by the server's workers execute here, in the current directory, and
chat input typed here is answered by the server's orchestrator.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConnect(cmd)
	},
}

func init() {
	connectCmd.Flags().StringVar(&connectURL, "url", "ws://127.0.0.1:8750/channel", "server channel endpoint")
	connectCmd.Flags().StringVar(&connectAPIKey, "api-key", "", "API key (defaults to DROVER_API_KEY)")
}

func runConnect(cmd *cobra.Command) error {
	apiKey := connectAPIKey
	if apiKey == "" {
		apiKey = os.Getenv("DROVER_API_KEY")
	}
	if apiKey == "" {
		return fmt.Errorf("no API key: pass --api-key or set DROVER_API_KEY")
	}

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := channel.Connect(ctx, channel.ClientConfig{
		URL:      connectURL,
		APIKey:   apiKey,
		ClientID: uuid.NewString(),
		WorkDir:  workDir,
		Registry: tools.NewRegistry(cfg.Channel.LocalOnlyTools...),
	})
	if err != nil {
		return err
	}
	defer client.Close()

	if err := channel.SaveCredentials(channel.CredentialsPath(), client.Snapshot(connectURL)); err != nil {
		fmt.Fprintf(os.Stderr, "%s could not save credentials: %v\n", color.YellowString("⚠"), err)
	}

	fmt.Printf("%s connected, session %s, executing in %s\n",
		color.GreenString("✓"), client.SessionID(), workDir)

	runErr := make(chan error, 1)
	go func() { runErr <- client.Run(ctx) }()

	go func() {
		prompt := color.New(color.FgCyan, color.Bold)
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for {
			prompt.Print("> ")
			if !scanner.Scan() {
				return
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "exit" || line == "quit" {
				stop()
				return
			}
			out, err := client.Chat(ctx, line)
			if err != nil {
				fmt.Printf("%s %v\n", color.RedString("✗"), err)
				continue
			}
			fmt.Println(out)
		}
	}()

	select {
	case err := <-runErr:
		if err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	case <-ctx.Done():
		return nil
	}
}
