package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/matheuscscp/oauth2-flow-coordinator/internal/flows"
	"github.com/matheuscscp/oauth2-flow-coordinator/internal/registry"
)

func newLoginCmd() *cobra.Command {
	var pollInterval time.Duration

	cmd := &cobra.Command{
		Use:   "login (provider|server) <id>",
		Short: "Start an authorization flow and wait for it to finish",
		Long: `Start an authorization flow for a provider or an MCP server and poll it
until it reaches a terminal state.

Provider flows use the Device Authorization Grant: the command prints a user
code and a verification URL to complete on any device. Server flows open the
system browser for an Authorization Code + PKCE flow; if the browser does
not open, the printed URL can be visited manually.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, id := args[0], args[1]
			path, err := flowPath(kind, id)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client := newAPIClient()

			switch kind {
			case "provider":
				var start flows.ProviderFlowStart
				if err := client.startFlow(ctx, path, &start); err != nil {
					return err
				}
				fmt.Println(start.Instructions)
			case "server":
				var start flows.ServerFlowStart
				if err := client.startFlow(ctx, path, &start); err != nil {
					return err
				}
				fmt.Println("Complete the authorization in your browser.")
				fmt.Printf("If it did not open, visit:\n\n  %s\n\n", start.AuthURL)
			}

			status, err := waitForFlow(ctx, client, path, pollInterval)
			if err != nil {
				return err
			}
			return printOutcome(status)
		},
	}

	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 2*time.Second,
		"How often to poll the coordinator for flow progress")

	return cmd
}

func waitForFlow(ctx context.Context, client *apiClient, path string, interval time.Duration) (registry.Status, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			// Leave the flow running; a later status call can still pick up
			// the result.
			return registry.Status{}, ctx.Err()
		case <-ticker.C:
			status, err := client.pollFlow(ctx, path)
			if err != nil {
				return registry.Status{}, err
			}
			if status.Phase.Terminal() {
				return status, nil
			}
		}
	}
}

func printOutcome(status registry.Status) error {
	switch status.Phase {
	case registry.PhaseSucceeded:
		if status.ExpiresIn > 0 {
			fmt.Printf("Authorization succeeded. Token reference: %s (expires in %ds)\n",
				status.TokenRef, status.ExpiresIn)
		} else {
			fmt.Printf("Authorization succeeded. Token reference: %s\n", status.TokenRef)
		}
		return nil
	case registry.PhaseTimedOut:
		return fmt.Errorf("authorization timed out")
	default:
		return fmt.Errorf("authorization failed: %s", status.Message)
	}
}
