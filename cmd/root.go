// Package cmd wires the CLI: a serve command hosting the coordinator and
// its control API, and client commands (login, status, cancel) talking to a
// running coordinator over that API.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version    string
	serverAddr string
)

var rootCmd = &cobra.Command{
	Use:   "oauth2-flow-coordinator",
	Short: "OAuth authorization flow coordinator for LLM providers and MCP servers",
	Long: `oauth2-flow-coordinator drives the OAuth flows a desktop AI application
needs: Device Authorization Grant flows for LLM providers (OpenAI, GitHub
Copilot) and browser-based Authorization Code + PKCE flows for MCP servers.

The serve command hosts the coordinator behind a local HTTP control API.
The login, status, and cancel commands talk to a running coordinator:

  oauth2-flow-coordinator serve
  oauth2-flow-coordinator login provider openai
  oauth2-flow-coordinator status server docs
  oauth2-flow-coordinator cancel provider openai

Flows run in the background inside the coordinator; polling a flow never
blocks, and at most one flow is active per target at any time. Completed
flows report an opaque token reference, never the token itself.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// SetVersion sets the version for the application.
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "http://127.0.0.1:9096",
		"Base URL of the coordinator control API")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newCancelCmd())
}

// flowPath maps the CLI target kind to the control API path for its flow.
func flowPath(kind, id string) (string, error) {
	switch kind {
	case "provider":
		return fmt.Sprintf("/v1/providers/%s/flow", id), nil
	case "server":
		return fmt.Sprintf("/v1/servers/%s/flow", id), nil
	default:
		return "", fmt.Errorf("unknown target kind '%s', must be 'provider' or 'server'", kind)
	}
}
