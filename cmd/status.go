package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status (provider|server) <id>",
		Short: "Show the current status of an authorization flow",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := flowPath(args[0], args[1])
			if err != nil {
				return err
			}

			status, err := newAPIClient().pollFlow(cmd.Context(), path)
			if err != nil {
				return err
			}

			b, err := json.MarshalIndent(status, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(b))
			return nil
		},
	}
}
