package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel (provider|server) <id>",
		Short: "Cancel the authorization flow for a target",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := flowPath(args[0], args[1])
			if err != nil {
				return err
			}

			if err := newAPIClient().cancelFlow(cmd.Context(), path); err != nil {
				return err
			}
			fmt.Printf("Cancelled authorization flow for %s '%s'.\n", args[0], args[1])
			return nil
		},
	}
}
