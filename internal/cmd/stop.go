package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <name>",
		Short: "Close a session, killing its child process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := request(args[0], "close", nil)
			if err != nil {
				return err
			}
			if resp.Error != nil {
				return fatalf("stop: %s", resp.Error.Message)
			}
			fmt.Printf("Session %q stopped.\n", args[0])
			return nil
		},
	}
}
