package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/termwright/termwright/internal/socketdir"
)

// socketPathFor resolves a session name to its socket path, giving a
// clearer error than a raw dial failure when the name is unknown.
func socketPathFor(name string) (string, error) {
	path, err := socketdir.Find(name)
	if err != nil {
		return "", fmt.Errorf("no session named %q (it may have exited)", name)
	}
	return path, nil
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <name>",
		Short: "Query a session's exit status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := request(args[0], "status", nil)
			if err != nil {
				return err
			}
			if resp.Error != nil {
				return fatalf("status: %s", resp.Error.Message)
			}
			out, err := json.Marshal(resp.Result)
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	return cmd
}
