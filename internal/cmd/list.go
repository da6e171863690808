package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/termwright/termwright/internal/socketdir"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List running sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := socketdir.List()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No running sessions.")
				return nil
			}
			for _, e := range entries {
				resp, err := request(e.Name, "status", nil)
				if err != nil || resp.Error != nil {
					fmt.Printf("  \033[31m✗\033[0m %s (not responding)\n", e.Name)
					continue
				}
				fmt.Printf("  \033[32m●\033[0m %s\n", e.Name)
			}
			return nil
		},
	}
}
