package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/termwright/termwright/internal/protocol"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the termwrightd and protocol version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("termwrightd %s (protocol %d)\n", protocol.TermwrightVersion, protocol.Version)
			return nil
		},
	}
}
