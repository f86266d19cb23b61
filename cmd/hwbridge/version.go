package main

import (
	"fmt"

	"github.com/spf13/cobra"

	enginebridge "github.com/wippyai/engine-bridge"
)

const hwbridgeVersion = "0.1.0"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show hwbridge version and the engine protocol it speaks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "hwbridge version %s\n", hwbridgeVersion)
			fmt.Fprintf(cmd.OutOrStdout(), "engine protocol: %d\n", enginebridge.ProtocolVersion)
			return nil
		},
	}
}
