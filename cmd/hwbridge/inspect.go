package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	enginebridge "github.com/wippyai/engine-bridge"
	"github.com/wippyai/engine-bridge/loader"
)

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [engine.wasm]",
		Short: "Load an engine module and list its protocol version and entry points",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path, err := a.enginePath(args)
			if err != nil {
				return err
			}

			api, err := loader.Load(ctx, a.opener(), path, a.loaderOptions()...)
			if err != nil {
				return err
			}
			defer api.Close(ctx)

			exports := api.Exports()
			sort.Slice(exports, func(i, j int) bool { return exports[i] < exports[j] })

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Engine: %s\n", api.Path())
			fmt.Fprintf(out, "Protocol version: %d\n", api.Version())
			fmt.Fprintf(out, "\nEntry points:\n")
			for _, sym := range exports {
				marker := " "
				if !enginebridge.HasSymbol(enginebridge.RequiredSymbols, sym) {
					marker = "+"
				}
				fmt.Fprintf(out, " %s %s\n", marker, sym)
			}
			return nil
		},
	}
}
