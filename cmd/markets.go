package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

// newMarketsCmd creates the 'markets' subcommand. It lists every market
// adapter compiled into the binary and marks the ones enabled by the current
// configuration with an asterisk.
func newMarketsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "markets",
		Short: "Lists the available market adapters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			enabled := make(map[string]bool)
			for _, name := range appInstance.GetConfig().Harvest.Markets {
				enabled[name] = true
			}

			names := appInstance.GetRegistry().Names()
			sort.Strings(names)
			for _, name := range names {
				marker := " "
				if enabled[name] {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, name)
			}
			return nil
		},
	}
	return cmd
}
