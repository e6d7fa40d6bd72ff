package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ent0n29/parlons/internal/scenario"
)

func newScenariosCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List the scenario catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			catalog, err := scenario.Load(cfg.ScenariosFile)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tMAX TOKENS\tTEMPERATURE\tTITLE")
			for _, sc := range catalog.All() {
				marker := ""
				if sc.Name == catalog.Default() {
					marker = " (default)"
				}
				fmt.Fprintf(tw, "%s%s\t%d\t%.1f\t%s\n", sc.Name, marker, sc.MaxTokens, sc.Temperature, sc.Title)
			}
			return tw.Flush()
		},
	}
}
