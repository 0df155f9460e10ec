package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newModesCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "modes",
		Short: "List the available chat modes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := loadCatalog(c.cfg)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MODE\tLABEL\tMODEL\tDESCRIPTION")
			for _, m := range catalog.All() {
				model := m.Model
				if m.Dual {
					model = m.Primary.Model + " + " + m.Secondary.Model
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.Mode, m.Label, model, m.Description)
			}
			return w.Flush()
		},
	}
}
