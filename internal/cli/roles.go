package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/isometry/ad-onboard/internal/identity"
)

func newRolesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "roles",
		Short: "List the known roles and their department groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ROLE\tLABEL\tGROUP")
			for _, r := range identity.Roles() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", r, r.Label(), r.Group())
			}
			return w.Flush()
		},
	}
}
