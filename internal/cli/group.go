package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) newGroupCommand() *cobra.Command {
	group := &cobra.Command{
		Use:   "group",
		Short: "Manage directory groups",
	}

	group.AddCommand(&cobra.Command{
		Use:   "create NAME",
		Short: "Create a group beside the domain's organizational unit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.connect(cmd)
			if err != nil {
				return err
			}
			defer rt.close(cmd.Context())

			if err := rt.provisioner.AddGroup(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created group %s in %s\n", args[0], rt.session.ParentDN())
			return nil
		},
	})

	return group
}
