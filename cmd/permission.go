package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/frahmantamala/hospitality-access/internal/core/role"
	"github.com/frahmantamala/hospitality-access/internal/permission"
	"github.com/spf13/cobra"
)

var permissionCmd = &cobra.Command{
	Use:     "permission",
	Aliases: []string{"perm"},
	Short:   "Inspect and edit the role capability table",
}

var permissionShowCmd = &cobra.Command{
	Use:     "show <role>",
	Aliases: []string{"list"},
	Short:   "Print the capability matrix of a role",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := role.Parse(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		deps, err := initializeDependencies(ctx)
		if err != nil {
			return err
		}
		defer deps.Close()

		caps, err := deps.Permissions.Matrix(ctx, r)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CAPABILITY\tGRANTED\tAPPROVAL\tSENSITIVE")
		for _, c := range caps {
			if !c.Granted && !showAll {
				continue
			}
			fmt.Fprintf(tw, "%s\t%t\t%t\t%t\n", permission.Key(c.Module, c.Action), c.Granted, c.RequiresApproval, c.Sensitive)
		}
		return tw.Flush()
	},
}

var (
	showAll         bool
	grantApproval   bool
	permissionActor int64
)

var permissionGrantCmd = &cobra.Command{
	Use:   "grant <role> <module> <action>",
	Short: "Grant a capability to a role",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := role.Parse(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		deps, err := initializeDependencies(ctx)
		if err != nil {
			return err
		}
		defer deps.Close()

		err = deps.Permissions.Grant(ctx, permission.GrantInput{
			Role:             r,
			Module:           args[1],
			Action:           args[2],
			RequiresApproval: grantApproval,
			ActorID:          permissionActor,
		})
		if err != nil {
			return err
		}
		fmt.Printf("granted %s to %s\n", permission.Key(args[1], args[2]), r)
		return deps.Bus.Drain(ctx)
	},
}

var permissionRevokeCmd = &cobra.Command{
	Use:   "revoke <role> <module> <action>",
	Short: "Revoke a capability from a role",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := role.Parse(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		deps, err := initializeDependencies(ctx)
		if err != nil {
			return err
		}
		defer deps.Close()

		if err := deps.Permissions.Revoke(ctx, r, args[1], args[2], permissionActor); err != nil {
			return err
		}
		fmt.Printf("revoked %s from %s\n", permission.Key(args[1], args[2]), r)
		return deps.Bus.Drain(ctx)
	},
}

func init() {
	permissionShowCmd.Flags().BoolVarP(&showAll, "all", "a", false, "include capabilities that are not granted")
	permissionGrantCmd.Flags().BoolVar(&grantApproval, "requires-approval", false, "mark the grant as needing a second approval")
	permissionCmd.PersistentFlags().Int64Var(&permissionActor, "actor", 0, "user id recorded as the author of the change")

	permissionCmd.AddCommand(permissionShowCmd)
	permissionCmd.AddCommand(permissionGrantCmd)
	permissionCmd.AddCommand(permissionRevokeCmd)

	rootCmd.AddCommand(permissionCmd)
}
