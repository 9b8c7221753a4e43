package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/frahmantamala/hospitality-access/internal/audit"
	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Read the access audit trail",
}

var (
	auditUserID   int64
	auditDecision string
	auditModule   string
	auditLimit    int
)

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print recent access decisions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		deps, err := initializeDependencies(ctx)
		if err != nil {
			return err
		}
		defer deps.Close()

		f := audit.Filter{
			Decision: audit.Decision(auditDecision),
			Module:   auditModule,
			Limit:    auditLimit,
		}
		if auditUserID > 0 {
			f.UserID = &auditUserID
		}

		entries, err := deps.AuditStore.List(ctx, f)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tUSER\tROLE\tCAPABILITY\tDECISION\tRISK\tREASON")
		for _, e := range entries {
			userID := "-"
			if e.UserID != nil {
				userID = fmt.Sprint(*e.UserID)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s:%s\t%s\t%s\t%s\n",
				e.OccurredAt.Format(time.RFC3339), userID, e.Role, e.Module, e.Action, e.Decision, e.RiskLevel, e.Reason)
		}
		return tw.Flush()
	},
}

func init() {
	auditListCmd.Flags().Int64Var(&auditUserID, "user", 0, "only entries for this user id")
	auditListCmd.Flags().StringVar(&auditDecision, "decision", "", "allow or deny")
	auditListCmd.Flags().StringVar(&auditModule, "module", "", "only entries for this module")
	auditListCmd.Flags().IntVarP(&auditLimit, "limit", "n", 50, "maximum entries to print")

	auditCmd.AddCommand(auditListCmd)

	rootCmd.AddCommand(auditCmd)
}
