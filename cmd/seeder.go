package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/frahmantamala/hospitality-access/internal/core/role"
	"github.com/frahmantamala/hospitality-access/internal/user"
	"github.com/spf13/cobra"
)

var (
	seedAdminUsername string
	seedAdminName     string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the permission catalogue, default role grants and a super admin",
	Long: `Seed writes the module and action catalogue, grants each role its default
capabilities and creates a super_admin account when none exists. Running it
again only adds what is missing. The super admin password is read from
SEED_ADMIN_PASSWORD.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		deps, err := initializeDependencies(ctx)
		if err != nil {
			return err
		}
		defer deps.Close()

		if err := deps.Permissions.SeedCatalogue(ctx); err != nil {
			return fmt.Errorf("seed catalogue: %w", err)
		}
		n, err := deps.Permissions.SeedGrants(ctx)
		if err != nil {
			return fmt.Errorf("seed grants: %w", err)
		}
		fmt.Printf("Seeded catalogue; %d role grants written\n", n)

		admins, err := deps.Users.List(ctx, user.ListFilter{Role: role.SuperAdmin, Limit: 1})
		if err != nil {
			return err
		}
		if len(admins) > 0 {
			fmt.Println("super_admin account already exists:", admins[0].Username)
			return nil
		}

		password := os.Getenv("SEED_ADMIN_PASSWORD")
		if password == "" {
			return errors.New("SEED_ADMIN_PASSWORD is required to create the first super_admin")
		}

		u, err := deps.Users.Create(ctx, user.CreateUserDTO{
			Username:    seedAdminUsername,
			Password:    password,
			DisplayName: seedAdminName,
			Role:        string(role.SuperAdmin),
		}, user.ConsoleActor)
		if err != nil {
			return fmt.Errorf("create super_admin: %w", err)
		}
		fmt.Println("Seeded super_admin user:", u.Username)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedAdminUsername, "admin-username", "superadmin", "username of the first super_admin")
	seedCmd.Flags().StringVar(&seedAdminName, "admin-name", "Super Admin", "display name of the first super_admin")
}
