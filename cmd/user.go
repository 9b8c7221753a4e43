package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/frahmantamala/hospitality-access/internal/core/role"
	"github.com/frahmantamala/hospitality-access/internal/user"
	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Staff account administration",
}

var (
	userListRole    string
	userCreateName  string
	userCreateRole  string
	userCreateEmail string
	userPasswordEnv string
)

func parseUserID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", arg)
	}
	return id, nil
}

// passwordFromEnv keeps passwords out of argv and shell history.
func passwordFromEnv() (string, error) {
	password := os.Getenv(userPasswordEnv)
	if password == "" {
		return "", fmt.Errorf("%s is not set", userPasswordEnv)
	}
	return password, nil
}

var userCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Create a staff account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := passwordFromEnv()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		deps, err := initializeDependencies(ctx)
		if err != nil {
			return err
		}
		defer deps.Close()

		name := userCreateName
		if name == "" {
			name = args[0]
		}
		u, err := deps.Users.Create(ctx, user.CreateUserDTO{
			Username:    args[0],
			Password:    password,
			DisplayName: name,
			Email:       userCreateEmail,
			Role:        userCreateRole,
		}, user.ConsoleActor)
		if err != nil {
			return err
		}
		fmt.Printf("created user %d (%s, %s)\n", u.ID, u.Username, u.Role)
		return deps.Bus.Drain(ctx)
	},
}

var userSetPasswordCmd = &cobra.Command{
	Use:   "set-password <user-id>",
	Short: "Reset the password of a user and revoke their sessions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseUserID(args[0])
		if err != nil {
			return err
		}
		password, err := passwordFromEnv()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		deps, err := initializeDependencies(ctx)
		if err != nil {
			return err
		}
		defer deps.Close()

		return deps.Users.ResetPassword(ctx, id, user.ResetPasswordDTO{Password: password}, user.ConsoleActor)
	},
}

var userDeactivateCmd = &cobra.Command{
	Use:   "deactivate <user-id>",
	Short: "Deactivate a user and revoke their sessions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setUserActive(cmd, args[0], false)
	},
}

var userReactivateCmd = &cobra.Command{
	Use:   "reactivate <user-id>",
	Short: "Reactivate a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setUserActive(cmd, args[0], true)
	},
}

func setUserActive(cmd *cobra.Command, arg string, active bool) error {
	id, err := parseUserID(arg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	deps, err := initializeDependencies(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()

	if active {
		err = deps.Users.Reactivate(ctx, id, user.ConsoleActor)
	} else {
		err = deps.Users.Deactivate(ctx, id, user.ConsoleActor)
	}
	if errors.Is(err, user.ErrNotFound) {
		return fmt.Errorf("user %d does not exist", id)
	}
	if err != nil {
		return err
	}
	return deps.Bus.Drain(ctx)
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List staff accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		deps, err := initializeDependencies(ctx)
		if err != nil {
			return err
		}
		defer deps.Close()

		filter := user.ListFilter{Limit: 500}
		if userListRole != "" {
			r, err := role.Parse(userListRole)
			if err != nil {
				return err
			}
			filter.Role = r
		}

		users, err := deps.Users.List(ctx, filter)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tUSERNAME\tROLE\tACTIVE\tROLE OK")
		for _, u := range users {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%t\n", u.ID, u.Username, u.Role, u.IsActive, u.RoleValid())
		}
		return tw.Flush()
	},
}

var userSetRoleCmd = &cobra.Command{
	Use:   "set-role <user-id> <role>",
	Short: "Change the role of a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseUserID(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		deps, err := initializeDependencies(ctx)
		if err != nil {
			return err
		}
		defer deps.Close()

		u, err := deps.Users.ChangeRole(ctx, id, user.ChangeRoleDTO{Role: args[1]}, user.ConsoleActor)
		if err != nil {
			return err
		}
		fmt.Printf("%s is now %s\n", u.Username, u.Role)
		return nil
	},
}

var userLogoutCmd = &cobra.Command{
	Use:   "logout <user-id>",
	Short: "Revoke every open session of a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseUserID(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		deps, err := initializeDependencies(ctx)
		if err != nil {
			return err
		}
		defer deps.Close()

		return deps.Auth.LogoutUser(ctx, id)
	},
}

func init() {
	userListCmd.Flags().StringVar(&userListRole, "role", "", "only list users with this role")

	userCreateCmd.Flags().StringVar(&userCreateName, "name", "", "display name (defaults to the username)")
	userCreateCmd.Flags().StringVar(&userCreateRole, "role", "", "role of the new account")
	userCreateCmd.Flags().StringVar(&userCreateEmail, "email", "", "email address")
	_ = userCreateCmd.MarkFlagRequired("role")
	userCmd.PersistentFlags().StringVar(&userPasswordEnv, "password-env", "USER_PASSWORD", "environment variable holding the password for create and set-password")

	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userCreateCmd)
	userCmd.AddCommand(userSetPasswordCmd)
	userCmd.AddCommand(userDeactivateCmd)
	userCmd.AddCommand(userReactivateCmd)
	userCmd.AddCommand(userSetRoleCmd)
	userCmd.AddCommand(userLogoutCmd)

	rootCmd.AddCommand(userCmd)
}
