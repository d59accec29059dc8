package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relabs-tech/kadmin/core/access"
	"github.com/relabs-tech/kadmin/core/csql"
)

var (
	newUser struct {
		access.User
		password string
	}

	createUserCmd = &cobra.Command{
		Use:   "create-user",
		Short: "creates an admin user or updates the user with that name",
		Long: `creates an admin user. If a user with that username exists, its password,
names, email and superuser flag are overwritten.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := decodeService()
			if err != nil {
				return err
			}
			if newUser.Username == "" || newUser.password == "" {
				return fmt.Errorf("username and password are required")
			}
			db, err := csql.OpenWithSchema(service.Postgres, service.PostgresPassword, service.PostgresSchema)
			if err != nil {
				return err
			}
			defer db.Close()

			user, err := saveUser(cmd.Context(), db, userTable, newUser.User, newUser.password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %s (id %d, superuser %t)\n", user.Username, user.ID, user.Superuser)
			return nil
		},
	}
	userTable string
)

// saveUser creates the user table if needed and creates or updates user as an
// active admin
func saveUser(ctx context.Context, db *csql.DB, table string, user access.User, password string) (*access.User, error) {
	users := access.NewUsers(db, table)
	if err := users.CreateTable(ctx); err != nil {
		return nil, err
	}
	user.Active = true
	user.Admin = true
	return users.SaveUser(ctx, &user, password)
}

func init() {
	flags := createUserCmd.Flags()
	flags.StringVar(&newUser.Username, "username", "", "the username")
	flags.StringVar(&newUser.password, "password", "", "the password, at least 6 characters long")
	flags.StringVar(&newUser.Email, "email", "", "the email address, defaults to the username")
	flags.StringVar(&newUser.FirstName, "first-name", "", "the first name")
	flags.StringVar(&newUser.LastName, "last-name", "", "the last name")
	flags.BoolVar(&newUser.Superuser, "superuser", false, "the user can manage users and sessions")
	flags.StringVar(&userTable, "user-table", access.DefaultUserTable, "the name of the user table")
}
