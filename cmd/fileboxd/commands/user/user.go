// Package user implements 'fileboxd user', which manages accounts in the
// database auth backend.
package user

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/marmos91/filebox/pkg/config"
	"github.com/marmos91/filebox/pkg/controlplane/store"
)

// Cmd is the user subcommand.
var Cmd = &cobra.Command{
	Use:   "user",
	Short: "Manage database users",
	Long: `Manage accounts stored in the user database (auth.backend database or
chain). Static users live in the configuration file; hash their passwords
with 'fileboxd passwd-hash'.

Subcommands:
  add      Create a user (prompts for the password)
  list     List users
  passwd   Change a user's password
  enable   Allow a user to log in
  disable  Refuse logins without deleting the user
  delete   Delete a user`,
}

func init() {
	Cmd.AddCommand(addCmd)
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(passwdCmd)
	Cmd.AddCommand(enableCmd)
	Cmd.AddCommand(disableCmd)
	Cmd.AddCommand(deleteCmd)
}

// openStore opens the user database named by the config file.
func openStore(cmd *cobra.Command) (store.Store, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return nil, err
	}
	if !cfg.Auth.UsesDatabase() {
		return nil, errors.New("auth.backend is static: users are listed in the configuration file")
	}
	return config.CreateUserStore(cfg.Auth)
}
