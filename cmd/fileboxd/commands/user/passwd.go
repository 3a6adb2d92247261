package user

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/filebox/internal/cli/prompt"
	"github.com/marmos91/filebox/pkg/controlplane/models"
)

var passwdCmd = &cobra.Command{
	Use:   "passwd <username>",
	Short: "Change a user's password",
	Args:  cobra.ExactArgs(1),
	RunE:  runPasswd,
}

func runPasswd(cmd *cobra.Command, args []string) error {
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	if _, err := s.GetUser(cmd.Context(), args[0]); err != nil {
		return err
	}
	password, err := prompt.NewPassword()
	if err != nil {
		return err
	}
	hash, err := models.HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.UpdatePassword(cmd.Context(), args[0], hash); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Password for %s updated\n", args[0])
	return nil
}
