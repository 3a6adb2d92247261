package user

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/filebox/internal/cli/prompt"
)

var deleteForce bool

var deleteCmd = &cobra.Command{
	Use:   "delete <username>",
	Short: "Delete a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var enableCmd = &cobra.Command{
	Use:   "enable <username>",
	Short: "Allow a user to log in",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setEnabled(cmd, args[0], true) },
}

var disableCmd = &cobra.Command{
	Use:   "disable <username>",
	Short: "Refuse logins for a user",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setEnabled(cmd, args[0], false) },
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Skip confirmation")
}

func runDelete(cmd *cobra.Command, args []string) error {
	ok, err := prompt.ConfirmWithForce(fmt.Sprintf("Delete user %s?", args[0]), deleteForce)
	if err != nil || !ok {
		return err
	}

	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	if err := s.DeleteUser(cmd.Context(), args[0]); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "User %s deleted\n", args[0])
	return nil
}

func setEnabled(cmd *cobra.Command, username string, enabled bool) error {
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	if err := s.SetEnabled(cmd.Context(), username, enabled); err != nil {
		return err
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "User %s %s\n", username, state)
	return nil
}
