package user

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/filebox/internal/cli/prompt"
	"github.com/marmos91/filebox/pkg/controlplane/models"
)

var (
	addDisplayName string
	addDisabled    bool
)

var addCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Create a user",
	Long: `Create a user in the database and prompt for its password.

Examples:
  fileboxd user add alice
  fileboxd user add bob --display-name "Bob Ross"`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().StringVar(&addDisplayName, "display-name", "", "Display name")
	addCmd.Flags().BoolVar(&addDisabled, "disabled", false, "Create the user disabled")
}

func runAdd(cmd *cobra.Command, args []string) error {
	username := args[0]
	if !models.ValidUsername(username) {
		return fmt.Errorf("invalid username %q", username)
	}

	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	password, err := prompt.NewPassword()
	if err != nil {
		return err
	}
	hash, err := models.HashPassword(password)
	if err != nil {
		return err
	}

	id, err := s.CreateUser(cmd.Context(), &models.User{
		Username:     username,
		PasswordHash: hash,
		Enabled:      true,
		DisplayName:  addDisplayName,
	})
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	// Enabled has a column default, so false is applied after insert.
	if addDisabled {
		if err := s.SetEnabled(cmd.Context(), username, false); err != nil {
			return err
		}
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "User %s created (id %s)\n", username, id)
	return nil
}
