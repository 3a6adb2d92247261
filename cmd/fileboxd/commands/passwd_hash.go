package commands

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/filebox/internal/cli/prompt"
	"github.com/marmos91/filebox/pkg/controlplane/models"
)

var passwdHashStdin bool

var passwdHashCmd = &cobra.Command{
	Use:   "passwd-hash",
	Short: "Print a bcrypt hash for auth.users",
	Long: `Print a bcrypt hash of a password, for the password_hash field of a
static user in the configuration file.

Examples:
  # Prompt for the password
  fileboxd passwd-hash

  # Read it from stdin
  echo 'correct horse' | fileboxd passwd-hash --stdin`,
	RunE: runPasswdHash,
}

func init() {
	passwdHashCmd.Flags().BoolVar(&passwdHashStdin, "stdin", false, "Read the password from the first line of stdin")
}

func runPasswdHash(cmd *cobra.Command, args []string) error {
	var password string
	if passwdHashStdin {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	} else {
		var err error
		if password, err = prompt.NewPassword(); err != nil {
			return err
		}
	}

	hash, err := models.HashPassword(password)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), hash)
	return nil
}
