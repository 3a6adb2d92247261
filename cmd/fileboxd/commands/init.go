package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/marmos91/filebox/internal/cli/prompt"
	"github.com/marmos91/filebox/pkg/config"
	"github.com/marmos91/filebox/pkg/controlplane/models"
)

var (
	initForce bool
	initRoot  string
	initUser  string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a filebox configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/filebox/config.yaml.
Use --config to specify a custom path. With --user, a static account is
added and its password is asked for interactively.

Examples:
  # Share /srv/share
  fileboxd init --root /srv/share

  # Share the current directory with one account
  fileboxd init --root . --user alice

  # Force overwrite existing config
  fileboxd init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
	initCmd.Flags().StringVar(&initRoot, "root", "", "Shared directory")
	initCmd.Flags().StringVar(&initUser, "user", "", "Add a static user and prompt for its password")
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg := config.GetDefaultConfig()
	if initRoot != "" {
		abs, err := filepath.Abs(initRoot)
		if err != nil {
			return err
		}
		cfg.Server.Root = abs
	}

	if initUser != "" {
		if !models.ValidUsername(initUser) {
			return fmt.Errorf("invalid username %q", initUser)
		}
		password, err := prompt.NewPassword()
		if err != nil {
			return err
		}
		hash, err := models.HashPassword(password)
		if err != nil {
			return err
		}
		cfg.Auth.Users = map[string]config.StaticUser{initUser: {PasswordHash: hash}}
	}

	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}
	if err := config.WriteInitialConfig(configPath, cfg, initForce); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", configPath)
	_, _ = fmt.Fprintf(out, "Shared directory: %s\n", cfg.Server.Root)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	if initUser == "" {
		_, _ = fmt.Fprintln(out, "  1. Add users under auth.users (hash passwords with: fileboxd passwd-hash)")
	} else {
		_, _ = fmt.Fprintf(out, "  1. User %q can log in; add more with: fileboxd passwd-hash\n", initUser)
	}
	_, _ = fmt.Fprintln(out, "  2. Start the server with: fileboxd start")
	_, _ = fmt.Fprintf(out, "  3. Or specify custom config: fileboxd start --config %s\n", configPath)
	return nil
}
