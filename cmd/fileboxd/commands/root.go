// Package commands implements the fileboxd server CLI.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/filebox/cmd/fileboxd/commands/config"
	"github.com/marmos91/filebox/cmd/fileboxd/commands/user"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "fileboxd",
	Short: "filebox - sandboxed remote file access server",
	Long: `fileboxd shares one directory tree over the filebox line protocol.
Clients log in with a username and password, then browse, search,
upload and download files that never leave the shared directory.

Use "fileboxd [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for tests.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/filebox/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(passwdHashCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(config.Cmd)
	rootCmd.AddCommand(user.Cmd)
}

// GetConfigFile returns the --config value.
func GetConfigFile() string {
	return cfgFile
}
