package config

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/filebox/internal/cli/output"
	"github.com/marmos91/filebox/pkg/config"
)

const redacted = "********"

var showOutput string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	Long: `Display the configuration after defaults and environment overrides.
The database password is redacted.

Examples:
  fileboxd config show
  fileboxd config show --output json
  fileboxd config show --config /etc/filebox/config.yaml`,
	RunE: runConfigShow,
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "yaml", "Output format (yaml|json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}
	if cfg.Auth.Database.Postgres.Password != "" {
		cfg.Auth.Database.Postgres.Password = redacted
	}

	format, err := output.ParseFormat(showOutput)
	if err != nil {
		return err
	}
	if format == output.FormatJSON {
		return output.PrintJSON(cmd.OutOrStdout(), cfg)
	}
	return output.PrintYAML(cmd.OutOrStdout(), cfg)
}
