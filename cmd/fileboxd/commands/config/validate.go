package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/filebox/internal/cli/output"
	"github.com/marmos91/filebox/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the filebox configuration file.

Checks for syntax errors, missing required fields and invalid values, then
warns about settings that load but are unlikely to work.

Examples:
  fileboxd config validate
  fileboxd config validate --config /etc/filebox/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	p := output.NewPrinter(cmd.OutOrStdout(), output.FormatTable, true)
	p.Printf("Configuration file: %s\n", displayPath)
	p.Success("Validation: OK")

	var warnings []string
	if info, err := os.Stat(cfg.Server.Root); err != nil {
		warnings = append(warnings, fmt.Sprintf("shared directory is not accessible: %v", err))
	} else if !info.IsDir() {
		warnings = append(warnings, fmt.Sprintf("shared directory %s is not a directory", cfg.Server.Root))
	}
	if cfg.Auth.Backend == config.AuthBackendStatic && len(cfg.Auth.Users) == 0 {
		warnings = append(warnings, "no static users configured - every login will fail")
	}
	if cfg.Transfer.MaxTransferSize == 0 {
		warnings = append(warnings, "transfer.max_transfer_size is unlimited")
	}
	if len(warnings) > 0 {
		p.Println("\nWarnings:")
		for _, w := range warnings {
			p.Warning("  - " + w)
		}
	}

	p.Println("\nConfiguration summary:")
	return output.KeyValues(p.Writer(), [][2]string{
		{"Shared directory", cfg.Server.Root},
		{"Listen port", fmt.Sprint(cfg.Server.Port)},
		{"Auth backend", cfg.Auth.Backend},
		{"Index", cfg.Index.Backend + " / " + cfg.Index.Refresh},
		{"Max transfer", cfg.Transfer.MaxTransferSize.String()},
		{"Log level", cfg.Logging.Level},
	})
}
