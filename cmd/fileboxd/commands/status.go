package commands

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/filebox/internal/cli/health"
	"github.com/marmos91/filebox/internal/cli/output"
	"github.com/marmos91/filebox/pkg/config"
)

var (
	statusOutput  string
	statusPidFile string
	statusURL     string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long: `Display the status of a running filebox server.

The /health endpoint of the metrics server reports whether the shared
directory, the index store and the user database are usable. It is only
served when metrics.enabled is set.

Examples:
  # Check the server described by the default config
  fileboxd status

  # Check a server by URL
  fileboxd status --url http://files.internal:9090

  # Output as JSON
  fileboxd status --output json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusPidFile, "pid-file", "", "PID file written by 'fileboxd start --pid-file'")
	statusCmd.Flags().StringVar(&statusURL, "url", "", "Metrics server base URL (default: from config)")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// ServerStatus is what 'fileboxd status' reports.
type ServerStatus struct {
	PID     int               `json:"pid,omitempty" yaml:"pid,omitempty"`
	Running bool              `json:"running" yaml:"running"`
	Healthy bool              `json:"healthy" yaml:"healthy"`
	Message string            `json:"message" yaml:"message"`
	Checks  map[string]string `json:"checks,omitempty" yaml:"checks,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOutput)
	if err != nil {
		return err
	}

	status := ServerStatus{Message: "Server is not running"}
	if statusPidFile != "" {
		if pid, ok := processAlive(statusPidFile); ok {
			status.Running = true
			status.PID = pid
			status.Message = "Server process is running"
		}
	}

	url := statusURL
	if url == "" {
		if url, err = metricsURL(GetConfigFile()); err != nil {
			return err
		}
	}

	resp, err := health.Fetch(cmd.Context(), url)
	switch {
	case err != nil && status.Running:
		status.Message = fmt.Sprintf("Server process exists but health check failed: %v", err)
	case err != nil:
		status.Message = fmt.Sprintf("Server is not reachable: %v", err)
	default:
		status.Running = true
		status.Healthy = resp.Healthy()
		status.Checks = resp.Checks
		status.Message = "Server is running and healthy"
		if !status.Healthy {
			status.Message = "Server is running but unhealthy"
		}
	}

	p := output.NewPrinter(cmd.OutOrStdout(), format, true)
	if format != output.FormatTable {
		return p.Print(status)
	}

	state := "stopped"
	switch {
	case status.Healthy:
		state = "running"
	case status.Running:
		state = "running (unhealthy)"
	}
	pairs := [][2]string{{"Status", state}}
	if status.PID != 0 {
		pairs = append(pairs, [2]string{"PID", strconv.Itoa(status.PID)})
	}
	if resp != nil {
		for _, name := range resp.Names() {
			pairs = append(pairs, [2]string{"Check " + name, resp.Checks[name]})
		}
	}
	if err := output.KeyValues(p.Writer(), pairs); err != nil {
		return err
	}
	if status.Healthy {
		p.Success(status.Message)
	} else {
		p.Warning(status.Message)
	}
	return nil
}

// metricsURL derives the health endpoint base from the config file.
func metricsURL(configFile string) (string, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return "", err
	}
	if !cfg.Metrics.Enabled {
		return "", fmt.Errorf("metrics are disabled in the configuration; enable metrics.enabled or pass --url")
	}
	host := cfg.Metrics.BindAddress
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.Metrics.Port)), nil
}

func processAlive(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return 0, false
	}
	// FindProcess always succeeds on Unix; signal 0 probes liveness.
	if err := process.Signal(syscall.Signal(0)); err != nil {
		return 0, false
	}
	return pid, true
}
