// Package commands implements the filebox client CLI.
package commands

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/marmos91/filebox/internal/bytesize"
	"github.com/marmos91/filebox/internal/cli/credentials"
	"github.com/marmos91/filebox/internal/cli/prompt"
	"github.com/marmos91/filebox/internal/logger"
	"github.com/marmos91/filebox/pkg/client"
)

// DefaultPort matches the fileboxd default.
const DefaultPort = 12345

// Version is injected at build time.
var Version = "dev"

// settings resolves flags first, then FILEBOX_* environment variables.
// FILEBOX_PASSWORD has no flag so it never shows up in a process list.
var settings = viper.New()

var rootCmd = &cobra.Command{
	Use:   "filebox",
	Short: "filebox - client for fileboxd file servers",
	Long: `filebox connects to a fileboxd server, logs in and browses, searches,
uploads and downloads files in the shared directory.

The server comes from --server, the selected profile, or localhost:12345.
The username comes from --user or the profile; the password from
FILEBOX_PASSWORD or an interactive prompt.

Use "filebox [command] --help" for more information about a command.`,
	Version:           Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: bindSettings,
}

// Execute runs the root command.
func Execute() error {
	rootCmd.Version = Version
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("server", "s", "", "Server address host[:port]")
	pf.StringP("user", "u", "", "Username")
	pf.StringP("profile", "p", "", "Saved profile (default: current profile)")
	pf.String("buffer-size", "64KiB", "Transfer buffer size")
	pf.String("max-download", "0", "Refuse downloads larger than this (0 = unlimited)")
	pf.Duration("timeout", 10*time.Second, "Connection timeout")
	pf.String("log-level", "WARN", "Log level (DEBUG, INFO, WARN, ERROR)")

	rootCmd.AddCommand(shellCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(profileCmd)
}

func bindSettings(cmd *cobra.Command, args []string) error {
	settings.SetEnvPrefix("FILEBOX")
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()
	if err := settings.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	logger.InitWithWriter(cmd.ErrOrStderr(), settings.GetString("log-level"), "text", false)
	return nil
}

// target is the resolved server and login name for a command.
type target struct {
	profile  string
	address  string
	username string
	banner   string
}

func resolveTarget() (*target, error) {
	t := &target{}

	store, err := credentials.NewStore()
	if err != nil {
		return nil, err
	}
	var p *credentials.Profile
	if name := settings.GetString("profile"); name != "" {
		if p, err = store.Get(name); err != nil {
			return nil, err
		}
		t.profile = name
	} else if name, cur, err := store.Current(); err == nil {
		t.profile, p = name, cur
	}
	if p != nil {
		t.address, t.username, t.banner = p.Address, p.Username, p.Banner
	}

	if s := settings.GetString("server"); s != "" {
		t.address = s
		t.profile = ""
	}
	if u := settings.GetString("user"); u != "" {
		t.username = u
	}
	if t.address == "" {
		t.address = "localhost"
	}
	t.address = withDefaultPort(t.address)
	return t, nil
}

// withDefaultPort appends DefaultPort to a bare host.
func withDefaultPort(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(strings.Trim(addr, "[]"), strconv.Itoa(DefaultPort))
}

func clientOptions() (client.Options, error) {
	buf, err := bytesize.Parse(settings.GetString("buffer-size"))
	if err != nil {
		return client.Options{}, fmt.Errorf("--buffer-size: %w", err)
	}
	limit, err := bytesize.Parse(settings.GetString("max-download"))
	if err != nil {
		return client.Options{}, fmt.Errorf("--max-download: %w", err)
	}
	return client.Options{
		DialTimeout:     settings.GetDuration("timeout"),
		BufferSize:      buf.Int(),
		MaxDownloadSize: limit.Int64(),
	}, nil
}

// connect dials, logs in and returns a ready session together with the
// resolved target.
func connect(cmd *cobra.Command) (*client.Client, *target, error) {
	t, err := resolveTarget()
	if err != nil {
		return nil, nil, err
	}
	opts, err := clientOptions()
	if err != nil {
		return nil, nil, err
	}

	username, password := t.username, settings.GetString("password")
	if username == "" || password == "" {
		if username, password, err = prompt.Credentials(username); err != nil {
			return nil, nil, err
		}
	}
	t.username = username

	c, err := client.Dial(cmd.Context(), t.address, opts)
	if err != nil {
		return nil, nil, err
	}
	if err := c.Login(username, password); err != nil {
		_ = c.Close()
		return nil, nil, err
	}
	logger.Debug("Logged in", logger.KeyUsername, username, "address", t.address)

	if t.profile != "" {
		if store, err := credentials.NewStore(); err == nil {
			_ = store.Touch(t.profile, time.Now())
		}
	}
	return c, t, nil
}
