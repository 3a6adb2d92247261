package commands

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/filebox/internal/cli/output"
	"github.com/marmos91/filebox/pkg/client"
)

var execCmd = &cobra.Command{
	Use:   "exec <command> [argument]",
	Short: "Run one server command and print the reply",
	Long: `Run one server command and print its reply lines. The exit status is
non-zero when the server rejects the command. Use get and put for
transfers.

Examples:
  filebox exec ls
  filebox exec search report.pdf
  filebox exec showfiles docs`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func runExec(cmd *cobra.Command, args []string) error {
	c, _, err := connect(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	p := output.NewPrinter(cmd.OutOrStdout(), output.FormatTable, false)
	lines, err := c.Exec(strings.Join(args, " "))
	p.Lines(lines)

	var re *client.ReplyError
	if errors.As(err, &re) {
		return errors.New("command rejected by server")
	}
	return err
}
