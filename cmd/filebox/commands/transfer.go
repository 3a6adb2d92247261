package commands

import (
	"fmt"
	"path"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <remote> [local]",
	Short: "Download a file",
	Long: `Download a file from the shared directory. Without a local path the
file is saved under its base name in the current directory.

Examples:
  filebox get docs/report.pdf
  filebox get docs/report.pdf /tmp/report.pdf`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runGet,
}

var putCmd = &cobra.Command{
	Use:   "put <local> [remote]",
	Short: "Upload a file",
	Long: `Upload a local file. Without a remote path the file is stored under its
base name in the server's starting directory.

Examples:
  filebox put notes.txt
  filebox put notes.txt archive/2024/notes.txt`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runPut,
}

func runGet(cmd *cobra.Command, args []string) error {
	remote := args[0]
	local := path.Base(remote)
	if len(args) == 2 {
		local = args[1]
	}

	c, _, err := connect(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	n, err := c.DownloadFile(remote, local)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Downloaded %s to %s (%s)\n", remote, local, humanize.IBytes(uint64(n)))
	return nil
}

func runPut(cmd *cobra.Command, args []string) error {
	remote := ""
	if len(args) == 2 {
		remote = args[1]
	}

	c, _, err := connect(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	reply, err := c.UploadFile(args[0], remote)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), reply)
	return nil
}
