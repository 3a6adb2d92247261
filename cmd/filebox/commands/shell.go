package commands

import (
	"bufio"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	wire "github.com/marmos91/filebox/internal/adapter/filebox"
	"github.com/marmos91/filebox/internal/cli/output"
	"github.com/marmos91/filebox/pkg/client"
)

var (
	shellBanner      string
	shellDownloadDir string
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Open an interactive session",
	Long: `Open an interactive session. Every server command is available:

  ls, cd <directory>, pwd, showfiles [subdir], search <file>, help
  upload <local file>     sends the file under its base name
  download <file>         saves into --download-dir (default: .)
  exit, quit              close the session

Examples:
  filebox shell --server nas.local
  filebox shell --profile home --banner "Family archive"`,
	Args: cobra.NoArgs,
	RunE: runShell,
}

func init() {
	shellCmd.Flags().StringVar(&shellBanner, "banner", "", "Text printed before the session starts (default: profile banner)")
	shellCmd.Flags().StringVar(&shellDownloadDir, "download-dir", ".", "Directory for downloaded files")
}

func runShell(cmd *cobra.Command, args []string) error {
	banner := shellBanner
	p := output.NewPrinter(cmd.OutOrStdout(), output.FormatTable, false)

	c, t, err := connect(cmd)
	if err != nil {
		if errors.Is(err, client.ErrAuthFailed) {
			p.Error("Authentication failed.")
		}
		return err
	}
	defer func() { _ = c.Close() }()

	if banner == "" {
		banner = t.banner
	}
	if banner != "" {
		p.Println(banner)
	}
	p.Printf("Authenticated successfully as %s on %s.\n", t.username, t.address)

	sh := &shell{client: c, out: p, downloadDir: shellDownloadDir, cwd: "/"}
	return sh.run(cmd.InOrStdin())
}

// shell is the interactive loop over one logged-in session.
type shell struct {
	client      *client.Client
	out         *output.Printer
	downloadDir string
	cwd         string
}

// run reads commands until exit or end of input. A transport failure ends
// the loop; a rejected command does not.
func (s *shell) run(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		s.out.Printf("filebox:%s> ", s.cwd)
		if !scanner.Scan() {
			s.out.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch strings.ToLower(line) {
		case "exit", "quit":
			return nil
		}

		if err := s.execute(line); err != nil {
			var re *client.ReplyError
			switch {
			case errors.As(err, &re):
				s.out.Lines(re.Lines)
			case errors.Is(err, client.ErrLocalFile), errors.Is(err, client.ErrInvalidArgument):
				s.out.Error(err.Error())
			default:
				return err
			}
		}
	}
}

func (s *shell) execute(line string) error {
	cmd := wire.ParseCommand(line)
	switch cmd.Verb {
	case wire.VerbUpload:
		if cmd.Arg == "" {
			s.out.Println(cmd.Verb.Usage())
			return nil
		}
		reply, err := s.client.UploadFile(cmd.Arg, "")
		if err != nil {
			return err
		}
		s.out.Println(reply)
		return nil

	case wire.VerbDownload:
		if cmd.Arg == "" {
			s.out.Println(cmd.Verb.Usage())
			return nil
		}
		dst := filepath.Join(s.downloadDir, filepath.Base(filepath.FromSlash(cmd.Arg)))
		n, err := s.client.DownloadFile(cmd.Arg, dst)
		if err != nil {
			return err
		}
		s.out.Printf("Downloaded %s to %s (%s)\n", cmd.Arg, dst, humanize.IBytes(uint64(n)))
		return nil
	}

	lines, err := s.client.Exec(line)
	if err != nil {
		return err
	}
	s.out.Lines(lines)
	if cmd.Verb == wire.VerbCd {
		if dir, err := s.client.Pwd(); err == nil {
			s.cwd = dir
		}
	}
	return nil
}
