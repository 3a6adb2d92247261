package commands

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/marmos91/filebox/internal/cli/output"
	"github.com/marmos91/filebox/internal/cli/timeutil"
	"github.com/marmos91/filebox/pkg/config"
	"github.com/marmos91/filebox/pkg/index"
	"github.com/marmos91/filebox/pkg/sandbox"
)

var (
	indexOutput string
	indexFresh  bool
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Inspect and rebuild the file index",
	Long: `Inspect and rebuild the file index used by search and showfiles.

With the badger backend the index is persisted and these commands work on
the stored copy. Badger allows one process at a time, so stop the server
first.`,
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Walk the shared directory and store a fresh index",
	Args:  cobra.NoArgs,
	RunE:  runIndexRebuild,
}

var indexListCmd = &cobra.Command{
	Use:   "list [directory]",
	Short: "List indexed files, optionally under a directory",
	Long: `List indexed files. The optional directory filter selects files whose
parent path contains a matching component, like the showfiles command.

Examples:
  fileboxd index list
  fileboxd index list docs --output json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndexList,
}

func init() {
	indexListCmd.Flags().StringVarP(&indexOutput, "output", "o", "table", "Output format (table|json|yaml)")
	indexListCmd.Flags().BoolVar(&indexFresh, "fresh", false, "Walk the directory instead of reading the stored index")
	indexCmd.AddCommand(indexRebuildCmd)
	indexCmd.AddCommand(indexListCmd)
}

func openIndex(configFile string) (*index.Indexer, error) {
	cfg, err := config.MustLoad(configFile)
	if err != nil {
		return nil, err
	}
	sb, err := sandbox.New(cfg.Server.Root)
	if err != nil {
		return nil, fmt.Errorf("shared directory: %w", err)
	}
	backend, err := config.CreateIndexBackend(cfg.Index)
	if err != nil {
		return nil, err
	}
	ix, err := index.New(sb.Root(), backend, nil)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return ix, nil
}

func runIndexRebuild(cmd *cobra.Command, args []string) error {
	ix, err := openIndex(GetConfigFile())
	if err != nil {
		return err
	}
	defer func() { _ = ix.Close() }()

	if err := ix.Refresh(cmd.Context()); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d files under %s (%s backend)\n",
		ix.Len(), ix.Root(), ix.Backend().Name())
	return nil
}

type indexRows []index.Entry

func (r indexRows) Headers() []string {
	return []string{"Path", "Size", "Modified"}
}

func (r indexRows) Rows() [][]string {
	rows := make([][]string, 0, len(r))
	for _, e := range r {
		rows = append(rows, []string{e.Path, humanize.IBytes(uint64(e.Size)), timeutil.Relative(e.ModTime)})
	}
	return rows
}

func runIndexList(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(indexOutput)
	if err != nil {
		return err
	}
	ix, err := openIndex(GetConfigFile())
	if err != nil {
		return err
	}
	defer func() { _ = ix.Close() }()

	if err := ix.Load(cmd.Context()); err != nil {
		return err
	}
	// The memory backend starts empty, so it always needs a walk.
	if indexFresh || ix.Backend().Name() == "memory" {
		if err := ix.Refresh(cmd.Context()); err != nil {
			return err
		}
	}

	filter := ""
	if len(args) == 1 {
		filter = args[0]
	}
	return output.NewPrinter(cmd.OutOrStdout(), format, true).Print(indexRows(ix.List(filter)))
}
