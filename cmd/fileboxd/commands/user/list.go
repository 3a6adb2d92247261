package user

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/filebox/internal/cli/output"
	"github.com/marmos91/filebox/internal/cli/timeutil"
	"github.com/marmos91/filebox/pkg/controlplane/models"
)

var listOutput string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVarP(&listOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// UserList renders users as a table.
type UserList []*models.User

func (ul UserList) Headers() []string {
	return []string{"Username", "Display name", "Enabled", "Created", "Last login"}
}

func (ul UserList) Rows() [][]string {
	rows := make([][]string, 0, len(ul))
	for _, u := range ul {
		enabled := "yes"
		if !u.Enabled {
			enabled = "no"
		}
		last := timeutil.Never
		if u.LastLogin != nil {
			last = timeutil.Relative(*u.LastLogin)
		}
		rows = append(rows, []string{u.Username, u.GetDisplayName(), enabled, timeutil.FormatTime(u.CreatedAt), last})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(listOutput)
	if err != nil {
		return err
	}
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	users, err := s.ListUsers(cmd.Context())
	if err != nil {
		return err
	}
	p := output.NewPrinter(cmd.OutOrStdout(), format, true)
	if len(users) == 0 && format == output.FormatTable {
		p.Println("No users. Add one with: fileboxd user add <username>")
		return nil
	}
	return p.Print(UserList(users))
}
