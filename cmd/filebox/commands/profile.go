package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/filebox/internal/cli/credentials"
	"github.com/marmos91/filebox/internal/cli/output"
	"github.com/marmos91/filebox/internal/cli/prompt"
	"github.com/marmos91/filebox/internal/cli/timeutil"
)

var (
	profileBanner string
	profileOutput string
	profileForce  bool
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage saved servers",
	Long: `Manage saved servers. A profile stores an address, a username and an
optional banner; passwords are never saved.

Examples:
  filebox profile add home nas.local --user alice
  filebox profile use home
  filebox profile list`,
}

var profileAddCmd = &cobra.Command{
	Use:   "add <name> <host[:port]>",
	Short: "Save a server",
	Args:  cobra.ExactArgs(2),
	RunE:  runProfileAdd,
}

var profileUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Select the default server",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileUse,
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved servers",
	Args:  cobra.NoArgs,
	RunE:  runProfileList,
}

var profileRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Forget a server",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileRemove,
}

func init() {
	profileAddCmd.Flags().StringVar(&profileBanner, "banner", "", "Banner printed by 'filebox shell'")
	profileListCmd.Flags().StringVarP(&profileOutput, "output", "o", "table", "Output format (table|json|yaml)")
	profileRemoveCmd.Flags().BoolVarP(&profileForce, "force", "f", false, "Skip confirmation")

	profileCmd.AddCommand(profileAddCmd)
	profileCmd.AddCommand(profileUseCmd)
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileRemoveCmd)
}

func runProfileAdd(cmd *cobra.Command, args []string) error {
	store, err := credentials.NewStore()
	if err != nil {
		return err
	}
	p := &credentials.Profile{
		Address:  withDefaultPort(args[1]),
		Username: settings.GetString("user"),
		Banner:   profileBanner,
	}
	if err := store.Set(args[0], p); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Profile %s saved (%s)\n", args[0], p.Address)
	return nil
}

func runProfileUse(cmd *cobra.Command, args []string) error {
	store, err := credentials.NewStore()
	if err != nil {
		return err
	}
	if err := store.Use(args[0]); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Switched to profile %s\n", args[0])
	return nil
}

// profileList renders profiles as a table.
type profileList struct {
	Current  string                          `json:"current" yaml:"current"`
	Profiles map[string]*credentials.Profile `json:"profiles" yaml:"profiles"`
	names    []string
}

func (l profileList) Headers() []string {
	return []string{"", "Name", "Address", "User", "Last used"}
}

func (l profileList) Rows() [][]string {
	rows := make([][]string, 0, len(l.names))
	for _, name := range l.names {
		p := l.Profiles[name]
		marker := ""
		if name == l.Current {
			marker = "*"
		}
		rows = append(rows, []string{marker, name, p.Address, p.Username, timeutil.Relative(p.LastUsed)})
	}
	return rows
}

func runProfileList(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(profileOutput)
	if err != nil {
		return err
	}
	store, err := credentials.NewStore()
	if err != nil {
		return err
	}

	l := profileList{Profiles: map[string]*credentials.Profile{}, names: store.Names()}
	if name, _, err := store.Current(); err == nil {
		l.Current = name
	}
	for _, name := range l.names {
		l.Profiles[name], _ = store.Get(name)
	}

	pr := output.NewPrinter(cmd.OutOrStdout(), format, true)
	if len(l.names) == 0 && format == output.FormatTable {
		pr.Println("No profiles. Add one with: filebox profile add <name> <host[:port]>")
		return nil
	}
	return pr.Print(l)
}

func runProfileRemove(cmd *cobra.Command, args []string) error {
	ok, err := prompt.ConfirmWithForce(fmt.Sprintf("Remove profile %s?", args[0]), profileForce)
	if err != nil || !ok {
		return err
	}
	store, err := credentials.NewStore()
	if err != nil {
		return err
	}
	if err := store.Delete(args[0]); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Profile %s removed\n", args[0])
	return nil
}
