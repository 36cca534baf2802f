// Package cli is the splitctl command tree. Commands drive the client core
// the way screens do: the Cache Manager serves favorites and groups, edits go
// through an Optimistic Edit Session and settlements are computed locally
// from cached groups.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// AppName is the binary name used in help and version output.
const AppName = "splitctl"

// Version is overwritten at build time using -ldflags.
var Version = "dev"

// NewRootCmd builds the command tree.
func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           AppName,
		Short:         "splitctl - favorites, groups and settlements from the terminal",
		Long:          "splitctl manages your favorite contacts and bill-splitting groups against a directory service, with a local cache for offline reads.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.Version = version
	cmd.SetVersionTemplate(AppName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().String("api", "", "directory base URL including the API path (env BILLSPLIT_API_URL)")
	cmd.PersistentFlags().String("token", "", "bearer credential (env BILLSPLIT_TOKEN)")
	cmd.PersistentFlags().String("cache-db", "", "local cache database (env CACHE_DB_PATH)")
	cmd.PersistentFlags().Bool("json", false, "output in JSON format")

	cmd.AddCommand(
		NewFavoritesCmd(),
		NewSearchCmd(),
		NewGroupsCmd(),
		NewSettleCmd(),
		NewLogoutCmd(),
		NewVersionCmd(version),
	)

	return cmd
}

// Execute runs the root command with os.Args.
func Execute() error {
	return NewRootCmd(Version).Execute()
}

// NewVersionCmd creates the version command.
func NewVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonMode(cmd) {
				return writeJSON(cmd, map[string]string{"name": AppName, "version": version})
			}
			cmd.Printf("%s version %s\n", AppName, version)
			return nil
		},
	}
}
