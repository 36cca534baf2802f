package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewLogoutCmd creates the logout command.
func NewLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget cached favorites, groups and profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			ctx.Cache.ClearStore(cmd.Context())
			if ctx.JSONMode {
				return writeJSON(cmd, map[string]bool{"cleared": true})
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Local cache cleared.")
			return nil
		},
	}
}
