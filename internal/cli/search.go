package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-billsplit/internal/favorites"
	"github.com/tbourn/go-billsplit/internal/search"
)

// NewSearchCmd creates the search command.
func NewSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Find people to add to favorites",
		Long:  "Searches the directory by name or email. Current favorites and yourself are left out.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()
			if err := ctx.RequireToken(); err != nil {
				return writeCommandError(cmd, err)
			}

			q := strings.Join(args, " ")
			if !search.Valid(q, ctx.Config.SearchMinChars) {
				return writeCommandError(cmd, fmt.Errorf("type at least %d characters to search", ctx.Config.SearchMinChars))
			}
			rctx := cmd.Context()

			p, err := ctx.Profile(rctx, false)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			working := ctx.Cache.LoadFavorites(rctx, ctx.Config.Token, p.Friends, false)

			found, err := ctx.Client.Search(rctx, ctx.Config.Token, search.Normalize(q))
			if err != nil {
				return writeCommandError(cmd, err)
			}
			results := favorites.FilterResults(found, working, p.MailID)

			if ctx.JSONMode {
				return writeJSON(cmd, results)
			}
			if len(results) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No one new matches %q.\n", q)
				return nil
			}
			for _, c := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %s\n", c.Name, c.MailID)
			}
			return nil
		},
	}
}
