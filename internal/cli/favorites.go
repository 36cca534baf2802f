package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-billsplit/internal/cache"
	"github.com/tbourn/go-billsplit/internal/domain"
	"github.com/tbourn/go-billsplit/internal/favorites"
)

// NewFavoritesCmd creates the favorites command group.
func NewFavoritesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "favorites",
		Aliases: []string{"fav", "favs"},
		Short:   "List and edit favorite contacts",
	}
	cmd.AddCommand(
		newFavoritesListCmd(),
		newFavoritesAddCmd(),
		newFavoritesRmCmd(),
	)
	return cmd
}

func newFavoritesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show favorites (cache first)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()
			if err := ctx.RequireToken(); err != nil {
				return writeCommandError(cmd, err)
			}

			refresh, _ := cmd.Flags().GetBool("refresh")
			rctx := cmd.Context()

			p, err := ctx.Profile(rctx, refresh)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			var list []domain.FavoriteContact
			if refresh {
				list = ctx.Cache.LoadFavorites(rctx, ctx.Config.Token, p.Friends, true)
			} else {
				list = ctx.Cache.Revalidate(rctx, ctx.Config.Token, p.Friends)
			}

			if ctx.JSONMode {
				return writeJSON(cmd, list)
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No favorites yet. Find people with 'splitctl search <name>'.")
				return nil
			}
			out := cmd.OutOrStdout()
			for _, c := range list {
				fmt.Fprintf(out, "%-24s %s\n", c.Name, c.MailID)
			}
			at, ok := ctx.Store.UpdatedAt(rctx, cache.KeyFavorites)
			fmt.Fprintf(out, "\n%d of %d favorites, %s\n", len(list), ctx.Config.FavoritesLimit, cachedAt(at, ok))
			return nil
		},
	}
	cmd.Flags().Bool("refresh", false, "bypass the cache and reload from the directory")
	return cmd
}

func newFavoritesAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <email>...",
		Short: "Add contacts to favorites and save",
		Long:  "Adds every email as a pending favorite and saves them in order. When one fails, the ones before it stay saved.",
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
			rctx := cmd.Context()

			p, err := ctx.Profile(rctx, true)
			if err != nil {
				return writeCommandError(cmd, err)
			}

			emails := make([]string, 0, len(args))
			for _, a := range args {
				emails = append(emails, domain.NormalizeEmail(a))
			}
			known, err := ctx.Client.FriendDetails(rctx, ctx.Config.Token, emails)
			if err != nil {
				return writeCommandError(cmd, err)
			}

			s := openSession(cmd, ctx, p)
			defer s.Close()

			for _, e := range emails {
				i := domain.IndexOfFavorite(known, e)
				if i < 0 {
					return writeCommandError(cmd, fmt.Errorf("%s is not registered", e))
				}
				if err := s.Add(known[i]); err != nil {
					if errors.Is(err, favorites.ErrAlreadyFavorite) {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s is already a favorite\n", e)
						continue
					}
					return writeErrorText(cmd, favorites.ErrorText(err, ctx.Config.FavoritesLimit), err)
				}
			}

			if err := s.Save(rctx); err != nil {
				return writeErrorText(cmd, s.View().Error, err)
			}
			v := s.View()
			if ctx.JSONMode {
				return writeJSON(cmd, v.Working)
			}
			fmt.Fprintln(cmd.OutOrStdout(), v.Message)
			return nil
		},
	}
}

func newFavoritesRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <email>",
		Aliases: []string{"remove"},
		Short:   "Remove a favorite",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()
			if err := ctx.RequireToken(); err != nil {
				return writeCommandError(cmd, err)
			}
			rctx := cmd.Context()

			p, err := ctx.Profile(rctx, true)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			s := openSession(cmd, ctx, p)
			defer s.Close()

			email := domain.NormalizeEmail(args[0])
			if err := s.Remove(rctx, email); err != nil {
				return writeCommandError(cmd, err)
			}
			v := s.View()
			if ctx.JSONMode {
				return writeJSON(cmd, v.Working)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from favorites.\n", email)
			return nil
		},
	}
}

// openSession starts an edit session over the caller's favorites.
func openSession(cmd *cobra.Command, ctx *CommandContext, p domain.UserProfile) *favorites.Session {
	return favorites.Open(cmd.Context(), ctx.Cache, ctx.Client, ctx.Config.Token, p.Friends,
		favorites.WithLimit(ctx.Config.FavoritesLimit),
		favorites.WithDebounce(ctx.Config.SearchDebounce),
		favorites.WithMinChars(ctx.Config.SearchMinChars),
		favorites.WithSelf(p.MailID),
	)
}
