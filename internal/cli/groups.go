package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-billsplit/internal/cache"
	"github.com/tbourn/go-billsplit/internal/domain"
)

// NewGroupsCmd creates the groups command group.
func NewGroupsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "groups",
		Short: "List and create bill-splitting groups",
	}
	cmd.AddCommand(newGroupsListCmd(), newGroupsCreateCmd())
	return cmd
}

func newGroupsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show your groups (cache first)",
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

			raw := ctx.Cache.LoadGroups(rctx, ctx.Config.Token, refresh)
			if ctx.JSONMode {
				return writeJSON(cmd, raw)
			}
			groups := decodeGroups(raw)
			if len(groups) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No groups yet. Create one with 'splitctl groups create'.")
				return nil
			}
			out := cmd.OutOrStdout()
			for _, g := range groups {
				fmt.Fprintf(out, "%s  %-20s %d members, %d expenses, created %s\n",
					g.ID, g.Name, len(g.Members), len(g.Expenses), humanize.Time(g.CreatedAt))
			}
			at, ok := ctx.Store.UpdatedAt(rctx, cache.KeyGroups)
			fmt.Fprintf(out, "\n%s\n", cachedAt(at, ok))
			return nil
		},
	}
	cmd.Flags().Bool("refresh", false, "bypass the cache and reload from the directory")
	return cmd
}

func newGroupsCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a group, optionally with a first expense",
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

			req, err := createGroupRequest(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			key, _ := cmd.Flags().GetString("key")
			if key == "" {
				key = uuid.NewString()
			}
			rctx := cmd.Context()

			raw, err := ctx.Client.CreateGroup(rctx, ctx.Config.Token, req, key)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			refreshGroups(rctx, ctx)

			if ctx.JSONMode {
				return writeJSON(cmd, raw)
			}
			var g domain.Group
			if err := json.Unmarshal(raw, &g); err != nil {
				return writeCommandError(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created group %q (%s) with %d members.\n", g.Name, g.ID, len(g.Members))
			return nil
		},
	}
	cmd.Flags().String("name", "", "group name")
	cmd.Flags().StringSlice("member", nil, "member email (repeatable)")
	cmd.Flags().String("amount", "", "first expense amount, e.g. 42.50")
	cmd.Flags().String("paid-by", "", "who paid the first expense (defaults to you)")
	cmd.Flags().String("desc", "", "first expense description")
	cmd.Flags().StringSlice("split", nil, "participants of the first expense (defaults to every member)")
	cmd.Flags().String("key", "", "idempotency key for safe retries (random when empty)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("member")
	return cmd
}

// createGroupRequest builds the request from flags. The expense is included
// only when --amount is given.
func createGroupRequest(cmd *cobra.Command) (domain.CreateGroupRequest, error) {
	name, _ := cmd.Flags().GetString("name")
	members, _ := cmd.Flags().GetStringSlice("member")
	req := domain.CreateGroupRequest{Name: strings.TrimSpace(name), Members: members}

	amount, _ := cmd.Flags().GetString("amount")
	if amount == "" {
		return req, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return req, fmt.Errorf("invalid --amount %q", amount)
	}
	paidBy, _ := cmd.Flags().GetString("paid-by")
	desc, _ := cmd.Flags().GetString("desc")
	split, _ := cmd.Flags().GetStringSlice("split")
	req.Expense = &domain.ExpenseInput{
		Description: desc,
		PaidBy:      paidBy,
		Amount:      d,
		SplitAmong:  split,
	}
	return req, nil
}

// refreshGroups reloads the cached groups after a write.
func refreshGroups(ctx context.Context, c *CommandContext) {
	c.Cache.InvalidateGroups()
	c.Cache.LoadGroups(ctx, c.Config.Token, true)
}

// decodeGroups decodes cached group documents, skipping ones that do not
// parse.
func decodeGroups(raw []json.RawMessage) []domain.Group {
	out := make([]domain.Group, 0, len(raw))
	for _, r := range raw {
		var g domain.Group
		if err := json.Unmarshal(r, &g); err != nil {
			log.Warn().Err(err).Msg("skipping undecodable group")
			continue
		}
		out = append(out, g)
	}
	return out
}
