package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-billsplit/internal/domain"
	"github.com/tbourn/go-billsplit/internal/settlement"
)

// NewSettleCmd creates the settle command.
func NewSettleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "settle <group-id>",
		Short: "Show who pays whom to settle a group",
		Long:  "Splits every expense of the group equally among its participants and nets opposite debts into single transfers. Uses cached groups when available.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()
			rctx := cmd.Context()

			g, ok := findGroup(decodeGroups(ctx.Cache.LoadGroups(rctx, ctx.Config.Token, false)), args[0])
			if !ok && ctx.Config.Token != "" {
				g, ok = findGroup(decodeGroups(ctx.Cache.LoadGroups(rctx, ctx.Config.Token, true)), args[0])
			}
			if !ok {
				return writeCommandError(cmd, fmt.Errorf("group %s not found", args[0]))
			}

			transfers := settlement.ForGroup(g)
			if transfers == nil {
				transfers = []settlement.Transfer{}
			}
			if ctx.JSONMode {
				return writeJSON(cmd, map[string]any{
					"group":     g.ID,
					"transfers": transfers,
					"total":     settlement.Total(transfers),
				})
			}
			out := cmd.OutOrStdout()
			if len(transfers) == 0 {
				fmt.Fprintf(out, "%s is settled up.\n", g.Name)
				return nil
			}
			fmt.Fprintf(out, "To settle %s:\n", g.Name)
			for _, t := range transfers {
				fmt.Fprintf(out, "  %s pays %s %s\n", t.From, t.To, t.Amount.StringFixed(2))
			}
			fmt.Fprintf(out, "%d transfers, %s in total\n", len(transfers), settlement.Total(transfers).StringFixed(2))
			return nil
		},
	}
}

func findGroup(groups []domain.Group, id string) (domain.Group, bool) {
	for _, g := range groups {
		if g.ID == id {
			return g, true
		}
	}
	return domain.Group{}, false
}
