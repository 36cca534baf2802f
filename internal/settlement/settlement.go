// Package settlement turns shared expenses into the transfers that settle
// them. Debts between the same two people are netted pairwise: opposite
// debts cancel and a single transfer carries the difference.
//
// Amounts are decimal and split in cents; no floating point is involved.
package settlement

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/tbourn/go-billsplit/internal/domain"
)

// Split is one debt: Debtor owes Creditor Amount.
type Split struct {
	Debtor   string          `json:"debtor"`
	Creditor string          `json:"creditor"`
	Amount   decimal.Decimal `json:"amount"`
}

// Transfer is one payment that settles netted debts.
type Transfer struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

// EqualSplits shares e equally among its participants (members when the
// expense names none). The amount is divided in cents and leftover cents go
// to the first participants in order, so the shares always add up to the
// amount. The payer's own share is not a debt and is omitted. Non-positive
// amounts and expenses without participants yield nil.
func EqualSplits(e domain.Expense, members []string) []Split {
	people := distinct(e.Participants(members))
	if len(people) == 0 || !e.Amount.IsPositive() {
		return nil
	}

	cents := e.Amount.Round(2).Shift(2).IntPart()
	n := int64(len(people))
	share, rem := cents/n, cents%n

	var out []Split
	for i, p := range people {
		c := share
		if int64(i) < rem {
			c++
		}
		if p == e.PaidBy || c == 0 {
			continue
		}
		out = append(out, Split{Debtor: p, Creditor: e.PaidBy, Amount: decimal.New(c, -2)})
	}
	return out
}

// Consolidate nets splits pairwise and returns the remaining transfers
// sorted by (From, To). Pairs whose debts cancel out produce no transfer,
// nor do splits where debtor and creditor coincide.
func Consolidate(splits []Split) []Transfer {
	type pair struct{ lo, hi string }
	// balance[p] > 0 means p.lo owes p.hi
	balance := make(map[pair]decimal.Decimal)
	for _, s := range splits {
		switch {
		case s.Debtor == s.Creditor:
			continue
		case s.Debtor < s.Creditor:
			k := pair{s.Debtor, s.Creditor}
			balance[k] = balance[k].Add(s.Amount)
		default:
			k := pair{s.Creditor, s.Debtor}
			balance[k] = balance[k].Sub(s.Amount)
		}
	}

	out := make([]Transfer, 0, len(balance))
	for k, b := range balance {
		switch b.Sign() {
		case 1:
			out = append(out, Transfer{From: k.lo, To: k.hi, Amount: b})
		case -1:
			out = append(out, Transfer{From: k.hi, To: k.lo, Amount: b.Neg()})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// ForGroup settles every expense of g.
func ForGroup(g domain.Group) []Transfer {
	var splits []Split
	for _, e := range g.Expenses {
		splits = append(splits, EqualSplits(e, g.Members)...)
	}
	return Consolidate(splits)
}

// Total sums the amounts of ts.
func Total(ts []Transfer) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range ts {
		sum = sum.Add(t.Amount)
	}
	return sum
}

func distinct(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
