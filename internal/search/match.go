// Package search implements the textual contact matching shared by the
// directory service and the favorites editor: query normalization, the
// minimum-length gate and folded substring matching on name or address.
//
// Matching is Unicode-aware (full case folding via golang.org/x/text/cases)
// and deterministic. Nothing in this package logs.
package search

import (
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"github.com/tbourn/go-billsplit/internal/domain"
)

// DefaultMinChars is the shortest query that triggers a search.
const DefaultMinChars = 2

// Normalize trims q, collapses inner runs of whitespace to a single space and
// case-folds the result.
func Normalize(q string) string {
	return fold(normalizeWhitespace(strings.TrimSpace(q)))
}

// Valid reports whether q is long enough to search for once normalized.
// A min below 1 is treated as 1.
func Valid(q string, min int) bool {
	if min < 1 {
		min = 1
	}
	return utf8.RuneCountInString(Normalize(q)) >= min
}

// Matches reports whether the contact's name or mailId contains query.
// An empty query matches nothing.
func Matches(query string, c domain.FavoriteContact) bool {
	q := Normalize(query)
	if q == "" {
		return false
	}
	return strings.Contains(fold(c.Name), q) || strings.Contains(fold(c.MailID), q)
}

// Rank returns the contacts matching query, best first: address or name
// prefix matches before inner matches, then by mailId. The input is not
// modified. limit <= 0 means no limit.
func Rank(query string, contacts []domain.FavoriteContact, limit int) []domain.FavoriteContact {
	q := Normalize(query)
	out := make([]domain.FavoriteContact, 0, len(contacts))
	if q == "" {
		return out
	}
	type scored struct {
		c      domain.FavoriteContact
		prefix bool
	}
	hits := make([]scored, 0, len(contacts))
	for _, c := range contacts {
		name, mail := fold(c.Name), fold(c.MailID)
		if !strings.Contains(name, q) && !strings.Contains(mail, q) {
			continue
		}
		hits = append(hits, scored{c: c, prefix: strings.HasPrefix(name, q) || strings.HasPrefix(mail, q)})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].prefix != hits[j].prefix {
			return hits[i].prefix
		}
		return hits[i].c.MailID < hits[j].c.MailID
	})
	for _, h := range hits {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, h.c)
	}
	return out
}

// fold uses a fresh Caser per call; Casers are stateful and not safe to share.
func fold(s string) string {
	return cases.Fold().String(s)
}

func normalizeWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\r' || r == '\n' {
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
			continue
		}
		prevSpace = false
		b.WriteRune(r)
	}
	return b.String()
}
