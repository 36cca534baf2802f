package favorites

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-billsplit/internal/domain"
	"github.com/tbourn/go-billsplit/internal/search"
)

// SetQuery records q as the active search and schedules a directory search
// after the debounce delay. Every call cancels the previously scheduled
// search, and a response is only applied while its query is still the
// active one. Queries shorter than the minimum clear the results.
//
// The search itself runs with ctx, so it should outlive the keystroke that
// triggered it.
func (s *Session) SetQuery(ctx context.Context, q string) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.query = q
	s.searchGen++
	gen := s.searchGen
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if !search.Valid(q, s.minChars) {
		s.results = nil
		v := s.viewLocked()
		s.mu.Unlock()
		s.emit(v)
		return
	}
	s.timer = time.AfterFunc(s.debounce, func() { s.runSearch(ctx, gen, q) })
	s.mu.Unlock()
}

func (s *Session) runSearch(ctx context.Context, gen uint64, q string) {
	s.mu.Lock()
	if gen != s.searchGen || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	found, err := s.dir.Search(ctx, s.credential, strings.TrimSpace(q))

	s.mu.Lock()
	if gen != s.searchGen || s.state == StateClosed {
		// stale: the query changed or the session went away
		s.mu.Unlock()
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("query", q).Msg("favorites: search failed")
		s.results = nil
	} else {
		s.results = FilterResults(found, s.working, s.self)
	}
	v := s.viewLocked()
	s.mu.Unlock()
	s.emit(v)
}

// resetSearch clears the query and results and orphans any scheduled or
// in-flight search. Callers hold s.mu.
func (s *Session) resetSearch() {
	s.query = ""
	s.results = nil
	s.searchGen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) emit(v View) {
	if s.notify != nil {
		s.notify(v)
	}
}

// FilterResults drops from found every contact already in working, the
// caller's own identifier (when self is non-empty) and repeated entries.
// Identifiers are compared case-insensitively.
func FilterResults(found, working []domain.FavoriteContact, self string) []domain.FavoriteContact {
	skip := make(map[string]struct{}, len(working)+1)
	for _, c := range working {
		skip[domain.NormalizeEmail(c.MailID)] = struct{}{}
	}
	if self != "" {
		skip[domain.NormalizeEmail(self)] = struct{}{}
	}
	out := make([]domain.FavoriteContact, 0, len(found))
	for _, c := range found {
		k := domain.NormalizeEmail(c.MailID)
		if _, ok := skip[k]; ok {
			continue
		}
		skip[k] = struct{}{}
		out = append(out, c)
	}
	return out
}
