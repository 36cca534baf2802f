// Package favorites implements the optimistic edit session behind the
// favorites screen: additions stay pending until Save commits them one by
// one, Cancel rolls them back, and removals of committed favorites go to the
// directory immediately. A debounced contact search runs alongside.
//
// A Session is safe for concurrent use. Directory and cache calls run
// without the session lock held; their results are dropped if the session
// was closed in the meantime.
package favorites

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tbourn/go-billsplit/internal/domain"
	"github.com/tbourn/go-billsplit/internal/search"
)

// DefaultLimit is the favorites ceiling.
const DefaultLimit = 20

// DefaultDebounce is the delay between the last query change and the search.
const DefaultDebounce = 300 * time.Millisecond

// Cache is the part of the Cache Manager a session needs.
type Cache interface {
	LoadFavorites(ctx context.Context, credential string, ids []string, force bool) []domain.FavoriteContact
	UpdateFavorites(ctx context.Context, list []domain.FavoriteContact)
	RemoveFavoriteFromCache(ctx context.Context, mailID string) []domain.FavoriteContact
	RefreshProfile(ctx context.Context, credential string) (domain.UserProfile, error)
}

// Directory is the part of the remote directory a session writes to.
type Directory interface {
	AddFriend(ctx context.Context, credential, friendEmail string) error
	RemoveFriend(ctx context.Context, credential, friendEmail string) error
	Search(ctx context.Context, credential, q string) ([]domain.FavoriteContact, error)
}

// State is the session's position in its edit cycle.
type State int

const (
	// StateIdle: working equals original, nothing pending.
	StateIdle State = iota
	// StateEditing: at least one addition is pending.
	StateEditing
	// StateCommitting: a save or a committed removal is in flight.
	StateCommitting
	// StateClosed: the session was torn down.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEditing:
		return "editing"
	case StateCommitting:
		return "committing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// View is an immutable snapshot of a session.
type View struct {
	State    State
	Original []domain.FavoriteContact
	Working  []domain.FavoriteContact
	Pending  []string // insertion order
	Results  []domain.FavoriteContact
	Query    string
	Message  string
	Error    string
}

// Option configures a Session.
type Option func(*Session)

// WithLimit overrides the favorites ceiling.
func WithLimit(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.limit = n
		}
	}
}

// WithDebounce overrides the search debounce delay.
func WithDebounce(d time.Duration) Option {
	return func(s *Session) {
		if d >= 0 {
			s.debounce = d
		}
	}
}

// WithMinChars overrides the minimum query length.
func WithMinChars(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.minChars = n
		}
	}
}

// WithSelf excludes the caller's own identifier from search results.
func WithSelf(mailID string) Option {
	return func(s *Session) { s.self = mailID }
}

// WithNotify registers fn to receive a View after every asynchronous change
// (search results arriving). fn runs on the goroutine that made the change.
func WithNotify(fn func(View)) Option {
	return func(s *Session) { s.notify = fn }
}

// Session is one visit to the favorites editor.
type Session struct {
	cache      Cache
	dir        Directory
	credential string

	limit    int
	debounce time.Duration
	minChars int
	self     string
	notify   func(View)

	mu       sync.Mutex
	state    State
	original []domain.FavoriteContact
	working  []domain.FavoriteContact
	pending  []string
	results  []domain.FavoriteContact
	query    string
	message  string
	errText  string

	// searchGen identifies the latest query; responses for older ones are
	// dropped.
	searchGen uint64
	timer     *time.Timer
}

// Open starts a session over the favorites of the owner whose friend
// identifiers are ownerIDs. original and working both start as the cache's
// current collection.
func Open(ctx context.Context, cache Cache, dir Directory, credential string, ownerIDs []string, opts ...Option) *Session {
	s := &Session{
		cache:      cache,
		dir:        dir,
		credential: credential,
		limit:      DefaultLimit,
		debounce:   DefaultDebounce,
		minChars:   search.DefaultMinChars,
	}
	for _, o := range opts {
		o(s)
	}
	list := cache.LoadFavorites(ctx, credential, ownerIDs, false)
	s.original = clone(list)
	s.working = clone(list)
	return s
}

// Add appends c to the working list as a pending addition and drops it from
// the search results.
func (s *Session) Add(c domain.FavoriteContact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.editable(); err != nil {
		return err
	}
	if len(s.working) >= s.limit {
		s.message = ""
		s.errText = ErrorText(ErrCapacityExceeded, s.limit)
		return ErrCapacityExceeded
	}
	if domain.IndexOfFavorite(s.working, c.MailID) >= 0 {
		return ErrAlreadyFavorite
	}

	s.working = append(clone(s.working), c)
	s.pending = append(s.pending, c.MailID)
	s.results = without(s.results, c.MailID)
	s.message, s.errText = "", ""
	s.settle()
	return nil
}

// Remove takes mailID off the list. A pending addition is undone locally
// (and offered again in the search results when it matches the query). A
// committed favorite is removed from the directory right away; on success it
// leaves both working and original and the cache, on failure nothing changes
// and the error is returned.
func (s *Session) Remove(ctx context.Context, mailID string) error {
	s.mu.Lock()
	if err := s.editable(); err != nil {
		s.mu.Unlock()
		return err
	}
	i := domain.IndexOfFavorite(s.working, mailID)
	if i < 0 {
		s.mu.Unlock()
		return ErrNotFavorite
	}
	if p := indexOf(s.pending, mailID); p >= 0 {
		c := s.working[i]
		s.working = without(s.working, mailID)
		s.pending = append(s.pending[:p:p], s.pending[p+1:]...)
		if search.Valid(s.query, s.minChars) && search.Matches(s.query, c) &&
			domain.IndexOfFavorite(s.results, mailID) < 0 && !s.isSelf(mailID) {
			s.results = append(clone(s.results), c)
		}
		s.settle()
		s.mu.Unlock()
		return nil
	}
	prev := s.state
	s.state = StateCommitting
	s.message, s.errText = "", ""
	s.mu.Unlock()

	ctx, span := otel.Tracer("favorites/Session").Start(ctx, "Remove")
	defer span.End()

	if err := s.dir.RemoveFriend(ctx, s.credential, mailID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "remove friend failed")
		s.mu.Lock()
		if s.state != StateClosed {
			s.state = prev
			s.errText = ErrorText(err, s.limit)
		}
		s.mu.Unlock()
		return err
	}

	s.cache.RemoveFavoriteFromCache(ctx, mailID)
	s.refreshProfile(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil
	}
	s.working = without(s.working, mailID)
	s.original = without(s.original, mailID)
	s.state = prev
	s.settle()
	return nil
}

// Cancel rolls working back to original and clears pending additions, the
// message, the error, the query and any search in flight.
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.editable(); err != nil {
		return err
	}
	s.working = clone(s.original)
	s.pending = nil
	s.message, s.errText = "", ""
	s.resetSearch()
	s.state = StateIdle
	return nil
}

// Save commits pending additions one at a time, then refreshes the cached
// profile and writes working to the cache. Removals already reached the
// directory, so a save with nothing pending still refreshes and persists.
// The first failing addition aborts the save with that error; additions
// committed before it are not rolled back and the pending set is left as it
// was.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	if err := s.editable(); err != nil {
		s.mu.Unlock()
		return err
	}
	ids := append([]string(nil), s.pending...)
	snapshot := clone(s.working)
	s.state = StateCommitting
	s.message, s.errText = "", ""
	s.mu.Unlock()

	ctx, span := otel.Tracer("favorites/Session").Start(ctx, "Save")
	defer span.End()
	span.SetAttributes(attribute.Int("pending", len(ids)))

	for _, id := range ids {
		if err := s.dir.AddFriend(ctx, s.credential, id); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "add friend failed")
			log.Warn().Err(err).Str("friend", id).Msg("favorites: save aborted")
			s.mu.Lock()
			if s.state != StateClosed {
				s.state = StateEditing
				s.errText = ErrorText(err, s.limit)
			}
			s.mu.Unlock()
			return err
		}
	}

	s.refreshProfile(ctx)
	s.cache.UpdateFavorites(ctx, snapshot)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil
	}
	s.original = clone(snapshot)
	s.working = clone(snapshot)
	s.pending = nil
	s.message = "Favorites saved."
	if len(ids) == 0 {
		s.message = "Nothing to save."
	}
	s.state = StateIdle
	return nil
}

// Close tears the session down. Pending searches are abandoned and results
// of calls still in flight are not applied to the session.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
	s.resetSearch()
}

// View returns a snapshot of the session.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() View {
	return View{
		State:    s.state,
		Original: clone(s.original),
		Working:  clone(s.working),
		Pending:  append([]string{}, s.pending...),
		Results:  clone(s.results),
		Query:    s.query,
		Message:  s.message,
		Error:    s.errText,
	}
}

// editable reports why the session cannot take an edit right now.
func (s *Session) editable() error {
	switch s.state {
	case StateClosed:
		return ErrClosed
	case StateCommitting:
		return ErrBusy
	}
	return nil
}

// settle derives Idle/Editing from the pending set.
func (s *Session) settle() {
	if s.state == StateClosed || s.state == StateCommitting {
		return
	}
	if len(s.pending) > 0 {
		s.state = StateEditing
	} else {
		s.state = StateIdle
	}
}

func (s *Session) refreshProfile(ctx context.Context) {
	if _, err := s.cache.RefreshProfile(ctx, s.credential); err != nil {
		log.Warn().Err(err).Msg("favorites: profile refresh failed")
	}
}

func (s *Session) isSelf(mailID string) bool {
	return s.self != "" && domain.NormalizeEmail(s.self) == domain.NormalizeEmail(mailID)
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

// without returns a copy of list minus mailID.
func without(list []domain.FavoriteContact, mailID string) []domain.FavoriteContact {
	out := make([]domain.FavoriteContact, 0, len(list))
	for _, c := range list {
		if c.MailID != mailID {
			out = append(out, c)
		}
	}
	return out
}

func clone(list []domain.FavoriteContact) []domain.FavoriteContact {
	out := make([]domain.FavoriteContact, len(list))
	copy(out, list)
	return out
}
