// Package cache implements the client-side Cache Manager: the single shared
// view of the favorites and groups collections, mediating between the
// in-memory state, a persistent key/value store and the remote directory.
//
// Reads never fail. Every store or directory failure degrades to a safe
// value (the persisted copy, an identifier-derived fallback, or an empty
// collection) and is logged.
//
// The state mutex is never held across I/O. The per-collection loading flag
// is advisory: two overlapping loads may both reach the directory, and the
// last one to finish wins.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-billsplit/internal/domain"
)

// Persisted keys.
const (
	KeyFavorites = "favorites"
	KeyGroups    = "groups"
	KeyProfile   = "current-user-profile"
)

// Store is durable key/value storage holding JSON documents.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Directory is the subset of the remote directory the cache reads from.
type Directory interface {
	FriendDetails(ctx context.Context, credential string, emails []string) ([]domain.FavoriteContact, error)
	Groups(ctx context.Context, credential string) ([]json.RawMessage, error)
	Me(ctx context.Context, credential string) (json.RawMessage, error)
}

// EntryState is a copy of one cached collection and its flags.
type EntryState[T any] struct {
	Items   []T
	Loaded  bool
	Loading bool
}

type entry[T any] struct {
	items   []T
	loaded  bool
	loading bool
}

func (e *entry[T]) state() EntryState[T] {
	return EntryState[T]{Items: clone(e.items), Loaded: e.loaded, Loading: e.loading}
}

// Manager owns the favorites and groups collections. Construct one per
// signed-in process and share it by reference; ClearStore returns it to its
// initial state on logout.
type Manager struct {
	store   Store
	dir     Directory
	tracer  trace.Tracer
	metrics *metrics

	// writeMu orders state changes with their persistence so the store ends
	// up holding the latest in-memory snapshot. It is never taken by readers.
	writeMu sync.Mutex

	mu        sync.Mutex
	favorites entry[domain.FavoriteContact]
	groups    entry[json.RawMessage]
	// epoch is bumped by ClearStore; loads started in an older epoch do not
	// adopt their results.
	epoch uint64
}

// Option configures a Manager.
type Option func(*Manager)

// WithRegisterer registers the cache metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(m *Manager) { m.metrics = newMetrics(reg) }
}

// New returns an empty, unloaded Manager.
func New(store Store, dir Directory, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		dir:     dir,
		tracer:  otel.Tracer("cache/Manager"),
		metrics: newMetrics(nil),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// LoadFavorites returns the favorites of the owner whose friend identifiers
// are ids, cache first.
//
// A loaded, non-empty in-memory collection is returned as-is unless force is
// set. An empty ids yields an empty loaded collection without I/O. Otherwise
// the persisted collection is adopted when its identifier set equals ids
// (skipped when forcing), then the directory is asked; if that fails the
// collection falls back to one entry per identifier named after its local
// part. Every path leaves the collection loaded.
func (m *Manager) LoadFavorites(ctx context.Context, credential string, ids []string, force bool) []domain.FavoriteContact {
	ctx, span := m.tracer.Start(ctx, "LoadFavorites", trace.WithAttributes(
		attribute.Int("ids", len(ids)),
		attribute.Bool("force", force),
	))
	defer span.End()

	m.mu.Lock()
	if m.favorites.loaded && !force && len(m.favorites.items) > 0 {
		out := clone(m.favorites.items)
		m.mu.Unlock()
		m.done(span, KeyFavorites, sourceMemory)
		return out
	}
	if len(ids) == 0 {
		m.favorites.items = []domain.FavoriteContact{}
		m.favorites.loaded = true
		m.mu.Unlock()
		m.done(span, KeyFavorites, sourceEmpty)
		return []domain.FavoriteContact{}
	}
	m.favorites.loading = true
	epoch := m.epoch
	m.mu.Unlock()
	defer m.setLoading(&m.favorites.loading, epoch)

	if !force {
		var stored []domain.FavoriteContact
		if m.read(ctx, KeyFavorites, &stored) && sameIDs(domain.MailIDs(stored), ids) {
			stored = domain.DedupeFavorites(stored)
			m.adoptFavorites(epoch, stored)
			m.done(span, KeyFavorites, sourcePersisted)
			return clone(stored)
		}
	}

	list, err := m.fetchFavorites(ctx, credential, ids)
	if err != nil {
		log.Warn().Err(err).Int("ids", len(ids)).Msg("cache: friend details unavailable, using fallback names")
		span.RecordError(err)
		fb := fallback(ids)
		m.adoptFavorites(epoch, fb)
		m.done(span, KeyFavorites, sourceFallback)
		return clone(fb)
	}

	list = domain.DedupeFavorites(list)
	m.writeMu.Lock()
	if m.adoptFavorites(epoch, list) {
		m.persist(ctx, KeyFavorites, list)
	}
	m.writeMu.Unlock()
	m.done(span, KeyFavorites, sourceRemote)
	return clone(list)
}

// LoadGroups returns the caller's groups, cache first. The persisted copy is
// adopted whenever it decodes as a JSON array; a directory failure yields an
// empty collection. Every path leaves the collection loaded.
func (m *Manager) LoadGroups(ctx context.Context, credential string, force bool) []json.RawMessage {
	ctx, span := m.tracer.Start(ctx, "LoadGroups", trace.WithAttributes(attribute.Bool("force", force)))
	defer span.End()

	m.mu.Lock()
	if m.groups.loaded && !force && len(m.groups.items) > 0 {
		out := clone(m.groups.items)
		m.mu.Unlock()
		m.done(span, KeyGroups, sourceMemory)
		return out
	}
	m.groups.loading = true
	epoch := m.epoch
	m.mu.Unlock()
	defer m.setLoading(&m.groups.loading, epoch)

	if !force {
		var stored []json.RawMessage
		// a stored JSON null decodes to a nil slice and is not an array
		if m.read(ctx, KeyGroups, &stored) && stored != nil {
			m.adoptGroups(epoch, stored)
			m.done(span, KeyGroups, sourcePersisted)
			return clone(stored)
		}
	}

	groups, err := m.fetchGroups(ctx, credential)
	if err != nil {
		log.Warn().Err(err).Msg("cache: groups unavailable")
		span.RecordError(err)
		m.adoptGroups(epoch, []json.RawMessage{})
		m.done(span, KeyGroups, sourceFallback)
		return []json.RawMessage{}
	}
	if groups == nil {
		groups = []json.RawMessage{}
	}

	m.writeMu.Lock()
	if m.adoptGroups(epoch, groups) {
		m.persist(ctx, KeyGroups, groups)
	}
	m.writeMu.Unlock()
	m.done(span, KeyGroups, sourceRemote)
	return clone(groups)
}

// UpdateFavorites replaces the favorites collection and persists it. The
// loaded flag is left as it is.
func (m *Manager) UpdateFavorites(ctx context.Context, list []domain.FavoriteContact) {
	list = domain.DedupeFavorites(list)

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	m.favorites.items = list
	m.mu.Unlock()
	m.persist(ctx, KeyFavorites, list)
}

// AddFavoriteToCache appends c to the current favorites, persists them and
// returns the updated collection. A contact already present is left alone.
func (m *Manager) AddFavoriteToCache(ctx context.Context, c domain.FavoriteContact) []domain.FavoriteContact {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	if domain.IndexOfFavorite(m.favorites.items, c.MailID) >= 0 {
		out := clone(m.favorites.items)
		m.mu.Unlock()
		return out
	}
	m.favorites.items = append(clone(m.favorites.items), c)
	snap := clone(m.favorites.items)
	m.mu.Unlock()

	m.persist(ctx, KeyFavorites, snap)
	return snap
}

// RemoveFavoriteFromCache drops mailID from the current favorites, persists
// them and returns the updated collection.
func (m *Manager) RemoveFavoriteFromCache(ctx context.Context, mailID string) []domain.FavoriteContact {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	i := domain.IndexOfFavorite(m.favorites.items, mailID)
	if i < 0 {
		out := clone(m.favorites.items)
		m.mu.Unlock()
		return out
	}
	next := make([]domain.FavoriteContact, 0, len(m.favorites.items)-1)
	next = append(next, m.favorites.items[:i]...)
	next = append(next, m.favorites.items[i+1:]...)
	m.favorites.items = next
	snap := clone(next)
	m.mu.Unlock()

	m.persist(ctx, KeyFavorites, snap)
	return snap
}

// InvalidateFavorites marks favorites stale. The content stays until the next
// load replaces it.
func (m *Manager) InvalidateFavorites() {
	m.mu.Lock()
	m.favorites.loaded = false
	m.mu.Unlock()
}

// InvalidateGroups marks groups stale.
func (m *Manager) InvalidateGroups() {
	m.mu.Lock()
	m.groups.loaded = false
	m.mu.Unlock()
}

// ClearStore empties both collections, clears their flags and deletes every
// persisted entry, leaving the Manager as New returned it. Loads still in
// flight will not adopt their results.
func (m *Manager) ClearStore(ctx context.Context) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	m.favorites = entry[domain.FavoriteContact]{}
	m.groups = entry[json.RawMessage]{}
	m.epoch++
	m.mu.Unlock()

	for _, key := range []string{KeyFavorites, KeyGroups, KeyProfile} {
		if err := m.store.Delete(ctx, key); err != nil {
			m.metrics.persistFailed(key)
			log.Warn().Err(err).Str("key", key).Msg("cache: delete failed")
		}
	}
}

// Revalidate handles a change of ownership data, such as a new friend list
// after sign-in or a profile refresh. When ids names the same identifier set
// as the loaded favorites nothing happens; otherwise favorites are
// invalidated and loaded again for ids.
func (m *Manager) Revalidate(ctx context.Context, credential string, ids []string) []domain.FavoriteContact {
	m.mu.Lock()
	if m.favorites.loaded && sameIDs(domain.MailIDs(m.favorites.items), ids) {
		out := clone(m.favorites.items)
		m.mu.Unlock()
		return out
	}
	m.favorites.loaded = false
	m.mu.Unlock()
	return m.LoadFavorites(ctx, credential, ids, false)
}

// RefreshProfile fetches the caller's profile from the directory and
// persists it under KeyProfile.
func (m *Manager) RefreshProfile(ctx context.Context, credential string) (domain.UserProfile, error) {
	ctx, span := m.tracer.Start(ctx, "RefreshProfile")
	defer span.End()

	m.mu.Lock()
	epoch := m.epoch
	m.mu.Unlock()

	raw, err := m.fetchProfile(ctx, credential)
	if err != nil {
		span.RecordError(err)
		return domain.UserProfile{}, err
	}
	var p domain.UserProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		span.RecordError(err)
		return domain.UserProfile{}, fmt.Errorf("decode profile: %w", err)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	m.mu.Lock()
	stale := m.epoch != epoch
	m.mu.Unlock()
	if !stale {
		if err := m.store.Put(ctx, KeyProfile, raw); err != nil {
			m.metrics.persistFailed(KeyProfile)
			log.Warn().Err(err).Str("key", KeyProfile).Msg("cache: persist failed")
		}
	}
	return p, nil
}

// Profile returns the persisted profile, if any.
func (m *Manager) Profile(ctx context.Context) (domain.UserProfile, bool) {
	var p domain.UserProfile
	if !m.read(ctx, KeyProfile, &p) {
		return domain.UserProfile{}, false
	}
	return p, true
}

// FavoritesState returns a copy of the favorites entry.
func (m *Manager) FavoritesState() EntryState[domain.FavoriteContact] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.favorites.state()
}

// GroupsState returns a copy of the groups entry.
func (m *Manager) GroupsState() EntryState[json.RawMessage] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.groups.state()
}

// ---- internals ----

// adoptFavorites installs list as the loaded collection unless a ClearStore
// happened since the load began. It reports whether list was adopted.
func (m *Manager) adoptFavorites(epoch uint64, list []domain.FavoriteContact) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch {
		return false
	}
	m.favorites.items = list
	m.favorites.loaded = true
	return true
}

func (m *Manager) adoptGroups(epoch uint64, list []json.RawMessage) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch {
		return false
	}
	m.groups.items = list
	m.groups.loaded = true
	return true
}

func (m *Manager) setLoading(flag *bool, epoch uint64) {
	m.mu.Lock()
	if m.epoch == epoch {
		*flag = false
	}
	m.mu.Unlock()
}

func (m *Manager) done(span trace.Span, collection, source string) {
	span.SetAttributes(attribute.String("source", source))
	m.metrics.load(collection, source)
}

// read decodes the persisted value at key into v. Missing keys, store
// errors and undecodable values all report false.
func (m *Manager) read(ctx context.Context, key string, v any) bool {
	raw, ok, err := m.store.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache: persisted read failed")
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache: discarding undecodable persisted value")
		return false
	}
	return true
}

// persist writes v under key. Callers hold writeMu.
func (m *Manager) persist(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err == nil {
		err = m.store.Put(ctx, key, raw)
	}
	if err != nil {
		m.metrics.persistFailed(key)
		log.Warn().Err(err).Str("key", key).Msg("cache: persist failed")
	}
}

// The fetch helpers turn a panicking directory into an ordinary error so the
// degraded paths still run.

func (m *Manager) fetchFavorites(ctx context.Context, credential string, ids []string) (list []domain.FavoriteContact, err error) {
	defer recoverInto(&err)
	return m.dir.FriendDetails(ctx, credential, clone(ids))
}

func (m *Manager) fetchGroups(ctx context.Context, credential string) (groups []json.RawMessage, err error) {
	defer recoverInto(&err)
	return m.dir.Groups(ctx, credential)
}

func (m *Manager) fetchProfile(ctx context.Context, credential string) (raw json.RawMessage, err error) {
	defer recoverInto(&err)
	return m.dir.Me(ctx, credential)
}

var errDirectoryPanic = errors.New("directory call panicked")

func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %v", errDirectoryPanic, r)
	}
}

// fallback builds one contact per distinct identifier, named after its local
// part.
func fallback(ids []string) []domain.FavoriteContact {
	out := make([]domain.FavoriteContact, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.FallbackContact(id))
	}
	return domain.DedupeFavorites(out)
}

// sameIDs reports whether a and b name the same set of identifiers.
func sameIDs(a, b []string) bool {
	as, bs := distinctSorted(a), distinctSorted(b)
	if len(as) != len(bs) {
		return false
	}
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func distinctSorted(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	n := 0
	for i, id := range out {
		if i > 0 && id == out[n-1] {
			continue
		}
		out[n] = id
		n++
	}
	return out[:n]
}

// clone returns a copy of s that is never nil.
func clone[T any](s []T) []T {
	out := make([]T, len(s))
	copy(out, s)
	return out
}
