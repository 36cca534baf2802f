// Package services – DirectoryService
//
// This file implements DirectoryService, which answers the client's questions
// about people: who a bearer token belongs to, display names for a list of
// friend emails, contact search, and the friend edges that make up a user's
// favorites. Friend additions are idempotent so a retried save does not fail.
//
// Observability: public methods are OpenTelemetry-instrumented with the
// caller's email as an attribute.
package services

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-billsplit/internal/domain"
	"github.com/tbourn/go-billsplit/internal/repo"
	"github.com/tbourn/go-billsplit/internal/search"
)

// DirectoryService coordinates user lookup and friendship persistence.
type DirectoryService struct {
	DB *gorm.DB

	// SearchLimit caps search results when the caller asks for none or more.
	SearchLimit int
	// MinQueryChars is the shortest accepted search query.
	MinQueryChars int
	// MaxDetails caps the emails accepted by FriendDetails.
	MaxDetails int
}

// NewDirectoryService constructs a DirectoryService with default limits.
func NewDirectoryService(db *gorm.DB) *DirectoryService {
	return &DirectoryService{
		DB:            db,
		SearchLimit:   20,
		MinQueryChars: search.DefaultMinChars,
		MaxDetails:    200,
	}
}

func (s *DirectoryService) span(ctx context.Context, name, caller string) (context.Context, trace.Span) {
	return otel.Tracer("services/DirectoryService").Start(ctx, name,
		trace.WithAttributes(attribute.String("user.email", caller)),
	)
}

// Authenticate resolves a bearer token to its user.
func (s *DirectoryService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrUnauthorized
	}
	u, err := repo.GetUserByToken(ctx, s.DB, token)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return u, nil
}

// Seed inserts or refreshes the given users. It is used at startup to
// provision accounts from configuration.
func (s *DirectoryService) Seed(ctx context.Context, users []domain.User) error {
	for i := range users {
		users[i].Email = domain.NormalizeEmail(users[i].Email)
		if !ValidEmail(users[i].Email) {
			return ErrInvalidEmail
		}
	}
	return repo.UpsertUsers(ctx, s.DB, users)
}

// FriendDetails returns contacts for the registered users among emails, in
// the order requested. Unknown and repeated emails are skipped.
func (s *DirectoryService) FriendDetails(ctx context.Context, caller string, emails []string) ([]domain.FavoriteContact, error) {
	ctx, span := s.span(ctx, "FriendDetails", caller)
	defer span.End()
	span.SetAttributes(attribute.Int("emails", len(emails)))

	if s.MaxDetails > 0 && len(emails) > s.MaxDetails {
		return nil, ErrTooManyEmails
	}
	users, err := repo.GetUsersByEmails(ctx, s.DB, emails)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return toContacts(users), nil
}

// Search returns users whose email or name contains q, excluding the caller,
// best matches first. limit <= 0 or above SearchLimit is clamped to
// SearchLimit.
func (s *DirectoryService) Search(ctx context.Context, caller, q string, limit int) ([]domain.FavoriteContact, error) {
	ctx, span := s.span(ctx, "Search", caller)
	defer span.End()

	if !search.Valid(q, s.MinQueryChars) {
		return nil, ErrQueryTooShort
	}
	if s.SearchLimit > 0 && (limit <= 0 || limit > s.SearchLimit) {
		limit = s.SearchLimit
	}
	span.SetAttributes(attribute.Int("search.limit", limit))

	// The store returns matches in name order; ranking puts prefix matches
	// first, so fetch a wider candidate set before the final cut.
	users, err := repo.SearchUsers(ctx, s.DB, strings.Join(strings.Fields(q), " "), caller, limit*4)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	out := search.Rank(q, toContacts(users), limit)
	span.SetAttributes(attribute.Int("search.results", len(out)))
	return out, nil
}

// AddFriend records friend as a favorite of caller. Adding an existing friend
// succeeds without change.
func (s *DirectoryService) AddFriend(ctx context.Context, caller, friend string) error {
	ctx, span := s.span(ctx, "AddFriend", caller)
	defer span.End()

	friend = domain.NormalizeEmail(friend)
	if !ValidEmail(friend) {
		return ErrInvalidEmail
	}
	if friend == domain.NormalizeEmail(caller) {
		return ErrSelfFriend
	}
	if _, err := repo.GetUser(ctx, s.DB, friend); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if _, err := repo.AddFriendship(ctx, s.DB, caller, friend); err != nil && !errors.Is(err, repo.ErrDuplicate) {
		span.RecordError(err)
		return err
	}
	return nil
}

// RemoveFriend deletes the caller→friend edge.
func (s *DirectoryService) RemoveFriend(ctx context.Context, caller, friend string) error {
	ctx, span := s.span(ctx, "RemoveFriend", caller)
	defer span.End()

	friend = domain.NormalizeEmail(friend)
	if !ValidEmail(friend) {
		return ErrInvalidEmail
	}
	if err := repo.RemoveFriendship(ctx, s.DB, caller, friend); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFriend
		}
		span.RecordError(err)
		return err
	}
	return nil
}

// Me returns the caller's profile: name, friend emails in the order they were
// added, and the number of groups the caller belongs to.
func (s *DirectoryService) Me(ctx context.Context, caller string) (*domain.UserProfile, error) {
	ctx, span := s.span(ctx, "Me", caller)
	defer span.End()

	u, err := repo.GetUser(ctx, s.DB, caller)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	friends, err := repo.ListFriendEmails(ctx, s.DB, u.Email)
	if err != nil {
		return nil, err
	}
	n, err := repo.CountGroupsForUser(ctx, s.DB, u.Email)
	if err != nil {
		return nil, err
	}
	return &domain.UserProfile{MailID: u.Email, Name: u.Name, Friends: friends, GroupCount: n}, nil
}

// ValidEmail reports whether s looks like local@domain with no whitespace.
func ValidEmail(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t\r\n") {
		return false
	}
	at := strings.IndexByte(s, '@')
	return at > 0 && at == strings.LastIndexByte(s, '@') && at < len(s)-1
}

func toContacts(users []domain.User) []domain.FavoriteContact {
	out := make([]domain.FavoriteContact, 0, len(users))
	for _, u := range users {
		out = append(out, domain.FavoriteContact{MailID: u.Email, Name: u.Name})
	}
	return out
}
