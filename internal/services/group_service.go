// Package services – GroupService
//
// This file implements GroupService, which manages groups and their expenses.
// It normalizes names and member lists, checks that every member is a
// registered user, validates the optional first expense and records
// idempotency keys so that a retried create returns the original group.
//
// Service-level errors (e.g., ErrGroupNotFound) are returned for predictable
// cases so handlers can map them to envelope responses consistently.
package services

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-billsplit/internal/domain"
	"github.com/tbourn/go-billsplit/internal/repo"
)

// IdempotencyScopeCreateGroup namespaces group-creation keys in the
// idempotency table.
const IdempotencyScopeCreateGroup = "groups.create"

// GroupRepo defines the repository contract required by GroupService.
type GroupRepo interface {
	// CreateGroup inserts a group with its members and expenses.
	CreateGroup(ctx context.Context, db *gorm.DB, owner, name string, members []string, expenses []domain.Expense) (*domain.Group, error)

	// GetGroup loads a group by id without access checks.
	GetGroup(ctx context.Context, db *gorm.DB, id string) (*domain.Group, error)

	// ListGroupsForUser returns the groups the user owns or belongs to.
	ListGroupsForUser(ctx context.Context, db *gorm.DB, email string) ([]domain.Group, error)

	// GroupsStats fingerprints the user's groups for conditional requests.
	GroupsStats(ctx context.Context, db *gorm.DB, email string) (count, expenses int64, maxUpdatedAt *time.Time, err error)

	// GetUsersByEmails returns the registered users among emails.
	GetUsersByEmails(ctx context.Context, db *gorm.DB, emails []string) ([]domain.User, error)
}

// GroupService provides group creation and listing.
type GroupService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the group repository used by this service.
	Repo GroupRepo

	// NameMaxLen caps stored names by rune length.
	NameMaxLen int
	// MaxMembers caps the member list, caller included.
	MaxMembers int
	// IdempotencyTTL is how long a create key replays its group.
	IdempotencyTTL time.Duration
}

// NewGroupService constructs a GroupService with default limits.
func NewGroupService(db *gorm.DB, r GroupRepo) *GroupService {
	return &GroupService{
		DB:             db,
		Repo:           r,
		NameMaxLen:     100,
		MaxMembers:     50,
		IdempotencyTTL: 24 * time.Hour,
	}
}

// GroupsFingerprint summarizes a user's groups for ETag computation.
type GroupsFingerprint struct {
	Count       int64
	Expenses    int64
	LastUpdated int64 // unix seconds, 0 without groups
}

// List returns every group the caller owns or belongs to, newest first.
func (s *GroupService) List(ctx context.Context, caller string) ([]domain.Group, error) {
	ctx, span := otel.Tracer("services/GroupService").Start(ctx, "List",
		trace.WithAttributes(attribute.String("user.email", caller)),
	)
	defer span.End()

	out, err := s.Repo.ListGroupsForUser(ctx, s.DB, caller)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if out == nil {
		out = []domain.Group{}
	}
	span.SetAttributes(attribute.Int("groups", len(out)))
	return out, nil
}

// Get returns one group if the caller owns it or is a member.
func (s *GroupService) Get(ctx context.Context, caller, id string) (*domain.Group, error) {
	g, err := s.Repo.GetGroup(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}
	caller = domain.NormalizeEmail(caller)
	if g.OwnerEmail == caller || contains(g.Members, caller) {
		return g, nil
	}
	return nil, ErrGroupNotFound
}

// Fingerprint returns the aggregate used for the weak ETag of List.
func (s *GroupService) Fingerprint(ctx context.Context, caller string) (GroupsFingerprint, error) {
	count, expenses, maxTS, err := s.Repo.GroupsStats(ctx, s.DB, caller)
	if err != nil {
		return GroupsFingerprint{}, err
	}
	fp := GroupsFingerprint{Count: count, Expenses: expenses}
	if maxTS != nil {
		fp.LastUpdated = maxTS.Unix()
	}
	return fp, nil
}

// Create validates req and inserts the group. The caller is always a member.
// When key is non-empty and a group was already created with it by the same
// caller, that group is returned with replayed set and nothing is inserted.
func (s *GroupService) Create(ctx context.Context, caller string, req domain.CreateGroupRequest, key string) (g *domain.Group, replayed bool, err error) {
	ctx, span := otel.Tracer("services/GroupService").Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("user.email", caller),
			attribute.Bool("idempotency.key", key != ""),
		),
	)
	defer span.End()

	caller = domain.NormalizeEmail(caller)

	if key != "" && s.DB != nil {
		if rec, err := repo.GetIdempotency(ctx, s.DB, caller, IdempotencyScopeCreateGroup, key, time.Now().UTC()); err == nil && rec != nil {
			if prev, err := s.Repo.GetGroup(ctx, s.DB, rec.ResourceID); err == nil {
				span.SetAttributes(attribute.Bool("idempotency.replayed", true))
				return prev, true, nil
			}
		}
	}

	name := s.clip(normalizeName(req.Name))
	if name == "" {
		return nil, false, ErrEmptyGroupName
	}
	members, err := s.members(ctx, caller, req.Members)
	if err != nil {
		return nil, false, err
	}
	var expenses []domain.Expense
	if req.Expense != nil {
		e, err := buildExpense(caller, members, *req.Expense)
		if err != nil {
			return nil, false, err
		}
		expenses = append(expenses, e)
	}

	g, err = s.Repo.CreateGroup(ctx, s.DB, caller, name, members, expenses)
	if err != nil {
		span.RecordError(err)
		return nil, false, err
	}
	span.SetAttributes(attribute.String("group.id", g.ID), attribute.Int("group.members", len(members)))

	// Best effort: a lost key only costs a duplicate on retry.
	if key != "" && s.DB != nil {
		_, _ = repo.CreateIdempotency(ctx, s.DB, caller, IdempotencyScopeCreateGroup, key, g.ID, http.StatusCreated, s.IdempotencyTTL)
	}
	return g, false, nil
}

// members normalizes raw, adds the caller, drops repeats and checks every
// entry against the directory.
func (s *GroupService) members(ctx context.Context, caller string, raw []string) ([]string, error) {
	out := []string{caller}
	seen := map[string]struct{}{caller: {}}
	for _, m := range raw {
		m = domain.NormalizeEmail(m)
		if m == "" {
			continue
		}
		if !ValidEmail(m) {
			return nil, ErrInvalidEmail
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	if len(out) < 2 {
		return nil, ErrNoMembers
	}
	if s.MaxMembers > 0 && len(out) > s.MaxMembers {
		return nil, ErrInvalidGroupSize
	}
	known, err := s.Repo.GetUsersByEmails(ctx, s.DB, out)
	if err != nil {
		return nil, err
	}
	if len(known) != len(out) {
		return nil, ErrUnknownMember
	}
	return out, nil
}

// buildExpense validates in against the final member list. The payer
// defaults to the caller and participants default to every member.
func buildExpense(caller string, members []string, in domain.ExpenseInput) (domain.Expense, error) {
	if !in.Amount.IsPositive() || !in.Amount.Equal(in.Amount.Round(2)) {
		return domain.Expense{}, ErrInvalidExpense
	}
	paidBy := domain.NormalizeEmail(in.PaidBy)
	if paidBy == "" {
		paidBy = caller
	}
	if !contains(members, paidBy) {
		return domain.Expense{}, ErrInvalidExpense
	}
	var split []string
	seen := map[string]struct{}{}
	for _, p := range in.SplitAmong {
		p = domain.NormalizeEmail(p)
		if p == "" {
			continue
		}
		if !contains(members, p) {
			return domain.Expense{}, ErrInvalidExpense
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		split = append(split, p)
	}
	desc := normalizeName(in.Description)
	if desc == "" {
		desc = "Expense"
	}
	if utf8.RuneCountInString(desc) > 255 {
		desc = string([]rune(desc)[:255])
	}
	return domain.Expense{
		Description: desc,
		PaidBy:      paidBy,
		Amount:      in.Amount.Round(2),
		SplitAmong:  split,
	}, nil
}

// clip truncates a group name to the configured maximum rune length.
func (s *GroupService) clip(name string) string {
	if s.NameMaxLen > 0 && utf8.RuneCountInString(name) > s.NameMaxLen {
		return string([]rune(name)[:s.NameMaxLen])
	}
	return name
}

// normalizeName trims whitespace and collapses multiple spaces to one.
func normalizeName(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
