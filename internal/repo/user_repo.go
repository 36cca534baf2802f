// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for users and
// their friendships.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They follow the "thin repository"
// approach: no business logic, only persistence and query composition.
//
// Error semantics:
//   - Missing rows yield ErrNotFound (an alias of gorm.ErrRecordNotFound).
//   - Unique violations on friendships yield ErrDuplicate.
//   - Other DB errors propagate unchanged.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-billsplit/internal/domain"
	"github.com/tbourn/go-billsplit/internal/search"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateUser inserts a user. Email is normalized before insert.
func CreateUser(ctx context.Context, db *gorm.DB, email, name, token string) (*domain.User, error) {
	u := &domain.User{
		Email:     domain.NormalizeEmail(email),
		Name:      strings.TrimSpace(name),
		Token:     token,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

// UpsertUsers inserts users or refreshes name and token of existing ones.
// Used to seed development directories.
func UpsertUsers(ctx context.Context, db *gorm.DB, users []domain.User) error {
	if len(users) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range users {
		users[i].Email = domain.NormalizeEmail(users[i].Email)
		if users[i].CreatedAt.IsZero() {
			users[i].CreatedAt = now
		}
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "email"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "token"}),
		}).
		Create(&users).Error
}

// GetUser fetches a user by email.
func GetUser(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("email = ?", domain.NormalizeEmail(email)).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByToken resolves a bearer token to its user.
func GetUserByToken(ctx context.Context, db *gorm.DB, token string) (*domain.User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrNotFound
	}
	var u domain.User
	if err := db.WithContext(ctx).Where("token = ?", token).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUsersByEmails returns the known users among emails, in the order of the
// input. Unknown and repeated emails are skipped.
func GetUsersByEmails(ctx context.Context, db *gorm.DB, emails []string) ([]domain.User, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	norm := make([]string, 0, len(emails))
	for _, e := range emails {
		norm = append(norm, domain.NormalizeEmail(e))
	}
	var rows []domain.User
	if err := db.WithContext(ctx).Where("email IN ?", norm).Find(&rows).Error; err != nil {
		return nil, err
	}
	byEmail := make(map[string]domain.User, len(rows))
	for _, u := range rows {
		byEmail[u.Email] = u
	}
	out := make([]domain.User, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, e := range norm {
		u, ok := byEmail[e]
		if !ok {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, u)
	}
	return out, nil
}

// SearchUsers returns up to limit users whose email or name contains q,
// excluding the given email. Matching uses Unicode case folding, which
// SQLite's LOWER and LIKE do not, so rows are streamed in name, email order
// and filtered here.
func SearchUsers(ctx context.Context, db *gorm.DB, q, exclude string, limit int) ([]domain.User, error) {
	out := []domain.User{}
	if search.Normalize(q) == "" {
		return out, nil
	}
	rows, err := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("email <> ?", domain.NormalizeEmail(exclude)).
		Order("name ASC, email ASC").
		Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var u domain.User
		if err := db.ScanRows(rows, &u); err != nil {
			return nil, err
		}
		if !search.Matches(q, domain.FavoriteContact{MailID: u.Email, Name: u.Name}) {
			continue
		}
		out = append(out, u)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, rows.Err()
}

// AddFriendship records that owner has friend. Returns ErrDuplicate when the
// edge already exists.
func AddFriendship(ctx context.Context, db *gorm.DB, owner, friend string) (*domain.Friendship, error) {
	f := &domain.Friendship{
		ID:          uuid.NewString(),
		OwnerEmail:  domain.NormalizeEmail(owner),
		FriendEmail: domain.NormalizeEmail(friend),
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(f).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return f, nil
}

// RemoveFriendship deletes the owner→friend edge, or returns ErrNotFound.
func RemoveFriendship(ctx context.Context, db *gorm.DB, owner, friend string) error {
	res := db.WithContext(ctx).
		Where("owner_email = ? AND friend_email = ?", domain.NormalizeEmail(owner), domain.NormalizeEmail(friend)).
		Delete(&domain.Friendship{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListFriendEmails returns the friends of owner in the order they were added.
func ListFriendEmails(ctx context.Context, db *gorm.DB, owner string) ([]string, error) {
	out := []string{}
	err := db.WithContext(ctx).
		Model(&domain.Friendship{}).
		Where("owner_email = ?", domain.NormalizeEmail(owner)).
		Order("created_at ASC, id ASC").
		Pluck("friend_email", &out).Error
	return out, err
}

// isUniqueViolation detects unique-constraint failures across drivers;
// glebarez/sqlite often returns plain-text errors for them.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key")
}
