// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-billsplit/internal/domain"
)

// GroupsStats returns aggregate metadata for the groups visible to email:
// the number of groups and the greatest UpdatedAt among them, plus the number
// of expenses across those groups (expenses do not touch the group row, so
// they must be part of the fingerprint).
//
// When the user has no groups, count is 0 and maxUpdatedAt is nil.
func GroupsStats(ctx context.Context, db *gorm.DB, email string) (count, expenses int64, maxUpdatedAt *time.Time, err error) {
	email = domain.NormalizeEmail(email)

	if err = memberOf(db.WithContext(ctx), email).Count(&count).Error; err != nil {
		return 0, 0, nil, err
	}
	if count == 0 {
		return 0, 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = memberOf(db.WithContext(ctx), email).Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, 0, nil, err
	}

	ids := memberOf(db.WithContext(ctx), email).Select("id")
	if err = db.WithContext(ctx).Model(&domain.Expense{}).Where("group_id IN (?)", ids).Count(&expenses).Error; err != nil {
		return 0, 0, nil, err
	}
	return count, expenses, &row.UpdatedAt, nil
}
