// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for groups, their
// members and expenses.
package repo

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-billsplit/internal/domain"
)

// memberOf selects the ids of groups owned by or containing email.
func memberOf(db *gorm.DB, email string) *gorm.DB {
	sub := db.Model(&domain.GroupMember{}).Select("group_id").Where("email = ?", email)
	return db.Model(&domain.Group{}).Where("owner_email = ? OR id IN (?)", email, sub)
}

// CreateGroup inserts a group, its member rows and any expenses in one
// transaction. IDs and timestamps are assigned here. g.Members is sorted, as
// it is for every loaded group.
func CreateGroup(ctx context.Context, db *gorm.DB, owner, name string, members []string, expenses []domain.Expense) (*domain.Group, error) {
	now := time.Now().UTC()
	g := &domain.Group{
		ID:         uuid.NewString(),
		OwnerEmail: domain.NormalizeEmail(owner),
		Name:       name,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("MemberRows", "Expenses").Create(g).Error; err != nil {
			return err
		}
		rows := make([]domain.GroupMember, 0, len(members))
		for _, m := range members {
			rows = append(rows, domain.GroupMember{GroupID: g.ID, Email: m})
		}
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}
		for i := range expenses {
			expenses[i].ID = uuid.NewString()
			expenses[i].GroupID = g.ID
			expenses[i].CreatedAt = now
		}
		if len(expenses) > 0 {
			if err := tx.Create(&expenses).Error; err != nil {
				return err
			}
		}
		g.MemberRows = rows
		g.Expenses = expenses
		return nil
	})
	if err != nil {
		return nil, err
	}
	flattenMembers(g)
	return g, nil
}

// GetGroup loads a group with members and expenses. It does not check access.
func GetGroup(ctx context.Context, db *gorm.DB, id string) (*domain.Group, error) {
	var g domain.Group
	err := db.WithContext(ctx).
		Preload("MemberRows").
		Preload("Expenses", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at ASC, id ASC") }).
		Where("id = ?", id).
		First(&g).Error
	if err != nil {
		return nil, err
	}
	flattenMembers(&g)
	return &g, nil
}

// ListGroupsForUser returns every group email owns or belongs to, newest first.
func ListGroupsForUser(ctx context.Context, db *gorm.DB, email string) ([]domain.Group, error) {
	email = domain.NormalizeEmail(email)
	out := []domain.Group{}
	err := memberOf(db.WithContext(ctx), email).
		Preload("MemberRows").
		Preload("Expenses", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at ASC, id ASC") }).
		Order("created_at DESC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	for i := range out {
		flattenMembers(&out[i])
	}
	return out, nil
}

// CountGroupsForUser returns how many groups email owns or belongs to.
func CountGroupsForUser(ctx context.Context, db *gorm.DB, email string) (int64, error) {
	var n int64
	err := memberOf(db.WithContext(ctx), domain.NormalizeEmail(email)).Count(&n).Error
	return n, err
}

func flattenMembers(g *domain.Group) {
	g.Members = make([]string, 0, len(g.MemberRows))
	for _, m := range g.MemberRows {
		g.Members = append(g.Members, m.Email)
	}
	sort.Strings(g.Members)
}
