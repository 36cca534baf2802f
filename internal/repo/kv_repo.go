// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the local key/value store used by the
// client cache: string keys mapped to serialized JSON blobs that survive
// process restarts.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-billsplit/internal/domain"
)

// GetKV returns the entry stored under key, or ErrNotFound.
func GetKV(ctx context.Context, db *gorm.DB, key string) (*domain.KVEntry, error) {
	var e domain.KVEntry
	err := db.WithContext(ctx).Where("key = ?", key).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// PutKV inserts or replaces the value stored under key.
func PutKV(ctx context.Context, db *gorm.DB, key, value string) error {
	e := &domain.KVEntry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(e).Error
}

// DeleteKV removes key. Deleting a missing key is not an error.
func DeleteKV(ctx context.Context, db *gorm.DB, key string) error {
	return db.WithContext(ctx).Where("key = ?", key).Delete(&domain.KVEntry{}).Error
}

// KVStore adapts the KV free functions to the byte-oriented store contract
// consumed by the cache manager.
type KVStore struct {
	DB *gorm.DB
}

// Get returns the stored bytes and ok=false when key is absent.
func (s KVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	e, err := GetKV(ctx, s.DB, key)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(e.Value), true, nil
}

// Put stores value under key.
func (s KVStore) Put(ctx context.Context, key string, value []byte) error {
	return PutKV(ctx, s.DB, key, string(value))
}

// Delete removes key.
func (s KVStore) Delete(ctx context.Context, key string) error {
	return DeleteKV(ctx, s.DB, key)
}

// UpdatedAt reports when key was last written.
func (s KVStore) UpdatedAt(ctx context.Context, key string) (time.Time, bool) {
	e, err := GetKV(ctx, s.DB, key)
	if err != nil {
		return time.Time{}, false
	}
	return e.UpdatedAt, true
}
