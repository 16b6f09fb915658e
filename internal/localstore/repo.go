// Package localstore keeps small pieces of per-shopper state that must
// survive a process restart, such as the last confirmed cart.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const KeyCartBackup = "cart_backup"

// ErrNotFound is returned when no state exists for the user/key pair.
var ErrNotFound = errors.New("localstore: state not found")

// ClientState is one persisted value.
type ClientState struct {
	UserID    string    `gorm:"column:user_id;primaryKey"`
	StateKey  string    `gorm:"column:state_key;primaryKey"`
	Value     string    `gorm:"column:value"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (ClientState) TableName() string { return "client_state" }

// Repository persists client state rows through gorm.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Put upserts the raw value for (userID, key).
func (r *Repository) Put(ctx context.Context, userID, key string, value []byte) error {
	row := ClientState{
		UserID:    userID,
		StateKey:  key,
		Value:     string(value),
		UpdatedAt: r.now().UTC(),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "state_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert client state %s/%s: %w", userID, key, err)
	}
	return nil
}

// Get returns the raw value for (userID, key) or ErrNotFound.
func (r *Repository) Get(ctx context.Context, userID, key string) ([]byte, error) {
	var row ClientState
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND state_key = ?", userID, key).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load client state %s/%s: %w", userID, key, err)
	}
	return []byte(row.Value), nil
}

// Delete removes the value; a missing row is not an error.
func (r *Repository) Delete(ctx context.Context, userID, key string) error {
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND state_key = ?", userID, key).
		Delete(&ClientState{}).Error
	if err != nil {
		return fmt.Errorf("delete client state %s/%s: %w", userID, key, err)
	}
	return nil
}

// PutJSON encodes value and stores it.
func (r *Repository) PutJSON(ctx context.Context, userID, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode client state %s: %w", key, err)
	}
	return r.Put(ctx, userID, key, raw)
}

// GetJSON loads and decodes the value into dst.
func (r *Repository) GetJSON(ctx context.Context, userID, key string, dst any) error {
	raw, err := r.Get(ctx, userID, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode client state %s: %w", key, err)
	}
	return nil
}
