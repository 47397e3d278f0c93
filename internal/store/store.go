// Package store persists the full queue item list as one JSON blob in a
// local SQLite database, under a single well-known key.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fieldsync/internal/model"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const snapshotKey = "mutation-queue"

type QueueSnapshot struct {
	Key       string `gorm:"primaryKey;size:64"`
	Data      []byte
	UpdatedAt time.Time
}

func (QueueSnapshot) TableName() string {
	return "queue_snapshots"
}

type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the on-device database at path.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open queue store: %w", err)
	}
	if err := db.AutoMigrate(&QueueSnapshot{}); err != nil {
		return nil, fmt.Errorf("failed to migrate queue store: %w", err)
	}
	return &Store{db: db}, nil
}

// Load reads the persisted queue back. A missing snapshot is an empty queue,
// not an error.
func (s *Store) Load() ([]*model.QueueItem, error) {
	var snap QueueSnapshot
	err := s.db.Where("key = ?", snapshotKey).First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load queue snapshot: %w", err)
	}
	var items []*model.QueueItem
	if err := json.Unmarshal(snap.Data, &items); err != nil {
		return nil, fmt.Errorf("failed to decode queue snapshot: %w", err)
	}
	return items, nil
}

// Save rewrites the whole snapshot. Called after every queue mutation.
func (s *Store) Save(items []*model.QueueItem) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode queue snapshot: %w", err)
	}
	snap := QueueSnapshot{Key: snapshotKey, Data: data, UpdatedAt: time.Now()}
	err = s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&snap).Error
	if err != nil {
		return fmt.Errorf("failed to write queue snapshot: %w", err)
	}
	return nil
}
