// Package store provides Redis and SQL backed implementations of store.Store.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirasaad/btcfx/pkg/store"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Snapshot is the row holding one persisted blob.
type Snapshot struct {
	Key       string `gorm:"primaryKey;size:128"`
	Value     []byte
	UpdatedAt time.Time
}

// TableName overrides the default table name.
func (Snapshot) TableName() string {
	return "fallback_snapshots"
}

// SQLStore implements store.Store on a gorm database.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore wraps db. Call Migrate before first use on a fresh database.
func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Migrate creates the snapshot table.
func (s *SQLStore) Migrate() error {
	return s.db.AutoMigrate(&Snapshot{})
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var row Snapshot
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return row.Value, nil
}

func (s *SQLStore) Set(ctx context.Context, key string, value []byte) error {
	row := Snapshot{Key: key, Value: value}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("key = ?", key).Delete(&Snapshot{}).Error; err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// NewDBConnection opens a gorm connection. driver is "postgres" or "sqlite";
// for sqlite the url is a file path or ":memory:".
func NewDBConnection(driver, url, appEnv string) (*gorm.DB, error) {
	if url == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}

	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(url)
	case "sqlite":
		dialector = sqlite.Open(url)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	logMode := logger.Silent
	if appEnv == "development" {
		logMode = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.Default.LogMode(logMode),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, err
	}

	if driver == "postgres" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	return db, nil
}
