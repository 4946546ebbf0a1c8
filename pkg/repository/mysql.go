package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Vinayak0987/CareSync-sub001/pkg/config"
	"github.com/Vinayak0987/CareSync-sub001/pkg/store"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerEntry is one key of the ledger. Version is bumped by every
// write, which lets pollers tell changes apart from re-reads.
type LedgerEntry struct {
	Key       string    `gorm:"column:entry_key;primaryKey;size:191"`
	Value     string    `gorm:"column:value;type:longtext"`
	Version   int64     `gorm:"column:version;not null;default:0"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entries"
}

// MySQLRepository keeps the ledger in a server-owned table.
type MySQLRepository struct {
	db       *gorm.DB
	interval time.Duration
	logger   *zap.Logger

	mu  sync.Mutex
	own map[string]int64
}

func NewMySQLRepository(cfg *config.MySQLConfig, logger *zap.Logger) (*MySQLRepository, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get MySQL connection pool: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&LedgerEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return NewMySQLRepositoryFromDB(db, cfg.PollInterval, logger), nil
}

func NewMySQLRepositoryFromDB(db *gorm.DB, interval time.Duration, logger *zap.Logger) *MySQLRepository {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MySQLRepository{
		db:       db,
		interval: interval,
		logger:   logger.Named("mysql"),
		own:      make(map[string]int64),
	}
}

func (m *MySQLRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var entries []LedgerEntry
	if err := m.db.WithContext(ctx).Where("entry_key = ?", key).Limit(1).Find(&entries).Error; err != nil {
		return "", false, err
	}
	if len(entries) == 0 {
		return "", false, nil
	}
	return entries[0].Value, true, nil
}

func (m *MySQLRepository) Set(ctx context.Context, key, value string) error {
	now := time.Now()
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "entry_key"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"value":      value,
				"version":    gorm.Expr("version + 1"),
				"updated_at": now,
			}),
		}).Create(&LedgerEntry{Key: key, Value: value, Version: 1, UpdatedAt: now}).Error
		if err != nil {
			return err
		}

		var entry LedgerEntry
		if err := tx.Select("version").Where("entry_key = ?", key).Take(&entry).Error; err != nil {
			return err
		}
		m.mu.Lock()
		m.own[key] = entry.Version
		m.mu.Unlock()
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %s: %w", key, err)
	}
	return nil
}

func (m *MySQLRepository) ownVersion(key string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.own[key]
}

// Watch polls the versions of keys. The first poll only records a
// baseline.
func (m *MySQLRepository) Watch(ctx context.Context, keys ...string) (<-chan store.Change, error) {
	out := make(chan store.Change, 16)
	tracker := newVersionTracker(m.ownVersion)

	go func() {
		defer close(out)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			var entries []LedgerEntry
			err := m.db.WithContext(ctx).Where("entry_key IN ?", keys).Find(&entries).Error
			if err != nil && ctx.Err() == nil {
				m.logger.Warn("Failed to poll ledger entries", zap.Error(err))
			}
			if err == nil {
				for _, change := range tracker.observe(entries) {
					select {
					case out <- change:
					case <-ctx.Done():
						return
					}
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return out, nil
}

func (m *MySQLRepository) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// versionTracker turns successive polls into changes made by others.
type versionTracker struct {
	seen    map[string]int64
	primed  bool
	ownFunc func(key string) int64
}

func newVersionTracker(own func(key string) int64) *versionTracker {
	return &versionTracker{seen: make(map[string]int64), ownFunc: own}
}

func (t *versionTracker) observe(entries []LedgerEntry) []store.Change {
	var changes []store.Change
	for _, e := range entries {
		if e.Version <= t.seen[e.Key] {
			continue
		}
		t.seen[e.Key] = e.Version
		if !t.primed || t.ownFunc(e.Key) == e.Version {
			continue
		}
		changes = append(changes, store.Change{Key: e.Key, Value: e.Value})
	}
	t.primed = true
	return changes
}
