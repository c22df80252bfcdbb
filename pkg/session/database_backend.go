package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tyemirov/jbsession/internal/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DatabaseBackend persists items in a SQL table using GORM.
type DatabaseBackend struct {
	db          *gorm.DB
	ctx         context.Context
	driverLabel string
}

type sessionItemRecord struct {
	ItemKey       string `gorm:"column:item_key;primaryKey"`
	ItemValue     string `gorm:"column:item_value;not null"`
	UpdatedAtUnix int64  `gorm:"column:updated_at_unix;not null"`
}

func (sessionItemRecord) TableName() string {
	return "session_items"
}

// NewDatabaseBackend opens the database named by databaseURL (postgres:// or sqlite://)
// and migrates the item table. ctx bounds every later backend call.
func NewDatabaseBackend(ctx context.Context, databaseURL string) (*DatabaseBackend, error) {
	gormDB, driverLabel, err := database.Open(ctx, databaseURL, &sessionItemRecord{})
	if err != nil {
		return nil, fmt.Errorf("session.backend.open: %w", err)
	}
	return &DatabaseBackend{
		db:          gormDB,
		ctx:         ctx,
		driverLabel: driverLabel,
	}, nil
}

// Driver exposes the selected database driver label.
func (backend *DatabaseBackend) Driver() string {
	return backend.driverLabel
}

// GetItem returns the raw value stored at key.
func (backend *DatabaseBackend) GetItem(key string) (string, bool, error) {
	var record sessionItemRecord
	err := backend.db.WithContext(backend.ctx).Where("item_key = ?", key).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("session.backend.get.%s: %w", backend.driverLabel, err)
	}
	return record.ItemValue, true, nil
}

// SetItem inserts or replaces the value stored at key.
func (backend *DatabaseBackend) SetItem(key string, value string) error {
	record := sessionItemRecord{
		ItemKey:       key,
		ItemValue:     value,
		UpdatedAtUnix: time.Now().UTC().Unix(),
	}
	err := backend.db.WithContext(backend.ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "item_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"item_value", "updated_at_unix"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("session.backend.set.%s: %w", backend.driverLabel, err)
	}
	return nil
}

// RemoveItem deletes key if present.
func (backend *DatabaseBackend) RemoveItem(key string) error {
	err := backend.db.WithContext(backend.ctx).Where("item_key = ?", key).Delete(&sessionItemRecord{}).Error
	if err != nil {
		return fmt.Errorf("session.backend.remove.%s: %w", backend.driverLabel, err)
	}
	return nil
}

// Keys lists every stored key in lexical order.
func (backend *DatabaseBackend) Keys() ([]string, error) {
	var keys []string
	err := backend.db.WithContext(backend.ctx).Model(&sessionItemRecord{}).Order("item_key").Pluck("item_key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("session.backend.keys.%s: %w", backend.driverLabel, err)
	}
	return keys, nil
}

// Close releases the underlying connection pool.
func (backend *DatabaseBackend) Close() error {
	sqlDB, err := backend.db.DB()
	if err != nil {
		return fmt.Errorf("session.backend.close.%s: %w", backend.driverLabel, err)
	}
	return sqlDB.Close()
}
