package tokenserver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tyemirov/jbsession/internal/database"
	"gorm.io/gorm"
)

// DatabaseAccessTokenStore persists access token identifiers using GORM.
type DatabaseAccessTokenStore struct {
	db          *gorm.DB
	driverLabel string
	clock       Clock
}

// Driver exposes the selected database driver label.
func (store *DatabaseAccessTokenStore) Driver() string {
	return store.driverLabel
}

type accessTokenRecord struct {
	TokenID       string `gorm:"column:token_id;primaryKey"`
	UserID        string `gorm:"column:user_id;index;not null"`
	ExpiresUnix   int64  `gorm:"column:expires_unix;not null"`
	RevokedAtUnix int64  `gorm:"column:revoked_at_unix;not null;default:0"`
	IssuedAtUnix  int64  `gorm:"column:issued_at_unix;not null"`
}

func (accessTokenRecord) TableName() string {
	return "access_tokens"
}

// NewDatabaseAccessTokenStore constructs a GORM-backed store. A nil clock uses the system clock.
func NewDatabaseAccessTokenStore(ctx context.Context, databaseURL string, clock Clock) (*DatabaseAccessTokenStore, error) {
	gormDB, driverLabel, err := database.Open(ctx, databaseURL, &accessTokenRecord{})
	if err != nil {
		return nil, fmt.Errorf("access_token_store.open: %w", err)
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	return &DatabaseAccessTokenStore{
		db:          gormDB,
		driverLabel: driverLabel,
		clock:       clock,
	}, nil
}

// Issue inserts a new access token record and returns its identifier.
func (store *DatabaseAccessTokenStore) Issue(ctx context.Context, applicationUserID string, expiresUnix int64) (string, error) {
	if strings.TrimSpace(applicationUserID) == "" {
		return "", fmt.Errorf("access_token_store.issue.%s: %w", store.driverLabel, ErrAccessTokenEmptyUser)
	}
	record := accessTokenRecord{
		TokenID:      newAccessTokenID(),
		UserID:       applicationUserID,
		ExpiresUnix:  expiresUnix,
		IssuedAtUnix: store.clock.Now().Unix(),
	}
	if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
		return "", fmt.Errorf("access_token_store.issue.%s: %w", store.driverLabel, err)
	}
	return record.TokenID, nil
}

// Validate locates a live access token by its identifier.
func (store *DatabaseAccessTokenStore) Validate(ctx context.Context, tokenID string) (string, int64, error) {
	if strings.TrimSpace(tokenID) == "" {
		return "", 0, fmt.Errorf("access_token_store.validate.%s: %w", store.driverLabel, ErrAccessTokenEmptyID)
	}
	var record accessTokenRecord
	err := store.db.WithContext(ctx).Where("token_id = ?", tokenID).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", 0, fmt.Errorf("access_token_store.validate.%s: %w", store.driverLabel, ErrAccessTokenNotFound)
		}
		return "", 0, fmt.Errorf("access_token_store.validate.%s: %w", store.driverLabel, err)
	}
	if record.RevokedAtUnix != 0 {
		return "", 0, fmt.Errorf("access_token_store.validate.%s: %w", store.driverLabel, ErrAccessTokenRevoked)
	}
	if time.Unix(record.ExpiresUnix, 0).Before(store.clock.Now()) {
		return "", 0, fmt.Errorf("access_token_store.validate.%s: %w", store.driverLabel, ErrAccessTokenExpired)
	}
	return record.UserID, record.ExpiresUnix, nil
}

// Revoke marks an access token as revoked.
func (store *DatabaseAccessTokenStore) Revoke(ctx context.Context, tokenID string) error {
	result := store.db.WithContext(ctx).Model(&accessTokenRecord{}).
		Where("token_id = ? AND revoked_at_unix = 0", tokenID).
		Update("revoked_at_unix", store.clock.Now().Unix())
	if result.Error != nil {
		return fmt.Errorf("access_token_store.revoke.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		var record accessTokenRecord
		findErr := store.db.WithContext(ctx).Where("token_id = ?", tokenID).Take(&record).Error
		if errors.Is(findErr, gorm.ErrRecordNotFound) {
			return fmt.Errorf("access_token_store.revoke.%s: %w", store.driverLabel, ErrAccessTokenNotFound)
		}
		if findErr != nil {
			return fmt.Errorf("access_token_store.revoke.%s: %w", store.driverLabel, findErr)
		}
		if record.RevokedAtUnix != 0 {
			return fmt.Errorf("access_token_store.revoke.%s: %w", store.driverLabel, ErrAccessTokenAlreadyRevoked)
		}
	}
	return nil
}

// Close releases the underlying connection pool.
func (store *DatabaseAccessTokenStore) Close() error {
	sqlDB, err := store.db.DB()
	if err != nil {
		return fmt.Errorf("access_token_store.close.%s: %w", store.driverLabel, err)
	}
	return sqlDB.Close()
}
