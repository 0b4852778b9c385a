// Package sqlstore is the PostgreSQL storage backend, built on gorm.
package sqlstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/PaulBabatuyi/relaychat/internal/data"
)

// Store implements data.Store on PostgreSQL.
type Store struct {
	db *gorm.DB
}

var _ data.Store = (*Store)(nil)

// Open connects to dsn, retrying while the database comes up, and migrates
// the schema.
func Open(dsn string) (*Store, error) {
	var gdb *gorm.DB
	var err error
	for i := 0; i < 10; i++ {
		gdb, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger:         logger.Default.LogMode(logger.Silent),
			TranslateError: true,
		})
		if err == nil {
			sqlDB, err2 := gdb.DB()
			if err2 == nil {
				sqlDB.SetMaxIdleConns(5)
				sqlDB.SetMaxOpenConns(20)
				sqlDB.SetConnMaxLifetime(time.Hour)
				break
			}
			err = err2
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("postgres not ready")
		time.Sleep(time.Duration(500+i*200) * time.Millisecond)
	}
	if err != nil {
		return nil, errors.Wrap(err, "sqlStore.Open")
	}

	s := &Store{db: gdb}
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	log.Info().Msg("postgres store opened")
	return s, nil
}

// Migrate creates or updates the four tables.
func (s *Store) Migrate() error {
	err := s.db.AutoMigrate(&UserRow{}, &APIKeyRow{}, &MessagingTokenRow{}, &MessageRow{})
	return errors.Wrap(err, "sqlStore.Migrate")
}

// Close closes the connection pool.
func (s *Store) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpsertUser inserts u or overwrites every column but the id.
func (s *Store) UpsertUser(ctx context.Context, u data.User) error {
	if err := data.CheckUserID(u.UserID); err != nil {
		return errors.Wrapf(err, "sqlStore.UpsertUser: %q", u.UserID)
	}
	row := UserRow{UserID: u.UserID, Email: u.Email, Name: u.Name, Picture: u.Picture}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "name", "picture"}),
	}).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errors.Wrap(data.ErrEmailTaken, "sqlStore.UpsertUser")
	}
	return errors.Wrap(err, "sqlStore.UpsertUser")
}

func (s *Store) takeUser(ctx context.Context, query string, arg any, op string) (*data.User, error) {
	var row UserRow
	if err := s.db.WithContext(ctx).Where(query, arg).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, data.ErrNotFound
		}
		return nil, errors.Wrap(err, op)
	}
	return &data.User{UserID: row.UserID, Email: row.Email, Name: row.Name, Picture: row.Picture}, nil
}

// GetUser finds a user by id.
func (s *Store) GetUser(ctx context.Context, userID string) (*data.User, error) {
	return s.takeUser(ctx, "user_id = ?", userID, "sqlStore.GetUser")
}

// GetUserByEmail finds a user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*data.User, error) {
	return s.takeUser(ctx, "email = ?", email, "sqlStore.GetUserByEmail")
}

// PutAPIKey stores c.
func (s *Store) PutAPIKey(ctx context.Context, c data.Credential) error {
	row := APIKeyRow{APIKey: c.Key, UserID: c.UserID, ExpiresAt: c.ExpiresAt}
	err := s.db.WithContext(ctx).Omit("User").Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "api_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "expires_at"}),
	}).Create(&row).Error
	return errors.Wrap(err, "sqlStore.PutAPIKey")
}

// UserIDByAPIKey returns the owner of key when it is valid at now.
func (s *Store) UserIDByAPIKey(ctx context.Context, key string, now time.Time) (string, error) {
	var row APIKeyRow
	err := s.db.WithContext(ctx).
		Where("api_key = ? AND expires_at > ?", key, now).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", data.ErrNotFound
		}
		return "", errors.Wrap(err, "sqlStore.UserIDByAPIKey")
	}
	return row.UserID, nil
}

// PutPushToken registers t, reassigning it if another user held it.
func (s *Store) PutPushToken(ctx context.Context, t data.PushToken) error {
	row := MessagingTokenRow{Token: t.Token, UserID: t.UserID, ExpiresAt: t.ExpiresAt}
	err := s.db.WithContext(ctx).Omit("User").Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "expires_at"}),
	}).Create(&row).Error
	return errors.Wrap(err, "sqlStore.PutPushToken")
}

// PushTokens lists the tokens of userID valid at now.
func (s *Store) PushTokens(ctx context.Context, userID string, now time.Time) ([]string, error) {
	tokens := []string{}
	err := s.db.WithContext(ctx).Model(&MessagingTokenRow{}).
		Where("user_id = ? AND expires_at > ?", userID, now).
		Order("token").
		Pluck("token", &tokens).Error
	return tokens, errors.Wrap(err, "sqlStore.PushTokens")
}

// SweepExpired deletes credentials that are no longer valid at now.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	total := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("expires_at <= ?", now).Delete(&APIKeyRow{})
		if res.Error != nil {
			return res.Error
		}
		total += int(res.RowsAffected)
		res = tx.Where("expires_at <= ?", now).Delete(&MessagingTokenRow{})
		if res.Error != nil {
			return res.Error
		}
		total += int(res.RowsAffected)
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "sqlStore.SweepExpired")
	}
	return total, nil
}

// Truncate empties every table. Tests use it to start from a clean schema.
func (s *Store) Truncate() error {
	err := s.db.Exec("TRUNCATE messages, messaging_tokens, api_keys, users RESTART IDENTITY CASCADE").Error
	return errors.Wrap(err, "sqlStore.Truncate")
}
