// Package postgres implements a Store that writes captured messages to a
// PostgreSQL table through gorm.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/shineum/haxmail/internal/mail"
)

// Config holds the configuration for creating a postgres Store.
type Config struct {
	DSN string

	// Migrate creates or updates the mail table on startup.
	Migrate bool
}

// row is one captured message. Recipients are stored joined by ", ".
type row struct {
	ID         uuid.UUID `gorm:"primaryKey;type:uuid"`
	ReceivedAt time.Time `gorm:"column:date;not null;index:mail_date"`
	Sender     string    `gorm:"column:sender;not null"`
	Recipients string    `gorm:"column:rcpt;not null;index:mail_rcpt"`
	Subject    string    `gorm:"column:subject"`
	Body       string    `gorm:"column:data;not null"`
	Partial    bool      `gorm:"column:partial;not null;default:false"`
}

// TableName maps row to the mail table.
func (row) TableName() string {
	return "mail"
}

// Store inserts one row per message. The underlying *gorm.DB is a
// connection pool and is safe for concurrent use.
type Store struct {
	db *gorm.DB
}

// New opens the database and optionally migrates the schema.
func New(ctx context.Context, cfg Config) (*Store, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := NewWithDB(db)
	if cfg.Migrate {
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// NewWithDB creates a Store on an existing gorm handle.
func NewWithDB(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the mail table and its indexes if missing.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&row{}); err != nil {
		return fmt.Errorf("failed to migrate mail table: %w", err)
	}
	return nil
}

// Store inserts the record.
func (s *Store) Store(ctx context.Context, rec *mail.Record) error {
	r := toRow(rec)
	if err := s.db.WithContext(ctx).Create(&r).Error; err != nil {
		return fmt.Errorf("failed to insert message %s: %w", rec.ID, err)
	}
	return nil
}

// Name returns the backend name.
func (s *Store) Name() string {
	return "postgres"
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRow(rec *mail.Record) row {
	return row{
		ID:         rec.ID,
		ReceivedAt: rec.ReceivedAt.UTC(),
		Sender:     rec.Message.Sender,
		Recipients: strings.Join(rec.Message.Recipients, ", "),
		Subject:    rec.Summary.Subject,
		Body:       rec.Message.Body,
		Partial:    rec.Partial,
	}
}
