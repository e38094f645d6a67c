package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/benmeehan/mdm-poller/internal/models"
)

// ErrNotFound is returned by Get when no row exists for the device.
var ErrNotFound = errors.New("device location not found")

// upsertColumns are overwritten when a row for the device already exists.
var upsertColumns = []string{"latitude", "longitude", "accuracy", "location_updated_at", "fetched_at"}

// LocationStoreInterface defines the persistence operations for latest device locations.
type LocationStoreInterface interface {
	EnsureSchema(ctx context.Context) error
	Upsert(ctx context.Context, location models.DeviceLocation) error
	Get(ctx context.Context, deviceID string) (*models.PersistedLocation, error)
	Close() error
}

// LocationStore keeps exactly one row per device in device_locations.
type LocationStore struct {
	db     *gorm.DB
	logger zerolog.Logger
	now    func() time.Time
}

// Open connects to PostgreSQL using dsn and returns a LocationStore on top of the pool.
func Open(dsn string, logger zerolog.Logger) (*LocationStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: newGormLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return NewLocationStore(db, logger), nil
}

// NewLocationStore wraps an already opened gorm handle.
func NewLocationStore(db *gorm.DB, logger zerolog.Logger) *LocationStore {
	return &LocationStore{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the clock used for fetched_at.
func (s *LocationStore) WithClock(now func() time.Time) *LocationStore {
	s.now = now
	return s
}

// EnsureSchema creates device_locations and its indexes when they are missing.
func (s *LocationStore) EnsureSchema(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&models.PersistedLocation{}); err != nil {
		return fmt.Errorf("failed to migrate device_locations: %w", err)
	}
	s.logger.Info().Msg("Database table ready")
	return nil
}

// Upsert inserts the fix for an unseen device or overwrites the existing row in a
// single transaction. fetched_at is always set to the current time.
func (s *LocationStore) Upsert(ctx context.Context, location models.DeviceLocation) error {
	row := models.NewPersistedLocation(location, s.now().UTC())

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "device_id"}},
			DoUpdates: clause.AssignmentColumns(upsertColumns),
		}).Create(&row).Error
	})
	if err != nil {
		return fmt.Errorf("failed to upsert location for device %s: %w", location.DeviceID, err)
	}
	return nil
}

// Get returns the stored row for deviceID.
func (s *LocationStore) Get(ctx context.Context, deviceID string) (*models.PersistedLocation, error) {
	var row models.PersistedLocation
	err := s.db.WithContext(ctx).Where("device_id = ?", deviceID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load location for device %s: %w", deviceID, err)
	}
	return &row, nil
}

// Close releases the underlying connection pool.
func (s *LocationStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
