package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"housekeyper-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	// DB exposes the underlying handle for components that need ad-hoc
	// queries (subscription handlers, notification worker).
	DB() *gorm.DB

	UpsertDevice(ctx context.Context, d model.Device) error
	InsertReadings(ctx context.Context, readings []model.Reading) error
	InsertAlert(ctx context.Context, a model.Alert) error

	ListDevices(ctx context.Context) ([]model.Device, error)
	LatestReadings(ctx context.Context) ([]LatestReading, error)
	RecentAlerts(ctx context.Context, limit int) ([]model.Alert, error)
}

// LatestReading is the newest value recorded for one device/metric pair,
// joined with the device's location for display.
type LatestReading struct {
	DeviceID string `json:"device_id"`
	Location string `json:"location"`
	Key      string `json:"key"`
	Value    string `json:"value"`
	Ts       string `json:"ts"`
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// UpsertDevice inserts the device on first sight and otherwise overwrites all
// mutable fields with the latest message's values.
func (s *gormStore) UpsertDevice(ctx context.Context, d model.Device) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"class", "type", "model", "location", "last_seen"}),
	}).Create(&d).Error
	if err != nil {
		return fmt.Errorf("upsert device %s failed: %w", d.DeviceID, err)
	}
	return nil
}

// InsertReadings appends one row per metric. Readings are never updated.
func (s *gormStore) InsertReadings(ctx context.Context, readings []model.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&readings).Error; err != nil {
		return fmt.Errorf("insert readings failed: %w", err)
	}
	return nil
}

// InsertAlert appends an alert row. Alerts are never deduplicated.
func (s *gormStore) InsertAlert(ctx context.Context, a model.Alert) error {
	if err := s.db.WithContext(ctx).Create(&a).Error; err != nil {
		return fmt.Errorf("insert alert failed: %w", err)
	}
	return nil
}

func (s *gormStore) ListDevices(ctx context.Context) ([]model.Device, error) {
	var devices []model.Device
	err := s.db.WithContext(ctx).
		Order("location, device_id").
		Find(&devices).Error
	if err != nil {
		return nil, fmt.Errorf("list devices failed: %w", err)
	}
	return devices, nil
}

// LatestReadings returns the most recent value per device and metric key.
func (s *gormStore) LatestReadings(ctx context.Context) ([]LatestReading, error) {
	var rows []LatestReading
	err := s.db.WithContext(ctx).Raw(`
		SELECT r.device_id, d.location, r.key, r.value, r.ts
		  FROM readings r
		  JOIN (
		    SELECT device_id, key, MAX(ts) AS max_ts
		      FROM readings
		     GROUP BY device_id, key
		  ) mx ON r.device_id = mx.device_id AND r.key = mx.key AND r.ts = mx.max_ts
		  JOIN devices d ON d.device_id = r.device_id
		 ORDER BY d.location, r.device_id, r.key`).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("latest readings query failed: %w", err)
	}
	return rows, nil
}

func (s *gormStore) RecentAlerts(ctx context.Context, limit int) ([]model.Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	var alerts []model.Alert
	err := s.db.WithContext(ctx).
		Order("ts DESC").
		Limit(limit).
		Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("recent alerts query failed: %w", err)
	}
	return alerts, nil
}
