package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"housekeyper-backend/internal/model"
)

// newTestDB opens a per-test in-memory SQLite database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})

	require.NoError(t, db.AutoMigrate(
		&model.Device{},
		&model.Reading{},
		&model.Alert{},
		&model.PushSubscription{},
		&model.SubscriptionRoom{},
	))
	return db
}

func TestUpsertDevice(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(newTestDB(t))

	first := model.Device{
		DeviceID: "dht-1",
		Class:    "sensor",
		Type:     "environment",
		Model:    "DHT22",
		Location: "kitchen",
		LastSeen: "2026-01-01T00:00:00Z",
	}
	require.NoError(t, s.UpsertDevice(ctx, first))

	// Same device seen again from a different room: still one row, with the
	// latest values.
	second := first
	second.Location = "garage"
	second.LastSeen = "2026-01-01T00:05:00Z"
	require.NoError(t, s.UpsertDevice(ctx, second))

	devices, err := s.ListDevices(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, second, devices[0])
}

func TestInsertReadingsAppendOnly(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(newTestDB(t))

	readings := []model.Reading{
		{DeviceID: "dht-1", Ts: "2026-01-01T00:00:00Z", Key: "temperature_c", Value: "22.5"},
		{DeviceID: "dht-1", Ts: "2026-01-01T00:00:00Z", Key: "humidity", Value: "40"},
	}
	require.NoError(t, s.InsertReadings(ctx, readings))
	// Identical rows are allowed; there is no uniqueness constraint.
	require.NoError(t, s.InsertReadings(ctx, readings))
	require.NoError(t, s.InsertReadings(ctx, nil))

	var count int64
	s.DB().Model(&model.Reading{}).Count(&count)
	assert.Equal(t, int64(4), count)
}

func TestLatestReadings(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(newTestDB(t))

	require.NoError(t, s.UpsertDevice(ctx, model.Device{DeviceID: "dht-1", Location: "kitchen"}))
	require.NoError(t, s.InsertReadings(ctx, []model.Reading{
		{DeviceID: "dht-1", Ts: "2026-01-01T00:00:00Z", Key: "temperature_c", Value: "22.5"},
		{DeviceID: "dht-1", Ts: "2026-01-01T00:01:00Z", Key: "temperature_c", Value: "23.1"},
		{DeviceID: "dht-1", Ts: "2026-01-01T00:01:00Z", Key: "humidity", Value: "40"},
	}))

	latest, err := s.LatestReadings(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	byKey := map[string]LatestReading{}
	for _, r := range latest {
		byKey[r.Key] = r
	}
	assert.Equal(t, "23.1", byKey["temperature_c"].Value)
	assert.Equal(t, "2026-01-01T00:01:00Z", byKey["temperature_c"].Ts)
	assert.Equal(t, "kitchen", byKey["temperature_c"].Location)
	assert.Equal(t, "40", byKey["humidity"].Value)
}

func TestRecentAlerts(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(newTestDB(t))

	for i := 0; i < 3; i++ {
		require.NoError(t, s.InsertAlert(ctx, model.Alert{
			Ts:      fmt.Sprintf("2026-01-01T00:0%d:00Z", i),
			Level:   model.AlertLevelWarning,
			Code:    model.CodeHighTemp,
			Message: "Kitchen > 30°C",
			Room:    "kitchen",
		}))
	}

	alerts, err := s.RecentAlerts(ctx, 2)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, "2026-01-01T00:02:00Z", alerts[0].Ts, "newest first")
	assert.Equal(t, "2026-01-01T00:01:00Z", alerts[1].Ts)

	// Zero limit falls back to the default.
	alerts, err = s.RecentAlerts(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, alerts, 3)
}

func TestUpsertDeviceFailure(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "devices"`).WillReturnError(fmt.Errorf("disk I/O error"))
	mock.ExpectRollback()

	s := NewGormStore(gormDB)
	err = s.UpsertDevice(context.Background(), model.Device{DeviceID: "dht-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert device dht-1 failed")
}
