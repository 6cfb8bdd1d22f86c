package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"hourmeter-backend/internal/db"
	"hourmeter-backend/internal/logger"
	"hourmeter-backend/internal/maintenance"
	"hourmeter-backend/internal/store"
	"hourmeter-backend/internal/usage"
)

func writeConfig(t *testing.T, dsn string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := "database:\n  driver: sqlite\n  dsn: \"" + dsn + "\"\nlog:\n  level: warn\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoad_LogLevel(t *testing.T) {
	defer logger.SetLevel(logger.Level())
	path := writeConfig(t, "file::memory:")

	cfg, err := Load(&Options{ConfigPath: path})
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, zapcore.WarnLevel, logger.Level())

	cfg, err = Load(&Options{ConfigPath: path, LogLevel: "debug"})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, zapcore.DebugLevel, logger.Level())

	_, err = Load(&Options{ConfigPath: path, LogLevel: "chatty"})
	require.Error(t, err)
}

func TestRunOnce(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "hourmeter.db")
	cfg, err := Load(&Options{ConfigPath: writeConfig(t, dsn)})
	require.NoError(t, err)

	require.NoError(t, Migrate(ctx, cfg))

	gormDB, err := db.Open(&cfg.Database, false)
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	s := store.NewGormStore(gormDB)
	m, err := s.CreateMachine(ctx, "Loader", usage.MustNew(8, time.Monday))
	require.NoError(t, err)
	_, err = s.AddAlarm(ctx, m.ID(), maintenance.Definition{Title: "Grease", IntervalHours: 8})
	require.NoError(t, err)

	now := time.Date(2025, 3, 3, 0, 5, 0, 0, time.UTC)
	report, err := RunOnce(ctx, cfg, time.Monday, now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.MachinesAccrued)
	assert.Equal(t, 1, report.AlarmsTriggered)
	assert.Empty(t, report.NotificationFailures)

	got, err := s.GetMachine(ctx, m.ID())
	require.NoError(t, err)
	assert.Equal(t, 8.0, got.OperatingHours())

	runs, err := s.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, report.RunID, runs[0].ID)
}
