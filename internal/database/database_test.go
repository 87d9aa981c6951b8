package database

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/slot-math/internal/config"
	apperrors "github.com/wfunc/slot-math/internal/errors"
	"github.com/wfunc/slot-math/internal/models"
)

func sqliteConfig(dsn string) *config.DatabaseConfig {
	return &config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          dsn,
		MaxIdleConns: 1,
		MaxOpenConns: 1,
		LogLevel:     "silent",
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(&config.DatabaseConfig{Driver: "oracle"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConfigValidate))
}

func TestMigrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "math.db")
	db, err := Open(sqliteConfig(path))
	require.NoError(t, err)

	require.NoError(t, Migrate(db))
	for _, model := range Models() {
		assert.True(t, db.Migrator().HasTable(model), "%T", model)
	}
	assert.True(t, db.Migrator().HasIndex(&models.RoundRecord{}, "idx_round_session_counter"))

	// 重复迁移无副作用
	require.NoError(t, Migrate(db))

	assert.Equal(t, "math.db", filepath.Base(sqliteFile(db)))

	require.NoError(t, DropAllTables(db))
	assert.False(t, db.Migrator().HasTable(&models.GameSession{}))
}

func TestAutoMigrate_GlobalDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "global.db")
	require.NoError(t, Init(sqliteConfig(path)))
	defer func() {
		Close()
		DB = nil
	}()

	assert.True(t, IsConnected())
	assert.Same(t, DB, GetDB())
	require.NoError(t, AutoMigrate())

	// 迁移结束后锁文件已释放
	_, err := os.Stat(path + ".migration.lock")
	assert.True(t, os.IsNotExist(err))
}

func TestAutoMigrate_NotInitialized(t *testing.T) {
	DB = nil
	err := AutoMigrate()
	assert.True(t, apperrors.Is(err, apperrors.ErrDatabaseConnect))
	assert.False(t, IsConnected())
}

func TestMigrationLock(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "lock.db")
	lockPath := dbPath + lockSuffix

	first := newMigrationLock(dbPath)
	require.NoError(t, first.Acquire())
	_, err := os.Stat(lockPath)
	require.NoError(t, err)

	t.Run("锁被占用时超时", func(t *testing.T) {
		second := newMigrationLock(dbPath)
		second.attempts = 2
		second.wait = time.Millisecond
		err := second.Acquire()
		assert.True(t, apperrors.Is(err, apperrors.ErrTimeout))
	})

	first.Release()
	_, err = os.Stat(lockPath)
	assert.True(t, os.IsNotExist(err))
	first.Release()

	var none *migrationLock
	none.Release()
}

func TestMigrationLock_Stale(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "stale.db")
	old := time.Now().Add(-time.Hour)

	// 残留的锁文件直接接管
	require.NoError(t, os.WriteFile(dbPath+lockSuffix, nil, 0644))
	require.NoError(t, os.Chtimes(dbPath+lockSuffix, old, old))
	lock := newMigrationLock(dbPath)
	lock.attempts = 2
	lock.wait = time.Millisecond
	require.NoError(t, lock.Acquire())
	lock.Release()

	// 同目录下其他库的残留锁被清理
	other := filepath.Join(dir, "other.db"+lockSuffix)
	require.NoError(t, os.WriteFile(other, nil, 0644))
	require.NoError(t, os.Chtimes(other, old, old))
	assert.Equal(t, 1, newMigrationLock(dbPath).CleanupStaleLocks())
	_, err := os.Stat(other)
	assert.True(t, os.IsNotExist(err))
}
