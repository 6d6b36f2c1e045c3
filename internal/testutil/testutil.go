// Package testutil provides in-memory databases for package tests.
package testutil

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Skotchmaster/hospital_desk/internal/db"
	"github.com/Skotchmaster/hospital_desk/internal/models"
)

// NewDB opens a private in-memory SQLite database with the full schema.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	// every new connection would see an empty :memory: database
	sqlDB.SetMaxOpenConns(1)

	if err := gdb.AutoMigrate(
		&models.User{},
		&models.Patient{},
		&models.BackupLog{},
		&models.BackupJob{},
		&models.RevokedToken{},
	); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}

	t.Cleanup(func() { _ = sqlDB.Close() })
	return gdb
}

func NewPool(t *testing.T) *db.Pool {
	t.Helper()
	return db.NewPool(NewDB(t), 4, 2*time.Second)
}
