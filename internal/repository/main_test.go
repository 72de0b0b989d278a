package repository

import (
	"path/filepath"
	"testing"

	"osaccount/internal/model"
	"osaccount/pkg/database"

	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(&database.Config{
		Driver:   database.DriverSQLite,
		Path:     filepath.Join(t.TempDir(), "test.db"),
		LogLevel: "silent",
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&model.OsAccount{},
		&model.AccountSequence{},
		&model.AccountConstraint{},
		&model.AccountPhoto{},
		&model.Credential{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
