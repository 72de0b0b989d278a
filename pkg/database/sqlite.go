package database

import (
	"fmt"
	"log"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewSQLiteDB 创建一个新的SQLite连接
func NewSQLiteDB(config *Config) (*gorm.DB, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	db, err := gorm.Open(sqlite.Open(config.Path), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel(config.LogLevel)),
	})
	if err != nil {
		log.Printf("Failed to open sqlite database: %v\n", err)
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// SQLite只允许单个写连接
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}
