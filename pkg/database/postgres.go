package database

import (
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	// DriverPostgres PostgreSQL驱动
	DriverPostgres = "postgres"
	// DriverSQLite SQLite驱动（纯Go实现）
	DriverSQLite = "sqlite"
)

// Config 数据库配置
type Config struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	Path     string // SQLite数据库文件路径或DSN
	LogLevel string `mapstructure:"log_level"`
}

// Open 按驱动类型打开数据库连接
func Open(config *Config) (*gorm.DB, error) {
	switch config.Driver {
	case "", DriverPostgres:
		return NewPostgresDB(config)
	case DriverSQLite:
		return NewSQLiteDB(config)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", config.Driver)
	}
}

// NewPostgresDB 创建一个新的PostgreSQL连接
func NewPostgresDB(config *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		config.Host, config.User, config.Password, config.DBName, config.Port, config.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel(config.LogLevel)),
	})
	if err != nil {
		log.Printf("Failed to connect to database: %v\n", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 获取底层的sqlDB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)

	return db, nil
}

// logLevel 将配置中的日志级别转换为gorm日志级别
func logLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
