package boot

import (
	"context"
	"log"
	"time"

	"osaccount/internal/model"
	"osaccount/internal/repository"
	"osaccount/pkg/config"
	"osaccount/pkg/database"
	"osaccount/pkg/redis"

	"gorm.io/gorm"
)

// InitDB 初始化关系数据库连接（PostgreSQL或SQLite）
func InitDB(cfg *database.Config) (*gorm.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}

	// 自动迁移数据库表
	if err := db.AutoMigrate(
		&model.OsAccount{},
		&model.AccountSequence{},
		&model.AccountPhoto{},
		&model.AccountConstraint{},
		&model.Credential{},
	); err != nil {
		return nil, err
	}

	return db, nil
}

// InitMongo 初始化 MongoDB 连接，未配置URI时返回nil，头像存入关系库
func InitMongo(cfg *database.MongoDBConfig) (*database.MongoClient, error) {
	if !cfg.Enabled() {
		log.Printf("[INFO] MongoDB未配置，头像存储使用关系数据库")
		return nil, nil
	}
	client, err := database.NewMongoClient(cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.EnsureUniqueIndex(ctx, repository.PhotoCollection, "local_id"); err != nil {
		client.Close(ctx)
		return nil, err
	}
	return client, nil
}

// InitRedis 初始化 Redis 客户端，未配置Host时返回nil，令牌存储使用进程内实现
func InitRedis(cfg *config.RedisConfig) (*redis.Client, error) {
	if cfg.Host == "" {
		log.Printf("[INFO] Redis未配置，认证令牌存储使用进程内实现")
		return nil, nil
	}
	return redis.NewClient(&redis.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}
