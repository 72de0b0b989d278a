package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoClient MongoDB客户端
type MongoClient struct {
	client   *mongo.Client
	database *mongo.Database
}

// NewMongoClient 创建MongoDB客户端实例
func NewMongoClient(config *MongoDBConfig) (*MongoClient, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 创建客户端选项
	clientOptions := options.Client().
		ApplyURI(config.URI).
		SetMaxPoolSize(config.MaxPoolSize).
		SetMinPoolSize(config.MinPoolSize)

	// 连接到MongoDB
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// 测试连接
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	// 获取数据库
	database := client.Database(config.Database)

	log.Printf("[INFO] MongoDB connected, database: %s", config.Database)

	return &MongoClient{
		client:   client,
		database: database,
	}, nil
}

// Enabled 判断配置是否启用了MongoDB
func (c *MongoDBConfig) Enabled() bool {
	return c != nil && c.URI != ""
}

// Close 关闭MongoDB连接
func (c *MongoClient) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// Collection 获取集合
func (c *MongoClient) Collection(name string) *mongo.Collection {
	return c.database.Collection(name)
}

// EnsureUniqueIndex 在集合的单个字段上建立唯一索引，索引已存在时无操作
func (c *MongoClient) EnsureUniqueIndex(ctx context.Context, collection, field string) error {
	_, err := c.Collection(collection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: field, Value: 1}},
		Options: options.Index().SetUnique(true).SetName(field + "_unique"),
	})
	if err != nil {
		return fmt.Errorf("failed to create index %s.%s: %w", collection, field, err)
	}
	return nil
}

// MongoDBConfig MongoDB配置
type MongoDBConfig struct {
	URI         string `mapstructure:"uri"`
	Database    string `mapstructure:"database"`
	MaxPoolSize uint64 `mapstructure:"max_pool_size"`
	MinPoolSize uint64 `mapstructure:"min_pool_size"`
}
