package repository

import (
	"context"
	"time"

	"osaccount/internal/model"
	"osaccount/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// PhotoCollection 头像集合，local_id上有唯一索引
const PhotoCollection = "account_photos"

// mongoPhotoRepository MongoDB头像仓储实现
type mongoPhotoRepository struct {
	mongo *database.MongoClient
}

// NewMongoPhotoRepository 创建MongoDB头像仓储实例，头像较大时优先使用文档库
func NewMongoPhotoRepository(mongo *database.MongoClient) PhotoRepository {
	return &mongoPhotoRepository{mongo: mongo}
}

// Get 获取头像
func (r *mongoPhotoRepository) Get(ctx context.Context, localID int) (string, error) {
	collection := r.mongo.Collection(PhotoCollection)
	var photo model.AccountPhoto
	err := collection.FindOne(ctx, bson.M{"local_id": localID}).Decode(&photo)
	if err == mongo.ErrNoDocuments {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return photo.Photo, nil
}

// Set 设置头像
func (r *mongoPhotoRepository) Set(ctx context.Context, localID int, photo string) error {
	collection := r.mongo.Collection(PhotoCollection)
	_, err := collection.UpdateOne(
		ctx,
		bson.M{"local_id": localID},
		bson.M{"$set": bson.M{"photo": photo, "updated_at": time.Now()}},
		options.Update().SetUpsert(true),
	)
	return err
}

// Delete 删除头像
func (r *mongoPhotoRepository) Delete(ctx context.Context, localID int) error {
	collection := r.mongo.Collection(PhotoCollection)
	_, err := collection.DeleteOne(ctx, bson.M{"local_id": localID})
	return err
}
