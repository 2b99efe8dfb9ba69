package repository

import (
	"context"

	"pickupd/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MapVoteRepo stores map vote history
type MapVoteRepo interface {
	Create(ctx context.Context, record *model.MapVoteRecord) error
	Recent(ctx context.Context, limit int64) ([]*model.MapVoteRecord, error)
}

type mapVoteRepo struct {
	collection *mongo.Collection
}

func NewMapVoteRepo(db *mongo.Database) MapVoteRepo {
	return &mapVoteRepo{
		collection: db.Collection("mapvotes"),
	}
}

func (r *mapVoteRepo) Create(ctx context.Context, record *model.MapVoteRecord) error {
	if record.ID == "" {
		record.ID = primitive.NewObjectID().Hex()
	}
	_, err := r.collection.InsertOne(ctx, record)
	return err
}

func (r *mapVoteRepo) Recent(ctx context.Context, limit int64) ([]*model.MapVoteRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "resolvedAt", Value: -1}}).SetLimit(limit)
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []*model.MapVoteRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}
