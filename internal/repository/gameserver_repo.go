package repository

import (
	"context"
	"time"

	"pickupd/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// GameServerRepo handles MongoDB operations for game servers
type GameServerRepo interface {
	Create(ctx context.Context, server *model.GameServer) error
	GetAll(ctx context.Context) ([]*model.GameServer, error)
	SetFree(ctx context.Context, id string, free bool) error
	SetOnline(ctx context.Context, id string, online bool) error
	// Delete returns the number of removed documents
	Delete(ctx context.Context, id string) (int64, error)
}

type gameServerRepo struct {
	collection *mongo.Collection
}

// NewGameServerRepo creates a new game server repository
func NewGameServerRepo(db *mongo.Database) GameServerRepo {
	return &gameServerRepo{
		collection: db.Collection("gameservers"),
	}
}

func (r *gameServerRepo) Create(ctx context.Context, server *model.GameServer) error {
	// Generate ObjectID if not provided
	if server.ID == "" {
		server.ID = primitive.NewObjectID().Hex()
	}
	if server.CreatedAt.IsZero() {
		server.CreatedAt = time.Now()
	}

	_, err := r.collection.InsertOne(ctx, server)
	return err
}

func (r *gameServerRepo) GetAll(ctx context.Context) ([]*model.GameServer, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var servers []*model.GameServer
	if err := cursor.All(ctx, &servers); err != nil {
		return nil, err
	}
	return servers, nil
}

func (r *gameServerRepo) SetFree(ctx context.Context, id string, free bool) error {
	return r.setFlag(ctx, id, "isFree", free)
}

func (r *gameServerRepo) SetOnline(ctx context.Context, id string, online bool) error {
	return r.setFlag(ctx, id, "isOnline", online)
}

func (r *gameServerRepo) setFlag(ctx context.Context, id, field string, value bool) error {
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{field: value}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (r *gameServerRepo) Delete(ctx context.Context, id string) (int64, error) {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
