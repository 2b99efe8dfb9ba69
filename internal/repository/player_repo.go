package repository

import (
	"context"

	"pickupd/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// PlayerRepo is a read-only view of the player profiles collection
type PlayerRepo interface {
	GetByID(ctx context.Context, id string) (*model.Player, error)
	GetMany(ctx context.Context, ids []string) (map[string]*model.Player, error)
}

type playerRepo struct {
	collection *mongo.Collection
}

func NewPlayerRepo(db *mongo.Database) PlayerRepo {
	return &playerRepo{
		collection: db.Collection("players"),
	}
}

func (r *playerRepo) GetByID(ctx context.Context, id string) (*model.Player, error) {
	// Find the player by ID
	var player model.Player
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&player)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil // Player not found
		}
		return nil, err
	}

	return &player, nil
}

func (r *playerRepo) GetMany(ctx context.Context, ids []string) (map[string]*model.Player, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var players []*model.Player
	if err := cursor.All(ctx, &players); err != nil {
		return nil, err
	}

	out := make(map[string]*model.Player, len(players))
	for _, p := range players {
		out[p.ID] = p
	}
	return out, nil
}
