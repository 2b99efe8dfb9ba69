package repository

import (
	"context"

	"pickupd/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MatchRepo handles MongoDB operations for matches
type MatchRepo interface {
	Create(ctx context.Context, match *model.Match) error
	Update(ctx context.Context, match *model.Match) error
	GetByID(ctx context.Context, id string) (*model.Match, error)
	GetByNumber(ctx context.Context, number int) (*model.Match, error)
	GetActiveByServer(ctx context.Context, gameServerID string) (*model.Match, error)
	// LastNumber returns the highest match number, 0 when there are none
	LastNumber(ctx context.Context) (int, error)
	List(ctx context.Context, ascending bool, limit, offset int64) ([]*model.Match, error)
	Count(ctx context.Context) (int64, error)
}

type matchRepo struct {
	collection *mongo.Collection
}

// NewMatchRepo creates a new match repository
func NewMatchRepo(db *mongo.Database) MatchRepo {
	return &matchRepo{
		collection: db.Collection("matches"),
	}
}

func (r *matchRepo) Create(ctx context.Context, match *model.Match) error {
	if match.ID == "" {
		match.ID = primitive.NewObjectID().Hex()
	}
	_, err := r.collection.InsertOne(ctx, match)
	return err
}

func (r *matchRepo) Update(ctx context.Context, match *model.Match) error {
	res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": match.ID}, match)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (r *matchRepo) GetByID(ctx context.Context, id string) (*model.Match, error) {
	return r.findOne(ctx, bson.M{"_id": id}, nil)
}

func (r *matchRepo) GetByNumber(ctx context.Context, number int) (*model.Match, error) {
	return r.findOne(ctx, bson.M{"number": number}, nil)
}

func (r *matchRepo) GetActiveByServer(ctx context.Context, gameServerID string) (*model.Match, error) {
	filter := bson.M{
		"gameServer": gameServerID,
		"state":      bson.M{"$in": []model.MatchState{model.MatchLaunching, model.MatchRunning}},
	}
	return r.findOne(ctx, filter, options.FindOne().SetSort(bson.D{{Key: "number", Value: -1}}))
}

func (r *matchRepo) LastNumber(ctx context.Context) (int, error) {
	match, err := r.findOne(ctx, bson.M{}, options.FindOne().SetSort(bson.D{{Key: "number", Value: -1}}))
	if err != nil {
		return 0, err
	}
	if match == nil {
		return 0, nil
	}
	return match.Number, nil
}

func (r *matchRepo) List(ctx context.Context, ascending bool, limit, offset int64) ([]*model.Match, error) {
	order := -1
	if ascending {
		order = 1
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "launchedAt", Value: order}}).
		SetLimit(limit).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var matches []*model.Match
	if err := cursor.All(ctx, &matches); err != nil {
		return nil, err
	}
	return matches, nil
}

func (r *matchRepo) Count(ctx context.Context) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{})
}

func (r *matchRepo) findOne(ctx context.Context, filter bson.M, opts *options.FindOneOptions) (*model.Match, error) {
	var match model.Match
	var err error
	if opts != nil {
		err = r.collection.FindOne(ctx, filter, opts).Decode(&match)
	} else {
		err = r.collection.FindOne(ctx, filter).Decode(&match)
	}
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &match, nil
}
