package activity

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Repository interface {
	Insert(ctx context.Context, entry Entry) error
	List(ctx context.Context, query Query, limit, offset int64) ([]Entry, error)
	Count(ctx context.Context, query Query) (int64, error)
}

// Query is a ListFilter with its date bounds resolved to timestamp strings.
type Query struct {
	Type   Type
	UserID string
	Since  string
	Before string
}

type MongoRepository struct {
	col *mongo.Collection
}

func NewRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

func (r *MongoRepository) Insert(ctx context.Context, entry Entry) error {
	_, err := r.col.InsertOne(ctx, entry)
	return err
}

func (r *MongoRepository) List(ctx context.Context, query Query, limit, offset int64) ([]Entry, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(limit).
		SetSkip(offset)

	cursor, err := r.col.Find(ctx, toBSON(query), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	items := make([]Entry, 0)
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *MongoRepository) Count(ctx context.Context, query Query) (int64, error) {
	return r.col.CountDocuments(ctx, toBSON(query))
}

func toBSON(query Query) bson.M {
	filter := bson.M{}
	if query.Type != "" {
		filter["type"] = query.Type
	}
	if query.UserID != "" {
		filter["userId"] = query.UserID
	}
	ts := bson.M{}
	if query.Since != "" {
		ts["$gte"] = query.Since
	}
	if query.Before != "" {
		ts["$lt"] = query.Before
	}
	if len(ts) > 0 {
		filter["timestamp"] = ts
	}
	return filter
}
