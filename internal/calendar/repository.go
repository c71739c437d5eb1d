package calendar

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Query struct {
	OwnerID string
	From    string
	To      string
}

type Repository interface {
	Create(ctx context.Context, e Event) error
	GetByID(ctx context.Context, id string) (Event, error)
	List(ctx context.Context, q Query) ([]Event, error)
	Replace(ctx context.Context, e Event) error
	Delete(ctx context.Context, id string) error
}

type MongoRepository struct {
	col *mongo.Collection
}

func NewRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

func (r *MongoRepository) Create(ctx context.Context, e Event) error {
	_, err := r.col.InsertOne(ctx, e)
	return err
}

func (r *MongoRepository) GetByID(ctx context.Context, id string) (Event, error) {
	var e Event
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&e); err != nil {
		return Event{}, err
	}
	return e, nil
}

// List returns events ordered by date then time. Dates are stored as
// YYYY-MM-DD so string comparison follows the calendar.
func (r *MongoRepository) List(ctx context.Context, q Query) ([]Event, error) {
	filter := bson.M{}
	if q.OwnerID != "" {
		filter["ownerId"] = q.OwnerID
	}
	dateFilter := bson.M{}
	if q.From != "" {
		dateFilter["$gte"] = q.From
	}
	if q.To != "" {
		dateFilter["$lte"] = q.To
	}
	if len(dateFilter) > 0 {
		filter["date"] = dateFilter
	}

	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "time", Value: 1}})
	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	items := make([]Event, 0)
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *MongoRepository) Replace(ctx context.Context, e Event) error {
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": e.ID}, e)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (r *MongoRepository) Delete(ctx context.Context, id string) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
