package leads

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Repository interface {
	Create(ctx context.Context, lead Lead) error
	GetByID(ctx context.Context, id string) (Lead, error)
	FindByPhone(ctx context.Context, phone string) (Lead, error)
	FindByFile(ctx context.Context, fileID string) (Lead, error)
	List(ctx context.Context, query Query, limit, offset int64) ([]Lead, error)
	Count(ctx context.Context, query Query) (int64, error)
	CountByStatus(ctx context.Context, query Query) (map[Status]int64, error)
	Replace(ctx context.Context, lead Lead) error
	SetAssignee(ctx context.Context, id, assignee string, now time.Time) error
	Delete(ctx context.Context, id string) error
}

// Query is a resolved list filter. A zero Query matches every lead.
type Query struct {
	Owner      string
	Statuses   []Status
	Exclude    []Status
	Arrived    *bool
	FollowUpBy string
}

type MongoRepository struct {
	col *mongo.Collection
}

func NewRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

func (r *MongoRepository) Create(ctx context.Context, lead Lead) error {
	_, err := r.col.InsertOne(ctx, lead)
	return err
}

func (r *MongoRepository) GetByID(ctx context.Context, id string) (Lead, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoRepository) FindByPhone(ctx context.Context, phone string) (Lead, error) {
	return r.findOne(ctx, bson.M{"phone": phone})
}

func (r *MongoRepository) FindByFile(ctx context.Context, fileID string) (Lead, error) {
	return r.findOne(ctx, bson.M{"files.fileId": fileID})
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.M) (Lead, error) {
	var lead Lead
	if err := r.col.FindOne(ctx, filter).Decode(&lead); err != nil {
		return Lead{}, err
	}
	return lead, nil
}

// List returns matching leads newest first. A zero limit returns every match.
func (r *MongoRepository) List(ctx context.Context, query Query, limit, offset int64) ([]Lead, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit).SetSkip(offset)
	}

	cursor, err := r.col.Find(ctx, query.toBSON(), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	items := make([]Lead, 0)
	for cursor.Next(ctx) {
		var lead Lead
		if err := cursor.Decode(&lead); err != nil {
			return nil, err
		}
		items = append(items, lead)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *MongoRepository) Count(ctx context.Context, query Query) (int64, error) {
	return r.col.CountDocuments(ctx, query.toBSON())
}

func (r *MongoRepository) CountByStatus(ctx context.Context, query Query) (map[Status]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: query.toBSON()}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cursor, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status Status `bson:"_id"`
		Count  int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	counts := make(map[Status]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *MongoRepository) Replace(ctx context.Context, lead Lead) error {
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": lead.ID}, lead)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (r *MongoRepository) SetAssignee(ctx context.Context, id, assignee string, now time.Time) error {
	update := bson.M{
		"$set": bson.M{
			"assignedTo": assignee,
			"updatedAt":  now,
		},
	}
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, update)
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

func (q Query) toBSON() bson.M {
	filter := bson.M{}
	if q.Owner != "" {
		filter["assignedTo"] = q.Owner
	}
	status := bson.M{}
	if len(q.Statuses) > 0 {
		status["$in"] = q.Statuses
	}
	if len(q.Exclude) > 0 {
		status["$nin"] = q.Exclude
	}
	if len(status) > 0 {
		filter["status"] = status
	}
	if q.Arrived != nil {
		if *q.Arrived {
			filter["arrivalDate"] = bson.M{"$exists": true, "$ne": ""}
		} else {
			filter["arrivalDate"] = bson.M{"$in": bson.A{"", nil}}
		}
	}
	if q.FollowUpBy != "" {
		filter["nextFollowUpDate"] = bson.M{"$exists": true, "$ne": "", "$lte": q.FollowUpBy}
	}
	return filter
}
