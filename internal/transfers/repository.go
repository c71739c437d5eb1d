package transfers

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Repository interface {
	Create(ctx context.Context, t Transfer) error
	GetByID(ctx context.Context, id string) (Transfer, error)
	FindPending(ctx context.Context, patientID, fromUserID, toUserID string) (Transfer, error)
	Decide(ctx context.Context, id string, d Decision) (Transfer, error)
	List(ctx context.Context, query Query, limit, offset int64) ([]Transfer, error)
	Count(ctx context.Context, query Query) (int64, error)
	DeleteByPatient(ctx context.Context, patientID string) (int64, error)
}

// Query restricts a listing to one participant and/or status.
type Query struct {
	Participant string
	Status      Status
}

type MongoRepository struct {
	col *mongo.Collection
}

func NewRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

func (r *MongoRepository) Create(ctx context.Context, t Transfer) error {
	_, err := r.col.InsertOne(ctx, t)
	return err
}

func (r *MongoRepository) GetByID(ctx context.Context, id string) (Transfer, error) {
	var t Transfer
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&t); err != nil {
		return Transfer{}, err
	}
	return t, nil
}

func (r *MongoRepository) FindPending(ctx context.Context, patientID, fromUserID, toUserID string) (Transfer, error) {
	filter := bson.M{
		"patientId":  patientID,
		"fromUserId": fromUserID,
		"toUserId":   toUserID,
		"status":     StatusPending,
	}
	var t Transfer
	if err := r.col.FindOne(ctx, filter).Decode(&t); err != nil {
		return Transfer{}, err
	}
	return t, nil
}

// Decide moves a pending transfer to its final state. It matches nothing
// once the transfer has left pending.
func (r *MongoRepository) Decide(ctx context.Context, id string, d Decision) (Transfer, error) {
	set := bson.M{
		"status":    d.Status,
		"decidedAt": d.At,
		"updatedAt": d.At,
	}
	switch d.Status {
	case StatusApproved:
		set["approvedBy"] = d.DecidedBy
	case StatusRejected:
		set["rejectedBy"] = d.DecidedBy
		if d.Reason != "" {
			set["rejectionReason"] = d.Reason
		}
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated Transfer
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id, "status": StatusPending}, bson.M{"$set": set}, opts).Decode(&updated)
	if err != nil {
		return Transfer{}, err
	}
	return updated, nil
}

func (r *MongoRepository) List(ctx context.Context, query Query, limit, offset int64) ([]Transfer, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(limit).
		SetSkip(offset)

	cursor, err := r.col.Find(ctx, query.toBSON(), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	items := make([]Transfer, 0)
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *MongoRepository) Count(ctx context.Context, query Query) (int64, error) {
	return r.col.CountDocuments(ctx, query.toBSON())
}

func (r *MongoRepository) DeleteByPatient(ctx context.Context, patientID string) (int64, error) {
	res, err := r.col.DeleteMany(ctx, bson.M{"patientId": patientID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (q Query) toBSON() bson.M {
	filter := bson.M{}
	if q.Participant != "" {
		filter["$or"] = bson.A{
			bson.M{"fromUserId": q.Participant},
			bson.M{"toUserId": q.Participant},
		}
	}
	if q.Status != "" {
		filter["status"] = q.Status
	}
	return filter
}
