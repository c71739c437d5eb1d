package proformas

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Repository interface {
	Create(ctx context.Context, inv Invoice) error
	GetByID(ctx context.Context, id string) (Invoice, error)
	ListByPatient(ctx context.Context, patientID string) ([]Invoice, error)
	CountCreatedBetween(ctx context.Context, start, end time.Time) (int64, error)
	Replace(ctx context.Context, inv Invoice) error
	Delete(ctx context.Context, id string) error
	DeleteByPatient(ctx context.Context, patientID string) (int64, error)
}

type MongoRepository struct {
	col *mongo.Collection
}

func NewRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

func (r *MongoRepository) Create(ctx context.Context, inv Invoice) error {
	_, err := r.col.InsertOne(ctx, inv)
	return err
}

func (r *MongoRepository) GetByID(ctx context.Context, id string) (Invoice, error) {
	var inv Invoice
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&inv); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

func (r *MongoRepository) ListByPatient(ctx context.Context, patientID string) ([]Invoice, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.col.Find(ctx, bson.M{"patientId": patientID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	items := make([]Invoice, 0)
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// CountCreatedBetween counts invoices with start <= createdAt < end.
func (r *MongoRepository) CountCreatedBetween(ctx context.Context, start, end time.Time) (int64, error) {
	return r.col.CountDocuments(ctx, bson.M{"createdAt": bson.M{"$gte": start, "$lt": end}})
}

func (r *MongoRepository) Replace(ctx context.Context, inv Invoice) error {
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": inv.ID}, inv)
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

func (r *MongoRepository) DeleteByPatient(ctx context.Context, patientID string) (int64, error) {
	res, err := r.col.DeleteMany(ctx, bson.M{"patientId": patientID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
