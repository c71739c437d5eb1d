package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Collections struct {
	Users         *mongo.Collection
	Leads         *mongo.Collection
	Transfers     *mongo.Collection
	Notifications *mongo.Collection
	ActivityLogs  *mongo.Collection
	Proformas     *mongo.Collection
	Events        *mongo.Collection
	Files         *gridfs.Bucket
}

func Connect(ctx context.Context, uri, dbName string) (*mongo.Client, *Collections, error) {
	opts := options.Client().ApplyURI(uri).SetRegistry(NewRegistry())
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, err
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, nil, err
	}

	db := client.Database(dbName)

	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName("lead_files"))
	if err != nil {
		return nil, nil, fmt.Errorf("gridfs bucket: %w", err)
	}

	cols := &Collections{
		Users:         db.Collection("users"),
		Leads:         db.Collection("leads"),
		Transfers:     db.Collection("transfer_requests"),
		Notifications: db.Collection("notifications"),
		ActivityLogs:  db.Collection("activity_logs"),
		Proformas:     db.Collection("proforma_invoices"),
		Events:        db.Collection("calendar_events"),
		Files:         bucket,
	}

	return client, cols, nil
}

func EnsureIndexes(ctx context.Context, cols *Collections) error {
	indexTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := cols.Users.Indexes().CreateMany(indexTimeout, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "role", Value: 1}},
		},
	})
	if err != nil {
		return err
	}

	_, err = cols.Leads.Indexes().CreateMany(indexTimeout, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "phone", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "assignedTo", Value: 1}, {Key: "createdAt", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "nextFollowUpDate", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "files.fileId", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"files.fileId": bson.M{"$exists": true}}),
		},
	})
	if err != nil {
		return err
	}

	_, err = cols.Transfers.Indexes().CreateMany(indexTimeout, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "patientId", Value: 1}, {Key: "fromUserId", Value: 1}, {Key: "toUserId", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("one_pending_per_pair").
				SetPartialFilterExpression(bson.M{"status": "pending"}),
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "fromUserId", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "toUserId", Value: 1}},
		},
	})
	if err != nil {
		return err
	}

	_, err = cols.Notifications.Indexes().CreateMany(indexTimeout, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "userId", Value: 1}, {Key: "isRead", Value: 1}, {Key: "createdAt", Value: -1}},
		},
	})
	if err != nil {
		return err
	}

	_, err = cols.ActivityLogs.Indexes().CreateMany(indexTimeout, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "timestamp", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "type", Value: 1}, {Key: "userId", Value: 1}},
		},
	})
	if err != nil {
		return err
	}

	_, err = cols.Proformas.Indexes().CreateMany(indexTimeout, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "patientId", Value: 1}, {Key: "createdAt", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "createdAt", Value: 1}},
		},
	})
	if err != nil {
		return err
	}

	_, err = cols.Events.Indexes().CreateMany(indexTimeout, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "date", Value: 1}, {Key: "time", Value: 1}},
		},
	})
	if err != nil {
		return err
	}

	return nil
}
