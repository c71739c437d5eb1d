package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"clinic-crm/internal/leads"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrBlobNotFound = fmt.Errorf("%w: blob missing", leads.ErrFileNotFound)

// Blob describes a stored file.
type Blob struct {
	ID          string    `json:"fileId"`
	Name        string    `json:"name"`
	ContentType string    `json:"type"`
	Size        int64     `json:"size"`
	UploadedBy  string    `json:"uploadedBy,omitempty"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

type Store interface {
	Upload(ctx context.Context, blob Blob, r io.Reader) (Blob, error)
	Open(ctx context.Context, id string) (io.ReadCloser, Blob, error)
	Delete(ctx context.Context, id string) error
}

type blobMetadata struct {
	ContentType string `bson:"contentType"`
	UploadedBy  string `bson:"uploadedBy,omitempty"`
}

type GridFSStore struct {
	bucket *gridfs.Bucket
}

func NewGridFSStore(bucket *gridfs.Bucket) *GridFSStore {
	return &GridFSStore{bucket: bucket}
}

func (s *GridFSStore) Upload(ctx context.Context, blob Blob, r io.Reader) (Blob, error) {
	opts := options.GridFSUpload().SetMetadata(blobMetadata{
		ContentType: blob.ContentType,
		UploadedBy:  blob.UploadedBy,
	})
	stream, err := s.bucket.OpenUploadStream(blob.Name, opts)
	if err != nil {
		return Blob{}, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = stream.SetWriteDeadline(deadline)
	}

	n, err := io.Copy(stream, r)
	if err != nil {
		_ = stream.Abort()
		return Blob{}, err
	}
	if err := stream.Close(); err != nil {
		return Blob{}, err
	}

	id, ok := stream.FileID.(primitive.ObjectID)
	if !ok {
		return Blob{}, errors.New("gridfs returned a non ObjectID file id")
	}
	blob.ID = id.Hex()
	blob.Size = n
	return blob, nil
}

func (s *GridFSStore) Open(ctx context.Context, id string) (io.ReadCloser, Blob, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, Blob{}, ErrBlobNotFound
	}
	stream, err := s.bucket.OpenDownloadStream(oid)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, Blob{}, ErrBlobNotFound
		}
		return nil, Blob{}, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = stream.SetReadDeadline(deadline)
	}

	file := stream.GetFile()
	blob := Blob{
		ID:         id,
		Name:       file.Name,
		Size:       file.Length,
		UploadedAt: file.UploadDate,
	}
	var meta blobMetadata
	if len(file.Metadata) > 0 && bson.Unmarshal(file.Metadata, &meta) == nil {
		blob.ContentType = meta.ContentType
		blob.UploadedBy = meta.UploadedBy
	}
	return stream, blob, nil
}

func (s *GridFSStore) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrBlobNotFound
	}
	if err := s.bucket.DeleteContext(ctx, oid); err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return ErrBlobNotFound
		}
		return err
	}
	return nil
}

// UploadedBy returns the user recorded as the uploader of the blob.
func (s *GridFSStore) UploadedBy(ctx context.Context, id string) (string, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return "", ErrBlobNotFound
	}
	cur, err := s.bucket.FindContext(ctx, bson.M{"_id": oid})
	if err != nil {
		return "", err
	}
	defer cur.Close(ctx)
	if !cur.Next(ctx) {
		if err := cur.Err(); err != nil {
			return "", err
		}
		return "", ErrBlobNotFound
	}
	var file gridfs.File
	if err := cur.Decode(&file); err != nil {
		return "", err
	}
	var meta blobMetadata
	if len(file.Metadata) > 0 {
		if err := bson.Unmarshal(file.Metadata, &meta); err != nil {
			return "", err
		}
	}
	return meta.UploadedBy, nil
}
