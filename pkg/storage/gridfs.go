package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultGridFSBucket is the bucket name used for renders.
const DefaultGridFSBucket = "renders"

// GridFSStore keeps renders in a MongoDB GridFS bucket. Renders are
// served by this process, so Put returns the same relative route as
// LocalStore.
type GridFSStore struct {
	client *mongo.Client
	db     *mongo.Database
	bucket string
}

// GridFSConfig configures a GridFSStore.
type GridFSConfig struct {
	URI      string
	Database string
	Bucket   string
}

// NewGridFSStore connects to MongoDB and verifies the connection.
func NewGridFSStore(ctx context.Context, cfg GridFSConfig) (*GridFSStore, error) {
	if cfg.Database == "" {
		cfg.Database = "photobooth"
	}
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultGridFSBucket
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return &GridFSStore{
		client: client,
		db:     client.Database(cfg.Database),
		bucket: cfg.Bucket,
	}, nil
}

func (s *GridFSStore) Name() string { return "gridfs" }

// Put uploads data under the file name <id>.png with the id as file id.
func (s *GridFSStore) Put(ctx context.Context, id string, data []byte) (string, error) {
	b, err := s.handle()
	if err != nil {
		return "", err
	}
	if d, ok := ctx.Deadline(); ok {
		b.SetWriteDeadline(d)
	}

	meta := bson.D{
		{Key: "contentType", Value: "image/png"},
		{Key: "uploadedAt", Value: time.Now().UTC()},
	}
	err = b.UploadFromStreamWithID(id, Filename(id), bytes.NewReader(data), options.GridFSUpload().SetMetadata(meta))
	if err != nil {
		return "", fmt.Errorf("gridfs upload: %w", err)
	}
	return RoutePrefix + Filename(id), nil
}

// Open implements Reader.
func (s *GridFSStore) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	b, err := s.handle()
	if err != nil {
		return nil, err
	}
	if d, ok := ctx.Deadline(); ok {
		b.SetReadDeadline(d)
	}

	ds, err := b.OpenDownloadStream(id)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("gridfs download: %w", err)
	}
	return ds, nil
}

// Close disconnects from MongoDB.
func (s *GridFSStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// handle returns a fresh bucket; deadlines are set per handle.
func (s *GridFSStore) handle() (*gridfs.Bucket, error) {
	b, err := gridfs.NewBucket(s.db, options.GridFSBucket().SetName(s.bucket))
	if err != nil {
		return nil, fmt.Errorf("gridfs bucket: %w", err)
	}
	return b, nil
}
