// Package mongostore keeps file metadata in MongoDB. Expiry is delegated to
// a TTL index on createdAt so the server removes records on its own.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/souvikree/myShare/internal/files"
)

const (
	collectionName = "files"
	ttlIndexName   = "createdAt_ttl"
	connectTimeout = 10 * time.Second

	codeIndexOptionsConflict = 85
)

// Repository implements files.Repository on a MongoDB collection
type Repository struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewRepository connects to uri, pings the server and ensures the TTL index.
func NewRepository(ctx context.Context, uri, database string, retention time.Duration) (*Repository, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	repo := &Repository{
		client: client,
		coll:   client.Database(database).Collection(collectionName),
	}

	if err := repo.ensureIndexes(ctx, retention); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return repo, nil
}

// ensureIndexes creates the TTL index. An index left by a run with a
// different retention is updated in place.
func (r *Repository) ensureIndexes(ctx context.Context, retention time.Duration) error {
	_, err := r.coll.Indexes().CreateOne(ctx, ttlIndex(retention))
	if err == nil {
		return nil
	}
	if !isIndexOptionsConflict(err) {
		return fmt.Errorf("failed to create ttl index: %w", err)
	}

	err = r.coll.Database().RunCommand(ctx, bson.D{
		{Key: "collMod", Value: collectionName},
		{Key: "index", Value: bson.D{
			{Key: "name", Value: ttlIndexName},
			{Key: "expireAfterSeconds", Value: expireAfterSeconds(retention)},
		}},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to update ttl index: %w", err)
	}
	return nil
}

func isIndexOptionsConflict(err error) bool {
	var cmdErr mongo.CommandError
	return errors.As(err, &cmdErr) && cmdErr.Code == codeIndexOptionsConflict
}

func expireAfterSeconds(retention time.Duration) int32 {
	return int32(retention / time.Second)
}

func ttlIndex(retention time.Duration) mongo.IndexModel {
	return mongo.IndexModel{
		Keys: bson.D{{Key: "createdAt", Value: 1}},
		Options: options.Index().
			SetName(ttlIndexName).
			SetExpireAfterSeconds(expireAfterSeconds(retention)),
	}
}

// Close disconnects the client
func (r *Repository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

// Create inserts file metadata
func (r *Repository) Create(ctx context.Context, file *files.FileRecord) error {
	if _, err := r.coll.InsertOne(ctx, file); err != nil {
		return fmt.Errorf("failed to create file record: %w", err)
	}
	return nil
}

// FindByID retrieves file metadata by ID
func (r *Repository) FindByID(ctx context.Context, id string) (*files.FileRecord, error) {
	var file files.FileRecord
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&file)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, files.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find file: %w", err)
	}
	file.CreatedAt = file.CreatedAt.UTC()
	return &file, nil
}

// ListExpired returns records created before cutoff that the TTL monitor
// has not removed yet.
func (r *Repository) ListExpired(ctx context.Context, cutoff time.Time) ([]*files.FileRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := r.coll.Find(ctx, bson.M{"createdAt": bson.M{"$lt": cutoff}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired files: %w", err)
	}

	var fileList []*files.FileRecord
	if err := cursor.All(ctx, &fileList); err != nil {
		return nil, fmt.Errorf("failed to decode expired files: %w", err)
	}
	return fileList, nil
}

// Delete removes file metadata by ID
func (r *Repository) Delete(ctx context.Context, id string) error {
	result, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete file record: %w", err)
	}
	if result.DeletedCount == 0 {
		return files.ErrNotFound
	}
	return nil
}
