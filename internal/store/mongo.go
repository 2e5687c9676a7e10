package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoGateway implements Gateway against a MongoDB database.
type MongoGateway struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoGateway connects to MongoDB and pings it before returning.
func NewMongoGateway(uri, dbName string) (*MongoGateway, error) {
	if uri == "" {
		return nil, errors.New("database uri required")
	}
	if dbName == "" {
		return nil, errors.New("database name required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return &MongoGateway{client: client, db: client.Database(dbName)}, nil
}

// Close disconnects the underlying client.
func (g *MongoGateway) Close(ctx context.Context) error {
	return g.client.Disconnect(ctx)
}

// InsertOne inserts the document and returns the stored, normalized copy.
func (g *MongoGateway) InsertOne(ctx context.Context, collection string, doc any) (Document, error) {
	res, err := g.db.Collection(collection).InsertOne(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", collection, err)
	}
	return g.FindOne(ctx, collection, bson.M{"_id": res.InsertedID})
}

// FindOne returns the first matching document or ErrNotFound.
func (g *MongoGateway) FindOne(ctx context.Context, collection string, filter any) (Document, error) {
	var raw bson.M
	err := g.db.Collection(collection).FindOne(ctx, filter).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", collection, err)
	}
	return normalizeDocument(raw), nil
}

// FindMany returns matching documents with optional sort and pagination.
func (g *MongoGateway) FindMany(ctx context.Context, collection string, filter any, opts FindOptions) ([]Document, int64, error) {
	coll := g.db.Collection(collection)
	findOpts := options.Find()
	if opts.Sort != nil {
		findOpts.SetSort(opts.Sort)
	}
	var total int64 = -1
	if opts.Page > 0 {
		limit := opts.PageLimit
		if limit <= 0 {
			limit = 10
		}
		count, err := coll.CountDocuments(ctx, filter)
		if err != nil {
			return nil, 0, fmt.Errorf("count in %s: %w", collection, err)
		}
		total = count
		findOpts.SetSkip(int64((opts.Page - 1) * limit))
		findOpts.SetLimit(int64(limit))
	}
	cursor, err := coll.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, 0, fmt.Errorf("find in %s: %w", collection, err)
	}
	var rows []bson.M
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, 0, fmt.Errorf("read cursor for %s: %w", collection, err)
	}
	docs := make([]Document, len(rows))
	for i, row := range rows {
		docs[i] = normalizeDocument(row)
	}
	if total < 0 {
		total = int64(len(docs))
	}
	return docs, total, nil
}

// FindOneAndUpdate atomically updates one document and returns the result
// after the update, or ErrNotFound when nothing matched.
func (g *MongoGateway) FindOneAndUpdate(ctx context.Context, collection string, filter, update any) (Document, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var raw bson.M
	err := g.db.Collection(collection).FindOneAndUpdate(ctx, filter, update, opts).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update in %s: %w", collection, err)
	}
	return normalizeDocument(raw), nil
}

// Aggregate runs an aggregation pipeline and normalizes the output documents.
func (g *MongoGateway) Aggregate(ctx context.Context, collection string, pipeline any) ([]Document, error) {
	cursor, err := g.db.Collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate on %s: %w", collection, err)
	}
	var rows []bson.M
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("read aggregation for %s: %w", collection, err)
	}
	docs := make([]Document, len(rows))
	for i, row := range rows {
		docs[i] = normalizeDocument(row)
	}
	return docs, nil
}
