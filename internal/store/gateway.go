package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrNotFound reports that no document matched a filter. Callers treat it as
// a typed result rather than a failure.
var ErrNotFound = errors.New("no matching record found")

// Document is a database record with identifiers rendered as strings.
type Document = map[string]any

// FindOptions control sorting and pagination for FindMany.
type FindOptions struct {
	// Sort is a Mongo sort document, e.g. bson.D{{Key: "created_at", Value: -1}}.
	Sort any
	// Page enables offset pagination when > 0 (1-based).
	Page      int
	PageLimit int
}

// Gateway exposes generic operations over document collections. All returned
// documents are normalized: binary object ids become hex strings, recursively
// through nested documents and arrays.
type Gateway interface {
	InsertOne(ctx context.Context, collection string, doc any) (Document, error)
	FindOne(ctx context.Context, collection string, filter any) (Document, error)
	// FindMany returns the matching page and the total match count. The count
	// is only computed when pagination is requested; otherwise it equals the
	// result length.
	FindMany(ctx context.Context, collection string, filter any, opts FindOptions) ([]Document, int64, error)
	// FindOneAndUpdate applies update atomically and returns the post-update
	// document.
	FindOneAndUpdate(ctx context.Context, collection string, filter, update any) (Document, error)
	Aggregate(ctx context.Context, collection string, pipeline any) ([]Document, error)
}

// ObjectID parses a hex string into a Mongo object id for use in filters.
func ObjectID(hex string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("invalid object id %q: %w", hex, err)
	}
	return oid, nil
}
