package store

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// normalizeDocument converts a decoded BSON document into a Document with
// object ids rendered as hex strings and BSON container types flattened to
// plain maps and slices, recursively.
func normalizeDocument(doc bson.M) Document {
	out := make(Document, len(doc))
	for key, value := range doc {
		out[key] = normalizeValue(value)
	}
	return out
}

func normalizeValue(value any) any {
	switch v := value.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case primitive.DateTime:
		return v.Time().UTC()
	case bson.M:
		return normalizeDocument(v)
	case map[string]any:
		return normalizeDocument(v)
	case bson.D:
		m := make(Document, len(v))
		for _, elem := range v {
			m[elem.Key] = normalizeValue(elem.Value)
		}
		return m
	case bson.A:
		return normalizeSlice(v)
	case []any:
		return normalizeSlice(v)
	default:
		return value
	}
}

func normalizeSlice(values []any) []any {
	out := make([]any, len(values))
	for i, value := range values {
		out[i] = normalizeValue(value)
	}
	return out
}
