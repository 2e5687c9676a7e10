package store

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestNormalizeDocumentRendersObjectIDsAsStrings(t *testing.T) {
	id := primitive.NewObjectID()
	owner := primitive.NewObjectID()
	nested := primitive.NewObjectID()
	doc := bson.M{
		"_id":    id,
		"user":   owner,
		"status": "completed",
		"count":  int32(3),
		"inner": bson.M{
			"ref": nested,
		},
		"items": bson.A{
			bson.M{"ref": nested},
			"plain",
		},
	}

	out := normalizeDocument(doc)

	if got := out["_id"]; got != id.Hex() {
		t.Fatalf("expected _id %q, got %v", id.Hex(), got)
	}
	if got := out["user"]; got != owner.Hex() {
		t.Fatalf("expected user %q, got %v", owner.Hex(), got)
	}
	inner, ok := out["inner"].(Document)
	if !ok {
		t.Fatalf("expected nested document, got %T", out["inner"])
	}
	if inner["ref"] != nested.Hex() {
		t.Fatalf("expected nested ref rendered as string, got %v", inner["ref"])
	}
	items, ok := out["items"].([]any)
	if !ok || len(items) != 2 {
		t.Fatalf("expected normalized slice, got %v", out["items"])
	}
	first, ok := items[0].(Document)
	if !ok || first["ref"] != nested.Hex() {
		t.Fatalf("expected slice element normalized, got %v", items[0])
	}
	if items[1] != "plain" {
		t.Fatalf("expected scalar preserved, got %v", items[1])
	}
	if out["status"] != "completed" || out["count"] != int32(3) {
		t.Fatalf("expected scalars untouched, got %v / %v", out["status"], out["count"])
	}
}

func TestNormalizeValueHandlesOrderedDocumentsAndDates(t *testing.T) {
	ref := primitive.NewObjectID()
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	value := bson.D{
		{Key: "ref", Value: ref},
		{Key: "created_at", Value: primitive.NewDateTimeFromTime(created)},
	}

	out, ok := normalizeValue(value).(Document)
	if !ok {
		t.Fatalf("expected document, got %T", normalizeValue(value))
	}
	if out["ref"] != ref.Hex() {
		t.Fatalf("expected ref %q, got %v", ref.Hex(), out["ref"])
	}
	got, ok := out["created_at"].(time.Time)
	if !ok || !got.Equal(created) {
		t.Fatalf("expected created_at %v, got %v", created, out["created_at"])
	}
}
