package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

type fakeGateway struct {
	Gateway

	inserted   map[string][]bson.M
	findOneErr error
	findOneDoc Document
	findFilter any
	updated    map[string]any
	manyDocs   []Document
	aggDocs    []Document
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{inserted: map[string][]bson.M{}, updated: map[string]any{}}
}

func (g *fakeGateway) InsertOne(ctx context.Context, collection string, doc any) (Document, error) {
	m, ok := doc.(bson.M)
	if !ok {
		return nil, errors.New("unexpected document type")
	}
	g.inserted[collection] = append(g.inserted[collection], m)
	out := Document{"_id": "000000000000000000000001"}
	for k, v := range m {
		out[k] = v
	}
	return out, nil
}

func (g *fakeGateway) FindOne(ctx context.Context, collection string, filter any) (Document, error) {
	g.findFilter = filter
	if g.findOneErr != nil {
		return nil, g.findOneErr
	}
	return g.findOneDoc, nil
}

func (g *fakeGateway) FindMany(ctx context.Context, collection string, filter any, opts FindOptions) ([]Document, int64, error) {
	return g.manyDocs, int64(len(g.manyDocs)), nil
}

func (g *fakeGateway) FindOneAndUpdate(ctx context.Context, collection string, filter, update any) (Document, error) {
	g.updated[collection] = update
	return Document{"_id": "000000000000000000000001"}, nil
}

func (g *fakeGateway) Aggregate(ctx context.Context, collection string, pipeline any) ([]Document, error) {
	return g.aggDocs, nil
}

func TestCreateUserShape(t *testing.T) {
	gw := newFakeGateway()
	st := New(gw)

	user, err := st.CreateUser(context.Background(), "alice", "alice@example.com", "hash", 1000)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.ID != "000000000000000000000001" {
		t.Fatalf("id = %q", user.ID)
	}
	if user.TotalCredits != 1000 || !user.IsActive {
		t.Fatalf("user = %+v", user)
	}

	docs := gw.inserted[CollUsers]
	if len(docs) != 1 {
		t.Fatalf("inserted = %d, want 1", len(docs))
	}
	doc := docs[0]
	if doc["username"] != "alice" || doc["email"] != "alice@example.com" || doc["password"] != "hash" {
		t.Fatalf("doc = %v", doc)
	}
	if doc["total_credits"] != 1000 || doc["is_active"] != true {
		t.Fatalf("doc = %v", doc)
	}
	if _, ok := doc["created_at"].(time.Time); !ok {
		t.Fatalf("created_at = %T", doc["created_at"])
	}
}

func TestUserExistsMatchesEither(t *testing.T) {
	gw := newFakeGateway()
	st := New(gw)

	gw.findOneErr = ErrNotFound
	exists, err := st.UserExists(context.Background(), "alice", "alice@example.com")
	if err != nil || exists {
		t.Fatalf("exists = %v, err = %v", exists, err)
	}

	filter, ok := gw.findFilter.(bson.M)
	if !ok {
		t.Fatalf("filter = %T", gw.findFilter)
	}
	or, ok := filter["$or"].(bson.A)
	if !ok || len(or) != 2 {
		t.Fatalf("filter = %v", filter)
	}

	gw.findOneErr = nil
	gw.findOneDoc = Document{"_id": "000000000000000000000001", "username": "alice"}
	exists, err = st.UserExists(context.Background(), "alice", "alice@example.com")
	if err != nil || !exists {
		t.Fatalf("exists = %v, err = %v", exists, err)
	}
}

func TestSetUserCreditsUpdate(t *testing.T) {
	gw := newFakeGateway()
	st := New(gw)

	if _, err := st.SetUserCredits(context.Background(), "000000000000000000000001", 480); err != nil {
		t.Fatalf("SetUserCredits: %v", err)
	}
	update, ok := gw.updated[CollUsers].(bson.M)
	if !ok {
		t.Fatalf("update = %T", gw.updated[CollUsers])
	}
	set, ok := update["$set"].(bson.M)
	if !ok || set["total_credits"] != 480 {
		t.Fatalf("update = %v", update)
	}
}

func TestSetUserCreditsRejectsBadID(t *testing.T) {
	st := New(newFakeGateway())
	if _, err := st.SetUserCredits(context.Background(), "nope", 100); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRecentAnsweredMessagesLimit(t *testing.T) {
	gw := newFakeGateway()
	st := New(gw)

	for i := 0; i < 15; i++ {
		gw.manyDocs = append(gw.manyDocs, Document{
			"_id":      "000000000000000000000001",
			"question": "q",
			"answer":   "a",
		})
	}
	messages, err := st.RecentAnsweredMessages(context.Background(), "000000000000000000000001", 10)
	if err != nil {
		t.Fatalf("RecentAnsweredMessages: %v", err)
	}
	if len(messages) != 10 {
		t.Fatalf("messages = %d, want 10", len(messages))
	}
}

func TestListAllPDFsFacet(t *testing.T) {
	gw := newFakeGateway()
	st := New(gw)

	gw.aggDocs = []Document{{
		"total": []any{Document{"count": 42}},
		"data": []any{
			Document{"_id": "000000000000000000000001", "file": "static/a.pdf"},
			Document{"_id": "000000000000000000000002", "file": "static/b.pdf"},
		},
	}}
	docs, total, err := st.ListAllPDFs(context.Background(), 1, 20, "")
	if err != nil {
		t.Fatalf("ListAllPDFs: %v", err)
	}
	if total != 42 || len(docs) != 2 {
		t.Fatalf("total = %d, docs = %d", total, len(docs))
	}
}

func TestListAllPDFsEmpty(t *testing.T) {
	st := New(newFakeGateway())
	docs, total, err := st.ListAllPDFs(context.Background(), 1, 20, "x")
	if err != nil {
		t.Fatalf("ListAllPDFs: %v", err)
	}
	if total != 0 || len(docs) != 0 {
		t.Fatalf("total = %d, docs = %v", total, docs)
	}
}
