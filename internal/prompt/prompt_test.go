package prompt

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"docchat/internal/store"
)

type fakeGateway struct {
	store.Gateway
	docs  []store.Document
	calls int
}

func (f *fakeGateway) FindMany(_ context.Context, collection string, _ any, _ store.FindOptions) ([]store.Document, int64, error) {
	if collection != store.CollPrompts {
		return nil, 0, nil
	}
	f.calls++
	return f.docs, int64(len(f.docs)), nil
}

func TestChatPromptPrefersStoredValue(t *testing.T) {
	gw := &fakeGateway{docs: []store.Document{
		{"chat_prompt": ""},
		{"chat_prompt": "answer using the attached document"},
	}}
	s := New(gw, nil, "default prompt")
	if got := s.ChatPrompt(context.Background()); got != "answer using the attached document" {
		t.Fatalf("expected stored prompt, got %q", got)
	}
}

func TestChatPromptFallsBackToDefault(t *testing.T) {
	s := New(&fakeGateway{}, nil, "default prompt")
	if got := s.ChatPrompt(context.Background()); got != "default prompt" {
		t.Fatalf("expected fallback prompt, got %q", got)
	}
}

func TestChatPromptCachesInRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	gw := &fakeGateway{docs: []store.Document{{"chat_prompt": "cached prompt"}}}
	s := New(gw, client, "default prompt")

	if got := s.ChatPrompt(context.Background()); got != "cached prompt" {
		t.Fatalf("expected stored prompt, got %q", got)
	}
	if got := s.ChatPrompt(context.Background()); got != "cached prompt" {
		t.Fatalf("expected cached prompt, got %q", got)
	}
	if gw.calls != 1 {
		t.Fatalf("expected one database lookup, got %d", gw.calls)
	}
}
