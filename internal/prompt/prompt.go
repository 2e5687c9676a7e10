package prompt

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"

	"docchat/internal/store"
)

const (
	cacheKey = "docchat:prompt:chat"
	cacheTTL = 5 * time.Minute
)

// Store resolves the chat system prompt: the first non-empty value in the
// prompt collection wins, with a Redis cache in front, falling back to the
// configured default.
type Store struct {
	gw       store.Gateway
	redis    *redis.Client
	fallback string
}

// New builds a prompt store. The Redis client is optional; without it every
// lookup hits the database.
func New(gw store.Gateway, redisClient *redis.Client, fallback string) *Store {
	return &Store{gw: gw, redis: redisClient, fallback: fallback}
}

// ChatPrompt returns the active system prompt.
func (s *Store) ChatPrompt(ctx context.Context) string {
	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, cacheKey).Result(); err == nil && cached != "" {
			return cached
		}
	}
	docs, _, err := s.gw.FindMany(ctx, store.CollPrompts, bson.M{}, store.FindOptions{})
	if err != nil {
		slog.Warn("load chat prompt", "err", err)
		return s.fallback
	}
	for _, doc := range docs {
		value, _ := doc["chat_prompt"].(string)
		if value == "" {
			continue
		}
		if s.redis != nil {
			if err := s.redis.Set(ctx, cacheKey, value, cacheTTL).Err(); err != nil {
				slog.Warn("cache chat prompt", "err", err)
			}
		}
		return value
	}
	return s.fallback
}
