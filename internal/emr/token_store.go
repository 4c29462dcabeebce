package emr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotConnected is returned when no provider has completed the OAuth
// flow yet.
var ErrNotConnected = errors.New("emr not connected")

const tokenKey = "emr:drchrono:token"

// Token is the persisted OAuth credential pair.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the access token needs a refresh, with a small
// safety margin.
func (t *Token) Expired() bool {
	return time.Now().After(t.ExpiresAt.Add(-30 * time.Second))
}

// TokenStore keeps the EMR OAuth token in Redis so restarts and replicas
// share the provider's connection.
type TokenStore struct {
	redis *redis.Client
}

func NewTokenStore(redisClient *redis.Client) *TokenStore {
	return &TokenStore{redis: redisClient}
}

func (s *TokenStore) Get(ctx context.Context) (*Token, error) {
	data, err := s.redis.Get(ctx, tokenKey).Bytes()
	if err == redis.Nil {
		return nil, ErrNotConnected
	}
	if err != nil {
		return nil, fmt.Errorf("emr: get token: %w", err)
	}

	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("emr: unmarshal token: %w", err)
	}
	return &token, nil
}

func (s *TokenStore) Set(ctx context.Context, token *Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("emr: marshal token: %w", err)
	}
	if err := s.redis.Set(ctx, tokenKey, data, 0).Err(); err != nil {
		return fmt.Errorf("emr: set token: %w", err)
	}
	return nil
}
