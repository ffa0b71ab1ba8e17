package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"snapchart-proxy/internal/model"
)

const keyPrefix = "session:"

// Store mints opaque bearer tokens and resolves them back to user ids.
// Sessions are immutable once issued; the only way out is the TTL.
type Store struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewStore(client redis.Cmdable, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

// Create issues a fresh token bound to uid. The token itself carries no
// information; all meaning lives in the keyed record.
func (s *Store) Create(ctx context.Context, uid string) (string, error) {
	token := uuid.NewString()

	data, err := json.Marshal(model.Session{UID: uid})
	if err != nil {
		return "", err
	}

	if err := s.client.Set(ctx, keyPrefix+token, data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}

	return token, nil
}

// Verify resolves a token to its uid. A missing key means the token was
// never issued or its TTL lapsed; both look identical to the caller.
func (s *Store) Verify(ctx context.Context, token string) (string, error) {
	data, err := s.client.Get(ctx, keyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", model.ErrSessionInvalid
	}
	if err != nil {
		return "", fmt.Errorf("read session: %w", err)
	}

	var sess model.Session
	if err := json.Unmarshal(data, &sess); err != nil || sess.UID == "" {
		return "", model.ErrSessionCorrupt
	}

	return sess.UID, nil
}
