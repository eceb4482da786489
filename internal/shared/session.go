package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Session holds per-login state, including the single active permission
// context. A user has at most one active context per session; switching
// replaces it and the next permission check picks it up with no caching.
type Session struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Username      string    `json:"username"`
	ActiveContext string    `json:"active_context"`
	CreatedAt     time.Time `json:"created_at"`
}

// SessionStore persists sessions in Redis with a sliding TTL.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionStore constructs a SessionStore.
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

// Create opens a new session for the user with the given default context.
func (s *SessionStore) Create(ctx context.Context, userID, username, defaultContext string) (*Session, error) {
	sess := &Session{
		ID:            uuid.NewString(),
		UserID:        userID,
		Username:      username,
		ActiveContext: defaultContext,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.persist(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get loads a session by id. Returns ErrNotFound for unknown or expired ids.
func (s *SessionStore) Get(ctx context.Context, id string) (*Session, error) {
	payload, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// SetActiveContext replaces the session's active permission context and
// returns the previous one.
func (s *SessionStore) SetActiveContext(ctx context.Context, sessionID, contextID string) (string, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	previous := sess.ActiveContext
	sess.ActiveContext = contextID
	if err := s.persist(ctx, sess); err != nil {
		return "", err
	}
	return previous, nil
}

// Destroy removes a session.
func (s *SessionStore) Destroy(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

// UserForToken implements SessionLookup for the actor resolution chain.
func (s *SessionStore) UserForToken(ctx context.Context, token string) (string, string, error) {
	sess, err := s.Get(ctx, token)
	if err != nil {
		return "", "", err
	}
	return sess.UserID, sess.Username, nil
}

// TTL exposes the configured session lifetime.
func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}

func (s *SessionStore) persist(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(sess.ID), data, s.ttl).Err()
}

func (s *SessionStore) key(id string) string {
	return "session:" + id
}
