package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/homepresence/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	sessionPrefix         = "session:"
	accountSessionsPrefix = "account:%s:sessions"
)

// RedisSessionRepository stores sessions under session:{id} with a TTL
// matching the token expiry, plus a per-account set used to revoke every
// session of an account. Set members whose session expired are pruned
// lazily on read.
type RedisSessionRepository struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisSessionRepository(client *redis.Client, logger *slog.Logger) *RedisSessionRepository {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RedisSessionRepository{client: client, logger: logger}
}

func (r *RedisSessionRepository) Create(ctx context.Context, session *models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session %s already expired", session.ID)
	}

	accountKey := accountSessionsKey(session.AccountID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(session.ID), data, ttl)
		pipe.SAdd(ctx, accountKey, session.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

func (r *RedisSessionRepository) ListByAccountID(ctx context.Context, accountID uuid.UUID) ([]*models.Session, error) {
	accountKey := accountSessionsKey(accountID)
	sessionIDs, err := r.client.SMembers(ctx, accountKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get account sessions: %w", err)
	}

	var sessions []*models.Session
	var expiredIDs []any

	for _, id := range sessionIDs {
		session, err := r.GetByID(ctx, id)
		if errors.Is(err, ErrNotFound) {
			expiredIDs = append(expiredIDs, id)
			continue
		}
		if err != nil {
			r.logger.Warn("skipping unreadable session", "session_id", id, "error", err)
			continue
		}
		sessions = append(sessions, session)
	}

	if len(expiredIDs) > 0 {
		if err := r.client.SRem(ctx, accountKey, expiredIDs...).Err(); err != nil {
			return nil, fmt.Errorf("failed to remove expired sessions: %w", err)
		}
	}
	return sessions, nil
}

func (r *RedisSessionRepository) Delete(ctx context.Context, id string) error {
	session, err := r.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, accountSessionsKey(session.AccountID), id)
		pipe.Del(ctx, sessionKey(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) DeleteAllForAccount(ctx context.Context, accountID uuid.UUID) error {
	accountKey := accountSessionsKey(accountID)
	sessionIDs, err := r.client.SMembers(ctx, accountKey).Result()
	if err != nil {
		return fmt.Errorf("failed to get account sessions: %w", err)
	}

	keys := make([]string, 0, len(sessionIDs)+1)
	for _, id := range sessionIDs {
		keys = append(keys, sessionKey(id))
	}
	keys = append(keys, accountKey)

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete account sessions: %w", err)
	}
	return nil
}

func sessionKey(id string) string {
	return sessionPrefix + id
}

func accountSessionsKey(accountID uuid.UUID) string {
	return fmt.Sprintf(accountSessionsPrefix, accountID)
}
