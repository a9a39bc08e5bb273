// Package redis provides a domain.SessionStore shared by every portal
// instance behind a load balancer.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"leadership-portal/internal/domain"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "portal:session:"

	// expiredRetention keeps expired sessions around long enough to tell
	// "expired" apart from "never existed".
	expiredRetention = 24 * time.Hour
)

// touchScript extends expires_at only when the new value is later.
// Timestamps are unix microseconds, exact in Lua's doubles.
var touchScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return false
end
redis.call('HSET', KEYS[1], 'last_activity_at', ARGV[1])
local current = redis.call('HGET', KEYS[1], 'expires_at')
if tonumber(ARGV[2]) > tonumber(current) then
  redis.call('HSET', KEYS[1], 'expires_at', ARGV[2])
  redis.call('PEXPIREAT', KEYS[1], ARGV[3])
  return ARGV[2]
end
return current
`)

var updateCSRFScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], 'csrf_token', ARGV[1], 'csrf_issued_at', ARGV[2])
return 1
`)

var consumeCSRFScript = goredis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'csrf_token')
if current and current ~= '' and current == ARGV[1] then
  redis.call('HSET', KEYS[1], 'csrf_token', '')
  return 1
end
return 0
`)

// SessionStore keeps each session in a hash keyed by its token. Redis
// evicts the hash a day after the session expires, so DeleteExpired has
// nothing to do.
type SessionStore struct {
	client goredis.UniversalClient
	now    func() time.Time
}

func NewSessionStore(client goredis.UniversalClient) *SessionStore {
	return &SessionStore{client: client, now: time.Now}
}

func key(token string) string {
	return keyPrefix + token
}

func (s *SessionStore) Create(ctx context.Context, session *domain.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = s.now()
	}
	if session.LastActivityAt.IsZero() {
		session.LastActivityAt = session.CreatedAt
	}

	k := key(session.Token)
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, k, map[string]any{
			"id":               session.ID,
			"user_id":          session.UserID,
			"token":            session.Token,
			"csrf_token":       session.CSRFToken,
			"csrf_issued_at":   micros(session.CSRFIssuedAt),
			"last_activity_at": micros(session.LastActivityAt),
			"expires_at":       micros(session.ExpiresAt),
			"created_at":       micros(session.CreatedAt),
		})
		pipe.PExpireAt(ctx, k, session.ExpiresAt.Add(expiredRetention))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *SessionStore) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	fields, err := s.client.HGetAll(ctx, key(token)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get session by token: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrSessionNotFound
	}

	session := &domain.Session{
		ID:        fields["id"],
		UserID:    fields["user_id"],
		Token:     fields["token"],
		CSRFToken: fields["csrf_token"],
	}
	for name, dst := range map[string]*time.Time{
		"csrf_issued_at":   &session.CSRFIssuedAt,
		"last_activity_at": &session.LastActivityAt,
		"expires_at":       &session.ExpiresAt,
		"created_at":       &session.CreatedAt,
	} {
		t, err := parseMicros(fields[name])
		if err != nil {
			return nil, fmt.Errorf("failed to decode session field %s: %w", name, err)
		}
		*dst = t
	}
	return session, nil
}

func (s *SessionStore) Touch(ctx context.Context, token string, lastActivityAt, expiresAt time.Time) (time.Time, error) {
	stored, err := touchScript.Run(ctx, s.client, []string{key(token)},
		micros(lastActivityAt),
		micros(expiresAt),
		expiresAt.Add(expiredRetention).UnixMilli(),
	).Text()
	if errors.Is(err, goredis.Nil) {
		return time.Time{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to touch session: %w", err)
	}
	return parseMicros(stored)
}

func (s *SessionStore) UpdateCSRFToken(ctx context.Context, sessionToken, csrfToken string, issuedAt time.Time) error {
	n, err := updateCSRFScript.Run(ctx, s.client, []string{key(sessionToken)}, csrfToken, micros(issuedAt)).Int()
	if err != nil {
		return fmt.Errorf("failed to update csrf token: %w", err)
	}
	if n == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *SessionStore) ConsumeCSRFToken(ctx context.Context, sessionToken, csrfToken string) (bool, error) {
	n, err := consumeCSRFScript.Run(ctx, s.client, []string{key(sessionToken)}, csrfToken).Int()
	if err != nil {
		return false, fmt.Errorf("failed to consume csrf token: %w", err)
	}
	return n == 1, nil
}

func (s *SessionStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, key(token)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired is a no-op: key expiry does the cleanup.
func (s *SessionStore) DeleteExpired(context.Context) (int64, error) {
	return 0, nil
}

func micros(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.UnixMicro(), 10)
}

func parseMicros(v string) (time.Time, error) {
	if v == "" || v == "0" {
		return time.Time{}, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMicro(n), nil
}
