package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrTokenNotFound is returned for unknown, expired or revoked tokens.
var ErrTokenNotFound = errors.New("token not found")

const tokenBytes = 32

// TokenStore issues and resolves opaque API tokens. Only a SHA-256 digest of
// each token is kept.
type TokenStore interface {
	Issue(ctx context.Context, userID uuid.UUID) (token string, expiresAt time.Time, err error)
	Lookup(ctx context.Context, token string) (uuid.UUID, error)
	Revoke(ctx context.Context, token string) error
	// RevokeAllForUser drops every token of userID and returns how many were live.
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int, error)
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ---------------------------------------------------------------------------
// Redis
// ---------------------------------------------------------------------------

const (
	tokenKeyPrefix      = "hms:token:"
	userTokensKeyPrefix = "hms:user_tokens:"
)

type redisTokenStore struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewRedisTokenStore keeps tokens as expiring keys plus one set per user
// listing that user's digests.
func NewRedisTokenStore(rdb *redis.Client, ttl time.Duration) TokenStore {
	return &redisTokenStore{rdb: rdb, ttl: ttl, now: time.Now}
}

func (s *redisTokenStore) Issue(ctx context.Context, userID uuid.UUID) (string, time.Time, error) {
	tok, err := newToken()
	if err != nil {
		return "", time.Time{}, err
	}
	d := digest(tok)
	userKey := userTokensKeyPrefix + userID.String()

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, tokenKeyPrefix+d, userID.String(), s.ttl)
		pipe.SAdd(ctx, userKey, d)
		pipe.Expire(ctx, userKey, s.ttl)
		return nil
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("store token: %w", err)
	}
	return tok, s.now().Add(s.ttl), nil
}

func (s *redisTokenStore) Lookup(ctx context.Context, token string) (uuid.UUID, error) {
	val, err := s.rdb.Get(ctx, tokenKeyPrefix+digest(token)).Result()
	if err != nil {
		if err == redis.Nil {
			return uuid.Nil, ErrTokenNotFound
		}
		return uuid.Nil, fmt.Errorf("lookup token: %w", err)
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, ErrTokenNotFound
	}
	return id, nil
}

func (s *redisTokenStore) Revoke(ctx context.Context, token string) error {
	d := digest(token)
	key := tokenKeyPrefix + d
	val, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.SRem(ctx, userTokensKeyPrefix+val, d)
		return nil
	})
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *redisTokenStore) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	userKey := userTokensKeyPrefix + userID.String()
	digests, err := s.rdb.SMembers(ctx, userKey).Result()
	if err != nil {
		return 0, fmt.Errorf("list user tokens: %w", err)
	}
	if len(digests) == 0 {
		return 0, nil
	}
	keys := make([]string, 0, len(digests)+1)
	for _, d := range digests {
		keys = append(keys, tokenKeyPrefix+d)
	}
	removed, err := s.rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("revoke user tokens: %w", err)
	}
	if err := s.rdb.Del(ctx, userKey).Err(); err != nil {
		return int(removed), fmt.Errorf("clear user token set: %w", err)
	}
	return int(removed), nil
}

// ---------------------------------------------------------------------------
// In-memory
// ---------------------------------------------------------------------------

type memoryEntry struct {
	userID    uuid.UUID
	expiresAt time.Time
}

// MemoryTokenStore is a thread-safe TokenStore for tests and single-process
// development servers.
type MemoryTokenStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry // digest -> entry
	byUser  map[uuid.UUID][]string // userID -> digests
}

func NewMemoryTokenStore(ttl time.Duration) *MemoryTokenStore {
	return &MemoryTokenStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
		byUser:  make(map[uuid.UUID][]string),
	}
}

func (s *MemoryTokenStore) Issue(_ context.Context, userID uuid.UUID) (string, time.Time, error) {
	tok, err := newToken()
	if err != nil {
		return "", time.Time{}, err
	}
	d := digest(tok)
	exp := s.now().Add(s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[d] = memoryEntry{userID: userID, expiresAt: exp}
	s.byUser[userID] = append(s.byUser[userID], d)
	return tok, exp, nil
}

func (s *MemoryTokenStore) Lookup(_ context.Context, token string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[digest(token)]
	if !ok || !s.now().Before(e.expiresAt) {
		return uuid.Nil, ErrTokenNotFound
	}
	return e.userID, nil
}

func (s *MemoryTokenStore) Revoke(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, digest(token))
	return nil
}

func (s *MemoryTokenStore) RevokeAllForUser(_ context.Context, userID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	count := 0
	for _, d := range s.byUser[userID] {
		if e, ok := s.entries[d]; ok {
			if now.Before(e.expiresAt) {
				count++
			}
			delete(s.entries, d)
		}
	}
	delete(s.byUser, userID)
	return count, nil
}
