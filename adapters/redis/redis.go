// Package redis keeps sessions in Redis. Expiry is enforced by key TTLs;
// a per-account set indexes token hashes for bulk revocation.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lborres/whisper/core"
)

const DefaultPrefix = "whisper:"

// ErrRedisUnavailable wraps transport failures
var ErrRedisUnavailable = errors.New("redis unavailable")

type Adapter struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ core.SessionStorage = (*Adapter)(nil)

func New(client redis.UniversalClient, prefix string) *Adapter {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Adapter{redis: client, prefix: prefix, now: time.Now}
}

// Open parses a redis:// URL and checks the server is reachable
func Open(ctx context.Context, url string) (*Adapter, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return New(client, DefaultPrefix), nil
}

func (a *Adapter) Close() error {
	return a.redis.Close()
}

// sessionRecord is the stored form; core.Session hides its hash from JSON
type sessionRecord struct {
	ID        string    `json:"id"`
	AccountID string    `json:"accountId"`
	TokenHash string    `json:"tokenHash"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

func (a *Adapter) sessionKey(tokenHash string) string {
	return a.prefix + "session:" + tokenHash
}

func (a *Adapter) accountKey(accountID string) string {
	return a.prefix + "account:" + accountID
}

func (a *Adapter) CreateSession(ctx context.Context, s *core.Session) error {
	ttl := s.ExpiresAt.Sub(a.now())
	if ttl <= 0 {
		// already dead, nothing to keep
		return nil
	}

	data, err := json.Marshal(sessionRecord{
		ID:        s.ID,
		AccountID: s.AccountID,
		TokenHash: s.TokenHash,
		ExpiresAt: s.ExpiresAt,
		CreatedAt: s.CreatedAt,
	})
	if err != nil {
		return err
	}

	_, err = a.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, a.sessionKey(s.TokenHash), data, ttl)
		pipe.SAdd(ctx, a.accountKey(s.AccountID), s.TokenHash)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (a *Adapter) GetSessionByHash(ctx context.Context, tokenHash string) (*core.Session, error) {
	data, err := a.redis.Get(ctx, a.sessionKey(tokenHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("corrupt session record: %w", err)
	}
	return &core.Session{
		ID:        rec.ID,
		AccountID: rec.AccountID,
		TokenHash: rec.TokenHash,
		ExpiresAt: rec.ExpiresAt,
		CreatedAt: rec.CreatedAt,
	}, nil
}

func (a *Adapter) SessionExists(ctx context.Context, tokenHash string) (bool, error) {
	n, err := a.redis.Exists(ctx, a.sessionKey(tokenHash)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}

func (a *Adapter) DeleteSessionByHash(ctx context.Context, tokenHash string) error {
	s, err := a.GetSessionByHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, core.ErrSessionNotFound) {
			return nil
		}
		return err
	}

	_, err = a.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, a.sessionKey(tokenHash))
		pipe.SRem(ctx, a.accountKey(s.AccountID), tokenHash)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (a *Adapter) DeleteAccountSessions(ctx context.Context, accountID string) (int, error) {
	accountKey := a.accountKey(accountID)

	hashes, err := a.redis.SMembers(ctx, accountKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	keys := make([]string, 0, len(hashes))
	for _, h := range hashes {
		keys = append(keys, a.sessionKey(h))
	}

	var deleted *redis.IntCmd
	_, err = a.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(keys) > 0 {
			deleted = pipe.Del(ctx, keys...)
		}
		pipe.Del(ctx, accountKey)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if deleted == nil {
		return 0, nil
	}
	return int(deleted.Val()), nil
}

// DeleteExpiredSessions prunes account index entries whose session keys
// Redis has already expired, and returns how many it removed
func (a *Adapter) DeleteExpiredSessions(ctx context.Context) (int, error) {
	pruned := 0
	iter := a.redis.Scan(ctx, 0, a.prefix+"account:*", 100).Iterator()
	for iter.Next(ctx) {
		n, err := a.pruneAccount(ctx, iter.Val())
		if err != nil {
			return pruned, err
		}
		pruned += n
	}
	if err := iter.Err(); err != nil {
		return pruned, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return pruned, nil
}

func (a *Adapter) pruneAccount(ctx context.Context, accountKey string) (int, error) {
	hashes, err := a.redis.SMembers(ctx, accountKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(hashes) == 0 {
		return 0, nil
	}

	pipe := a.redis.Pipeline()
	exists := make([]*redis.IntCmd, len(hashes))
	for i, h := range hashes {
		exists[i] = pipe.Exists(ctx, a.sessionKey(h))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var dead []interface{}
	for i, cmd := range exists {
		if cmd.Val() == 0 {
			dead = append(dead, hashes[i])
		}
	}
	if len(dead) == 0 {
		return 0, nil
	}
	if err := a.redis.SRem(ctx, accountKey, dead...).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return len(dead), nil
}
