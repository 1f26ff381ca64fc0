package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store tracks live device sessions. One key per (user, session) lets a
// logout revoke either the calling device or every device at once.
type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (s *Store) Close() error { return s.rdb.Close() }

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func sessionKey(userID, sessionID string) string {
	return fmt.Sprintf("sess:%s:%s", userID, sessionID)
}

func (s *Store) SaveSession(ctx context.Context, userID, sessionID string, ttl time.Duration) error {
	return s.rdb.Set(ctx, sessionKey(userID, sessionID), time.Now().Unix(), ttl).Err()
}

func (s *Store) SessionExists(ctx context.Context, userID, sessionID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, sessionKey(userID, sessionID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteSession revokes a single device session.
func (s *Store) DeleteSession(ctx context.Context, userID, sessionID string) error {
	return s.rdb.Del(ctx, sessionKey(userID, sessionID)).Err()
}

// DeleteAllSessions revokes every session of the user (global sign-out).
func (s *Store) DeleteAllSessions(ctx context.Context, userID string) error {
	pattern := fmt.Sprintf("sess:%s:*", userID)
	iter := s.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := s.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
