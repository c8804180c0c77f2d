// Package redis is a storage.Store that keeps checkpoints in Redis
// with an expiration.
package redis

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/Comcast/formflow/session"
	"github.com/Comcast/formflow/storage"

	"github.com/redis/go-redis/v9"
)

var (
	DefaultPrefix = "formflow"

	// DefaultTTL is how long an untouched checkpoint lives.
	DefaultTTL = 7 * 24 * time.Hour
)

type Storage struct {
	Client redis.Cmdable
	Prefix string

	// TTL is the expiration for each written checkpoint.  Zero
	// means no expiration.
	TTL time.Duration

	Debug bool
}

func NewStorage(client redis.Cmdable) *Storage {
	return &Storage{
		Client: client,
		Prefix: DefaultPrefix,
		TTL:    DefaultTTL,
	}
}

// Connect makes a client from a URL like "redis://localhost:6379/0".
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opts)
	if err = c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (s *Storage) logf(format string, args ...interface{}) {
	if s.Debug {
		log.Printf("RedisStorage."+format, args...)
	}
}

// Key is the Redis key for the checkpoint.
func (s *Storage) Key(scope, formId string) string {
	return s.Prefix + ":checkpoint:" + scope + ":" + formId
}

func (s *Storage) GetCheckpoint(ctx context.Context, scope, formId string) (*session.Checkpoint, error) {
	k := s.Key(scope, formId)
	s.logf("GetCheckpoint %s", k)
	bs, err := s.Client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return storage.Decode(bs)
}

func (s *Storage) WriteCheckpoint(ctx context.Context, scope string, c *session.Checkpoint) error {
	js, err := storage.Encode(c)
	if err != nil {
		return err
	}
	k := s.Key(scope, c.FormId)
	s.logf("WriteCheckpoint %s", k)
	return s.Client.Set(ctx, k, js, s.TTL).Err()
}

func (s *Storage) RemCheckpoint(ctx context.Context, scope, formId string) error {
	k := s.Key(scope, formId)
	s.logf("RemCheckpoint %s", k)
	return s.Client.Del(ctx, k).Err()
}
