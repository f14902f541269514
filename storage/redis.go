package storage

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"tasktracker/domain"
)

// RedisStore keeps the snapshot as a single string value.
type RedisStore struct {
	client *redis.Client
	key    string
	logger *log.Logger
}

func NewRedisStore(client *redis.Client, key string, logger *log.Logger) *RedisStore {
	if client == nil {
		panic("storage.NewRedisStore: client is nil")
	}
	if key == "" {
		key = DefaultKey
	}
	return &RedisStore{client: client, key: key, logger: logger}
}

func (s *RedisStore) Load(ctx context.Context) ([]domain.Task, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get %s: %w", s.key, err)
	}
	tasks, dropped, err := decodeSnapshot(data)
	if err != nil {
		return nil, err
	}
	if dropped > 0 {
		s.logger.WithFields(log.Fields{"key": s.key, "dropped": dropped}).Warn("dropped invalid task records from snapshot")
	}
	return tasks, nil
}

func (s *RedisStore) Save(ctx context.Context, tasks []domain.Task) error {
	data, err := EncodeSnapshot(tasks)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return nil
}

// ParseRedisOptions accepts a redis:// URL or the
// "host:port,password=...,ssl=true" connection string form.
func ParseRedisOptions(conn string) (*redis.Options, error) {
	conn = strings.TrimSpace(conn)
	if conn == "" {
		return nil, errors.New("missing redis connection string")
	}
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts, nil
}
