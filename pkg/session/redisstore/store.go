// Package redisstore persists session state in Redis so several machines (or
// containers) can share one login.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/portal/pkg/session"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "portal:session:"

type Store struct {
	rdb redis.UniversalClient
	key string
	ttl time.Duration
}

var _ session.Persister = (*Store)(nil)

type Option func(*Store)

// WithTTL expires the stored session after d of inactivity. Every Save
// resets the clock.
func WithTTL(d time.Duration) Option {
	return func(s *Store) { s.ttl = d }
}

// WithPrefix replaces the default "portal:session:" key prefix.
func WithPrefix(p string) Option {
	return func(s *Store) { s.key = p + s.key[len(defaultPrefix):] }
}

func New(rdb redis.UniversalClient, profile string, opts ...Option) *Store {
	if profile == "" {
		profile = "default"
	}
	s := &Store{rdb: rdb, key: defaultPrefix + profile}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial parses a redis:// URL and returns a store for profile.
func Dial(ctx context.Context, rawURL, profile string, opts ...Option) (*Store, error) {
	o, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(o)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(rdb, profile, opts...), nil
}

func (s *Store) Key() string { return s.key }

func (s *Store) Close() error { return s.rdb.Close() }

func (s *Store) Load(ctx context.Context) (session.State, error) {
	b, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return session.State{}, nil
	}
	if err != nil {
		return session.State{}, err
	}

	var st session.State
	if err := json.Unmarshal(b, &st); err != nil {
		return session.State{}, fmt.Errorf("decode %s: %w", s.key, err)
	}
	return st, nil
}

func (s *Store) Save(ctx context.Context, st session.State) error {
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key, b, s.ttl).Err()
}

func (s *Store) Clear(ctx context.Context) error {
	return s.rdb.Del(ctx, s.key).Err()
}
