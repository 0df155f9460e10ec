// Package redis stores the session blob under a single Redis key.
package redis

import (
	"context"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
)

type Slot struct {
	client goredis.UniversalClient
	key    string
}

// NewSlot binds key on client. The client is owned by the caller.
func NewSlot(client goredis.UniversalClient, key string) (*Slot, error) {
	if client == nil {
		return nil, errors.New("redis slot: nil client")
	}
	if key == "" {
		return nil, errors.New("redis slot: empty key")
	}
	return &Slot{client: client, key: key}, nil
}

// Dial connects to addr and checks the connection with PING.
func Dial(ctx context.Context, addr string) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "redis slot: ping %s", addr)
	}
	return client, nil
}

func (s *Slot) Read(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "redis slot: get %s", s.key)
	}
	return data, nil
}

func (s *Slot) Write(ctx context.Context, data []byte) error {
	err := s.client.Set(ctx, s.key, data, 0).Err()
	return errors.Wrapf(err, "redis slot: set %s", s.key)
}
