// Package presence holds short lived markers with a per key time to live. It
// backs visitor identity markers and heartbeat presence. Markers are volatile,
// losing them on restart is accepted.
package presence

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("presence: key not found")

type Store interface {
	// SetNX stores value under key only when key is absent. It returns true
	// when the value was stored. The check and the write are atomic.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	// Keys returns all live keys starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}
