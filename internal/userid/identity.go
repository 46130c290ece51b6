// Package userid derives rotating visitor fingerprints and session ids.
package userid

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dchest/siphash"
	"github.com/oklog/ulid/v2"
	"github.com/vinceanalytics/beacon/internal/errs"
	"github.com/vinceanalytics/beacon/internal/presence"
	"github.com/vinceanalytics/beacon/internal/timeutil"
)

type Identity struct {
	salt  Salt
	store presence.Store
	log   *slog.Logger
}

func New(salt Salt, store presence.Store, log *slog.Logger) *Identity {
	if log == nil {
		log = slog.Default()
	}
	return &Identity{salt: salt, store: store, log: log.With("component", "userid")}
}

// Hash returns the visitor fingerprint at t. It is never stored as is, only
// as part of the marker key.
func (i *Identity) Hash(pid, ua, ip string, t time.Time) uint64 {
	key, _ := i.salt.At(t)
	k0 := binary.LittleEndian.Uint64(key[:8])
	k1 := binary.LittleEndian.Uint64(key[8:])
	return siphash.Hash(k0, k1, []byte(ua+"\x00"+ip+"\x00"+pid))
}

func (i *Identity) key(pid, ua, ip string) string {
	return fmt.Sprintf("uid:%s:%016x", pid, i.Hash(pid, ua, ip, timeutil.Now()))
}

// IsUnique reports whether this is the first visit of the visitor to pid in
// the current window and returns the session id of the visit. Concurrent
// calls for the same visitor observe exactly one new visit.
func (i *Identity) IsUnique(ctx context.Context, pid, ua, ip string) (bool, string, error) {
	key := i.key(pid, ua, ip)
	for range 2 {
		id := ulid.Make().String()
		ok, err := i.store.SetNX(ctx, key, id, i.salt.Window())
		if err != nil {
			i.log.Error("setting visitor marker", "pid", pid, "err", err)
			return false, "", errs.Upstream.Wrap(err, "visitor marker")
		}
		if ok {
			return true, id, nil
		}
		existing, err := i.store.Get(ctx, key)
		if err != nil {
			if errors.Is(err, presence.ErrNotFound) {
				// expired between the two calls
				continue
			}
			i.log.Error("reading visitor marker", "pid", pid, "err", err)
			return false, "", errs.Upstream.Wrap(err, "visitor marker")
		}
		return false, existing, nil
	}
	return false, "", errs.Upstream.New("visitor marker keeps expiring")
}

// SessionID returns the session of the visitor without starting one.
func (i *Identity) SessionID(ctx context.Context, pid, ua, ip string) (string, bool, error) {
	id, err := i.store.Get(ctx, i.key(pid, ua, ip))
	if err != nil {
		if errors.Is(err, presence.ErrNotFound) {
			return "", false, nil
		}
		return "", false, errs.Upstream.Wrap(err, "visitor marker")
	}
	return id, true, nil
}
