package heartbeat

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/vinceanalytics/beacon/internal/presence"
	"github.com/vinceanalytics/beacon/internal/store"
	"github.com/vinceanalytics/beacon/internal/timeutil"
)

func setup(t *testing.T) (*Tracker, *miniredis.Miniredis, *store.DB) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	db, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		client.Close()
		mr.Close()
		db.Close()
	})
	return New(presence.NewRedis(client), db, 60*time.Second, 3*time.Hour, nil), mr, db
}

func TestOnlineCountExpires(t *testing.T) {
	ctx := context.Background()
	tr, mr, _ := setup(t)

	require.NoError(t, tr.Heartbeat(ctx, "s1", "p1"))
	require.NoError(t, tr.Heartbeat(ctx, "s2", "p1"))
	require.NoError(t, tr.Heartbeat(ctx, "s3", "p2"))

	n, err := tr.OnlineCount(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	mr.FastForward(30 * time.Second)
	require.NoError(t, tr.Heartbeat(ctx, "s2", "p1"))

	mr.FastForward(31 * time.Second)
	n, err = tr.OnlineCount(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	ok, err := tr.IsActive(ctx, "p1", "s1")
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = tr.IsActive(ctx, "p1", "s2")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestOnlineCountIgnoresLongerProjectIDs(t *testing.T) {
	ctx := context.Background()
	tr, _, _ := setup(t)

	require.NoError(t, tr.Heartbeat(ctx, "s1", "p1"))
	require.NoError(t, tr.Heartbeat(ctx, "s2", "p1:other"))

	n, err := tr.OnlineCount(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	active, err := tr.ActiveSessions(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, map[string]struct{}{"s1": {}}, active)
}

func TestLiveVisitors(t *testing.T) {
	ctx := context.Background()
	tr, _, db := setup(t)
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	old := timeutil.Now
	timeutil.Now = func() time.Time { return now }
	t.Cleanup(func() { timeutil.Now = old })

	rows := []store.Pageview{
		{ProjectID: "p1", SessionID: "s1", Page: "/", Browser: "Firefox", Meta: "{}", Created: now.Add(-10 * time.Minute).Unix()},
		{ProjectID: "p1", SessionID: "s1", Page: "/docs", Browser: "Firefox", Meta: "{}", Created: now.Add(-time.Minute).Unix()},
		{ProjectID: "p1", SessionID: "s2", Page: "/", Browser: "Chrome", Meta: "{}", Created: now.Add(-2 * time.Minute).Unix()},
		// older than the lookback window
		{ProjectID: "p1", SessionID: "s3", Page: "/", Meta: "{}", Created: now.Add(-4 * time.Hour).Unix()},
		// not active
		{ProjectID: "p1", SessionID: "s4", Page: "/", Meta: "{}", Created: now.Unix()},
	}
	require.NoError(t, db.Insert(ctx, &rows))
	for _, s := range []string{"s1", "s2", "s3"} {
		require.NoError(t, tr.Heartbeat(ctx, s, "p1"))
	}

	ls, err := tr.LiveVisitors(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, ls, 2)
	require.Equal(t, "s1", ls[0].SessionID)
	require.Equal(t, "/docs", ls[0].Page)
	require.Equal(t, "Firefox", ls[0].Browser)
	require.Equal(t, "s2", ls[1].SessionID)
}
