package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCanLoadDuringTests(t *testing.T) {
	o := Options{}
	o.Test()
	require.Equal(t, ":8080", o.Listen)
	require.NoError(t, o.Validate())
	require.Equal(t, 24*time.Hour, o.SaltRotation)
	require.True(t, o.FlowCollapseReloads)
}

func TestValidate(t *testing.T) {
	o := Options{IdentitySecret: "x"}
	require.NoError(t, o.Validate())
	require.Equal(t, DefaultBatchSize, o.BatchSize)
	require.Equal(t, DefaultHeartbeatTTL, o.HeartbeatTTL)

	o = Options{}
	require.Error(t, o.Validate())
}

func TestContext(t *testing.T) {
	o := &Options{}
	o.Test()
	require.Same(t, o, Get(With(context.Background(), o)))
}
