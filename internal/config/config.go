package config

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"
)

const (
	DefaultListen        = ":8080"
	DefaultData          = "beacon.db"
	DefaultSaltRotation  = 24 * time.Hour
	DefaultHeartbeatTTL  = time.Minute
	DefaultLiveLookback  = 3 * time.Hour
	DefaultFlushInterval = time.Second
	DefaultBatchSize     = 512
)

// Options is the immutable configuration loaded once at process start.
type Options struct {
	Listen              string
	LogLevel            string
	LogFormat           string
	Data                string
	Redis               string
	GeoipDbPath         string
	IdentitySecret      string
	SaltRotation        time.Duration
	HeartbeatTTL        time.Duration
	LiveLookback        time.Duration
	FlushInterval       time.Duration
	BatchSize           int
	RateLimit           int
	FlowCollapseReloads bool
	AllowedOrigins      []string
	EnableProfile       bool
}

// Defaults returns options with every field set to its default value.
func Defaults() *Options {
	return &Options{
		Listen:              DefaultListen,
		LogLevel:            "info",
		LogFormat:           "text",
		Data:                DefaultData,
		SaltRotation:        DefaultSaltRotation,
		HeartbeatTTL:        DefaultHeartbeatTTL,
		LiveLookback:        DefaultLiveLookback,
		FlushInterval:       DefaultFlushInterval,
		BatchSize:           DefaultBatchSize,
		FlowCollapseReloads: true,
		AllowedOrigins:      []string{"*"},
	}
}

// Test sets o to values suitable for tests: in memory sqlite, embedded
// presence store and a fixed identity secret.
func (o *Options) Test() {
	*o = *Defaults()
	o.Data = ":memory:"
	o.IdentitySecret = "test-secret"
	o.LogLevel = "error"
}

// Validate fills derived values and rejects unusable configuration.
func (o *Options) Validate() error {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.SaltRotation <= 0 {
		o.SaltRotation = DefaultSaltRotation
	}
	if o.HeartbeatTTL <= 0 {
		o.HeartbeatTTL = DefaultHeartbeatTTL
	}
	if o.LiveLookback <= 0 {
		o.LiveLookback = DefaultLiveLookback
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = DefaultFlushInterval
	}
	if o.IdentitySecret == "" {
		return errMissingSecret
	}
	return nil
}

func Logger(level, format string) *slog.Logger {
	var lvl slog.Level
	lvl.UnmarshalText([]byte(level))
	h := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, h))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, h))
}

type configKey struct{}

func With(ctx context.Context, o *Options) context.Context {
	return context.WithValue(ctx, configKey{}, o)
}

func Get(ctx context.Context) *Options {
	return ctx.Value(configKey{}).(*Options)
}
