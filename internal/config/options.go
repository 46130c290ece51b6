package config

import (
	"errors"
	"time"

	"github.com/urfave/cli/v3"
)

var errMissingSecret = errors.New("config: identitySecret is required")

func Flags(o *Options) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Category:    "core",
			Name:        "listen",
			Usage:       "http address to listen to",
			Value:       DefaultListen,
			Destination: &o.Listen,
			Sources:     cli.EnvVars("BEACON_LISTEN"),
		},
		&cli.StringFlag{
			Category:    "core",
			Name:        "logLevel",
			Usage:       "log level, values are (debug,info,warn,error)",
			Value:       "info",
			Destination: &o.LogLevel,
			Sources:     cli.EnvVars("BEACON_LOG_LEVEL"),
		},
		&cli.StringFlag{
			Category:    "core",
			Name:        "logFormat",
			Usage:       "log output format (text,json)",
			Value:       "text",
			Destination: &o.LogFormat,
			Sources:     cli.EnvVars("BEACON_LOG_FORMAT"),
		},
		&cli.StringFlag{
			Category:    "storage",
			Name:        "data",
			Usage:       "path to the sqlite events database",
			Value:       DefaultData,
			Destination: &o.Data,
			Sources:     cli.EnvVars("BEACON_DATA"),
		},
		&cli.StringFlag{
			Category:    "storage",
			Name:        "redis",
			Usage:       "redis url for presence markers, embedded store is used when empty",
			Destination: &o.Redis,
			Sources:     cli.EnvVars("BEACON_REDIS"),
		},
		&cli.StringFlag{
			Category:    "enrichment",
			Name:        "geoipDbPath",
			Usage:       "Path to geo ip database file",
			Destination: &o.GeoipDbPath,
			Sources:     cli.EnvVars("BEACON_GEOIP_DB"),
		},
		&cli.StringFlag{
			Category:    "identity",
			Name:        "identitySecret",
			Usage:       "secret mixed into the rotating visitor salt",
			Destination: &o.IdentitySecret,
			Sources:     cli.EnvVars("BEACON_IDENTITY_SECRET"),
		},
		&cli.DurationFlag{
			Category:    "identity",
			Name:        "saltRotation",
			Usage:       "window after which visitor identities rotate",
			Value:       DefaultSaltRotation,
			Destination: &o.SaltRotation,
			Sources:     cli.EnvVars("BEACON_SALT_ROTATION"),
		},
		&cli.DurationFlag{
			Category:    "live",
			Name:        "heartbeatTTL",
			Usage:       "how long a heartbeat keeps a session online",
			Value:       DefaultHeartbeatTTL,
			Destination: &o.HeartbeatTTL,
			Sources:     cli.EnvVars("BEACON_HEARTBEAT_TTL"),
		},
		&cli.DurationFlag{
			Category:    "live",
			Name:        "liveLookback",
			Usage:       "window searched for live visitor details",
			Value:       DefaultLiveLookback,
			Destination: &o.LiveLookback,
			Sources:     cli.EnvVars("BEACON_LIVE_LOOKBACK"),
		},
		&cli.DurationFlag{
			Category:    "intervals",
			Name:        "flushInterval",
			Usage:       "window for buffering events in memory before saving them",
			Value:       time.Second,
			Destination: &o.FlushInterval,
			Sources:     cli.EnvVars("BEACON_FLUSH_INTERVAL"),
		},
		&cli.IntFlag{
			Category:    "storage",
			Name:        "batchSize",
			Usage:       "number of buffered events that triggers a flush",
			Value:       DefaultBatchSize,
			Destination: &o.BatchSize,
			Sources:     cli.EnvVars("BEACON_BATCH_SIZE"),
		},
		&cli.IntFlag{
			Category:    "core",
			Name:        "rateLimit",
			Usage:       "ingestion requests accepted per client address and minute, 0 disables",
			Destination: &o.RateLimit,
			Sources:     cli.EnvVars("BEACON_RATE_LIMIT"),
		},
		&cli.BoolFlag{
			Category:    "query",
			Name:        "flowCollapseReloads",
			Usage:       "collapse same page reloads before building user flow edges",
			Value:       true,
			Destination: &o.FlowCollapseReloads,
			Sources:     cli.EnvVars("BEACON_FLOW_COLLAPSE_RELOADS"),
		},
		&cli.StringSliceFlag{
			Category:    "core",
			Name:        "allowedOrigins",
			Usage:       "CORS origins allowed to call the api",
			Value:       []string{"*"},
			Destination: &o.AllowedOrigins,
			Sources:     cli.EnvVars("BEACON_ALLOWED_ORIGINS"),
		},
		&cli.BoolFlag{
			Category:    "core",
			Name:        "enableProfile",
			Usage:       "Expose /debug/pprof endpoint",
			Destination: &o.EnableProfile,
			Sources:     cli.EnvVars("BEACON_ENABLE_PROFILE"),
		},
	}
}
