package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/urfave/cli/v3"
	"github.com/vinceanalytics/beacon/internal/api"
	"github.com/vinceanalytics/beacon/internal/config"
	"github.com/vinceanalytics/beacon/internal/errtrack"
	"github.com/vinceanalytics/beacon/internal/flow"
	"github.com/vinceanalytics/beacon/internal/funnel"
	"github.com/vinceanalytics/beacon/internal/geo"
	"github.com/vinceanalytics/beacon/internal/heartbeat"
	"github.com/vinceanalytics/beacon/internal/ingest"
	"github.com/vinceanalytics/beacon/internal/period"
	"github.com/vinceanalytics/beacon/internal/presence"
	"github.com/vinceanalytics/beacon/internal/stats"
	"github.com/vinceanalytics/beacon/internal/store"
	"github.com/vinceanalytics/beacon/internal/ua"
	"github.com/vinceanalytics/beacon/internal/userid"
)

const uaCacheBytes = 32 << 20

func run(o *config.Options) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		if err := o.Validate(); err != nil {
			return err
		}
		log := config.Logger(o.LogLevel, o.LogFormat)
		slog.SetDefault(log)

		ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
		defer cancel()
		ctx = config.With(ctx, o)

		svc, err := build(ctx, log)
		if err != nil {
			return err
		}
		defer svc.Close()

		svr := &http.Server{
			Addr:              o.Listen,
			Handler:           svc.handler,
			BaseContext:       func(l net.Listener) context.Context { return ctx },
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			defer cancel()
			log.Info("starting server", "addr", o.Listen)
			if err := svr.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("serving http", "err", err)
			}
		}()
		<-ctx.Done()
		log.Info("shutting down")
		shutdown, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		return svr.Shutdown(shutdown)
	}
}

// service holds everything started for a running server.
type service struct {
	handler  http.Handler
	db       *store.DB
	presence presence.Store
	resolver *period.Resolver
	geo      *geo.Locator
	writer   chan struct{}
	stop     context.CancelFunc
}

// build wires the server from the options carried by ctx.
func build(ctx context.Context, log *slog.Logger) (*service, error) {
	o := config.Get(ctx)
	db, err := store.Open(o.Data, log)
	if err != nil {
		return nil, err
	}
	s := &service{db: db}
	s.presence, err = openPresence(ctx, o.Redis, log)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.geo, err = geo.Open(o.GeoipDbPath)
	if err != nil {
		s.Close()
		return nil, err
	}

	live := heartbeat.New(s.presence, db, o.HeartbeatTTL, o.LiveLookback, log)
	engine := stats.New(db, live, log)
	s.resolver, err = period.NewResolver(engine, log)
	if err != nil {
		s.Close()
		return nil, err
	}

	w := db.Writer(o.FlushInterval, o.BatchSize)
	wctx, stop := context.WithCancel(context.WithoutCancel(ctx))
	s.stop = stop
	s.writer = make(chan struct{})
	go func() {
		defer close(s.writer)
		w.Start(wctx)
	}()

	identity := userid.New(userid.NewSalt(o.IdentitySecret, o.SaltRotation), s.presence, log)
	h := api.New(api.Deps{
		Ingest:         ingest.New(identity, live, w, ua.New(uaCacheBytes), s.geo, log),
		Resolver:       s.resolver,
		Engine:         engine,
		Funnel:         funnel.New(db, log),
		Flow:           flow.New(db, o.FlowCollapseReloads, log),
		Live:           live,
		Errors:         errtrack.New(db, engine, log),
		Log:            log,
		AllowedOrigins: o.AllowedOrigins,
		RateLimit:      o.RateLimit,
	})
	if o.EnableProfile {
		r := chi.NewRouter()
		r.Mount("/debug", middleware.Profiler())
		r.Mount("/", h)
		h = r
	}
	s.handler = h
	return s, nil
}

// openPresence connects to redis when url is set. Without it markers live in
// an in memory badger database and do not survive restarts.
func openPresence(ctx context.Context, url string, log *slog.Logger) (presence.Store, error) {
	if url != "" {
		r, err := presence.OpenRedis(ctx, url)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	log.Warn("no redis url, using embedded presence store")
	b, err := presence.OpenBadger()
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Close stops the writer after its last flush, then releases the stores.
func (s *service) Close() error {
	if s.stop != nil {
		s.stop()
		<-s.writer
	}
	var errs []error
	if s.resolver != nil {
		s.resolver.Close()
	}
	if s.geo != nil {
		errs = append(errs, s.geo.Close())
	}
	if s.presence != nil {
		errs = append(errs, s.presence.Close())
	}
	errs = append(errs, s.db.Close())
	return errors.Join(errs...)
}
