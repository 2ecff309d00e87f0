// shardgate runs a fleet of gateway shards under the remote service's
// session-start limits and exposes their readiness over HTTP.
//
// Usage: shardgate --config configs/shardgate.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/shardgate/internal/api"
	"github.com/rickgao/shardgate/internal/auth"
	"github.com/rickgao/shardgate/internal/cache"
	"github.com/rickgao/shardgate/internal/config"
	"github.com/rickgao/shardgate/internal/database"
	"github.com/rickgao/shardgate/internal/gateway"
	"github.com/rickgao/shardgate/internal/httpapi"
	"github.com/rickgao/shardgate/internal/manager"
	"github.com/rickgao/shardgate/internal/metrics"
	"github.com/rickgao/shardgate/internal/poller"
	"github.com/rickgao/shardgate/internal/readiness"
	"github.com/rickgao/shardgate/internal/scheduler"
	"github.com/rickgao/shardgate/internal/session"
	"github.com/rickgao/shardgate/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/shardgate.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if err := run(*configPath); err != nil {
		slog.Error("shardgate failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.Logging, os.Stdout)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	logger.Info("starting shardgate",
		"version", version.Version,
		"commit", version.Commit,
		"instance_id", cfg.Instance.ID,
		"config", configPath,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var creds *auth.Credentials
	if cfg.Gateway.KeyID != "" {
		creds, err = auth.LoadCredentials(cfg.Gateway.KeyID, cfg.Gateway.PrivateKeyPath)
		if err != nil {
			return fmt.Errorf("load credentials: %w", err)
		}
	}

	var (
		client       *api.Client
		info         *api.GatewayInfo
		followBucket = followsServiceBucket(cfg.Scheduler)
	)
	if cfg.Gateway.RestURL != "" {
		opts := []api.ClientOption{
			api.WithLogger(logger),
			api.WithTimeout(cfg.Gateway.APITimeout),
			api.WithRetries(cfg.Gateway.APIMaxRetries, time.Second),
		}
		if creds != nil {
			opts = append(opts, api.WithSigner(creds))
		}
		client = api.NewClient(cfg.Gateway.RestURL, cfg.Gateway.Token, opts...)

		info, err = client.GetGatewayInfo(ctx)
		if err != nil {
			return err
		}
		applyGatewayInfo(cfg, info)
		logger.Info("gateway info",
			"url", info.URL,
			"recommended_shards", info.Shards,
			"session_starts_remaining", info.SessionStartLimit.Remaining,
			"session_starts_reset_after", info.SessionStartLimit.ResetAfter(),
			"max_concurrency", info.SessionStartLimit.MaxConcurrency,
		)
		ids := shardIDs(cfg.Gateway)
		if info.SessionStartLimit.Remaining < len(ids) {
			logger.Warn("session-start budget below shard count",
				"remaining", info.SessionStartLimit.Remaining,
				"shards", len(ids),
			)
		}
	}

	store, closeStore, err := openSessionStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promMetrics := metrics.New(reg)

	if info != nil {
		promMetrics.SessionStartsRemaining(info.SessionStartLimit.Remaining)
	}

	mgrCfg, err := managerConfig(cfg)
	if err != nil {
		return err
	}

	gwCfg := gateway.Config{
		URL:               cfg.Gateway.URL,
		Token:             cfg.Gateway.Token,
		ShardCount:        cfg.Gateway.ShardCount,
		HandshakeTimeout:  cfg.Gateway.HandshakeTimeout,
		HeartbeatTimeout:  cfg.Gateway.HeartbeatTimeout,
		WriteTimeout:      cfg.Gateway.WriteTimeout,
		HeartbeatInterval: gateway.DefaultConfig().HeartbeatInterval,
	}
	factory := func(id int, sink manager.Sink) manager.Shard {
		opts := []gateway.Option{
			gateway.WithLogger(logger),
			gateway.WithObjectSink(sink),
		}
		if creds != nil {
			opts = append(opts, gateway.WithSigner(creds))
		}
		return gateway.New(id, gwCfg, sink, opts...)
	}

	mgr := manager.New(mgrCfg, factory, store,
		manager.WithLogger(logger),
		manager.WithMetrics(promMetrics),
	)

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: httpapi.NewRouter(mgr, httpapi.Options{
			MetricsPath: cfg.HTTP.MetricsPath,
			Gatherer:    reg,
			Logger:      logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var limits *poller.Poller
	if client != nil {
		limits = poller.New(poller.Config{
			Interval: cfg.Gateway.InfoRefresh,
			Timeout:  cfg.Gateway.APITimeout,
		}, client, limitRefresher(followBucket, mgr.Scheduler(), promMetrics), logger)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "port", cfg.HTTP.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		mgr.Events().Consume(func(e readiness.Event) {
			logEvent(logger, e)
		})
		return nil
	})

	g.Go(func() error {
		startErr := mgr.Start(gctx, shardIDs(cfg.Gateway))
		if startErr == nil && limits != nil {
			startErr = limits.Start(gctx)
		}
		if startErr == nil {
			<-gctx.Done()
		}

		logger.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		var stopErr error
		if limits != nil {
			stopErr = limits.Stop(shutdownCtx)
		}
		// Stop closes the event queue, which ends the consumer.
		stopErr = errors.Join(stopErr, mgr.Stop(shutdownCtx))
		if err := server.Shutdown(shutdownCtx); err != nil {
			stopErr = errors.Join(stopErr, fmt.Errorf("http shutdown: %w", err))
		}
		return errors.Join(startErr, stopErr)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shardgate stopped")
	return nil
}

func openSessionStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (session.Store, func(), error) {
	if !cfg.Database.Enabled() {
		logger.Info("session store: memory")
		return session.NewMemory(), func() {}, nil
	}

	db := cfg.Database.Sessions
	logger.Info("connecting to session database",
		"host", db.Host,
		"port", db.Port,
		"database", db.Name,
	)
	pool, err := database.Connect(ctx, db, cfg.Instance.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("connect session database: %w", err)
	}

	store := session.NewPostgres(pool, cfg.Instance.ID)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool.Close, nil
}

func managerConfig(cfg *config.Config) (manager.Config, error) {
	policy, err := cache.ParsePolicy(cfg.Cache.Policy)
	if err != nil {
		return manager.Config{}, err
	}

	mc := manager.DefaultConfig()
	mc.Scheduler.MinSpacing = cfg.Scheduler.MinSpacing
	mc.Scheduler.Reservation = cfg.Scheduler.Reservation
	mc.Scheduler.RateLimitPoll = cfg.Scheduler.RateLimitPoll
	mc.Scheduler.BucketPoll = cfg.Scheduler.BucketPoll
	if cfg.Scheduler.UseMaxConcurrency {
		mc.Scheduler.Mode = scheduler.ModeConcurrencyBucket
		mc.Scheduler.ConcurrencyLimit = max(cfg.Scheduler.MaxConcurrency, 1)
	}

	mc.AutoReconnect = cfg.Gateway.Reconnect()
	mc.ReconnectBaseDelay = cfg.Gateway.ReconnectBaseDelay
	mc.ReconnectMaxDelay = cfg.Gateway.ReconnectMaxDelay

	mc.CacheCapacity = cfg.Cache.Capacity
	mc.CachePinned = cfg.Cache.Pinned
	mc.CachePolicy = policy
	return mc, nil
}
