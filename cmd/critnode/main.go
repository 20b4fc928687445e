package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/critdb/crit/internal/config"
	"github.com/critdb/crit/internal/discovery"
	"github.com/critdb/crit/internal/discovery/static"
	"github.com/critdb/crit/internal/join"
	"github.com/critdb/crit/internal/locking"
	"github.com/critdb/crit/internal/locking/inproc"
	"github.com/critdb/crit/internal/locking/redislock"
	"github.com/critdb/crit/internal/metrics"
	"github.com/critdb/crit/internal/server"
	"github.com/critdb/crit/internal/table"
	"github.com/critdb/crit/internal/transport"
)

func main() {
	logger, err := initLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./critnode.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	logger.Info("configuration loaded", zap.String("node_id", cfg.Node.NodeID), zap.Strings("tables", cfg.Node.Tables))

	met := metrics.New()
	if cfg.Metrics.Enabled {
		startMetricsServer(cfg.Metrics.Addr, cfg.Metrics.Path, met, logger)
	}

	hub, err := transport.NewHub(transport.HubConfig{
		NodeName: cfg.Node.NodeID,
		BindAddr: cfg.Gossip.BindAddr,
		BindPort: cfg.Gossip.BindPort,
		Seeds:    cfg.Gossip.SeedNodes,
	}, logger)
	if err != nil {
		logger.Fatal("failed to start gossip transport", zap.Error(err))
	}
	defer hub.Shutdown()

	locker, closeLocker, err := buildLocker(cfg.Lock)
	if err != nil {
		logger.Fatal("failed to build lock backend", zap.Error(err))
	}
	if closeLocker != nil {
		defer closeLocker()
	}

	dir := join.NewDirectory()
	servers := make(map[string]*server.Server, len(cfg.Node.Tables))
	for _, tableName := range cfg.Node.Tables {
		addr := transport.Address(cfg.Node.NodeID + "/" + tableName)
		s, err := server.New(tableName, hub.Transport(addr), server.Options{Type: table.OrderedSet, KeyPos: 1}, logger, met)
		if err != nil {
			logger.Fatal("failed to start table server", zap.String("table", tableName), zap.Error(err))
		}
		defer s.Stop()
		dir.Register(s)
		servers[tableName] = s
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for tableName, s := range servers {
		backend, err := buildDiscoveryBackend(cfg.Discovery)
		if err != nil {
			logger.Fatal("failed to build discovery backend", zap.Error(err))
		}
		loop := discovery.NewLoop(discovery.Config{
			Table:   tableName,
			Local:   s,
			Dir:     dir,
			Backend: backend,
			JoinConfig: join.Config{
				LockKey: tableName,
				Locker:  locker,
				Dir:     dir,
				Logger:  logger,
				Met:     met,
			},
			PollInterval: cfg.Discovery.PollInterval,
			Logger:       logger,
		})
		go func(tableName string) {
			if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("discovery loop exited", zap.String("table", tableName), zap.Error(err))
			}
		}(tableName)
	}

	logger.Info("critnode running", zap.String("node_id", cfg.Node.NodeID))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")
	cancel()
}

func buildLocker(cfg config.LockConfig) (locking.Locker, func(), error) {
	switch cfg.Backend {
	case "redis":
		l, err := redislock.New(redislock.Config{
			Addr:       cfg.RedisAddr,
			DB:         cfg.RedisDB,
			TTL:        cfg.TTL,
			MaxRetries: uint64(cfg.MaxRetries),
		})
		if err != nil {
			return nil, nil, err
		}
		return l, func() { l.Close() }, nil
	default:
		return inproc.New(), nil, nil
	}
}

func buildDiscoveryBackend(cfg config.DiscoveryConfig) (discovery.Backend, error) {
	switch cfg.Backend {
	case "static":
		return static.New(cfg.StaticNodes), nil
	default:
		return nil, fmt.Errorf("unknown discovery backend %q", cfg.Backend)
	}
}

func startMetricsServer(addr, path string, met *metrics.Metrics, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(met.Registry(), promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
}

func initLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	return cfg.Build()
}
