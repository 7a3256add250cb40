package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arloliu/livequery"
	"github.com/arloliu/livequery/internal/logging"
	"github.com/arloliu/livequery/internal/metrics"
	"github.com/arloliu/livequery/internal/natsutil"
	"github.com/arloliu/livequery/store/natskv"
)

// env holds everything a subcommand needs, built from the global flags.
type env struct {
	cfg      livequery.Config
	logger   livequery.Logger
	registry *prometheus.Registry

	server *server.Server
	nc     *nats.Conn
	store  *natskv.Store
	client *livequery.Client

	tempDir string
}

// setup loads configuration, connects to NATS (starting an embedded server when
// requested) and builds the store and client.
func (o *globalOptions) setup(ctx context.Context, stderr io.Writer) (*env, error) {
	logger, err := logging.NewSlogText(stderr, o.logLevel)
	if err != nil {
		return nil, err
	}

	cfg := livequery.DefaultConfig()
	if o.configPath != "" {
		cfg, err = livequery.LoadConfig(o.configPath)
		if err != nil {
			return nil, err
		}
	}

	e := &env{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	e.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	url := o.natsURL
	if o.embedded {
		if err := e.startServer(o.storeDir); err != nil {
			return nil, err
		}
		url = e.server.ClientURL()
		logger.Info("embedded nats server started", "url", url)
	}

	e.nc, err = nats.Connect(url,
		nats.Name("livequery-cli"),
		nats.Timeout(cfg.SubscribeTimeout),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("connect %s: %w", url, natsutil.Classify(err))
	}

	collector := metrics.NewPrometheus(e.registry, "livequery")
	e.store, err = natskv.New(ctx, e.nc, storeConfig(cfg),
		natskv.WithLogger(logger),
		natskv.WithMetrics(collector),
	)
	if err != nil {
		e.Close()
		return nil, err
	}

	clientOpts := []livequery.Option{
		livequery.WithConfig(cfg),
		livequery.WithLogger(logger),
		livequery.WithMetrics(collector),
	}
	if o.identity != "" {
		clientOpts = append(clientOpts, livequery.WithIdentity(o.identity))
	}
	e.client, err = livequery.NewClient(e.store, clientOpts...)
	if err != nil {
		e.Close()
		return nil, err
	}

	return e, nil
}

func (e *env) startServer(storeDir string) error {
	if storeDir == "" {
		dir, err := os.MkdirTemp("", "livequery-js-")
		if err != nil {
			return fmt.Errorf("create jetstream dir: %w", err)
		}
		e.tempDir = dir
		storeDir = dir
	}

	ns, err := natsutil.StartServer(natsutil.ServerOptions{StoreDir: storeDir})
	if err != nil {
		return err
	}
	e.server = ns

	return nil
}

// serveMetrics serves the registry on addr until ctx is done.
func (e *env) serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	e.logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}

	return nil
}

// Close releases resources in reverse order of creation.
func (e *env) Close() {
	if e.client != nil {
		_ = e.client.Close()
	}
	if e.store != nil {
		_ = e.store.Close()
	}
	if e.nc != nil {
		e.nc.Close()
	}
	if e.server != nil {
		e.server.Shutdown()
		e.server.WaitForShutdown()
	}
	if e.tempDir != "" {
		_ = os.RemoveAll(e.tempDir)
	}
}

func storeConfig(cfg livequery.Config) natskv.Config {
	return natskv.Config{
		Bucket:            cfg.KV.Bucket,
		History:           cfg.KV.History,
		TTL:               cfg.KV.TTL,
		Storage:           cfg.KV.Storage,
		Replicas:          cfg.KV.Replicas,
		WriteMaxRetries:   cfg.WriteMaxRetries,
		WriteRetryBackoff: cfg.WriteRetryBackoff,
	}
}
