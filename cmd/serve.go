package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/kv-router/config"
	"github.com/inference-sim/kv-router/events"
	"github.com/inference-sim/kv-router/kvindex"
	"github.com/inference-sim/kv-router/metrics"
	"github.com/inference-sim/kv-router/router"
	"github.com/inference-sim/kv-router/scheduler"
	"github.com/inference-sim/kv-router/transport"
)

// httpShutdownGrace bounds how long the health/debug HTTP server is given
// to drain in-flight requests once the daemon starts shutting down.
const httpShutdownGrace = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the KV-aware router daemon",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		if err := serve(); err != nil {
			logrus.WithError(err).Fatal("kv-routerd exited with an error")
		}
	},
}

// serve is the composition root: it wires configuration, transport, the
// indexer, the metrics aggregator, and the router façade, then blocks
// until a termination signal arrives (§5: the whole subsystem is rooted at
// one cancellation token).
func serve() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	nt, err := transport.Dial(cfg.NATSURL)
	if err != nil {
		return err
	}
	defer nt.Close()

	idx := kvindex.NewIndexer(ctx, cfg.BlockSize)
	agg := metrics.NewAggregator(ctx, nt, cfg.MetricsService, cfg.PollInterval, cfg.ScrapeTimeout)

	sub := events.NewSubscriber(nt, idx, cfg.EventsSubject)
	go func() {
		if err := sub.Run(ctx); err != nil {
			logrus.WithError(err).Warn("event subscriber exited")
		}
	}()

	weights := scheduler.DefaultWeights(cfg.BlockSize)
	weights.Alpha = cfg.Scheduler.AlphaOr(weights.Alpha)
	weights.Beta = cfg.Scheduler.BetaOr(weights.Beta)

	r := router.New(idx, agg, cfg.BlockSize, weights, cfg.PollInterval)

	// The health/debug HTTP surface is the one thing in this binary that
	// actually calls r.Schedule; the OpenAI-style request frontend that
	// would normally front it is explicitly out of scope (§1 Non-goals).
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r.Handler()}
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	logrus.WithFields(logrus.Fields{
		"nats_url":        cfg.NATSURL,
		"block_size":      cfg.BlockSize,
		"poll_interval":   cfg.PollInterval,
		"metrics_service": cfg.MetricsService,
		"http_addr":       cfg.HTTPAddr,
	}).Info("kv-routerd ready")

	select {
	case <-ctx.Done():
		logrus.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			logrus.WithError(err).Warn("http server exited unexpectedly")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), httpShutdownGrace)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("http server shutdown did not complete cleanly")
	}
	return nil
}
