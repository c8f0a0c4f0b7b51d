package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/securesend/coord/internal/config"
	"github.com/securesend/coord/internal/coord"
	"github.com/securesend/coord/internal/delivery"
	"github.com/securesend/coord/internal/gateway"
	"github.com/securesend/coord/internal/httpserver"
	"github.com/securesend/coord/internal/metrics"
	"github.com/securesend/coord/internal/turnrest"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	logger.Info("starting securesend-coord",
		"listen_addr", cfg.ListenAddr,
		"public_base_url", cfg.PublicBaseURL,
		"mode", cfg.Mode,
		"offer_store", cfg.OfferStore,
		"offer_ttl", cfg.OfferTTL,
		"max_signaling_message_bytes", cfg.MaxSignalingMessageBytes,
		"max_signaling_messages_per_second", cfg.MaxSignalingMessagesPerSecond,
		"turn_rest", cfg.TURNRESTSharedSecret != "",
	)
	logStartupWarnings(logger, cfg)

	store, err := openOfferStore(cfg)
	if err != nil {
		logger.Error("failed to open offer store", "offer_store", cfg.OfferStore, "err", err)
		os.Exit(2)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing offer store failed", "err", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	hub := delivery.NewHub(logger)
	coordinator := coord.New(store.dir, hub, coord.Options{
		OfferTTL: cfg.OfferTTL,
		Logger:   logger,
		Metrics:  m,
	})
	gw := gateway.New(gateway.Config{
		Origins:              cfg.OriginPolicy(),
		IdleTimeout:          cfg.SignalingWSIdleTimeout,
		PingInterval:         cfg.SignalingWSPingInterval,
		MaxMessageBytes:      cfg.MaxSignalingMessageBytes,
		MaxMessagesPerSecond: cfg.MaxSignalingMessagesPerSecond,
	}, coordinator, hub, logger, m)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}

	var turn *turnrest.Generator
	if cfg.TURNRESTSharedSecret != "" {
		turn, err = turnrest.NewGenerator(turnrest.Config{
			SharedSecret:   cfg.TURNRESTSharedSecret,
			TTL:            cfg.TURNRESTTTL,
			UsernamePrefix: cfg.TURNRESTUsernamePrefix,
		})
		if err != nil {
			logger.Error("invalid turn rest config", "err", err)
			os.Exit(2)
		}
	}

	commit, built := resolveBuildInfo(buildCommit, buildTime)
	srv := httpserver.New(cfg, logger, httpserver.BuildInfo{Commit: commit, BuildTime: built}, httpserver.Options{
		Gatherer:   reg,
		ReadyCheck: store.Ready,
		TURN:       turn,
	})
	gw.RegisterRoutes(srv.Mux())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if store.sql != nil {
		go runPurgeLoop(ctx, store.sql, cfg.SQLitePurgeInterval, logger, m)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		gw.Shutdown()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", "err", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Hijacked sockets are not tracked by http.Server; close them first so
	// their $disconnect runs before the store goes away.
	gw.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "err", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server exited after shutdown", "err", err)
		os.Exit(1)
	}
}

func resolveBuildInfo(commit, buildTime string) (string, string) {
	// Prefer ldflags-injected values (production builds) but fall back to the Go
	// build info when available (useful for `go run` / dev builds).
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if buildTime == "" {
					buildTime = s.Value
				}
			}
		}
	}

	return commit, buildTime
}
