package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/fedepagnotta/lottery-server/internal/draw"
	"github.com/fedepagnotta/lottery-server/internal/metrics"
	"github.com/fedepagnotta/lottery-server/internal/raffle"
	"github.com/fedepagnotta/lottery-server/internal/server"
)

// Helper implementations live in dedicated files: version.go, config.go,
// logger.go, store_init.go, mdns.go, metrics_logger.go.

const shutdownGrace = 5 * time.Second

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("lottery-server %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(1)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)
	l.Info("build_info", "version", version, "commit", commit, "date", date)

	store, closeStore, err := initStore(cfg, l)
	if err != nil {
		l.Error("store_init_error", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	coordinator := raffle.New(cfg.clientsAmount, store, draw.FixedDrawer{Number: cfg.winningNumber}, l)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	srv := server.NewServer(
		server.WithStore(store),
		server.WithCoordinator(coordinator),
		server.WithLogger(l),
		server.WithReadDeadline(cfg.readTimeout),
	)
	srv.SetListenAddr(fmt.Sprintf(":%d", cfg.port))
	l.Info("accept_connections", "port", cfg.port, "clients_amount", cfg.clientsAmount)
	go func() {
		if err := srv.Serve(ctx); err != nil {
			l.Error("tcp_server_error", "error", err)
			cancel()
		}
	}()

	go func() {
		if !cfg.mdnsEnable {
			return
		}
		select {
		case <-srv.Ready():
		case <-ctx.Done():
			return
		}
		addr := srv.Addr()
		portNum := cfg.port
		if _, p, err := net.SplitHostPort(addr); err == nil {
			if pn, perr := strconv.Atoi(p); perr == nil {
				portNum = pn
			}
		}
		cleanupMDNS, err := startMDNS(ctx, cfg, portNum)
		if err != nil {
			l.Warn("mdns_start_failed", "error", err)
			return
		}
		l.Info("mdns_started", "service", mdnsServiceType, "name", cfg.mdnsName, "port", portNum)
		go func() { <-ctx.Done(); cleanupMDNS() }()
	}()

	metrics.SetReadinessFunc(func() bool {
		select {
		case <-srv.Ready():
		default:
			return false
		}
		return ctx.Err() == nil
	})
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	l.Info("shutdown_signal", "signal", s.String())
	cancel()

	shCtx, shCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shCancel()
	if err := srv.Shutdown(shCtx); err != nil {
		l.Error("shutdown_error", "error", err)
	}
	wg.Wait()
}
