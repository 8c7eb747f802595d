// Command server runs the single-instrument matching engine: it opens the
// durable order log, constructs the order book and matcher runtime, starts
// the TCP submission adapter and a Prometheus /metrics endpoint, and drives
// the whole thing from a tomb.Tomb cancelled on SIGINT/SIGTERM.
//
// Grounded on the teacher's cmd/main.go and cmd/server/server.go (merged
// into one entrypoint here — the teacher carried two competing, mutually
// incompatible mains), with github.com/spf13/cobra for flag parsing in
// place of the teacher's bare flag package.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/tomb.v2"

	"clob/internal/adapter/tcp"
	"clob/internal/book"
	"clob/internal/matcher"
	"clob/internal/metrics"
	"clob/internal/model"
	"clob/internal/walog"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		walDir      string
		listenAddr  string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the order matching engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(walDir, listenAddr, metricsAddr)
		},
	}

	defaultWalDir := os.Getenv("CLOB_WAL_DIR")
	if defaultWalDir == "" {
		defaultWalDir = os.TempDir() + "/clob-wal"
	}

	cmd.Flags().StringVar(&walDir, "wal-dir", defaultWalDir, "directory holding the durable order log (env CLOB_WAL_DIR)")
	cmd.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:9001", "address the TCP submission adapter listens on")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "127.0.0.1:9101", "address the Prometheus /metrics endpoint listens on")
	return cmd
}

func run(walDir, listenAddr, metricsAddr string) error {
	logger := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	if err := os.MkdirAll(walDir, 0o755); err != nil {
		return fmt.Errorf("creating wal dir %s: %w", walDir, err)
	}

	log, err := walog.Open(walDir)
	if err != nil {
		return err
	}
	defer log.Close()

	b := book.New()
	reg := prometheus.NewRegistry()
	mc := metrics.NewCollector(reg)

	trades := make(chan model.Trade, 256)
	rt := matcher.New(log, b, mc, trades, logger.With().Str("component", "matcher").Logger())

	adapter := tcp.New(listenAddr, log, rt, logger.With().Str("component", "tcp").Logger())

	var t tomb.Tomb
	t.Go(func() error { return rt.Run(&t) })
	t.Go(func() error { return adapter.Run(&t, trades) })
	t.Go(func() error { return serveMetrics(&t, metricsAddr, reg, logger) })

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sig:
		logger.Info().Msg("shutdown signal received")
		t.Kill(nil)
	case <-t.Dying():
	}

	if err := t.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func serveMetrics(t *tomb.Tomb, addr string, reg *prometheus.Registry, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-t.Dying():
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		return srv.Shutdown(ctx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		logger.Error().Err(err).Msg("metrics server exited")
		return err
	}
}
