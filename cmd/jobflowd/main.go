package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/time/rate"

	"github.com/ternarybob/jobflow/internal/config"
	"github.com/ternarybob/jobflow/internal/jobs"
	"github.com/ternarybob/jobflow/internal/metrics"
	"github.com/ternarybob/jobflow/internal/migrations"
	"github.com/ternarybob/jobflow/internal/reaper"
	"github.com/ternarybob/jobflow/internal/startup"
	"github.com/ternarybob/jobflow/internal/store"
	"github.com/ternarybob/jobflow/internal/userwork"
	"github.com/ternarybob/jobflow/internal/version"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// configPaths is a custom flag type that allows multiple -config flags,
// later files overriding earlier ones.
type configPaths []string

func (c *configPaths) String() string { return fmt.Sprintf("%v", *c) }
func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles configPaths
	showVersion = flag.Bool("version", false, "Print version information")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("jobflowd version %s\n", version.Get())
		os.Exit(0)
	}

	if len(configFiles) == 0 {
		if _, err := os.Stat("jobflow.toml"); err == nil {
			configFiles = append(configFiles, "jobflow.toml")
		}
	}

	cfg, err := config.Load(configFiles...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := startup.NewLogger(cfg)
	startup.PrintBanner(cfg, logger)

	db, err := store.Open(cfg.Database.DSN, store.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := migrations.Apply(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to apply schema migrations")
	}
	logger.Info().Msg("schema migrations applied")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	// jobRepo and dispatcher are constructed here so a process embedding
	// jobflowd has them ready to wire into its own request-handling layer;
	// HTTP routing itself is outside this core (§1 Non-goals).
	jobRepo := jobs.NewRepository(db, logger)
	_ = jobRepo

	dispatcherLimiter := rate.NewLimiter(rate.Limit(cfg.Dispatcher.ClaimsPerSecond), cfg.Dispatcher.ClaimBurst)
	dispatcher := userwork.NewDispatcher(db, dispatcherLimiter)
	_ = dispatcher

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	metricsSrv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metricsMux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server stopped unexpectedly")
		}
	}()

	reaperLoop := reaper.New(db, reaper.Config{
		ReapableWorkAge: cfg.Reaper.ReapableWorkAge(),
		Period:          cfg.Reaper.Period(),
	}, logger)

	go reaperLoop.Start(ctx)

	logger.Info().Msg("jobflowd ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutdown signal received, stopping reaper")
	reaperLoop.Stop()
	cancel()
	reaperLoop.Wait()
	_ = metricsSrv.Close()

	logger.Info().Msg("jobflowd stopped")
}
