package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"nook/internal/api"
	"nook/internal/catalog"
	"nook/internal/config"
	"nook/internal/db"
	"nook/internal/events"
	"nook/internal/metrics"
	"nook/internal/pricing"
	"nook/internal/report"
)

func main() {
	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("NOOK_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		logger.Fatal().Err(err).Str("level", cfg.Logging.Level).Msg("invalid logging.level")
	}
	zerolog.SetGlobalLevel(level)

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid business timezone")
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer database.Close()

	ready := map[string]api.Pinger{"db": database}
	var opts []catalog.Option
	if cfg.Redis.Address != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		cache := catalog.NewRedisCache(rdb, "")
		opts = append(opts, catalog.WithCache(cache))
		ready["redis"] = cache
	}

	cat := catalog.New(database, cfg.CacheTTL(), &logger, opts...)
	pricer := pricing.NewService(cat, loc, nil, &logger)
	reports := report.NewExporter(database, loc, &logger)

	bus := events.NewBus()
	bus.OnError = func(e events.Event, err error) {
		logger.Warn().Err(err).Str("event", e.Type).Msg("event handler failed")
	}
	bus.SubscribeAll(func(e events.Event) error {
		metrics.IncCatalogChange(e.Type)
		logger.Info().
			Str("event", e.Type).
			Str("subject", e.Subject).
			Str("previous", e.Previous).
			Fields(e.Attrs).
			Msg("catalog changed")
		return nil
	})

	server := api.NewServer(database, cat, pricer, reports, api.Options{
		APIKey:            cfg.Server.APIKey,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
		Ready:             ready,
		Events:            bus,
	}, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = config.WatchCatalog(ctx, cfg.Catalog.Path, cfg.ReloadInterval(), &logger, func(c *config.Catalog) error {
		res, err := database.SyncFromConfig(ctx, c, loc)
		if err != nil {
			return fmt.Errorf("sync catalog: %w", err)
		}
		server.SetCalendar(c)
		cat.Invalidate(ctx)
		bus.Publish(events.Event{Type: events.CatalogSynced, Attrs: map[string]any{
			"centers":          res.Centers,
			"lanes":            res.Lanes,
			"services":         res.Services,
			"promotions":       res.Promotions,
			"deactivated":      res.Deactivated,
			"holiday_blocks":   res.HolidayBlocks,
			"holidays_removed": res.HolidaysRemoved,
		}})
		return nil
	})
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Catalog.Path).Msg("failed to load and sync catalog")
	}

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, server, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	if cfg.Backup.Enabled {
		go startBackupLoop(ctx, database, reports, cfg, &logger)
	}

	logger.Info().Int("port", cfg.Server.Port).Str("timezone", loc.String()).Msg("nook started")
	serve(ctx, fmt.Sprintf(":%d", cfg.Server.Port), server.Handler(), "api", &logger)
}

func serve(ctx context.Context, addr string, handler http.Handler, name string, logger *zerolog.Logger) {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Str("server", name).Msg("server error")
	}
}

func startHealthServer(ctx context.Context, port int, server *api.Server, logger *zerolog.Logger) {
	serve(ctx, fmt.Sprintf(":%d", port), server.HealthHandler(), "health", logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	serve(ctx, fmt.Sprintf(":%d", port), mux, "metrics", logger)
}

func startBackupLoop(ctx context.Context, database *db.DB, reports *report.Exporter, cfg *config.Config, logger *zerolog.Logger) {
	if err := os.MkdirAll(cfg.Backup.Path, 0o755); err != nil {
		logger.Error().Err(err).Msg("failed to create backup directory")
		return
	}

	interval := time.Duration(cfg.Backup.IntervalHours) * time.Hour
	retention := time.Duration(cfg.Backup.RetentionDays) * 24 * time.Hour

	// Run first backup after a short delay
	select {
	case <-time.After(1 * time.Minute):
		runBackupTask(ctx, database, reports, cfg, retention, logger)
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			runBackupTask(ctx, database, reports, cfg, retention, logger)
		case <-ctx.Done():
			return
		}
	}
}

func runBackupTask(ctx context.Context, database *db.DB, reports *report.Exporter, cfg *config.Config, retention time.Duration, logger *zerolog.Logger) {
	now := time.Now()
	dest := filepath.Join(cfg.Backup.Path, fmt.Sprintf("nook_%s.db", now.Format("20060102_150405")))

	logger.Info().Str("path", dest).Msg("starting database backup")
	if err := database.Backup(ctx, dest); err != nil {
		logger.Error().Err(err).Msg("backup failed")
	} else {
		logger.Info().Msg("backup completed successfully")
	}

	deleted, err := db.CleanupBackups(cfg.Backup.Path, retention, now)
	if err != nil {
		logger.Error().Err(err).Msg("backup cleanup failed")
	} else if deleted > 0 {
		logger.Info().Int("deleted", deleted).Msg("cleaned up old backups")
	}

	if _, err := reports.WriteFile(ctx, cfg.Reports.Dir, now); err != nil {
		logger.Error().Err(err).Msg("catalog report failed")
	}
}
