package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ridgeline-crm/ridgeline/internal/api"
	"github.com/ridgeline-crm/ridgeline/internal/audit"
	"github.com/ridgeline-crm/ridgeline/internal/booking"
	"github.com/ridgeline-crm/ridgeline/internal/config"
	"github.com/ridgeline-crm/ridgeline/internal/crm"
	"github.com/ridgeline-crm/ridgeline/internal/events"
	"github.com/ridgeline-crm/ridgeline/internal/google"
	"github.com/ridgeline-crm/ridgeline/internal/metrics"
	"github.com/ridgeline-crm/ridgeline/internal/notify"
	"github.com/ridgeline-crm/ridgeline/internal/report"
	"github.com/ridgeline-crm/ridgeline/internal/rules"
)

func main() {
	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("RIDGELINE_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.CRM.BaseURL == "" || cfg.CRM.Token == "" {
		logger.Fatal().Msg("set crm.base_url and crm.token in config")
	}

	auditLog, err := audit.Open(cfg.Audit.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("open audit store error")
	}
	defer auditLog.Close()

	opts := []crm.Option{crm.WithLogger(logger)}
	if cfg.CRM.RateLimitRPS > 0 {
		burst := cfg.CRM.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		opts = append(opts, crm.WithRateLimit(cfg.CRM.RateLimitRPS, burst))
	}
	if cfg.CRM.LenientSlots {
		opts = append(opts, crm.WithLenientSlots())
	}

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		opts = append(opts, crm.WithReferenceCache(rdb, cfg.RedisCacheTTL()))
	}

	client := crm.NewClient(cfg.CRM.BaseURL, cfg.CRM.V2BaseURL, cfg.CRM.ContactsBaseURL, cfg.CRM.Token, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus()
	store := booking.NewSessionStore(cfg.SessionTTL())
	workflow := booking.NewWorkflow(client, store, auditLog, bus, logger)

	if cfg.Notify.Enabled {
		notifier, err := notify.New(cfg.Notify.BotToken, cfg.Notify.ChatID, logger)
		if err != nil {
			logger.Error().Err(err).Msg("notifier disabled: bot init failed")
		} else {
			notifier.Attach(bus)
		}
	}

	if cfg.Sheets.Enabled {
		sheetSvc, err := google.NewSheetsService(ctx, cfg.Sheets.CredentialsFile, cfg.Sheets.SpreadsheetID, cfg.Sheets.SheetName, logger)
		if err != nil {
			logger.Error().Err(err).Msg("sheets sync disabled: service init failed")
		} else {
			attachSheetSync(ctx, bus, sheetSvc, &logger)
		}
	}

	editor := rules.NewEditor(client, bus, logger, cfg.RuleDebounce())
	if err := editor.Load(ctx); err != nil {
		logger.Error().Err(err).Msg("rule editor initial load failed")
	}
	defer editor.Close()

	reporter := report.NewReporter(auditLog, client, logger)
	server := api.New(cfg.Server.Address, workflow, client, client, editor, auditLog, reporter, cfg.Server.AuthToken, logger)

	// Initial load + hot reload of the locations file, when configured. The
	// active set overrides the CRM location list in /api/options and gates
	// which locations a session may open against.
	if cfg.Locations.Path != "" {
		if err := config.WatchLocations(ctx, cfg.Locations.Path, cfg.LocationsReloadInterval(), func(updated *config.LocationsConfig) {
			if updated == nil {
				return
			}
			active := updated.Active()
			server.SetLocations(active)
			logger.Info().Int("locations", len(active)).Msg("locations config loaded")
		}); err != nil {
			logger.Error().Err(err).Msg("locations watch failed")
		}
	}

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, auditLog, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	go sessionCleanupLoop(ctx, store, cfg.SessionCleanupInterval(), &logger)

	if cfg.Backup.Enabled {
		go startBackupLoop(ctx, auditLog, cfg, &logger)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("api shutdown error")
		}
	}()

	logger.Info().Msg("scheduling service started")
	if err := server.Start(); err != nil {
		logger.Fatal().Err(err).Msg("api server error")
	}
}

// attachSheetSync mirrors booking outcomes into the shared sheet. The mirror
// accumulates the bookings this process has seen and rewrites the whole tab
// on every change; a full resync per event is fine at office scale.
func attachSheetSync(ctx context.Context, bus *events.Bus, svc *google.SheetsService, logger *zerolog.Logger) {
	var mu sync.Mutex
	seen := make(map[string]crm.Booking)

	resync := func() {
		mu.Lock()
		bookings := make([]crm.Booking, 0, len(seen))
		for _, b := range seen {
			bookings = append(bookings, b)
		}
		mu.Unlock()
		sort.Slice(bookings, func(i, j int) bool {
			return bookings[i].DateOfInspection < bookings[j].DateOfInspection
		})
		if err := svc.SyncSchedule(ctx, bookings); err != nil {
			logger.Warn().Err(err).Msg("sheet sync failed")
		}
	}

	bus.Subscribe(events.TypeBooked, func(e events.Event) {
		if b, ok := e.Payload.(*crm.Booking); ok {
			mu.Lock()
			seen[b.ID] = *b
			mu.Unlock()
			resync()
		}
	})
	bus.Subscribe(events.TypeCancelled, func(e events.Event) {
		if b, ok := e.Payload.(*crm.Booking); ok {
			mu.Lock()
			delete(seen, b.ID)
			mu.Unlock()
			resync()
		}
	})
	bus.Subscribe(events.TypeRescheduled, func(e events.Event) {
		i, ok := e.Payload.(*crm.Inspection)
		if !ok || i.Booking == nil {
			return
		}
		mu.Lock()
		seen[i.Booking.ID] = *i.Booking
		mu.Unlock()
		// A reschedule keeps its row, so update it in place; a cache miss
		// (new booking id, or no sync yet) falls back to the full rewrite.
		if err := svc.UpdateBooking(ctx, i.Booking); err != nil {
			resync()
		}
	})
}

func startBackupLoop(ctx context.Context, auditLog *audit.Log, cfg *config.Config, logger *zerolog.Logger) {
	if cfg.Backup.Path == "" {
		cfg.Backup.Path = "backups"
	}
	if cfg.Backup.IntervalHours <= 0 {
		cfg.Backup.IntervalHours = 24
	}
	if cfg.Backup.RetentionDays <= 0 {
		cfg.Backup.RetentionDays = 14
	}

	interval := time.Duration(cfg.Backup.IntervalHours) * time.Hour
	retention := time.Duration(cfg.Backup.RetentionDays) * 24 * time.Hour

	// Run first backup after a short delay
	select {
	case <-time.After(1 * time.Minute):
		runBackupTask(ctx, auditLog, cfg, retention, logger)
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			runBackupTask(ctx, auditLog, cfg, retention, logger)
		case <-ctx.Done():
			return
		}
	}
}

func runBackupTask(ctx context.Context, auditLog *audit.Log, cfg *config.Config, retention time.Duration, logger *zerolog.Logger) {
	timestamp := time.Now().Format("20060102_150405")
	dest := filepath.Join(cfg.Backup.Path, fmt.Sprintf("ridgeline_%s.db", timestamp))

	logger.Info().Str("path", dest).Msg("starting audit store backup")
	if err := auditLog.Backup(ctx, dest); err != nil {
		logger.Error().Err(err).Msg("backup failed")
	} else {
		logger.Info().Msg("backup completed successfully")
	}

	deleted, err := audit.CleanupBackups(cfg.Backup.Path, retention)
	if err != nil {
		logger.Error().Err(err).Msg("backup cleanup failed")
	} else if deleted > 0 {
		logger.Info().Int("deleted", deleted).Msg("cleaned up old backups")
	}
}

func sessionCleanupLoop(ctx context.Context, store *booking.SessionStore, interval time.Duration, logger *zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := store.Cleanup(); removed > 0 {
				logger.Info().Int("removed", removed).Msg("expired sessions cleaned up")
			}
		}
	}
}

func startHealthServer(ctx context.Context, port int, auditLog *audit.Log, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := auditLog.Ping(ctxPing); err != nil {
			http.Error(w, "audit store not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
