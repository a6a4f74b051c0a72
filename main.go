package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	alarmapp "sitewatch/internal/alarms/application"
	alarmrepo "sitewatch/internal/alarms/infrastructure/postgres"
	alarmhttp "sitewatch/internal/alarms/interfaces/http"
	alarmnotify "sitewatch/internal/alarms/notify"
	dashapp "sitewatch/internal/dashboard/application"
	dashhttp "sitewatch/internal/dashboard/interfaces/http"
	masterdatarepo "sitewatch/internal/masterdata/infrastructure/postgres"
	masterdatahttp "sitewatch/internal/masterdata/interfaces/http"
	"sitewatch/internal/observability/metrics"
	readingsrepo "sitewatch/internal/readings/infrastructure/postgres"
	readingshttp "sitewatch/internal/readings/interfaces/http"
	reportapp "sitewatch/internal/reports/application"
	reportrepo "sitewatch/internal/reports/infrastructure/postgres"
	reporthttp "sitewatch/internal/reports/interfaces/http"
	rulesapp "sitewatch/internal/rules/application"
	rulesrepo "sitewatch/internal/rules/infrastructure/postgres"
	ruleshttp "sitewatch/internal/rules/interfaces/http"
	syncrepo "sitewatch/internal/syncmeta/infrastructure/postgres"
	synchttp "sitewatch/internal/syncmeta/interfaces/http"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	engineCfg, err := alarmapp.LoadEngineConfig()
	if err != nil {
		logger.Fatalf("engine config error: %v", err)
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)

	siteRepo := masterdatarepo.NewSiteRepository(db)
	assetRepo := masterdatarepo.NewAssetRepository(db)
	readingRepo := readingsrepo.NewReadingRepository(db)
	ruleRepo := rulesrepo.NewRuleRepository(db)
	alarmRepo := alarmrepo.NewAlarmRepository(db)
	reportCache := reportrepo.NewReportRepository(db)
	syncRepo := syncrepo.NewMetadataRepository(db)

	ruleService, err := rulesapp.NewService(ruleRepo, logger)
	if err != nil {
		logger.Fatalf("rule service error: %v", err)
	}
	snapshots, err := alarmapp.NewSnapshotBuilder(siteRepo, assetRepo, readingRepo)
	if err != nil {
		logger.Fatalf("snapshot builder error: %v", err)
	}

	alarmBroker := alarmhttp.NewSSEBroker()
	alarmNotifiers := []alarmapp.AlarmNotifier{alarmBroker}
	if engineCfg.WebhookURL != "" {
		channel, err := alarmnotify.NewWebhookChannel(engineCfg.WebhookURL)
		if err != nil {
			logger.Fatalf("alarm webhook error: %v", err)
		}
		tpl, err := alarmnotify.NewTemplate(engineCfg.NotifyTemplate)
		if err != nil {
			logger.Fatalf("alarm template error: %v", err)
		}
		webhookNotifier, err := alarmnotify.NewNotifier(ruleRepo, alarmRepo, channel, tpl,
			alarmnotify.WithEscalation(engineCfg.EscalationAfter),
			alarmnotify.WithCooldown(engineCfg.NotifyCooldown),
			alarmnotify.WithDedupeWindow(engineCfg.NotifyDedupeWindow),
			alarmnotify.WithRequestTimeout(engineCfg.NotifyTimeout),
		)
		if err != nil {
			logger.Fatalf("alarm notifier error: %v", err)
		}
		alarmNotifiers = append(alarmNotifiers, webhookNotifier)
	}

	alarmService, err := alarmapp.NewService(alarmRepo, ruleRepo, snapshots, logger,
		alarmapp.WithNotifier(alarmnotify.NewMultiNotifier(alarmNotifiers...)))
	if err != nil {
		logger.Fatalf("alarm service error: %v", err)
	}

	if err := alarmService.ApplyStartupPolicy(context.Background(), engineCfg.StartupPolicy); err != nil {
		logger.Fatalf("startup alarm policy error: %v", err)
	}

	scheduler := alarmapp.NewScheduler(alarmService, engineCfg.EvaluationInterval, logger)
	go scheduler.Start(context.Background())

	powerFlow, err := dashapp.NewPowerFlowService(siteRepo, assetRepo, readingRepo, logger)
	if err != nil {
		logger.Fatalf("power flow service error: %v", err)
	}
	energyMix, err := dashapp.NewEnergyMixService(siteRepo, assetRepo, readingRepo, logger)
	if err != nil {
		logger.Fatalf("energy mix service error: %v", err)
	}

	reportService, err := reportapp.NewService(reportCache, alarmRepo, logger)
	if err != nil {
		logger.Fatalf("report service error: %v", err)
	}

	ingestHandler, err := readingshttp.NewIngestHandler(readingRepo, assetRepo, logger)
	if err != nil {
		logger.Fatalf("ingest handler error: %v", err)
	}
	masterdataHandler, err := masterdatahttp.NewHandler(siteRepo, assetRepo)
	if err != nil {
		logger.Fatalf("masterdata handler error: %v", err)
	}
	ruleHandler, err := ruleshttp.NewHandler(ruleService)
	if err != nil {
		logger.Fatalf("rule handler error: %v", err)
	}
	alarmHandler, err := alarmhttp.NewHandler(alarmService)
	if err != nil {
		logger.Fatalf("alarm handler error: %v", err)
	}
	dashboardHandler, err := dashhttp.NewHandler(powerFlow, energyMix)
	if err != nil {
		logger.Fatalf("dashboard handler error: %v", err)
	}
	reportHandler, err := reporthttp.NewHandler(reportService)
	if err != nil {
		logger.Fatalf("report handler error: %v", err)
	}
	syncHandler, err := synchttp.NewHandler(syncRepo)
	if err != nil {
		logger.Fatalf("sync handler error: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/ingest/readings", ingestHandler)
	mux.Handle("/api/v1/sites", masterdataHandler)
	mux.Handle("/api/v1/sites/", masterdataHandler)
	mux.Handle("/api/v1/assets", masterdataHandler)
	mux.Handle("/api/v1/rules", ruleHandler)
	mux.Handle("/api/v1/rules/", ruleHandler)
	mux.Handle("/api/v1/thresholds", ruleHandler)
	mux.Handle("/api/v1/thresholds/", ruleHandler)
	mux.Handle("/api/v1/alarms/stream", alarmhttp.NewStreamHandler(alarmBroker))
	mux.Handle("/api/v1/alarms", alarmHandler)
	mux.Handle("/api/v1/alarms/", alarmHandler)
	mux.Handle("/api/v1/dashboard/", dashboardHandler)
	mux.Handle("/api/v1/reports", reportHandler)
	mux.Handle("/api/v1/reports/", reportHandler)
	mux.Handle("/api/v1/sync/status", syncHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(mux, logger)}
	logger.Printf("http listening on %s evaluation_interval=%s startup_policy=%s",
		cfg.HTTPAddr, engineCfg.EvaluationInterval, engineCfg.StartupPolicy)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL string
	HTTPAddr    string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL: getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:    getenvDefault("HTTP_ADDR", ":8080"),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
