package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"taskpulse-backend/internal/analytics"
	"taskpulse-backend/internal/auth"
	"taskpulse-backend/internal/chat"
	"taskpulse-backend/internal/config"
	"taskpulse-backend/internal/db"
	"taskpulse-backend/internal/enrichment"
	applog "taskpulse-backend/internal/log"
	"taskpulse-backend/internal/realtime"
	"taskpulse-backend/internal/server"
	"taskpulse-backend/internal/tasks"
)

func main() {
	log := applog.GetLogger()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("❌ Failed to load config")
	}
	applog.Configure(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("❌ Invalid config")
	}

	var (
		store    tasks.Store
		source   realtime.Source
		recorder analytics.Recorder
		database *sqlx.DB
	)

	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		connString, err := cfg.ConnString()
		if err != nil {
			log.WithError(err).Fatal("❌ Database not configured")
		}
		if _, elevated := cfg.AccessKey(); !elevated {
			log.Warn("⚠️ DB_SERVICE_KEY not set, using restricted credentials")
		}

		database, err = db.Connect(connString)
		if err != nil {
			log.WithError(err).Fatal("❌ Failed to connect DB")
		}
		defer database.Close()
		log.Info("✅ Connected to PostgreSQL!")

		if err := db.MigrateUp(connString); err != nil {
			log.WithError(err).Fatal("❌ Failed to apply migrations")
		}

		store = tasks.NewPostgresStore(database)
		source = realtime.NewPQSource(connString, log.WithField("component", "relay"))
		recorder = analytics.NewSQLRecorder(database, log.WithField("component", "analytics"))

	case config.StoreDriverMemory:
		mem := tasks.NewMemoryStore()
		broker := realtime.NewBroker(log.WithField("component", "relay"))
		mem.OnChange(broker.PublishTaskChange)

		store = mem
		source = broker
		recorder = analytics.LogRecorder{Logger: log.WithField("component", "analytics")}
		log.Warn("⚠️ Using in-memory task store, data is lost on restart")
	}

	var trigger tasks.EnrichmentTrigger = enrichment.Disabled{}
	var notifier *enrichment.Notifier
	if url := cfg.TaskCreatedWebhookURL(); url != "" {
		notifier = enrichment.NewNotifier(enrichment.Options{
			WebhookURL: url,
			Workers:    cfg.EnrichmentWorkers,
			QueueSize:  cfg.EnrichmentQueue,
		}, log.WithField("component", "enrichment"))
		trigger = notifier
	} else {
		log.Warn("⚠️ No task-created webhook configured, enrichment trigger disabled")
	}

	enrichmentAuth := auth.New([]byte(cfg.EnrichmentSecret), auth.SubjectEnrichment, log.WithField("component", "auth"))
	if !enrichmentAuth.Enabled() {
		log.Warn("⚠️ ENRICHMENT_SECRET not set, enrichment callback is unauthenticated")
	}

	relay := realtime.NewRelay(source, cfg.RelayPingInterval, log.WithField("component", "relay"))
	router := server.NewRouter(server.Deps{
		Tasks:          tasks.NewService(store, trigger, recorder, log.WithField("component", "tasks")),
		Relay:          relay,
		Chat:           chat.NewClient(cfg.ChatWebhookURL(), nil, log.WithField("component", "chat")),
		EnrichmentAuth: enrichmentAuth,
		Logger:         log,
	})

	base, cancelStreams := context.WithCancel(context.Background())
	defer cancelStreams()

	srv := server.New(base, server.Options{
		Addr:        cfg.HTTPAddr,
		H2C:         cfg.HTTPH2C,
		CORSOrigins: cfg.CORSOrigins,
	}, router)

	go func() {
		log.WithFields(logrus.Fields{
			"addr":  cfg.HTTPAddr,
			"store": cfg.StoreDriver,
			"h2c":   cfg.HTTPH2C,
		}).Info("🚀 API server is running")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("❌ Server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	<-stop
	log.Info("🛑 Shutdown signal received...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Open streams never go idle; end them so Shutdown can return.
	cancelStreams()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("❌ Shutdown failed")
	}
	if notifier != nil {
		if err := notifier.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("⚠️ Enrichment queue not drained")
		}
	}
	log.WithField("open_streams", relay.Active()).Info("👋 Shut down gracefully")
}
