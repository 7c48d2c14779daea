package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/Ananth-NQI/menuchat-backend/database"
	"github.com/Ananth-NQI/menuchat-backend/internal/config"
	"github.com/Ananth-NQI/menuchat-backend/internal/handlers"
	"github.com/Ananth-NQI/menuchat-backend/internal/jobs"
	"github.com/Ananth-NQI/menuchat-backend/internal/logx"
	"github.com/Ananth-NQI/menuchat-backend/internal/middleware"
	"github.com/Ananth-NQI/menuchat-backend/internal/routes"
	"github.com/Ananth-NQI/menuchat-backend/internal/services"
	"github.com/Ananth-NQI/menuchat-backend/internal/storage"
)

const version = "1.0.0"

func main() {
	conf, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logx.Init(conf.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	var store storage.Store
	switch conf.Storage {
	case config.StoragePostgres:
		db, err := database.Connect(conf.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		if err := database.Migrate(db); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
		store = storage.NewDatabaseStore(db)
		log.Info().Msg("using PostgreSQL database storage")
	default:
		log.Warn().Msg("using in-memory storage (not for production!)")
		store = storage.NewMemoryStore()
	}

	if conf.SeedFile != "" {
		tenants, err := storage.LoadSeedFile(ctx, store, conf.SeedFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", conf.SeedFile).Msg("failed to load seed file")
		}
		log.Info().Int("tenants", len(tenants)).Str("file", conf.SeedFile).Msg("seed data loaded")
	}

	// Transport
	var (
		dialer    services.Dialer
		pairer    handlers.Pairer
		twilioDlr *services.TwilioDialer
	)
	switch conf.Transport {
	case config.TransportTwilio:
		twilioDlr, err = services.NewTwilioDialer(conf.Twilio.AccountSID, conf.Twilio.AuthToken, store, logx.Component("transport"))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize Twilio transport")
		}
		dialer = twilioDlr
	case config.TransportMatrix:
		dialer = services.NewMatrixDialer(store, logx.Component("transport"))
	default:
		simulated := services.NewSimulatedDialer(conf.SimulatedPairing, logx.Component("transport"))
		dialer, pairer = simulated, simulated
	}

	// Core
	broadcaster := services.NewEventBroadcaster(logx.Component("events"))
	defer broadcaster.Close()

	manager := services.NewConnectionManager(dialer, broadcaster, logx.Component("connections"))
	sessions := services.NewSessionStore(logx.Component("sessions"))
	configs := services.NewTenantConfigCache(store, conf.ConfigCacheTTL, logx.Component("config-cache"))
	allowList := services.NewAllowListCache(store, conf.AllowListTTL, logx.Component("allow-list"))
	dedupe := services.NewDedupeCache(conf.DedupeTTL, conf.DedupeSize)
	defer dedupe.Close()

	engine := services.NewConversationEngine(configs, store,
		services.WithMinAddressLength(conf.MinAddressLength),
		services.WithEngineLogger(logx.Component("conversation")),
	)
	router := services.NewRouter(services.RouterDeps{
		Sessions:  sessions,
		Engine:    engine,
		Configs:   configs,
		AllowList: allowList,
		Sender:    manager,
		Events:    broadcaster,
		Dedupe:    dedupe,
		Logger:    logx.Component("router"),
	})
	manager.SetHandler(router)

	monitor := jobs.NewHealthMonitor(sessions, manager, broadcaster, jobs.HealthConfig{
		Period:        conf.SweepPeriod,
		SessionIdle:   conf.SessionIdle,
		StaleAfter:    conf.ConnectionStale,
		NotifyExpired: conf.NotifyExpired,
	}, logx.Component("health"))
	monitor.Start(ctx)

	if conf.AutoStart {
		autoStartTenants(ctx, store, manager)
	}

	// HTTP
	app := routes.NewApp(conf.AppName, true)
	h := routes.Handlers{
		Tenant: handlers.NewTenantHandler(store, manager, router, broadcaster, pairer, conf.SimulateWait, logx.Component("http")),
		Admin:  handlers.NewAdminHandler(store, configs, allowList, logx.Component("http")),
		Health: handlers.NewHealthHandler(version, conf.Storage, conf.Transport, store, manager, sessions),
	}
	if twilioDlr != nil {
		h.WhatsApp = handlers.NewWhatsAppHandler(twilioDlr, logx.Component("webhook"))
		if !conf.Twilio.DisableValidation {
			h.TwilioAuth = middleware.ValidateTwilioSignature(conf.Twilio.AuthToken, conf.Twilio.PublicBaseURL, logx.Component("webhook"))
		} else {
			log.Warn().Msg("Twilio webhook signature validation disabled")
		}
	}
	routes.SetupRoutes(app, h)

	// Handle graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		log.Info().Msg("gracefully shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), conf.ShutdownGracePeriod)
		defer cancel()
		shutdown(shutdownCtx, monitor, router, manager, app)
	}()

	log.Info().
		Str("port", conf.Port).
		Str("storage", conf.Storage).
		Str("transport", conf.Transport).
		Str("environment", conf.Environment).
		Msg("MenuChat Backend starting")

	if err := app.Listen(":" + conf.Port); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	<-done
	log.Info().Msg("shutdown complete")
}

type (
	jobStopper    interface{ Stop() }
	queueDrainer  interface{ Close(ctx context.Context) error }
	connStopper   interface{ StopAll() }
	serverStopper interface {
		ShutdownWithContext(ctx context.Context) error
	}
)

// shutdown drains queued customer messages before the tenant connections
// close, so pending replies can still be sent. HTTP goes last.
func shutdown(ctx context.Context, monitor jobStopper, router queueDrainer, manager connStopper, app serverStopper) {
	log.Info().Msg("stopping health monitor")
	monitor.Stop()

	if err := router.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("router did not drain before the deadline")
	}

	log.Info().Msg("stopping tenant connections")
	manager.StopAll()

	log.Info().Msg("shutting down server")
	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
}

// autoStartTenants starts every tenant flagged auto_start. A failing tenant
// is logged and skipped.
func autoStartTenants(ctx context.Context, store storage.Store, manager *services.ConnectionManager) {
	tenants, err := store.ListTenants(ctx)
	if err != nil {
		log.Error().Err(err).Msg("could not list tenants for auto-start")
		return
	}
	for _, tenant := range tenants {
		if !tenant.AutoStart {
			continue
		}
		if _, err := manager.Start(ctx, tenant.ID); err != nil {
			log.Error().Err(err).Str("tenant_id", tenant.ID).Msg("auto-start failed")
			continue
		}
		log.Info().Str("tenant_id", tenant.ID).Msg("tenant auto-started")
	}
}
