package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"github.com/AnshRaj112/marketbot-backend/internal/clock"
	"github.com/AnshRaj112/marketbot-backend/internal/config"
	"github.com/AnshRaj112/marketbot-backend/internal/database"
	"github.com/AnshRaj112/marketbot-backend/internal/handlers"
	"github.com/AnshRaj112/marketbot-backend/internal/logging"
	"github.com/AnshRaj112/marketbot-backend/internal/middleware"
	"github.com/AnshRaj112/marketbot-backend/internal/routes"
	"github.com/AnshRaj112/marketbot-backend/internal/services"
	"github.com/AnshRaj112/marketbot-backend/internal/store"
)

const (
	webhookRPS      = 50
	webhookBurst    = 100
	shutdownTimeout = 15 * time.Second
	pruneInterval   = time.Hour
)

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()
	log := logging.New(cfg.Logging)
	if envErr != nil {
		log.Info("No .env file found")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()

	// Entity store: PostgreSQL, or in-memory when it is unreachable.
	var entities store.Store
	log.Info("Connecting to PostgreSQL...", "uri", database.MaskURI(cfg.PostgresURI))
	pg, err := database.ConnectPostgres(ctx, cfg.PostgresURI, log)
	if err != nil {
		log.Warn("⚠️  PostgreSQL unavailable, using in-memory store", "error", err)
		entities = store.NewMemory()
	} else {
		defer database.DisconnectPostgres(pg)
		if err := database.InitPostgresTables(ctx, pg); err != nil {
			log.Error("failed to create tables", "error", err)
			os.Exit(1)
		}
		log.Info("✅ PostgreSQL tables ready")
		entities = store.NewPostgres(pg)
	}

	// Search and abuse logs: MongoDB, or in-memory.
	var logs store.LogStore
	log.Info("Connecting to MongoDB...", "uri", database.MaskURI(cfg.MongoURI))
	mongoClient, mongoDB, err := database.ConnectMongo(ctx, cfg.MongoURI, log)
	if err != nil {
		log.Warn("⚠️  MongoDB unavailable, search and abuse logs kept in memory", "error", err)
		logs = store.NewMemoryLog()
	} else {
		defer database.DisconnectMongo(mongoClient)
		mongoLog := store.NewMongoLog(mongoDB)
		if err := mongoLog.EnsureIndexes(ctx); err != nil {
			log.Warn("⚠️  failed to ensure MongoDB indexes", "error", err)
		} else {
			log.Info("✅ MongoDB indexes ensured")
		}
		logs = mongoLog
	}

	log.Info("Connecting to Redis...", "uri", database.MaskURI(cfg.RedisURI))
	rdb, err := database.ConnectRedis(ctx, cfg.RedisURI, log)
	if err != nil {
		log.Warn("⚠️  Redis unavailable, event de-duplication is process-local and admin IP blocking is off", "error", err)
	} else {
		defer database.DisconnectRedis(rdb)
	}

	caches := services.NewCaches(cfg.Cache, cfg.EventDedupTTL, clk, log)
	caches.Manager.Start(ctx)
	defer caches.Manager.Stop()

	var dedup services.Deduper = services.NewMemoryDeduper(caches.Events)
	if rdb != nil {
		dedup = services.NewRedisDeduper(rdb, cfg.EventDedupTTL)
	}

	var uploader services.Uploader
	if cfg.Cloudinary.Enabled() {
		u, err := services.NewCloudinaryUploader(cfg.Cloudinary.Name, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret, cfg.Cloudinary.Folder)
		if err != nil {
			log.Warn("⚠️  Failed to initialize Cloudinary, listing photos keep their source URLs", "error", err)
		} else {
			uploader = u
			log.Info("✅ Cloudinary service initialized")
		}
	} else {
		log.Warn("Cloudinary credentials not found, listing photos keep their source URLs")
	}

	// Outbound: platform delivery (or log) behind retry, behind the console hub.
	var delivery services.Sender = services.NewLogSender(log)
	if cfg.Delivery.URL != "" {
		delivery = services.NewHTTPSender(cfg.Delivery.URL, cfg.Delivery.Token, &http.Client{Timeout: 10 * time.Second})
	} else {
		log.Warn("DELIVERY_URL not set, replies are only logged")
	}
	hub := services.NewConsoleHub(services.NewRetrySender(delivery, cfg.Delivery.RPS, log), log)

	perms := services.DefaultPermissionTable()
	quota := services.NewQuotaEngine(entities, perms, clk, cfg.Quota.Location(), log)
	quota.StartCounterPruning(ctx, pruneInterval, cfg.Quota.RetentionDays)

	sessions := services.NewSessionManager(entities, clk, log)
	classifier := services.NewClassifier(entities, sessions, caches.Profiles, perms, cfg.AdminIDs, clk, log)
	search := services.NewSearcher(entities, logs, caches.Search, caches.Listings, log)
	flows := services.NewDefaultFlowRegistry(
		services.NewRegistrationFlow(entities, classifier, clk, cfg.TrialDays),
		services.NewListingFlow(entities, logs, quota, search, uploader, clk, log),
		services.NewSearchFlow(quota, search),
		services.NewPaymentFlow(entities, clk),
	)
	dispatcher := services.NewDispatcher(services.DispatcherDeps{
		Classifier: classifier,
		Perms:      perms,
		Quota:      quota,
		Sessions:   sessions,
		Flows:      flows,
		Search:     search,
		Logs:       logs,
		Dedup:      dedup,
		Clock:      clk,
		Log:        log,
	})
	admin := services.NewAdminService(entities, logs, classifier, quota, caches.Stats, caches.Manager, hub, clk, log)

	limiter := middleware.NewIPRateLimiter(rate.Limit(webhookRPS), webhookBurst)
	limiter.StartCleanup(ctx)

	var guard *middleware.FailureGuard
	var unblocker handlers.IPUnblocker
	if rdb != nil {
		guard = middleware.NewFailureGuard(rdb)
		unblocker = guard
	}
	if cfg.AdminAPIKeyHash == "" {
		log.Warn("ADMIN_API_KEY_HASH not set, admin API is disabled")
	}

	webhook := handlers.NewWebhookHandler(dispatcher, hub, cfg.VerifyToken, log)
	deps := routes.Deps{
		Webhook:        webhook,
		Admin:          handlers.NewAdminHandler(admin, unblocker, log),
		WebhookLimiter: limiter,
		AdminKeyHash:   cfg.AdminAPIKeyHash,
		AdminGuard:     guard,
		AllowedOrigins: cfg.AllowedOrigins,
		Log:            log,
	}
	if cfg.ConsoleEnabled {
		deps.Console = handlers.NewConsoleHandler(dispatcher, hub, log)
		log.Info("✅ Chat console enabled at /ws/console")
	}

	r := chi.NewRouter()
	if cfg.IsProduction() {
		r.Use(middleware.SecurityHeaders)
		log.Info("✅ Production security headers enabled")
	}
	routes.SetupRoutes(r, deps)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("🚀 Marketbot backend running", "port", cfg.Port, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", "error", err)
	}
	webhook.Wait()
	log.Info("✅ Server stopped")
}
