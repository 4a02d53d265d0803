package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"class-booking/config"
	"class-booking/internal/api"
	"class-booking/internal/auth"
	"class-booking/internal/broker"
	"class-booking/internal/mailer"
	"class-booking/internal/payment"
	"class-booking/internal/redisclient"
	"class-booking/internal/service"
	"class-booking/internal/store"
	"class-booking/internal/util"
	"class-booking/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env, cfg.Observ.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting class booking service")

	tp, err := util.InitTracer(util.TracingConfig{
		JaegerEndpoint: cfg.Observ.JaegerEndpoint,
		SampleRatio:    cfg.Observ.SampleRatio,
	})
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Migrate(migrateCtx); err != nil {
		migrateCancel()
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	migrateCancel()
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.BrokerList(), cfg.Kafka.TopicEvents)
	defer producer.Close()
	logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicEvents))

	eventPublisher := broker.NewEventPublisher(producer)
	gateway := payment.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret)

	var mail mailer.Mailer
	if cfg.SMTP.User != "" {
		mail = mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.User,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.Sender(),
			SSL:      cfg.SMTP.Secure,
		})
	} else {
		logger.Warn("SMTP_USER not set, emails will only be logged")
		mail = mailer.NewLogMailer()
	}

	catalogService := service.NewCatalogService(db, redisClient, cfg.Business.ClassCacheTTL)
	checkoutService := service.NewCheckoutService(db, gateway, cfg.Server.PublicURL, cfg.Stripe.Currency)
	capacityService := service.NewCapacityService(db, redisClient)
	webhookService := service.NewWebhookService(db, gateway, mail, redisClient, eventPublisher, capacityService)
	adminService := service.NewAdminService(db, gateway, redisClient, eventPublisher, catalogService)
	reaperService := service.NewReaperService(db, gateway, eventPublisher, cfg.Business.PendingPaymentTTL)
	reminderService := service.NewReminderService(db, mail, redisClient, cfg.Business.ReminderWindow)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	capacityConsumer := broker.NewConsumer(cfg.Kafka.BrokerList(), cfg.Kafka.TopicEvents, cfg.Kafka.ConsumerGroup)
	capacityWorker := worker.NewCapacityWorker(capacityConsumer, capacityService)
	go func() {
		if err := capacityWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
			logger.Error("Capacity worker error", zap.Error(err))
		}
	}()

	reaperWorker := worker.NewReaperWorker(reaperService, redisClient, cfg.Business.ReaperInterval)
	go reaperWorker.Run(workerCtx)

	reminderWorker := worker.NewReminderWorker(reminderService, redisClient, cfg.Business.ReminderInterval)
	go reminderWorker.Run(workerCtx)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Deps{
		Catalog:  catalogService,
		Checkout: checkoutService,
		Webhooks: webhookService,
		Admin:    adminService,
		Verifier: auth.NewVerifier(cfg.Auth.JWTSecret),
		Users:    db,
		Checks: map[string]api.Pinger{
			"database": db,
			"redis":    redisClient,
		},
		Public: api.PublicConfig{
			PublishableKey: cfg.Stripe.PublishableKey,
			PayPalClientID: cfg.PayPal.ClientID,
			PayPalEnabled:  cfg.PayPal.Enabled(),
		},
		Origins: cfg.Server.AllowedOrigins(),
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := capacityWorker.Stop(); err != nil {
		logger.Warn("Error stopping capacity worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
