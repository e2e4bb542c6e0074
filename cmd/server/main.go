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

	"agromarket/config"
	"agromarket/internal/api"
	"agromarket/internal/auth"
	"agromarket/internal/broker"
	"agromarket/internal/notify"
	"agromarket/internal/order"
	"agromarket/internal/payment"
	"agromarket/internal/payment/gateway"
	"agromarket/internal/redisclient"
	"agromarket/internal/stock"
	"agromarket/internal/store"
	"agromarket/internal/util"
	"agromarket/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting agromarket service")

	tp, err := util.InitTracer("agromarket", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	gateways := gateway.NewRegistry(
		gateway.NewMidtrans(cfg.Payment.Midtrans.ServerKey, cfg.Payment.Midtrans.Endpoint, cfg.Payment.RedirectBaseURL),
		gateway.NewXendit(cfg.Payment.Xendit.ServerKey, cfg.Payment.Xendit.CallbackToken, cfg.Payment.Xendit.Endpoint, cfg.Payment.RedirectBaseURL),
		gateway.NewStripe(cfg.Payment.Stripe.ServerKey, cfg.Payment.Stripe.SigningSecret, cfg.Payment.Stripe.Endpoint, cfg.Payment.RedirectBaseURL),
	)

	ledger := stock.NewLedger(db)
	orderService := order.NewService(db, ledger, eventPublisher)
	paymentManager := payment.NewManager(db, orderService, gateways, eventPublisher, cfg.Payment.CommissionRate)
	webhookEngine := payment.NewEngine(gateways, paymentManager, db)

	whatsApp := notify.NewWhatsAppClient(cfg.WhatsApp.APIURL, cfg.WhatsApp.APIToken)
	authService := auth.NewService(db, redisClient, whatsApp, cfg.Auth)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	eventConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, cfg.Kafka.ConsumerGroup)
	notificationWorker := worker.NewNotificationWorker(eventConsumer, db)
	go func() {
		if err := notificationWorker.Start(workerCtx); err != nil {
			log.Printf("Notification worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(db, orderService, paymentManager, webhookEngine, authService, cfg.Auth)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	notificationWorker.Stop()

	log.Println("Server exited")
}
