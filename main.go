package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"payment-gateway-svc/cache"
	"payment-gateway-svc/config"
	"payment-gateway-svc/database"
	"payment-gateway-svc/gateway"
	"payment-gateway-svc/handlers"
	"payment-gateway-svc/kafka"
	"payment-gateway-svc/middleware"
	"payment-gateway-svc/recon"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg := config.Load()

	// Initialize database
	db, err := database.InitDB(logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	// Initialize Redis
	rdb, err := cache.InitRedis(logger)
	if err != nil {
		logger.Fatal("Failed to initialize Redis", zap.Error(err))
	}
	defer rdb.Close()

	// Initialize Kafka producer
	producer, err := kafka.InitProducer(logger)
	if err != nil {
		logger.Fatal("Failed to initialize Kafka producer", zap.Error(err))
	}
	defer producer.Close()

	// Initialize OpenTelemetry
	shutdown, err := middleware.InitTracing("payment-gateway-svc")
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer shutdown()

	// Wire the reconciliation pipeline
	store := database.NewOrderStore(db, logger)
	publisher := kafka.NewPublisher(producer, logger)
	engine := recon.NewEngine(store, publisher, logger)

	momo := gateway.NewMomo(cfg.Momo, engine, store, nil, logger)
	vnpay := gateway.NewVnpay(cfg.Vnpay, engine, store, nil, logger)
	sepay := gateway.NewSepay(cfg.Sepay, engine, logger)
	vietqr := gateway.NewVietqr(cfg.Bank, cfg.MomoQR)

	momoHandler := handlers.NewMomoHandler(momo, store, cfg.FrontendURL, logger)
	vnpayHandler := handlers.NewVnpayHandler(vnpay, store, cfg.FrontendURL, logger)
	sepayHandler := handlers.NewSepayHandler(sepay, store, rdb, logger)
	vietqrHandler := handlers.NewVietqrHandler(vietqr, store, logger)

	// Setup REST API with Gin
	router := gin.New()
	router.Use(gin.Recovery())
	// OpenTelemetry middleware must be first to extract trace context
	router.Use(otelgin.Middleware("payment-gateway-svc"))
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.MetricsMiddleware())

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", middleware.PrometheusHandler())

	api := router.Group("/api/payment")
	{
		// Gateway callbacks are authenticated by signature or API key,
		// never by user JWT.
		api.POST("/momo/ipn", momoHandler.IPN)
		api.GET("/momo/callback", momoHandler.Callback)
		api.GET("/vnpay/ipn", vnpayHandler.IPN)
		api.GET("/vnpay/return", vnpayHandler.Return)
		api.POST("/sepay/webhook", sepayHandler.Webhook)

		api.GET("/sepay/check/:orderId", sepayHandler.CheckStatus)
		api.POST("/vietqr/generate", vietqrHandler.GenerateQR)
		api.GET("/vietqr/banks", vietqrHandler.Banks)
		api.GET("/vietqr/config", vietqrHandler.Config)
		api.POST("/momo-qr/generate", vietqrHandler.GenerateMomoQR)
		api.GET("/config", vietqrHandler.PaymentConfig)

		authed := api.Group("")
		authed.Use(middleware.AuthMiddleware())
		{
			authed.POST("/momo/create", momoHandler.CreatePayment)
			authed.POST("/momo/query", momoHandler.Query)
			authed.POST("/vnpay/create", vnpayHandler.CreatePayment)
			authed.POST("/vnpay/query", vnpayHandler.Query)
		}

		// Sandbox simulators: disabled when released
		if gin.Mode() != gin.ReleaseMode {
			api.POST("/momo/simulate-callback", momoHandler.Simulate)
			api.POST("/vnpay/simulate-callback", vnpayHandler.Simulate)
			api.POST("/sepay/test-webhook", sepayHandler.TestWebhook)
		}
	}

	srv := &http.Server{
		Addr:    ":8084",
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Payment Gateway Service started on :8084")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Payment Gateway Service...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
}
