package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mkovalev/emarket/internal/cache"
	"github.com/mkovalev/emarket/internal/config"
	"github.com/mkovalev/emarket/internal/es"
	"github.com/mkovalev/emarket/internal/handlers"
	"github.com/mkovalev/emarket/internal/logging"
	"github.com/mkovalev/emarket/internal/mailer"
	"github.com/mkovalev/emarket/internal/mykafka"
	"github.com/mkovalev/emarket/internal/payment"
	"github.com/mkovalev/emarket/internal/repo"
	"github.com/mkovalev/emarket/internal/service"
	"github.com/mkovalev/emarket/internal/storage"
	httpserver "github.com/mkovalev/emarket/internal/transport/http"
)

func main() {
	configuration, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(configuration.LOG_LEVEL)

	db, err := config.InitDB()
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}

	jwtSecret := []byte(configuration.JWT_SECRET)
	refreshSecret := []byte(configuration.REFRESH_SECRET)

	prod, err := mykafka.NewProducer([]string{configuration.KAFKA_ADDRESS})
	if err != nil {
		logger.Warn("kafka disabled", "error", err)
		prod = nil
	}

	esClient, err := es.NewClient(configuration)
	if err != nil {
		logger.Warn("elasticsearch disabled", "error", err)
		esClient = nil
	}

	productCache, err := cache.NewProductCache(configuration.REDIS_ADDR, configuration.REDIS_PASSWORD)
	if err != nil {
		logger.Warn("redis cache disabled", "error", err)
		productCache = nil
	}

	blobs, err := storage.NewDiskStore(configuration.MEDIA_DIR)
	if err != nil {
		log.Fatalf("media store init error: %v", err)
	}

	smtp := &mailer.SMTPMailer{
		Host: configuration.SMTP_HOST,
		Port: configuration.SMTP_PORT,
		User: configuration.SMTP_USER,
		Pass: configuration.SMTP_PASS,
		From: configuration.MAIL_FROM,
	}

	gateway := payment.NewClient(configuration.PAYMENT_API_URL, configuration.PAYMENT_SECRET_KEY)
	orderRepo := &repo.OrderRepo{DB: db}

	e := echo.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())

	deps := httpserver.Deps{
		DB: db,
		AuthHandler: &handlers.AuthHandler{
			DB:            db,
			JWTSecret:     jwtSecret,
			RefreshSecret: refreshSecret,
			AccessTTL:     configuration.ACCESS_TTL,
			RefreshTTL:    configuration.REFRESH_TTL,
			Producer:      prod,
			Mailer:        smtp,
			BaseURL:       configuration.BASE_URL,
		},
		ProductHandler: &handlers.ProductHandler{
			DB:        db,
			Producer:  prod,
			JWTSecret: jwtSecret,
			Cache:     productCache,
			Blobs:     blobs,
			ES:        esClient,
			ESIndex:   "product",
			BaseURL:   configuration.BASE_URL,
		},
		OrderHandler: &handlers.OrderHandler{
			DB:        db,
			Repo:      orderRepo,
			Producer:  prod,
			JWTSecret: jwtSecret,
		},
		PaymentHandler: &handlers.PaymentHandler{
			DB:            db,
			Repo:          orderRepo,
			Gateway:       gateway,
			WebhookSecret: configuration.PAYMENT_WEBHOOK_SECRET,
			JWTSecret:     jwtSecret,
			Producer:      prod,
			BaseURL:       configuration.BASE_URL,
		},
		SearchHandler: &handlers.SearchHandler{ES: esClient, Index: "product"},
		Tokens: &service.TokenService{
			DB:            db,
			JWTSecret:     jwtSecret,
			RefreshSecret: refreshSecret,
			AccessTTL:     configuration.ACCESS_TTL,
			RefreshTTL:    configuration.REFRESH_TTL,
		},
		MediaDir: configuration.MEDIA_DIR,
	}

	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         ":8080",
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.Error("db close error", "error", err)
		}
	}
	if err := prod.Close(); err != nil {
		logger.Error("kafka close error", "error", err)
	}
	if err := productCache.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	logger.Info("shutdown complete")
}
