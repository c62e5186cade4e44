package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/mkovalev/emarket/internal/models"
)

type Config struct {
	DB_HOST     string
	DB_PORT     string
	DB_USER     string
	DB_PASSWORD string
	DB_NAME     string

	ES_URL      string
	ES_USER     string
	ES_PASSWORD string

	REDIS_ADDR     string
	REDIS_PASSWORD string

	KAFKA_ADDRESS string

	JWT_SECRET     string
	REFRESH_SECRET string
	ACCESS_TTL     time.Duration
	REFRESH_TTL    time.Duration

	SMTP_HOST string
	SMTP_PORT int
	SMTP_USER string
	SMTP_PASS string
	MAIL_FROM string

	PAYMENT_API_URL        string
	PAYMENT_SECRET_KEY     string
	PAYMENT_WEBHOOK_SECRET string

	MEDIA_DIR string
	BASE_URL  string
	LOG_LEVEL string
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	config := &Config{
		DB_HOST:     os.Getenv("DB_HOST"),
		DB_PORT:     os.Getenv("DB_PORT"),
		DB_USER:     os.Getenv("DB_USER"),
		DB_PASSWORD: os.Getenv("DB_PASSWORD"),
		DB_NAME:     os.Getenv("DB_NAME"),

		ES_URL:      os.Getenv("ES_URL"),
		ES_USER:     os.Getenv("ES_USER"),
		ES_PASSWORD: os.Getenv("ES_PASSWORD"),

		REDIS_ADDR:     os.Getenv("REDIS_ADDR"),
		REDIS_PASSWORD: os.Getenv("REDIS_PASSWORD"),

		KAFKA_ADDRESS: os.Getenv("KAFKA_ADDRESS"),

		JWT_SECRET:     os.Getenv("JWT_SECRET"),
		REFRESH_SECRET: os.Getenv("REFRESH_SECRET"),
		ACCESS_TTL:     durationEnv("ACCESS_TTL", 15*time.Minute),
		REFRESH_TTL:    durationEnv("REFRESH_TTL", 7*24*time.Hour),

		SMTP_HOST: os.Getenv("SMTP_HOST"),
		SMTP_PORT: intEnv("SMTP_PORT", 587),
		SMTP_USER: os.Getenv("SMTP_USER"),
		SMTP_PASS: os.Getenv("SMTP_PASS"),
		MAIL_FROM: os.Getenv("MAIL_FROM"),

		PAYMENT_API_URL:        os.Getenv("PAYMENT_API_URL"),
		PAYMENT_SECRET_KEY:     os.Getenv("PAYMENT_SECRET_KEY"),
		PAYMENT_WEBHOOK_SECRET: os.Getenv("PAYMENT_WEBHOOK_SECRET"),

		MEDIA_DIR: os.Getenv("MEDIA_DIR"),
		BASE_URL:  os.Getenv("BASE_URL"),
		LOG_LEVEL: os.Getenv("LOG_LEVEL"),
	}

	if config.MEDIA_DIR == "" {
		config.MEDIA_DIR = "media"
	}
	if config.BASE_URL == "" {
		config.BASE_URL = "http://localhost:8080"
	}

	return config, nil
}

func durationEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func intEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func InitDB() (*gorm.DB, error) {
	configuration, _ := LoadConfig()

	host := configuration.DB_HOST
	port := configuration.DB_PORT
	user := configuration.DB_USER
	password := configuration.DB_PASSWORD
	dbname := configuration.DB_NAME

	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		user, password, host, port, dbname,
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("db connect failed: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("db migrate failed: %w", err)
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.RefreshToken{},
		&models.Product{},
		&models.ProductImage{},
		&models.ProductReview{},
		&models.Order{},
		&models.OrderItem{},
		&models.WebhookEvent{},
	)
}
