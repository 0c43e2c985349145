package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port           string
	GRPCPort       string
	GinMode        string
	LogLevel       string
	EndpointPrefix string
	AppBaseURL     string

	DatabaseURL string

	Payment PaymentConfig
	SMTP    SMTPConfig

	AuthPublicKeyPEM string

	KafkaBrokers    []string
	KafkaOrderTopic string

	ConsulAddr  string
	ServiceName string
	ServiceHost string

	SSEPingInterval time.Duration

	Currency              string
	ShippingFlatFee       decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	TaxRate               decimal.Decimal

	RateLimitRPS   float64
	RateLimitBurst int
}

type PaymentConfig struct {
	Provider          string
	RazorpayKeyID     string
	RazorpayKeySecret string
	RazorpayBaseURL   string
	StripeSecretKey   string
}

type SMTPConfig struct {
	Host       string
	Port       int
	User       string
	Password   string
	Secure     bool
	From       string
	AdminEmail string
}

// Load reads a .env file when present and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		GRPCPort:       getEnv("GRPC_PORT", "9090"),
		GinMode:        os.Getenv("GIN_MODE"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		EndpointPrefix: getEnv("SERVICE_ENDPOINT_PREFIX", "/api"),
		AppBaseURL:     strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:3000"), "/"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		Payment: PaymentConfig{
			Provider:          strings.ToLower(getEnv("PAYMENT_PROVIDER", "razorpay")),
			RazorpayKeyID:     os.Getenv("RAZORPAY_KEY_ID"),
			RazorpayKeySecret: os.Getenv("RAZORPAY_KEY_SECRET"),
			RazorpayBaseURL:   getEnv("RAZORPAY_BASE_URL", "https://api.razorpay.com/v1"),
			StripeSecretKey:   os.Getenv("STRIPE_SECRET_KEY"),
		},
		SMTP: SMTPConfig{
			Host:       os.Getenv("SMTP_HOST"),
			User:       os.Getenv("SMTP_USER"),
			Password:   os.Getenv("SMTP_PASSWORD"),
			From:       os.Getenv("SMTP_FROM"),
			AdminEmail: os.Getenv("ADMIN_NOTIFICATION_EMAIL"),
		},
		Currency:        strings.ToUpper(getEnv("STORE_CURRENCY", "INR")),
		KafkaOrderTopic: getEnv("KAFKA_ORDER_TOPIC", "storefront.orders"),
		ConsulAddr:      os.Getenv("CONSUL_ADDR"),
		ServiceName:     getEnv("SERVICE_NAME", "storefront"),
		ServiceHost:     getEnv("SERVICE_HOST", "localhost"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	switch cfg.Payment.Provider {
	case "razorpay", "stripe":
	default:
		return nil, fmt.Errorf("PAYMENT_PROVIDER %q is not supported", cfg.Payment.Provider)
	}

	var err error
	if cfg.SMTP.Port, err = getInt("SMTP_PORT", 587); err != nil {
		return nil, err
	}
	if cfg.SMTP.Secure, err = getBool("SMTP_SECURE", false); err != nil {
		return nil, err
	}
	if cfg.SMTP.From == "" {
		cfg.SMTP.From = cfg.SMTP.User
	}

	cfg.AuthPublicKeyPEM = os.Getenv("AUTH_PUBLIC_KEY")
	if cfg.AuthPublicKeyPEM == "" {
		if path := os.Getenv("AUTH_PUBLIC_KEY_FILE"); path != "" {
			b, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("reading AUTH_PUBLIC_KEY_FILE: %w", err)
			}
			cfg.AuthPublicKeyPEM = string(b)
		}
	}
	if cfg.AuthPublicKeyPEM == "" {
		return nil, errors.New("AUTH_PUBLIC_KEY or AUTH_PUBLIC_KEY_FILE must be set")
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	if cfg.SSEPingInterval, err = getDuration("SSE_PING_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShippingFlatFee, err = getDecimal("SHIPPING_FLAT_FEE", "0"); err != nil {
		return nil, err
	}
	if cfg.FreeShippingThreshold, err = getDecimal("FREE_SHIPPING_THRESHOLD", "0"); err != nil {
		return nil, err
	}
	if cfg.TaxRate, err = getDecimal("TAX_RATE", "0"); err != nil {
		return nil, err
	}
	if cfg.RateLimitRPS, err = getFloat("RATE_LIMIT_RPS", 5); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = getInt("RATE_LIMIT_BURST", 10); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Production reports whether gin runs in release mode; error details are hidden from clients then.
func (c *Config) Production() bool {
	return c.GinMode == "release"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getDecimal(key, fallback string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(getEnv(key, fallback))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
