package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"storefront-service/handlers"
	"storefront-service/internal/auth"
	"storefront-service/internal/bulkorders"
	"storefront-service/internal/catalog"
	"storefront-service/internal/config"
	"storefront-service/internal/consul"
	"storefront-service/internal/events"
	"storefront-service/internal/notify"
	"storefront-service/internal/orders"
	"storefront-service/internal/payments"
	"storefront-service/internal/stores/kafka"
	"storefront-service/internal/stores/postgres"
	"storefront-service/middleware"
	"storefront-service/pkg/logkey"

	"github.com/gin-gonic/gin"
)

func main() {
	if err := run(); err != nil {
		slog.Error("service stopped", slog.String(logkey.ERROR, err.Error()))
		os.Exit(1)
	}
}

func setupLogger(cfg *config.Config) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.GinMode == gin.ReleaseMode {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h))
}

func newGateway(cfg config.PaymentConfig) payments.Gateway {
	if cfg.Provider == "stripe" {
		return payments.NewStripe(cfg.StripeSecretKey, nil)
	}
	return payments.NewRazorpay(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.RazorpayBaseURL)
}

func newPublisher(ctx context.Context, cfg *config.Config) (kafka.Publisher, func(), error) {
	if len(cfg.KafkaBrokers) == 0 {
		slog.Info("KAFKA_BROKERS not set, domain events are not published")
		return kafka.Noop{}, func() {}, nil
	}
	k, err := kafka.NewConf(cfg.KafkaBrokers, cfg.KafkaOrderTopic)
	if err != nil {
		return nil, nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := k.Ping(pingCtx); err != nil {
		// records wait in the client buffer until a broker shows up or their delivery timeout passes
		slog.Warn("kafka not reachable at startup", slog.String(logkey.ERROR, err.Error()))
	}
	closeFn := func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := k.Flush(flushCtx); err != nil {
			slog.Warn("kafka flush incomplete", slog.String(logkey.ERROR, err.Error()))
		}
		k.Close()
	}
	return k, closeFn, nil
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.OpenDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}

	orderStore, err := orders.NewConf(db, orders.Pricing{
		ShippingFlatFee:       cfg.ShippingFlatFee,
		FreeShippingThreshold: cfg.FreeShippingThreshold,
		TaxRate:               cfg.TaxRate,
	})
	if err != nil {
		return err
	}
	bulkStore, err := bulkorders.NewConf(db)
	if err != nil {
		return err
	}
	catalogStore, err := catalog.NewConf(db)
	if err != nil {
		return err
	}

	keys, err := auth.NewKeys([]byte(cfg.AuthPublicKeyPEM))
	if err != nil {
		return err
	}

	gateway := newGateway(cfg.Payment)
	if err := gateway.Configured(); err != nil {
		// intents fail with a configuration error until credentials are provided
		slog.Warn("payment gateway not configured", slog.String("Gateway", gateway.Name()), slog.String(logkey.ERROR, err.Error()))
	}

	mailer := notify.NewSMTPMailer(notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		User:     cfg.SMTP.User,
		Password: cfg.SMTP.Password,
		Secure:   cfg.SMTP.Secure,
		From:     cfg.SMTP.From,
	})
	broadcaster := events.NewBroadcaster()

	publisher, closePublisher, err := newPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer closePublisher()

	router, err := handlers.API(cfg.EndpointPrefix, handlers.Deps{
		Keys:            keys,
		Orders:          orderStore,
		BulkOrders:      bulkStore,
		Catalog:         catalogStore,
		Payments:        payments.NewService(gateway),
		Notifier:        notify.NewDispatcher(mailer, cfg.AppBaseURL, cfg.SMTP.AdminEmail),
		Events:          broadcaster,
		Publisher:       publisher,
		RateLimiter:     middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		GinMode:         cfg.GinMode,
		Production:      cfg.Production(),
		Currency:        cfg.Currency,
		SSEPingInterval: cfg.SSEPingInterval,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	grpcServer, healthServer := consul.NewHealthServer(cfg.ServiceName)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("listening on grpc port: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		slog.Info("http server started", slog.String("Port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		slog.Info("grpc health server started", slog.String("Port", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	deregister := func() {}
	if cfg.ConsulAddr != "" {
		deregister, err = registerWithConsul(cfg)
		if err != nil {
			slog.Error("consul registration failed", slog.String(logkey.ERROR, err.Error()))
			deregister = func() {}
		}
	}

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err = <-errCh:
		slog.Error("server failed, shutting down", slog.String(logkey.ERROR, err.Error()))
	}

	// fail health checks first so consul stops routing here
	healthServer.Shutdown()
	deregister()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	// open event streams would otherwise hold Shutdown until the timeout
	broadcaster.Close()
	if sErr := srv.Shutdown(shutdownCtx); sErr != nil {
		slog.Error("http shutdown", slog.String(logkey.ERROR, sErr.Error()))
	}
	grpcServer.GracefulStop()
	slog.Info("service stopped cleanly")
	return err
}

func registerWithConsul(cfg *config.Config) (func(), error) {
	client, err := consul.NewClient(cfg.ConsulAddr)
	if err != nil {
		return nil, err
	}
	httpPort, err := strconv.Atoi(cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("PORT: %w", err)
	}
	grpcPort, err := strconv.Atoi(cfg.GRPCPort)
	if err != nil {
		return nil, fmt.Errorf("GRPC_PORT: %w", err)
	}
	id, err := consul.RegisterService(client, consul.Registration{
		Name:     cfg.ServiceName,
		Host:     strings.TrimSpace(cfg.ServiceHost),
		HTTPPort: httpPort,
		GRPCPort: grpcPort,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("registered with consul", slog.String("Service ID", id))
	return func() {
		if err := consul.Deregister(client, id); err != nil {
			slog.Error("consul deregistration failed", slog.String(logkey.ERROR, err.Error()))
		}
	}, nil
}
