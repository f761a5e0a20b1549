package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	netHttp "net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"course-marketplace/config"
	"course-marketplace/db"
	"course-marketplace/http"
	"course-marketplace/http/handlers"
	"course-marketplace/http/middleware"
	"course-marketplace/logger"
	"course-marketplace/models"
	"course-marketplace/services"
	"course-marketplace/services/gateway"
	"course-marketplace/services/kafka"

	kafkago "github.com/segmentio/kafka-go"
)

const (
	dlqRetryInterval  = 5 * time.Minute
	limiterCleanup    = 5 * time.Minute
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func main() {
	// Determine project root by searching upward for go.mod
	cwd, err := os.Getwd()
	if err != nil {
		log.Fatal("Error getting current working directory:", err)
	}

	absProjectRoot := findProjectRoot(cwd)
	if absProjectRoot == "" {
		log.Fatalf("Could not locate project root (go.mod) from %s", cwd)
	}

	if err := os.Chdir(absProjectRoot); err != nil {
		log.Fatal("Error changing to project root:", err)
	}

	// Load configuration
	config.LoadConfig()
	cfg := config.AppConfig
	logger.Default().SetLevel(logger.ParseLevel(cfg.LogLevel))
	logger.Info("Working directory set to project root: %s", absProjectRoot)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	if err := db.InitDB(); err != nil {
		logger.Fatal("Error initializing database: %v", err)
	}
	defer db.DB.Close()
	store := db.NewPostgresStore(db.DB)

	gw := gateway.NewRazorpay(gateway.Config{KeyID: cfg.RazorpayKeyID, KeySecret: cfg.RazorpayKeySecret})
	if !cfg.PaymentsEnabled() {
		logger.Warn("Razorpay credentials missing; payment endpoints will answer 503")
	}

	mailer := services.NewSMTPMailer(services.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.EmailFrom,
	})
	sendEmail := services.EmailHandler(mailer)

	// Initialize Kafka (non-fatal)
	brokers := cfg.KafkaBrokerList()
	dlq := kafka.NewDLQ(store, brokers, cfg.KafkaDLQTopic)
	var (
		publisher services.EventPublisher
		producer  *kafka.Producer
		consumer  *kafka.Consumer
	)
	if len(brokers) > 0 {
		kafka.EnsureTopics(brokers, cfg.KafkaPaymentsTopic, cfg.KafkaEmailTopic, cfg.KafkaDLQTopic)
		producer = kafka.NewProducer(brokers, dlq)
		publisher = producer

		consumer = kafka.NewConsumer(brokers, cfg.KafkaEmailTopic, cfg.KafkaConsumerGroup, dlq)
		consumer.On(models.EventEmailSend, sendEmail)
		dlq.SetReplay(func(ctx context.Context, msg kafkago.Message) error {
			if msg.Topic == cfg.KafkaEmailTopic {
				return consumer.Dispatch(ctx, msg)
			}
			return producer.Republish(ctx, msg.Topic, string(msg.Key), msg.Value)
		})
		consumer.Start(ctx)
	} else {
		logger.Warn("KAFKA_BROKERS not set; events are dropped and emails sent directly")
		dlq.SetReplay(func(ctx context.Context, msg kafkago.Message) error {
			if msg.Topic != cfg.KafkaEmailTopic {
				return fmt.Errorf("kafka disabled, cannot republish to %s", msg.Topic)
			}
			return sendEmail(ctx, msg.Value)
		})
	}
	dlq.StartAutoRetry(ctx, dlqRetryInterval)

	events := services.NewDispatcher(publisher, mailer, cfg.KafkaPaymentsTopic, cfg.KafkaEmailTopic)
	notifier := services.NewNotifier(events)
	enrollments := services.NewEnrollmentService(store, events, notifier, services.NewPDFCertificateIssuer(cfg.CertificateDir))
	payments := services.NewPaymentService(store, gw, enrollments, events, notifier, store, services.PaymentConfig{
		Currency:      cfg.Currency,
		Expiry:        cfg.PaymentExpiry,
		RefundWindow:  cfg.RefundWindow,
		WebhookSecret: cfg.RazorpayWebhookSecret,
	})

	var locker services.Locker = services.LocalLocker{}
	var redisLocker *services.RedisLocker
	if cfg.RedisURL != "" {
		redisLocker, err = services.NewRedisLocker(cfg.RedisURL)
		if err != nil {
			logger.Warn("Redis unavailable, sweeping without a shared lock: %v", err)
		} else {
			locker = redisLocker
		}
	}
	sweeper := services.NewSweeper(store, locker, events, cfg.SweepInterval)
	sweeper.Start(ctx)

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go limiter.Cleanup(ctx, limiterCleanup)

	h := handlers.New(payments, enrollments, store, dlq,
		handlers.HealthCheck{Name: "database", Critical: true, Check: store.Ping},
		handlers.HealthCheck{Name: "kafka", Check: func(context.Context) error {
			if producer == nil {
				return errors.New("disabled")
			}
			if !producer.IsConnected() {
				return errors.New("disconnected")
			}
			return nil
		}},
		handlers.HealthCheck{Name: "payments", Check: func(context.Context) error {
			if !cfg.PaymentsEnabled() {
				return errors.New("razorpay not configured")
			}
			return nil
		}},
	)

	srv := &netHttp.Server{
		Addr:              ":" + cfg.Port,
		Handler:           http.SetupRoutes(h, limiter),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, netHttp.ErrServerClosed) {
			logger.Fatal("Server failed: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("Shutdown signal received, draining requests...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP server: %v", err)
	}

	sweeper.Stop()
	dlq.StopAutoRetry()
	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			logger.Error("Error stopping Kafka consumer: %v", err)
		}
	}
	events.Wait()
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Error("Error closing Kafka producer: %v", err)
		}
	}
	if err := dlq.Close(); err != nil {
		logger.Error("Error closing DLQ producer: %v", err)
	}
	if redisLocker != nil {
		if err := redisLocker.Close(); err != nil {
			logger.Error("Error closing Redis client: %v", err)
		}
	}

	logger.Info("Server shutdown complete")
}

// findProjectRoot walks up from start and returns the first directory containing go.mod
func findProjectRoot(start string) string {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir || strings.HasSuffix(dir, ":\\") || parent == "" {
			break
		}
		dir = parent
	}
	return ""
}
