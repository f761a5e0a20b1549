package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	LogLevel string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string
	Currency              string

	PaymentExpiry time.Duration
	RefundWindow  time.Duration
	SweepInterval time.Duration

	SMTPHost  string
	SMTPPort  int
	SMTPUser  string
	SMTPPass  string
	EmailFrom string

	// Kafka
	KafkaBrokers       string
	KafkaPaymentsTopic string
	KafkaEmailTopic    string
	KafkaDLQTopic      string
	KafkaConsumerGroup string

	RedisURL string

	CertificateDir string

	RateLimitRPS   float64
	RateLimitBurst int
}

var AppConfig Config

func LoadConfig() {
	// Try loading .env from different locations
	envLocations := []string{
		".env",              // project root
		"config/.env",       // config subdirectory
		"../config/.env",    // one level up
		"../../config/.env", // two levels up
	}

	envLoaded := false
	for _, location := range envLocations {
		if err := godotenv.Load(location); err == nil {
			envLoaded = true
			break
		}
	}

	if !envLoaded {
		log.Println("No .env file found, using environment variables")
	}

	AppConfig = FromEnv()
}

// FromEnv builds a Config from the current process environment.
func FromEnv() Config {
	return Config{
		Port:     getEnvWithDefault("PORT", "8080"),
		LogLevel: getEnvWithDefault("LOG_LEVEL", "INFO"),

		DBHost:     getEnvWithDefault("DB_HOST", "localhost"),
		DBPort:     getEnvWithDefault("DB_PORT", "5432"),
		DBUser:     getEnvWithDefault("DB_USER", "postgres"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnvWithDefault("DB_NAME", "course_marketplace"),
		DBSSLMode:  getEnvWithDefault("DB_SSLMODE", "disable"),

		RazorpayKeyID:         strings.TrimSpace(os.Getenv("RAZORPAY_KEY_ID")),
		RazorpayKeySecret:     strings.TrimSpace(os.Getenv("RAZORPAY_KEY_SECRET")),
		RazorpayWebhookSecret: strings.TrimSpace(os.Getenv("RAZORPAY_WEBHOOK_SECRET")),
		Currency:              getEnvWithDefault("PAYMENT_CURRENCY", "INR"),

		PaymentExpiry: getDurationWithDefault("PAYMENT_EXPIRY", 30*time.Minute),
		RefundWindow:  getDurationWithDefault("REFUND_WINDOW", 7*24*time.Hour),
		SweepInterval: getDurationWithDefault("SWEEP_INTERVAL", 5*time.Minute),

		SMTPHost:  getEnvWithDefault("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:  getIntWithDefault("SMTP_PORT", 587),
		SMTPUser:  os.Getenv("SMTP_USER"),
		SMTPPass:  os.Getenv("SMTP_PASS"),
		EmailFrom: os.Getenv("EMAIL_FROM"),

		// Kafka settings (comma-separated brokers, empty disables Kafka)
		KafkaBrokers:       os.Getenv("KAFKA_BROKERS"),
		KafkaPaymentsTopic: getEnvWithDefault("KAFKA_PAYMENTS_TOPIC", "payments"),
		KafkaEmailTopic:    getEnvWithDefault("KAFKA_EMAIL_TOPIC", "emails"),
		KafkaDLQTopic:      getEnvWithDefault("KAFKA_DLQ_TOPIC", "payments.dlq"),
		KafkaConsumerGroup: getEnvWithDefault("KAFKA_CONSUMER_GROUP", "course-marketplace-email"),

		RedisURL: os.Getenv("REDIS_URL"),

		CertificateDir: getEnvWithDefault("CERTIFICATE_DIR", "certificates"),

		RateLimitRPS:   getFloatWithDefault("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getIntWithDefault("RATE_LIMIT_BURST", 10),
	}
}

// PaymentsEnabled reports whether both Razorpay credentials are present.
// Payment routes answer 503 when they are not.
func (c Config) PaymentsEnabled() bool {
	return c.RazorpayKeyID != "" && c.RazorpayKeySecret != ""
}

// KafkaBrokerList splits KafkaBrokers and drops empty entries.
func (c Config) KafkaBrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntWithDefault(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getFloatWithDefault(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil && v > 0 {
		return v
	}
	return defaultValue
}

func getDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return defaultValue
}

func GetDBConnString() string {
	return "host=" + AppConfig.DBHost +
		" port=" + AppConfig.DBPort +
		" user=" + AppConfig.DBUser +
		" password=" + AppConfig.DBPassword +
		" dbname=" + AppConfig.DBName +
		" sslmode=" + AppConfig.DBSSLMode
}
