package config

import (
	"os"
	"strconv"
	"time"

	"github.com/gatepass/gatepass/internal/domain"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	PostgresDSN string
	MongoURI    string
	RedisAddr   string
	RabbitURL   string

	HTTPAddr string

	GatewaySecretKey string
	GatewayBaseURL   string
	CallbackURL      string

	// Platform-wide default rates, fed to the rate resolver at call time.
	// Accepts both legacy encodings (whole percent or fraction).
	PlatformFeePercent  decimal.Decimal
	ProcessorFeePercent decimal.Decimal

	ReservationTTL time.Duration
	OTLPEndpoint   string

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	EmailFrom    string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	ttl, _ := time.ParseDuration(os.Getenv("RESERVATION_TTL"))
	if ttl == 0 {
		ttl = 30 * time.Minute
	}

	platform := decimalEnv("PLATFORM_FEE_PERCENT", decimal.NewFromInt(4))
	processor := decimalEnv("PROCESSOR_FEE_PERCENT", decimal.RequireFromString("1.98"))

	smtpPort, _ := strconv.Atoi(os.Getenv("SMTP_PORT"))
	if smtpPort == 0 {
		smtpPort = 587
	}

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	return &Config{
		PostgresDSN:         os.Getenv("POSTGRES_DSN"),
		MongoURI:            os.Getenv("MONGO_URI"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RabbitURL:           os.Getenv("RABBIT_URL"),
		HTTPAddr:            addr,
		GatewaySecretKey:    os.Getenv("GATEWAY_SECRET_KEY"),
		GatewayBaseURL:      os.Getenv("GATEWAY_BASE_URL"),
		CallbackURL:         os.Getenv("CHECKOUT_CALLBACK_URL"),
		PlatformFeePercent:  platform,
		ProcessorFeePercent: processor,
		ReservationTTL:      ttl,
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		SMTPHost:            os.Getenv("SMTP_HOST"),
		SMTPPort:            smtpPort,
		SMTPUser:            os.Getenv("SMTP_USER"),
		SMTPPassword:        os.Getenv("SMTP_PASSWORD"),
		EmailFrom:           os.Getenv("EMAIL_FROM"),
	}, nil
}

// GlobalRates exposes the default rate set in the shape the rate resolver
// takes, so settlement never reads ambient state.
func (c *Config) GlobalRates() domain.GlobalRates {
	return domain.GlobalRates{
		PlatformFeePercent:  c.PlatformFeePercent,
		ProcessorFeePercent: c.ProcessorFeePercent,
	}
}

func decimalEnv(key string, fallback decimal.Decimal) decimal.Decimal {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return fallback
	}
	return v
}
