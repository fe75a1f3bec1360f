package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseDSN string `env:"DATABASE_URI"`
	RedisAddr   string `env:"REDIS_ADDR"`
	AMQPURL     string `env:"AMQP_URL"`
	LogLevel    string `env:"LOG_LEVEL"`

	GatewayBaseURL       string  `env:"GATEWAY_BASE_URL"`
	GatewaySecretKey     string  `env:"GATEWAY_SECRET_KEY"`
	GatewayWebhookSecret string  `env:"GATEWAY_WEBHOOK_SECRET"`
	GatewayRPS           float64 `env:"GATEWAY_RPS"`
	Currency             string  `env:"CURRENCY"`

	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL"`
	ReconcileAfter    time.Duration `env:"RECONCILE_AFTER"`
	PendingExpiry     time.Duration `env:"PENDING_EXPIRY"`
	ReconcileWorkers  uint          `env:"RECONCILE_WORKERS"`
	ReconcileBatch    uint          `env:"RECONCILE_BATCH"`
}

// LoadConfig читает необязательный .env, затем переменные окружения и флаги. Переменные окружения
// имеют приоритет над флагами.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return loadConfig(flag.CommandLine, os.Args[1:])
}

func MustLoadConfig() *Config {
	config, err := LoadConfig()
	if err != nil {
		panic(err)
	}
	return config
}

func loadConfig(flags *flag.FlagSet, args []string) (*Config, error) {
	var flagsConfig, envConfig Config

	if envParseErr := env.Parse(&envConfig); envParseErr != nil {
		return nil, fmt.Errorf("parse env config: %s", envParseErr.Error())
	}

	if flagsErr := loadFlags(flags, args, &flagsConfig); flagsErr != nil {
		return nil, fmt.Errorf("parse flags: %w", flagsErr)
	}

	conf := mergeConfig(&envConfig, &flagsConfig)
	if conf.DatabaseDSN == "" {
		return nil, errors.New("database DSN is not set")
	}
	if conf.GatewayWebhookSecret == "" {
		return nil, errors.New("gateway webhook secret is not set")
	}
	return conf, nil
}

func loadFlags(flags *flag.FlagSet, args []string, flagConfig *Config) error {
	flags.StringVar(&flagConfig.RunAddress, "a", "localhost:8080", "Run address in format host:port")
	flags.StringVar(&flagConfig.DatabaseDSN, "d", "", "Database DSN")
	flags.StringVar(&flagConfig.RedisAddr, "r", "", "Redis address for webhook deduplication, disabled if empty")
	flags.StringVar(&flagConfig.AMQPURL, "q", "", "RabbitMQ URL for order notifications, disabled if empty")
	flags.StringVar(&flagConfig.GatewayBaseURL, "g", "http://localhost:12111", "Payment gateway base URL")
	flags.StringVar(&flagConfig.GatewaySecretKey, "gateway-key", "", "Payment gateway secret key")
	flags.StringVar(&flagConfig.GatewayWebhookSecret, "webhook-secret", "", "Payment gateway webhook signing secret")
	flags.Float64Var(&flagConfig.GatewayRPS, "gateway-rps", 10, "Reconciler gateway requests per second")
	flags.StringVar(&flagConfig.Currency, "currency", "usd", "Settlement currency")
	flags.StringVar(&flagConfig.LogLevel, "log-level", "", "Log level, derived from GIN_MODE if empty")
	flags.DurationVar(&flagConfig.ReconcileInterval, "reconcile-interval", 10*time.Second, "Reconciler poll interval")
	flags.DurationVar(&flagConfig.ReconcileAfter, "reconcile-after", 5*time.Minute, "Age of an unfinished order before reconciliation")
	flags.DurationVar(&flagConfig.PendingExpiry, "pending-expiry", 24*time.Hour, "Age of an unpaid gateway order before it expires")
	flags.UintVar(&flagConfig.ReconcileWorkers, "reconcile-workers", 5, "Reconciler workers")
	flags.UintVar(&flagConfig.ReconcileBatch, "reconcile-batch", 50, "Orders per reconciler iteration")

	return flags.Parse(args) //nolint:wrapcheck
}

func mergeConfig(envConfig, flagsConfig *Config) *Config {
	return &Config{
		RunAddress:           defaultIfBlank(envConfig.RunAddress, flagsConfig.RunAddress),
		DatabaseDSN:          defaultIfBlank(envConfig.DatabaseDSN, flagsConfig.DatabaseDSN),
		RedisAddr:            defaultIfBlank(envConfig.RedisAddr, flagsConfig.RedisAddr),
		AMQPURL:              defaultIfBlank(envConfig.AMQPURL, flagsConfig.AMQPURL),
		LogLevel:             defaultIfBlank(envConfig.LogLevel, flagsConfig.LogLevel),
		GatewayBaseURL:       defaultIfBlank(envConfig.GatewayBaseURL, flagsConfig.GatewayBaseURL),
		GatewaySecretKey:     defaultIfBlank(envConfig.GatewaySecretKey, flagsConfig.GatewaySecretKey),
		GatewayWebhookSecret: defaultIfBlank(envConfig.GatewayWebhookSecret, flagsConfig.GatewayWebhookSecret),
		GatewayRPS:           defaultIfZero(envConfig.GatewayRPS, flagsConfig.GatewayRPS),
		Currency:             defaultIfBlank(envConfig.Currency, flagsConfig.Currency),
		ReconcileInterval:    defaultIfZero(envConfig.ReconcileInterval, flagsConfig.ReconcileInterval),
		ReconcileAfter:       defaultIfZero(envConfig.ReconcileAfter, flagsConfig.ReconcileAfter),
		PendingExpiry:        defaultIfZero(envConfig.PendingExpiry, flagsConfig.PendingExpiry),
		ReconcileWorkers:     defaultIfZero(envConfig.ReconcileWorkers, flagsConfig.ReconcileWorkers),
		ReconcileBatch:       defaultIfZero(envConfig.ReconcileBatch, flagsConfig.ReconcileBatch),
	}
}

func defaultIfBlank(value string, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}

func defaultIfZero[T comparable](value, defaultValue T) T {
	var zero T
	if value == zero {
		return defaultValue
	}
	return value
}
