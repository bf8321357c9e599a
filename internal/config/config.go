package config

import (
	"errors"
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	RunAddress    string `env:"RUN_ADDRESS"`
	DatabaseDSN   string `env:"DATABASE_URI"`
	MigrationsDir string `env:"MIGRATIONS_DIR"`

	WebhookAPIKey     string `env:"WEBHOOK_API_KEY"`
	AdminUsername     string `env:"ADMIN_USERNAME"`
	AdminPasswordHash string `env:"ADMIN_PASSWORD_HASH"`
	JWTSecret         string `env:"JWT_SECRET"`

	RatesURL  string `env:"RATES_URL"`
	RedisAddr string `env:"REDIS_ADDR"`
	AMQPURL   string `env:"AMQP_URL"`
	LogFile   string `env:"LOG_FILE"`
}

func LoadConfig() (*Config, error) {
	// .env опционален, его отсутствие не ошибка.
	_ = godotenv.Load()

	var flagsConfig, envConfig Config

	if envParseErr := env.Parse(&envConfig); envParseErr != nil {
		return nil, fmt.Errorf("parse env config: %s", envParseErr.Error())
	}

	loadFlags(&flagsConfig)

	conf := mergeConfig(&envConfig, &flagsConfig)
	if conf.DatabaseDSN == "" {
		return nil, errors.New("database DSN is not set")
	}
	if conf.WebhookAPIKey == "" {
		return nil, errors.New("webhook API key is not set")
	}
	if conf.AdminPasswordHash == "" {
		return nil, errors.New("admin password hash is not set")
	}
	if conf.JWTSecret == "" {
		return nil, errors.New("JWT secret is not set")
	}
	return conf, nil
}

func MustLoadConfig() *Config {
	config, err := LoadConfig()
	if err != nil {
		panic(err)
	}
	return config
}

func loadFlags(flagConfig *Config) {
	flag.StringVar(&flagConfig.RunAddress, "a", "localhost:8080", "Run address in format host:port")
	flag.StringVar(&flagConfig.DatabaseDSN, "d", "", "Database DSN")
	flag.StringVar(&flagConfig.MigrationsDir, "m", "internal/db/migrations", "Database migrations directory")
	flag.StringVar(&flagConfig.AdminUsername, "admin", "admin", "Admin username")
	flag.StringVar(&flagConfig.RatesURL, "rates", "", "Currency rates source URL")
	flag.StringVar(&flagConfig.RedisAddr, "redis", "", "Redis address in format host:port")
	flag.StringVar(&flagConfig.AMQPURL, "amqp", "", "AMQP broker URL")

	flag.Parse()
}

func mergeConfig(envConfig, flagsConfig *Config) *Config {
	return &Config{
		RunAddress:        defaultIfBlank(envConfig.RunAddress, flagsConfig.RunAddress),
		DatabaseDSN:       defaultIfBlank(envConfig.DatabaseDSN, flagsConfig.DatabaseDSN),
		MigrationsDir:     defaultIfBlank(envConfig.MigrationsDir, flagsConfig.MigrationsDir),
		WebhookAPIKey:     envConfig.WebhookAPIKey,
		AdminUsername:     defaultIfBlank(envConfig.AdminUsername, flagsConfig.AdminUsername),
		AdminPasswordHash: envConfig.AdminPasswordHash,
		JWTSecret:         envConfig.JWTSecret,
		RatesURL:          defaultIfBlank(envConfig.RatesURL, flagsConfig.RatesURL),
		RedisAddr:         defaultIfBlank(envConfig.RedisAddr, flagsConfig.RedisAddr),
		AMQPURL:           defaultIfBlank(envConfig.AMQPURL, flagsConfig.AMQPURL),
		LogFile:           envConfig.LogFile,
	}
}

func defaultIfBlank(value string, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}
