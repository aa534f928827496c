package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port             string
	Env              string
	RedisURL         string
	KafkaBrokers     string
	KafkaAuditTopic  string
	GatewayBaseURL   string
	GatewaySecretKey string
	JWTSecret        string
	FetchPageLimit   int
	FetchTimeout     time.Duration
	FetchConcurrency int
}

func Load() Config {
	return Config{
		Port:             getEnv("PORT", "8091"),
		Env:              getEnv("APP_ENV", "development"),
		RedisURL:         getEnv("REDIS_URL", "redis://redis:6379"),
		KafkaBrokers:     getEnv("KAFKA_BROKERS", "localhost:9092"),
		KafkaAuditTopic:  getEnv("KAFKA_AUDIT_TOPIC", "enrollment.audit"),
		GatewayBaseURL:   getEnv("GATEWAY_BASE_URL", "https://api.tosspayments.com"),
		GatewaySecretKey: getEnv("GATEWAY_SECRET_KEY", ""),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		FetchPageLimit:   getEnvInt("FETCH_PAGE_LIMIT", 100),
		FetchTimeout:     time.Duration(getEnvInt("FETCH_TIMEOUT_SECONDS", 120)) * time.Second,
		FetchConcurrency: getEnvInt("FETCH_CONCURRENCY", 2),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}
