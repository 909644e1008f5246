package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	Env      string
	LogLevel string
	HTTPAddr string

	CORSOrigins []string

	DBDriver    string
	DatabaseURL string

	// Timezone decides which calendar day "today" is.
	Timezone *time.Location

	DispatchDelay           time.Duration
	DispatchCron            string
	DispatchIncludePrevious bool

	WhatsAppDriver    string
	WPPConnectURL     string
	WPPConnectSession string
	WPPConnectToken   string

	EmailDriver  string
	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPass     string
	SMTPFrom     string
	SMTPFromName string

	MockScenario    string
	MockFailureRate float64
	MockLatency     time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	RedisAddr     string
	RedisPassword string

	TelegramToken  string
	TelegramChatID int64
}

// Load reads .env (when present) and then the process environment.
func Load() AppConfig {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on system env")
	}
	return FromEnv()
}

// FromEnv builds the config from the environment only.
func FromEnv() AppConfig {
	return AppConfig{
		Env:      getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		CORSOrigins: getList("CORS_ORIGINS", []string{"http://localhost:3000"}),

		DBDriver:    getEnv("DB_DRIVER", "postgres"),
		DatabaseURL: getEnv("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=billing_reminders port=5432 sslmode=disable"),

		Timezone: getLocation("TIMEZONE", "America/Sao_Paulo"),

		DispatchDelay:           getDuration("DISPATCH_DELAY", 300*time.Millisecond),
		DispatchCron:            getEnv("DISPATCH_CRON", ""),
		DispatchIncludePrevious: getBool("DISPATCH_INCLUDE_PREVIOUS", true),

		WhatsAppDriver:    getEnv("WHATSAPP_DRIVER", "mock"),
		WPPConnectURL:     getEnv("WPPCONNECT_URL", "http://localhost:21465"),
		WPPConnectSession: getEnv("WPPCONNECT_SESSION", "billing"),
		WPPConnectToken:   getEnv("WPPCONNECT_TOKEN", ""),

		EmailDriver:  getEnv("EMAIL_DRIVER", "mock"),
		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnv("SMTP_PORT", "587"),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPass:     getEnv("SMTP_PASS", ""),
		SMTPFrom:     getEnv("SMTP_FROM", ""),
		SMTPFromName: getEnv("SMTP_FROM_NAME", "Equipe WhatZPay"),

		MockScenario:    getEnv("MOCK_SCENARIO", ""),
		MockFailureRate: getFloat("MOCK_FAILURE_RATE", 0.1),
		MockLatency:     getDuration("MOCK_LATENCY", time.Second),

		KafkaBrokers: getList("KAFKA_BROKERS", nil),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "billing.messages"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		TelegramToken:  getEnv("TELEGRAM_TOKEN", ""),
		TelegramChatID: getInt64("TELEGRAM_CHAT_ID", 0),
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getList(key string, fallback []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		log.Printf("invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return d
}

func getBool(key string, fallback bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return b
}

func getFloat(key string, fallback float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return f
}

func getInt64(key string, fallback int64) int64 {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Printf("invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return n
}

func getLocation(key, fallback string) *time.Location {
	name := getEnv(key, fallback)
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Printf("invalid %s=%q, using UTC", key, name)
		return time.UTC
	}
	return loc
}
