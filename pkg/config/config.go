package config

import (
	"log"
	"os"

	"Lifeline/pkg/cache"
	"Lifeline/pkg/logger"
	"Lifeline/pkg/notification"
	"Lifeline/pkg/util"
)

type Config struct {
	Addr      string `env:"ADDR"`
	Mode      string `env:"MODE"`
	DBDriver  string `env:"DB_DRIVER"`
	DSN       string `env:"DSN"`
	JWTSecret string `env:"JWT_SECRET"`
	BaseURL   string `env:"BASE_URL"` // used to build password-reset links

	// Cron expression for the pending-alert reminder sweep.
	ReminderSchedule string `env:"REMINDER_SCHEDULE"`

	Log   logger.LogConfig
	Mail  notification.MailConfig
	Cache cache.Config
}

func Load() (*Config, error) {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	if err := util.LoadEnv(env); err != nil {
		log.Printf("failed to load .env file: %v", err)
	}

	cfg := &Config{
		Addr:             util.GetEnvDefault("ADDR", ":8080"),
		Mode:             util.GetEnvDefault("MODE", "debug"),
		DBDriver:         util.GetEnv("DB_DRIVER"),
		DSN:              util.GetEnv("DSN"),
		JWTSecret:        util.GetEnv("JWT_SECRET"),
		BaseURL:          util.GetEnvDefault("BASE_URL", "http://localhost:8080"),
		ReminderSchedule: util.GetEnvDefault("REMINDER_SCHEDULE", "@every 2m"),
		Log: logger.LogConfig{
			Level:      util.GetEnv("LOG_LEVEL"),
			Filename:   util.GetEnv("LOG_FILENAME"),
			MaxSize:    int(util.GetIntEnv("LOG_MAX_SIZE")),
			MaxAge:     int(util.GetIntEnv("LOG_MAX_AGE")),
			MaxBackups: int(util.GetIntEnv("LOG_MAX_BACKUPS")),
		},
		Mail: notification.MailConfig{
			Host:     util.GetEnv("MAIL_HOST"),
			Port:     int(util.GetIntEnv("MAIL_PORT")),
			Username: util.GetEnv("MAIL_USERNAME"),
			Password: util.GetEnv("MAIL_PASSWORD"),
			From:     util.GetEnv("MAIL_FROM"),
		},
		Cache: cache.Config{
			Type: util.GetEnvDefault("CACHE_TYPE", "local"),
			Redis: cache.RedisConfig{
				Addr:     util.GetEnv("REDIS_ADDR"),
				Password: util.GetEnv("REDIS_PASSWORD"),
				DB:       int(util.GetIntEnv("REDIS_DB")),
			},
		},
	}
	return cfg, nil
}
