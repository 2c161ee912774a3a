package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port           string
		ID             string
		LogLevel       string
		AllowedOrigins []string
	}
	Sync struct {
		SweepInterval    time.Duration
		StaleAfter       time.Duration
		StatsLogInterval time.Duration
	}
}

func Load() Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.id", "local")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.allowed_origins", "*")

	v.SetDefault("sync.sweep_interval_seconds", 300)
	v.SetDefault("sync.stale_after_seconds", 600)
	v.SetDefault("sync.stats_log_interval_seconds", 600)

	// Map envs
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.id", "SERVER_ID")
	v.BindEnv("server.log_level", "LOG_LEVEL")
	v.BindEnv("server.allowed_origins", "ALLOWED_ORIGINS")

	v.BindEnv("sync.sweep_interval_seconds", "SWEEP_INTERVAL_SECONDS")
	v.BindEnv("sync.stale_after_seconds", "STALE_AFTER_SECONDS")
	v.BindEnv("sync.stats_log_interval_seconds", "STATS_LOG_INTERVAL_SECONDS")

	var c Config
	c.Server.Port = toString(v.Get("server.port"))
	c.Server.ID = v.GetString("server.id")
	c.Server.LogLevel = v.GetString("server.log_level")
	c.Server.AllowedOrigins = splitOrigins(v.GetString("server.allowed_origins"))

	c.Sync.SweepInterval = positiveSeconds(v.GetInt("sync.sweep_interval_seconds"), 300)
	c.Sync.StaleAfter = positiveSeconds(v.GetInt("sync.stale_after_seconds"), 600)
	c.Sync.StatsLogInterval = positiveSeconds(v.GetInt("sync.stats_log_interval_seconds"), 600)

	log.Printf("config loaded: port=%s sweep=%s stale_after=%s", c.Server.Port, c.Sync.SweepInterval, c.Sync.StaleAfter)
	return c
}

func toString(v any) string { return fmt.Sprint(v) }

// positiveSeconds guards the interval knobs: a zero or negative env value
// would panic time.NewTicker, so it falls back to the default.
func positiveSeconds(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}

func splitOrigins(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
