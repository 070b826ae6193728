// Package config assembles finctl and devbackend configuration from
// config.yaml and FIN_* environment variables.
package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/weiawesome/fin-dashboard/internal/cache"
	"github.com/weiawesome/fin-dashboard/internal/chat"
	pkgconfig "github.com/weiawesome/fin-dashboard/pkg/config"
	"github.com/weiawesome/fin-dashboard/pkg/database"
	"github.com/weiawesome/fin-dashboard/pkg/log"
	"github.com/weiawesome/fin-dashboard/pkg/storage"
)

type Config struct {
	API       APIConfig
	Cache     cache.StoreConfig
	Chat      chat.Config
	WebSocket chat.WebsocketConfig
	Server    ServerConfig
	Database  database.Config
	JWT       JWTConfig
	Export    storage.Config
	Log       log.Config
}

type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ServerConfig struct {
	Host            string
	Port            int
	MachineID       int64         `mapstructure:"machine_id"`
	HistorySize     int           `mapstructure:"history_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type JWTConfig struct {
	Secret         string
	AccessDuration time.Duration `mapstructure:"access_duration"`
	Issuer         string
}

// Load reads config from configPath (a directory, may be empty).
func Load(configPath string) (*Config, error) {
	v, err := pkgconfig.Load(configPath, "config")
	if err != nil {
		return nil, err
	}

	setDefaults(v)

	// Override from environment
	v.BindEnv("api.base_url", "FIN_API_URL")
	v.BindEnv("chat.url", "FIN_CHAT_URL")
	v.BindEnv("server.port", "PORT")
	v.BindEnv("jwt.secret", "JWT_SECRET")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.file_path", "DB_FILE_PATH")
	v.BindEnv("cache.redis.address", "REDIS_ADDRESS")
	v.BindEnv("cache.redis.password", "REDIS_PASSWORD")
	v.BindEnv("export.s3.access_key_id", "AWS_ACCESS_KEY_ID")
	v.BindEnv("export.s3.secret_access_key", "AWS_SECRET_ACCESS_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.API.Timeout = parseDuration(v, "api.timeout", 10*time.Second)
	cfg.Cache.Redis.Timeout = parseDuration(v, "cache.redis.timeout", 2*time.Second)
	cfg.Chat.Backoff.Base = parseDuration(v, "chat.backoff.base", time.Second)
	cfg.Chat.Backoff.Max = parseDuration(v, "chat.backoff.max", 30*time.Second)
	cfg.Chat.HandshakeTimeout = parseDuration(v, "chat.handshake_timeout", 10*time.Second)
	cfg.Chat.LivenessInterval = parseDuration(v, "chat.liveness_interval", 30*time.Second)
	cfg.Chat.ReceiptEcho = parseDuration(v, "chat.receipt_echo", 100*time.Millisecond)
	cfg.Chat.DelayedAfter = parseDuration(v, "chat.delayed_after", 5*time.Second)
	cfg.Chat.RefreshAfter = parseDuration(v, "chat.refresh_after", 3*time.Second)
	cfg.Chat.RetransmitWindow = parseDuration(v, "chat.retransmit_window", 30*time.Minute)
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.JWT.AccessDuration = parseDuration(v, "jwt.access_duration", 24*time.Hour)
	cfg.Server.ShutdownTimeout = parseDuration(v, "server.shutdown_timeout", 10*time.Second)

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	chatDefaults := chat.DefaultConfig()
	dest := chat.DefaultDestinations()

	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.timeout", "10s")

	v.SetDefault("cache.driver", "file")
	v.SetDefault("cache.path", cache.DefaultFilePath())
	v.SetDefault("cache.namespace", cache.DefaultNamespace)
	v.SetDefault("cache.redis.address", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.prefix", "")
	v.SetDefault("cache.redis.timeout", "2s")

	v.SetDefault("chat.url", chatDefaults.URL)
	v.SetDefault("chat.destinations.broadcast", dest.Broadcast)
	v.SetDefault("chat.destinations.private", dest.Private)
	v.SetDefault("chat.destinations.publish", dest.Publish)
	v.SetDefault("chat.destinations.join", dest.Join)
	v.SetDefault("chat.backoff.base", "1s")
	v.SetDefault("chat.backoff.max", "30s")
	v.SetDefault("chat.backoff.max_attempts", chatDefaults.Backoff.MaxAttempts)
	v.SetDefault("chat.handshake_timeout", "10s")
	v.SetDefault("chat.liveness_interval", "30s")
	v.SetDefault("chat.probe_timeout", "5s")
	v.SetDefault("chat.history_timeout", "10s")
	v.SetDefault("chat.receipt_echo", "100ms")
	v.SetDefault("chat.delayed_after", "5s")
	v.SetDefault("chat.refresh_after", "3s")
	v.SetDefault("chat.retransmit_window", "30m")
	v.SetDefault("chat.announce_join", true)

	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 64*1024)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.machine_id", 1)
	v.SetDefault("server.history_size", 500)
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.file_path", "fin-dashboard.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", 30)

	v.SetDefault("jwt.secret", "dev-secret-change-me-please")
	v.SetDefault("jwt.access_duration", "24h")
	v.SetDefault("jwt.issuer", "fin-dashboard")

	v.SetDefault("export.driver", "local")
	v.SetDefault("export.local.base_path", "exports")
	v.SetDefault("export.s3.region", "us-east-1")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
