package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string         `mapstructure:"mode"`
	Port       int            `mapstructure:"port"`
	StaticPath string         `mapstructure:"static_path"`
	Secret     string         `mapstructure:"secret"`
	Log        LogConfig      `mapstructure:"log"`
	WS         WSConfig       `mapstructure:"ws"`
	Chat       ChatConfig     `mapstructure:"chat"`
	Admin      AdminConfig    `mapstructure:"admin"`
	Database   DatabaseConfig `mapstructure:"database"`
	Redis      RedisConfig    `mapstructure:"redis"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type WSConfig struct {
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`
}

type ChatConfig struct {
	MaxContentLen       int           `mapstructure:"max_content_len"`
	RecentBuffer        int           `mapstructure:"recent_buffer"`
	HistoryDefaultLimit int           `mapstructure:"history_default_limit"`
	HistoryMaxLimit     int           `mapstructure:"history_max_limit"`
	SendRateLimit       int           `mapstructure:"send_rate_limit"`
	SendRateInterval    time.Duration `mapstructure:"send_rate_interval"`
	TypingRateInterval  time.Duration `mapstructure:"typing_rate_interval"`
}

type AdminConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Role      string `mapstructure:"role"`
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"` // postgres, mysql, sqlite
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	FilePath        string `mapstructure:"file_path"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // minutes
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
	Prefix   string        `mapstructure:"prefix"`
}

// setDefaults covers every key; a key without one is invisible to CHAT_* overrides.
func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("secret", "change-me")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("ws.read_limit", 32768)
	v.SetDefault("ws.ping_period", "54s")
	v.SetDefault("ws.pong_wait", "60s")
	v.SetDefault("ws.write_wait", "5s")
	v.SetDefault("ws.send_buffer", 64)

	v.SetDefault("chat.max_content_len", 2000)
	v.SetDefault("chat.recent_buffer", 50)
	v.SetDefault("chat.history_default_limit", 50)
	v.SetDefault("chat.history_max_limit", 100)
	v.SetDefault("chat.send_rate_limit", 20)
	v.SetDefault("chat.send_rate_interval", "10s")
	v.SetDefault("chat.typing_rate_interval", "1s")

	v.SetDefault("admin.jwt_secret", "")
	v.SetDefault("admin.role", "admin")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.file_path", "chat.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "chat")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.conn_max_lifetime", 60)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "30s")
	v.SetDefault("redis.prefix", "chat:history")
}

// Load reads config/config.<CONFIG_ENV>.yaml, then CHAT_* environment overrides.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)

	v.SetEnvPrefix("CHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("db", cfg.Database.Driver).Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.WS.ReadLimit <= 0 {
		return errors.New("ws.read_limit must be positive")
	}
	if c.WS.PingPeriod <= 0 || c.WS.PongWait <= 0 || c.WS.WriteWait <= 0 {
		return errors.New("ws.ping_period, ws.pong_wait and ws.write_wait must be positive")
	}
	if c.WS.PingPeriod >= c.WS.PongWait {
		return errors.New("ws.ping_period must be shorter than ws.pong_wait")
	}
	if c.Chat.MaxContentLen <= 0 {
		return errors.New("chat.max_content_len must be positive")
	}
	if c.Chat.HistoryDefaultLimit > c.Chat.HistoryMaxLimit {
		return errors.New("chat.history_default_limit exceeds chat.history_max_limit")
	}
	return nil
}
