// Package config provides Viper-based configuration loading for the Hetman server.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds listener settings for the public HTTP/websocket endpoint and
// the admin gRPC endpoint.
type ServerConfig struct {
	// Host is the bind address for the HTTP listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the HTTP listener.
	Port int `mapstructure:"port"`
	// AdminPort is the TCP port for the gRPC health/reflection listener.
	AdminPort int `mapstructure:"admin_port"`
	// AllowedOrigins lists CORS origins; "*" allows any.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Addr returns the "host:port" HTTP listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AdminAddr returns the "host:port" gRPC admin listen address.
func (s ServerConfig) AdminAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.AdminPort)
}

// DatabaseConfig holds PostgreSQL connection settings for the result archive.
type DatabaseConfig struct {
	// Enabled turns the result archive on. When false no connection is made.
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// WebsocketConfig holds per-connection websocket settings.
type WebsocketConfig struct {
	// ReadTimeout is how long a connection may stay silent (no message, no pong).
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout bounds each frame write.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// PingInterval is the transport-level ping period; must be below ReadTimeout.
	PingInterval time.Duration `mapstructure:"ping_interval"`
	// MaxMessageSize is the largest inbound frame accepted, in bytes.
	MaxMessageSize int64 `mapstructure:"max_message_size"`
	// SendBuffer is the number of outbound notices queued per connection.
	SendBuffer int `mapstructure:"send_buffer"`
}

// GameConfig holds the fixed game constants and timer durations.
type GameConfig struct {
	HandSize         int           `mapstructure:"hand_size"`
	PromptChoices    int           `mapstructure:"prompt_choices"`
	RevealDelay      time.Duration `mapstructure:"reveal_delay"`
	RoundEndDelay    time.Duration `mapstructure:"round_end_delay"`
	GameOverLinger   time.Duration `mapstructure:"game_over_linger"`
	SessionLimit     time.Duration `mapstructure:"session_limit"`
	InactivityLimit  time.Duration `mapstructure:"inactivity_limit"`
	ReconnectGrace   time.Duration `mapstructure:"reconnect_grace"`
	BotThinkMin      time.Duration `mapstructure:"bot_think_min"`
	BotThinkMax      time.Duration `mapstructure:"bot_think_max"`
	DefaultMaxRounds int           `mapstructure:"default_max_rounds"`
}

// ContentConfig locates the card deck content.
type ContentConfig struct {
	// DeckDir is a directory of deck YAML files. Empty selects the built-in deck.
	DeckDir string `mapstructure:"deck_dir"`
}

// NATSConfig holds the optional room-notice mirror settings.
type NATSConfig struct {
	// URL is the NATS server URL. Empty disables the mirror.
	URL string `mapstructure:"url"`
	// SubjectPrefix prefixes every mirrored subject.
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Websocket WebsocketConfig `mapstructure:"websocket"`
	Game      GameConfig      `mapstructure:"game"`
	Content   ContentConfig   `mapstructure:"content"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateServer(c.Server); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Database.Enabled {
		if err := validateDatabase(c.Database); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := validateWebsocket(c.Websocket); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateGame(c.Game); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	var errs []string
	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", s.Port))
	}
	if s.AdminPort < 1 || s.AdminPort > 65535 {
		errs = append(errs, fmt.Sprintf("server.admin_port must be 1-65535, got %d", s.AdminPort))
	}
	if s.Port == s.AdminPort {
		errs = append(errs, "server.admin_port must differ from server.port")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateWebsocket(w WebsocketConfig) error {
	var errs []string
	if w.ReadTimeout <= 0 {
		errs = append(errs, "websocket.read_timeout must be positive")
	}
	if w.WriteTimeout <= 0 {
		errs = append(errs, "websocket.write_timeout must be positive")
	}
	if w.PingInterval <= 0 || w.PingInterval >= w.ReadTimeout {
		errs = append(errs, "websocket.ping_interval must be positive and below websocket.read_timeout")
	}
	if w.MaxMessageSize < 64 {
		errs = append(errs, fmt.Sprintf("websocket.max_message_size must be >= 64, got %d", w.MaxMessageSize))
	}
	if w.SendBuffer < 1 {
		errs = append(errs, fmt.Sprintf("websocket.send_buffer must be >= 1, got %d", w.SendBuffer))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateGame(g GameConfig) error {
	var errs []string
	if g.HandSize < 1 {
		errs = append(errs, fmt.Sprintf("game.hand_size must be >= 1, got %d", g.HandSize))
	}
	if g.PromptChoices < 1 {
		errs = append(errs, fmt.Sprintf("game.prompt_choices must be >= 1, got %d", g.PromptChoices))
	}
	if g.DefaultMaxRounds < 1 {
		errs = append(errs, fmt.Sprintf("game.default_max_rounds must be >= 1, got %d", g.DefaultMaxRounds))
	}
	durations := map[string]time.Duration{
		"game.reveal_delay":     g.RevealDelay,
		"game.round_end_delay":  g.RoundEndDelay,
		"game.game_over_linger": g.GameOverLinger,
		"game.session_limit":    g.SessionLimit,
		"game.inactivity_limit": g.InactivityLimit,
		"game.reconnect_grace":  g.ReconnectGrace,
		"game.bot_think_min":    g.BotThinkMin,
	}
	for _, key := range sortedKeys(durations) {
		if durations[key] <= 0 {
			errs = append(errs, fmt.Sprintf("%s must be positive", key))
		}
	}
	if g.BotThinkMax < g.BotThinkMin {
		errs = append(errs, "game.bot_think_max must not be below game.bot_think_min")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func sortedKeys(m map[string]time.Duration) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result. An empty path loads defaults plus environment.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()

	// Environment variable overrides with HETMAN_ prefix
	v.SetEnvPrefix("HETMAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SetDefaults installs every default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.admin_port", 50061)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "hetman")
	v.SetDefault("database.password", "hetman")
	v.SetDefault("database.name", "hetman")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("websocket.read_timeout", "60s")
	v.SetDefault("websocket.write_timeout", "10s")
	v.SetDefault("websocket.ping_interval", "25s")
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("websocket.send_buffer", 128)

	v.SetDefault("game.hand_size", 10)
	v.SetDefault("game.prompt_choices", 3)
	v.SetDefault("game.reveal_delay", "5s")
	v.SetDefault("game.round_end_delay", "8s")
	v.SetDefault("game.game_over_linger", "60s")
	v.SetDefault("game.session_limit", "2h")
	v.SetDefault("game.inactivity_limit", "15m")
	v.SetDefault("game.reconnect_grace", "30s")
	v.SetDefault("game.bot_think_min", "1500ms")
	v.SetDefault("game.bot_think_max", "4s")
	v.SetDefault("game.default_max_rounds", 10)

	v.SetDefault("content.deck_dir", "")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", "hetman.rooms")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
