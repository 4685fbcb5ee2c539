// Package config provides Viper-based configuration loading for the sync server.
package config

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable override, e.g.
// PROXSYNC_SIMULATION_PROXIMITY_RADIUS.
const EnvPrefix = "PROXSYNC"

// DatabaseConfig holds PostgreSQL connection settings for the session journal.
type DatabaseConfig struct {
	// Enabled turns on the session journal. Nothing else touches the database.
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
	// JournalQueue is the number of events buffered ahead of the writer.
	JournalQueue int `mapstructure:"journal_queue"`
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

// WebSocketConfig holds the primary browser transport settings.
type WebSocketConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// Path is the URL path upgraded to a websocket.
	Path string `mapstructure:"path"`
	// ReadLimit caps one inbound message in bytes.
	ReadLimit int64 `mapstructure:"read_limit"`
	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// IdleTimeout disconnects a client that sends nothing, not even a pong.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	// PingInterval must be shorter than IdleTimeout.
	PingInterval time.Duration `mapstructure:"ping_interval"`
}

// Addr returns the "host:port" listen address.
func (w WebSocketConfig) Addr() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}

// TelnetConfig holds Telnet acceptor settings.
type TelnetConfig struct {
	// Enabled starts the text transport.
	Enabled bool `mapstructure:"enabled"`
	// Host is the bind address for the Telnet listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the Telnet listener.
	Port int `mapstructure:"port"`
	// ReadTimeout is the per-read timeout for Telnet connections.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the per-write timeout for Telnet connections.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (t TelnetConfig) Addr() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// GameServerConfig holds the gRPC stream transport settings.
type GameServerConfig struct {
	// Enabled starts the gRPC stream transport.
	Enabled bool `mapstructure:"enabled"`
	// GRPCHost is the bind address for the gRPC service.
	GRPCHost string `mapstructure:"grpc_host"`
	// GRPCPort is the TCP port for the gRPC service.
	GRPCPort int `mapstructure:"grpc_port"`
}

// Addr returns the "host:port" gRPC address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (g GameServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.GRPCHost, g.GRPCPort)
}

// SimulationConfig holds the spatial model settings. They are fixed at start.
type SimulationConfig struct {
	// TickRate is the scheduler frequency in Hz.
	TickRate int `mapstructure:"tick_rate"`
	// ProximityRadius is the inclusive chat distance.
	ProximityRadius float64 `mapstructure:"proximity_radius"`
	SpawnX          float64 `mapstructure:"spawn_x"`
	SpawnY          float64 `mapstructure:"spawn_y"`
	// OutboxSize is the per-connection outbound frame buffer.
	OutboxSize int `mapstructure:"outbox_size"`
}

// ChatConfig bounds and filters chat messages.
type ChatConfig struct {
	// MaxLength is the maximum message length in characters.
	MaxLength int `mapstructure:"max_length"`
	// RatePerSecond is the sustained per-connection message rate; 0 disables limiting.
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
	// WordList is an optional YAML file of censored words.
	WordList string `mapstructure:"wordlist"`
	// CensorChar replaces each letter of a censored word.
	CensorChar string `mapstructure:"censor_char"`
}

// Censor returns the configured censor rune.
//
// Precondition: CensorChar has been validated.
func (c ChatConfig) Censor() rune {
	r, _ := utf8.DecodeRuneInString(c.CensorChar)
	return r
}

// ScriptingConfig holds the Lua tick hook settings.
type ScriptingConfig struct {
	// TickScriptDir holds *.lua files defining on_tick; empty disables scripting.
	TickScriptDir string `mapstructure:"tick_script_dir"`
	// InstructionLimit bounds one hook call; 0 selects the default.
	InstructionLimit int `mapstructure:"instruction_limit"`
}

// Config is the top-level application configuration.
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	WebSocket  WebSocketConfig  `mapstructure:"websocket"`
	Telnet     TelnetConfig     `mapstructure:"telnet"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	GameServer GameServerConfig `mapstructure:"gameserver"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Chat       ChatConfig       `mapstructure:"chat"`
	Scripting  ScriptingConfig  `mapstructure:"scripting"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	for _, check := range []func() error{
		func() error { return validateDatabase(c.Database) },
		func() error { return validateWebSocket(c.WebSocket) },
		func() error { return validateTelnet(c.Telnet) },
		func() error { return validateLogging(c.Logging) },
		func() error { return validateGameServer(c.GameServer) },
		func() error { return validateSimulation(c.Simulation) },
		func() error { return validateChat(c.Chat) },
		func() error { return validateScripting(c.Scripting) },
	} {
		if err := check(); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func joinErrs(errs []string) error {
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validPort(p int) bool { return p >= 1 && p <= 65535 }

func validateDatabase(d DatabaseConfig) error {
	if !d.Enabled {
		return nil
	}
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if !validPort(d.Port) {
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
	if d.JournalQueue < 1 {
		errs = append(errs, fmt.Sprintf("database.journal_queue must be >= 1, got %d", d.JournalQueue))
	}
	return joinErrs(errs)
}

func validateWebSocket(w WebSocketConfig) error {
	var errs []string
	if !validPort(w.Port) {
		errs = append(errs, fmt.Sprintf("websocket.port must be 1-65535, got %d", w.Port))
	}
	if !strings.HasPrefix(w.Path, "/") {
		errs = append(errs, fmt.Sprintf("websocket.path must start with '/', got %q", w.Path))
	}
	if w.ReadLimit < 1 {
		errs = append(errs, fmt.Sprintf("websocket.read_limit must be >= 1, got %d", w.ReadLimit))
	}
	if w.WriteTimeout <= 0 {
		errs = append(errs, "websocket.write_timeout must be positive")
	}
	if w.IdleTimeout <= 0 {
		errs = append(errs, "websocket.idle_timeout must be positive")
	}
	if w.PingInterval <= 0 || w.PingInterval >= w.IdleTimeout {
		errs = append(errs, fmt.Sprintf("websocket.ping_interval must be positive and below idle_timeout (%s), got %s", w.IdleTimeout, w.PingInterval))
	}
	return joinErrs(errs)
}

func validateTelnet(t TelnetConfig) error {
	if !t.Enabled {
		return nil
	}
	var errs []string
	if !validPort(t.Port) {
		errs = append(errs, fmt.Sprintf("telnet.port must be 1-65535, got %d", t.Port))
	}
	if t.ReadTimeout < 0 {
		errs = append(errs, "telnet.read_timeout must not be negative")
	}
	if t.WriteTimeout < 0 {
		errs = append(errs, "telnet.write_timeout must not be negative")
	}
	return joinErrs(errs)
}

func validateGameServer(g GameServerConfig) error {
	if !g.Enabled {
		return nil
	}
	var errs []string
	if g.GRPCHost == "" {
		errs = append(errs, "gameserver.grpc_host must not be empty")
	}
	if !validPort(g.GRPCPort) {
		errs = append(errs, fmt.Sprintf("gameserver.grpc_port must be 1-65535, got %d", g.GRPCPort))
	}
	return joinErrs(errs)
}

func validateSimulation(s SimulationConfig) error {
	var errs []string
	if s.TickRate < 1 || s.TickRate > 1000 {
		errs = append(errs, fmt.Sprintf("simulation.tick_rate must be 1-1000, got %d", s.TickRate))
	}
	if !(s.ProximityRadius > 0) || math.IsInf(s.ProximityRadius, 0) {
		errs = append(errs, fmt.Sprintf("simulation.proximity_radius must be a positive finite number, got %v", s.ProximityRadius))
	}
	if math.IsNaN(s.SpawnX) || math.IsInf(s.SpawnX, 0) || math.IsNaN(s.SpawnY) || math.IsInf(s.SpawnY, 0) {
		errs = append(errs, "simulation.spawn_x and spawn_y must be finite")
	}
	if s.OutboxSize < 2 {
		errs = append(errs, fmt.Sprintf("simulation.outbox_size must be >= 2, got %d", s.OutboxSize))
	}
	return joinErrs(errs)
}

func validateChat(c ChatConfig) error {
	var errs []string
	if c.MaxLength < 1 {
		errs = append(errs, fmt.Sprintf("chat.max_length must be >= 1, got %d", c.MaxLength))
	}
	if c.RatePerSecond < 0 {
		errs = append(errs, "chat.rate_per_second must not be negative")
	}
	if c.RatePerSecond > 0 && c.Burst < 1 {
		errs = append(errs, fmt.Sprintf("chat.burst must be >= 1 when rate limiting, got %d", c.Burst))
	}
	if utf8.RuneCountInString(c.CensorChar) != 1 {
		errs = append(errs, fmt.Sprintf("chat.censor_char must be a single character, got %q", c.CensorChar))
	}
	return joinErrs(errs)
}

func validateScripting(s ScriptingConfig) error {
	if s.InstructionLimit < 0 {
		return fmt.Errorf("scripting.instruction_limit must be >= 0, got %d", s.InstructionLimit)
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

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := NewViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromViper(v)
}

// NewViper returns a Viper instance with defaults and PROXSYNC_ environment
// overrides applied but no config file.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
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

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "proxsync")
	v.SetDefault("database.password", "proxsync")
	v.SetDefault("database.name", "proxsync")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.journal_queue", 1024)

	v.SetDefault("websocket.host", "0.0.0.0")
	v.SetDefault("websocket.port", 3000)
	v.SetDefault("websocket.path", "/ws")
	v.SetDefault("websocket.read_limit", 4096)
	v.SetDefault("websocket.write_timeout", "10s")
	v.SetDefault("websocket.idle_timeout", "60s")
	v.SetDefault("websocket.ping_interval", "25s")

	v.SetDefault("telnet.enabled", false)
	v.SetDefault("telnet.host", "0.0.0.0")
	v.SetDefault("telnet.port", 4000)
	v.SetDefault("telnet.read_timeout", "5m")
	v.SetDefault("telnet.write_timeout", "30s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("gameserver.enabled", false)
	v.SetDefault("gameserver.grpc_host", "127.0.0.1")
	v.SetDefault("gameserver.grpc_port", 50051)

	v.SetDefault("simulation.tick_rate", 30)
	v.SetDefault("simulation.proximity_radius", 200.0)
	v.SetDefault("simulation.spawn_x", 400.0)
	v.SetDefault("simulation.spawn_y", 300.0)
	v.SetDefault("simulation.outbox_size", 64)

	v.SetDefault("chat.max_length", 500)
	v.SetDefault("chat.rate_per_second", 5.0)
	v.SetDefault("chat.burst", 10)
	v.SetDefault("chat.wordlist", "")
	v.SetDefault("chat.censor_char", "*")

	v.SetDefault("scripting.tick_script_dir", "")
	v.SetDefault("scripting.instruction_limit", 100000)
}
