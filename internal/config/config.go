package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root server configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Game      GameConfig      `mapstructure:"game"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig groups the network listeners.
type ServerConfig struct {
	WebSocket       WebSocketConfig `mapstructure:"websocket"`
	GRPC            GRPCConfig      `mapstructure:"grpc"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
}

// WebSocketConfig configures the client-facing websocket endpoint.
type WebSocketConfig struct {
	Address        string        `mapstructure:"address"`
	Path           string        `mapstructure:"path"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// GRPCConfig configures the admin/health gRPC listener.
type GRPCConfig struct {
	Address              string `mapstructure:"address"`
	MaxConcurrentStreams int    `mapstructure:"max_concurrent_streams"`
}

// DatabaseConfig configures the Postgres pool backing users and decks.
// An empty URL selects the in-memory directory.
type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConns       int32         `mapstructure:"max_conns"`
	MinConns       int32         `mapstructure:"min_conns"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// DirectoryConfig configures the in-memory user/deck directory.
type DirectoryConfig struct {
	SeedFile string `mapstructure:"seed_file"`
}

// GameConfig holds the table rules applied to every new session.
type GameConfig struct {
	StartingLife        int  `mapstructure:"starting_life"`
	OpeningHand         int  `mapstructure:"opening_hand"`
	MaxPlayers          int  `mapstructure:"max_players"`
	MinPlayers          int  `mapstructure:"min_players"`
	LogHistory          int  `mapstructure:"log_history"`
	RemoveEmptySessions bool `mapstructure:"remove_empty_sessions"`
}

// LoggingConfig selects log level and encoding.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from path, falling back to defaults when the file
// does not exist. Environment variables prefixed with DUEL_ override values,
// e.g. DUEL_SERVER_WEBSOCKET_ADDRESS.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DUEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.websocket.address", ":8080")
	v.SetDefault("server.websocket.path", "/ws")
	v.SetDefault("server.websocket.read_timeout", 60*time.Second)
	v.SetDefault("server.websocket.write_timeout", 10*time.Second)
	v.SetDefault("server.websocket.ping_interval", 30*time.Second)
	v.SetDefault("server.websocket.max_message_size", 64*1024)
	v.SetDefault("server.websocket.send_buffer", 64)
	v.SetDefault("server.websocket.command_timeout", 5*time.Second)
	v.SetDefault("server.websocket.allowed_origins", []string{})

	v.SetDefault("server.grpc.address", ":9090")
	v.SetDefault("server.grpc.max_concurrent_streams", 100)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.connect_timeout", 5*time.Second)

	v.SetDefault("directory.seed_file", "")

	v.SetDefault("game.starting_life", 40)
	v.SetDefault("game.opening_hand", 7)
	v.SetDefault("game.max_players", 2)
	v.SetDefault("game.min_players", 2)
	v.SetDefault("game.log_history", 200)
	v.SetDefault("game.remove_empty_sessions", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Validate rejects settings no session could run with.
func (c *Config) Validate() error {
	g := c.Game
	switch {
	case g.StartingLife <= 0:
		return fmt.Errorf("game.starting_life must be positive, got %d", g.StartingLife)
	case g.OpeningHand < 0:
		return fmt.Errorf("game.opening_hand must not be negative, got %d", g.OpeningHand)
	case g.MaxPlayers < 1:
		return fmt.Errorf("game.max_players must be at least 1, got %d", g.MaxPlayers)
	case g.MinPlayers < 1 || g.MinPlayers > g.MaxPlayers:
		return fmt.Errorf("game.min_players must be between 1 and %d, got %d", g.MaxPlayers, g.MinPlayers)
	case g.LogHistory < 0:
		return fmt.Errorf("game.log_history must not be negative, got %d", g.LogHistory)
	}
	if c.Server.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("server.websocket.send_buffer must be positive, got %d", c.Server.WebSocket.SendBuffer)
	}
	return nil
}
