package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// Config is the top-level configuration structure.
type Config struct {
	Server      ServerConfig      `json:"server"`
	Bus         BusConfig         `json:"bus"`
	World       WorldConfig       `json:"world"`
	Persistence PersistenceConfig `json:"persistence"`
	Gateway     GatewayConfig     `json:"gateway"`
	Maintenance MaintenanceConfig `json:"maintenance"`
	ScenarioPath string           `json:"scenario_path"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

type BusConfig struct {
	Async     bool `json:"async"`
	QueueSize int  `json:"queue_size"`
	BatchSize int  `json:"batch_size"`
}

type WorldConfig struct {
	TickSeconds        int     `json:"tick_seconds"`
	Speed              float64 `json:"speed"`
	RelationDecayPerDay float64 `json:"relation_decay_per_day"`
	DecayEveryTicks    int     `json:"decay_every_ticks"`
	PruneThreshold     float64 `json:"prune_threshold"`
	PruneEveryTicks    int     `json:"prune_every_ticks"`
}

// PersistenceConfig selects one snapshot backend by name. Fields for the
// other backends may stay zero.
type PersistenceConfig struct {
	Backend  string         `json:"backend"` // "json", "sqlite", "redis", "postgres", "neo4j"
	JSONDir  string         `json:"json_dir"`
	SQLite   SQLiteConfig   `json:"sqlite"`
	Redis    RedisConfig    `json:"redis"`
	Postgres PostgresConfig `json:"postgres"`
	Neo4j    Neo4jConfig    `json:"neo4j"`
}

type SQLiteConfig struct {
	Path string `json:"path"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type Neo4jConfig struct {
	URI      string `json:"uri"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type GatewayConfig struct {
	Slack   SlackGatewayConfig   `json:"slack"`
	Discord DiscordGatewayConfig `json:"discord"`
	// Kinds lists the event kinds worth relaying to chat. Empty means all.
	Kinds []string `json:"kinds"`
}

type SlackGatewayConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	Channel  string `json:"channel"`
}

type DiscordGatewayConfig struct {
	Enabled   bool   `json:"enabled"`
	BotToken  string `json:"bot_token"`
	ChannelID string `json:"channel_id"`
}

type MaintenanceConfig struct {
	// SnapshotCron is a cron spec for periodic persistence flushes,
	// e.g. "@every 5m". Empty disables the job.
	SnapshotCron string `json:"snapshot_cron"`
	// BackupCron schedules memory backups. Empty disables the job.
	BackupCron string `json:"backup_cron"`
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Bus.QueueSize == 0 {
		c.Bus.QueueSize = 256
	}
	if c.Bus.BatchSize == 0 {
		c.Bus.BatchSize = 16
	}
	if c.World.TickSeconds == 0 {
		c.World.TickSeconds = 5
	}
	if c.World.Speed == 0 {
		c.World.Speed = 1
	}
	if c.World.DecayEveryTicks == 0 {
		c.World.DecayEveryTicks = 10
	}
	if c.World.PruneEveryTicks == 0 {
		c.World.PruneEveryTicks = 50
	}
	if c.World.PruneThreshold == 0 {
		c.World.PruneThreshold = 0.05
	}
	if c.Persistence.Backend == "" {
		c.Persistence.Backend = "json"
	}
	if c.Persistence.JSONDir == "" {
		c.Persistence.JSONDir = "data"
	}
	if c.Persistence.SQLite.Path == "" {
		c.Persistence.SQLite.Path = "data/curia.db"
	}
}
