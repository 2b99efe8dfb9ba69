package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SlotConfig describes how many slots of one game class each team has
type SlotConfig struct {
	GameClass string `mapstructure:"game_class"`
	Count     int    `mapstructure:"count"`
}

// Config holds all runtime settings
type Config struct {
	MongoURI      string `mapstructure:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database"`
	RedisAddr     string `mapstructure:"redis_addr"`
	HTTPPort      string `mapstructure:"http_port"`
	JWTSecret     string `mapstructure:"jwt_secret"`

	Health struct {
		Interval     time.Duration `mapstructure:"interval"`
		ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	} `mapstructure:"health"`

	Presence struct {
		GracePeriod time.Duration `mapstructure:"grace_period"`
	} `mapstructure:"presence"`

	Vote struct {
		Duration time.Duration `mapstructure:"duration"`
		Options  int           `mapstructure:"options"`
	} `mapstructure:"vote"`

	Queue struct {
		Teams             int           `mapstructure:"teams"`
		Slots             []SlotConfig  `mapstructure:"slots"`
		MinRosterSize     int           `mapstructure:"min_roster_size"`
		AllocationRetry   time.Duration `mapstructure:"allocation_retry"`
		LaunchRetryBudget int           `mapstructure:"launch_retry_budget"`
		Maps              []string      `mapstructure:"maps"`
	} `mapstructure:"queue"`

	Logs struct {
		ListenAddr string `mapstructure:"listen_addr"`
	} `mapstructure:"logs"`

	ControlPlane struct {
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"control_plane"`
}

// Load reads defaults, an optional YAML file and environment variables, in
// increasing priority. Nested keys map to env names with "." replaced by "_",
// e.g. HEALTH_INTERVAL or QUEUE_MIN_ROSTER_SIZE.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("mongo_database", "pickupd")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("http_port", "8080")
	v.SetDefault("jwt_secret", "super-secret-key-change-in-production")

	v.SetDefault("health.interval", 30*time.Second)
	v.SetDefault("health.probe_timeout", 5*time.Second)
	v.SetDefault("presence.grace_period", 10*time.Second)
	v.SetDefault("vote.duration", 20*time.Second)
	v.SetDefault("vote.options", 3)

	// 6v6 layout
	v.SetDefault("queue.teams", 2)
	v.SetDefault("queue.slots", []map[string]interface{}{
		{"game_class": "scout", "count": 2},
		{"game_class": "soldier", "count": 2},
		{"game_class": "demoman", "count": 1},
		{"game_class": "medic", "count": 1},
	})
	v.SetDefault("queue.min_roster_size", 6)
	v.SetDefault("queue.allocation_retry", 3*time.Second)
	v.SetDefault("queue.launch_retry_budget", 3)
	v.SetDefault("queue.maps", []string{"cp_badlands", "cp_process_final", "cp_snakewater_final1", "cp_gullywash_final1", "koth_product_final"})

	v.SetDefault("logs.listen_addr", ":9871")
	v.SetDefault("control_plane.timeout", 5*time.Second)
}

func (c *Config) validate() error {
	if c.Queue.Teams < 1 {
		return fmt.Errorf("invalid queue.teams value: %d", c.Queue.Teams)
	}
	if len(c.Queue.Slots) == 0 {
		return fmt.Errorf("queue.slots must not be empty")
	}
	if len(c.Queue.Maps) == 0 {
		return fmt.Errorf("queue.maps must not be empty")
	}
	if c.Queue.MinRosterSize < 1 || c.Queue.MinRosterSize > c.SlotCount() {
		return fmt.Errorf("invalid queue.min_roster_size value: %d", c.Queue.MinRosterSize)
	}
	if c.Health.Interval <= 0 || c.Presence.GracePeriod <= 0 || c.Vote.Duration <= 0 {
		return fmt.Errorf("intervals must be positive")
	}
	return nil
}

// SlotCount returns the total number of queue slots across all teams
func (c *Config) SlotCount() int {
	n := 0
	for _, s := range c.Queue.Slots {
		n += s.Count
	}
	return n * c.Queue.Teams
}

// SlotClasses expands the slot layout into one game class per slot, team by team.
func (c *Config) SlotClasses() []string {
	classes := make([]string, 0, c.SlotCount())
	for t := 0; t < c.Queue.Teams; t++ {
		for _, s := range c.Queue.Slots {
			for i := 0; i < s.Count; i++ {
				classes = append(classes, s.GameClass)
			}
		}
	}
	return classes
}
