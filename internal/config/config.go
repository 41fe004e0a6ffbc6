// Package config loads cabletrack settings from defaults, an optional YAML
// file and CABLETRACK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/HerbHall/cabletrack/internal/fabricmgr"
	"github.com/HerbHall/cabletrack/internal/ticket"
	"github.com/HerbHall/cabletrack/internal/webhook"
)

// Settings is the configuration of one invocation. It is built once and
// passed to the components that need it.
type Settings struct {
	Database DatabaseConfig `mapstructure:"database"`
	Cluster  ClusterConfig  `mapstructure:"cluster"`
	Fabric   FabricConfig   `mapstructure:"fabric"`
	Ticket   ticket.Config  `mapstructure:"ticket"`
	Features FeatureConfig  `mapstructure:"features"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Webhook  webhook.Config `mapstructure:"webhook"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type ClusterConfig struct {
	Name string `mapstructure:"name"`
	// FabricTicket receives unattributed fabric issues when set.
	FabricTicket int64 `mapstructure:"fabric_ticket"`
}

// FabricConfig holds the expected link policy and the fabric-management
// host connection.
type FabricConfig struct {
	fabricmgr.Config `mapstructure:",squash"`

	Speed string `mapstructure:"speed"`
	Width string `mapstructure:"width"`
}

type FeatureConfig struct {
	DisableTickets         bool `mapstructure:"disable_tickets"`
	DisablePortStateChange bool `mapstructure:"disable_port_state_change"`
	DisableBisectDetect    bool `mapstructure:"disable_bisect_detect"`
}

type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"` // node_exporter textfile; empty disables
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	fab := fabricmgr.DefaultConfig()
	tk := ticket.DefaultConfig()

	v.SetDefault("database.path", "/var/lib/cabletrack/cables.db")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("cluster.name", "cluster")
	v.SetDefault("cluster.fabric_ticket", 0)

	v.SetDefault("fabric.speed", "EDR")
	v.SetDefault("fabric.width", "4x")
	v.SetDefault("fabric.host", "")
	v.SetDefault("fabric.port", fab.Port)
	v.SetDefault("fabric.user", fab.User)
	v.SetDefault("fabric.key_file", "")
	v.SetDefault("fabric.known_hosts", "")
	v.SetDefault("fabric.timeout", fab.Timeout)
	v.SetDefault("fabric.enable_retries", fab.EnableRetries)
	v.SetDefault("fabric.settle_interval", fab.SettleInterval)
	v.SetDefault("fabric.debug_interval", fab.DebugInterval)

	v.SetDefault("ticket.url", "")
	v.SetDefault("ticket.token", "")
	v.SetDefault("ticket.queue", tk.Queue)
	v.SetDefault("ticket.group", tk.Group)
	v.SetDefault("ticket.repair_group", "")
	v.SetDefault("ticket.timeout", tk.Timeout)

	v.SetDefault("features.disable_tickets", false)
	v.SetDefault("features.disable_port_state_change", false)
	v.SetDefault("features.disable_bisect_detect", false)

	v.SetDefault("metrics.textfile", "")
	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.timeout", 10*time.Second)
}

// LoadConfig reads configuration from file and environment variables.
func LoadConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("cabletrack")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/cabletrack")
	}

	// Environment variable support: CABLETRACK_DATABASE_PATH=/tmp/c.db
	v.SetEnvPrefix("CABLETRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is fine -- use defaults
	}
	return v, nil
}

// Load decodes the settings held by v.
func Load(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if s.Database.Path == "" {
		return nil, errors.New("database.path must be set")
	}
	if s.Fabric.Timeout <= 0 {
		s.Fabric.Timeout = 5 * time.Minute
	}
	return &s, nil
}
