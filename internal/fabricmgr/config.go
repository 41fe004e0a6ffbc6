package fabricmgr

import "time"

// Config holds the fabric-management host connection settings.
type Config struct {
	Host           string        `mapstructure:"host"`            // Fabric-management (subnet manager) host
	Port           int           `mapstructure:"port"`            // SSH port (default: 22)
	User           string        `mapstructure:"user"`            // SSH user
	KeyFile        string        `mapstructure:"key_file"`        // Private key used to authenticate
	KnownHosts     string        `mapstructure:"known_hosts"`     // known_hosts file; empty skips host key checks
	Timeout        time.Duration `mapstructure:"timeout"`         // Per-command timeout (default: 5m)
	EnableRetries  int           `mapstructure:"enable_retries"`  // Extra attempts for port enable (default: 10)
	SettleInterval time.Duration `mapstructure:"settle_interval"` // Minimum spacing between enable attempts (default: 2s)
	DebugInterval  time.Duration `mapstructure:"debug_interval"`  // Pause between switch debug snapshots (default: 5s)
}

// DefaultConfig returns a Config with sensible defaults.
// Host is empty, meaning port state changes are unavailable until configured.
func DefaultConfig() Config {
	return Config{
		Port:           22,
		User:           "root",
		Timeout:        5 * time.Minute,
		EnableRetries:  10,
		SettleInterval: 2 * time.Second,
		DebugInterval:  5 * time.Second,
	}
}
