package ticket

import "time"

// Config holds the ticketing integration configuration.
type Config struct {
	URL         string        `mapstructure:"url"`          // Ticket system base URL
	Token       string        `mapstructure:"token"`        // API token
	Queue       string        `mapstructure:"queue"`        // Queue new cable tickets are opened in
	Group       string        `mapstructure:"group"`        // Group that owns cable tickets
	RepairGroup string        `mapstructure:"repair_group"` // Group that receives repair hand-offs
	Timeout     time.Duration `mapstructure:"timeout"`      // HTTP client timeout (default: 30s)
}

// DefaultConfig returns a Config with sensible defaults.
// URL is empty, meaning tickets are disabled until configured.
func DefaultConfig() Config {
	return Config{
		Queue:   "hpc",
		Group:   "hpc-fabric",
		Timeout: 30 * time.Second,
	}
}
