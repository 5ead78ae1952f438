package ezusb

import (
	"github.com/leandrodaf/midisport/internal/logger"
	"github.com/leandrodaf/midisport/sdk/contracts"
)

// Download phases reported through Progress.
const (
	PhaseLoader   = "loader"
	PhaseFirmware = "firmware"
)

// Progress describes one written record.
type Progress struct {
	Phase    string
	Internal bool
	Record   int
	Total    int
	Address  uint16
}

// ProgressCallback receives a Progress after every record.
type ProgressCallback func(Progress)

// Config holds the loader configuration.
type Config struct {
	Logger   contracts.Logger
	Progress ProgressCallback
}

func defaultConfig() Config {
	return Config{Logger: logger.NewNopLogger()}
}

// Option configures a Loader.
type Option func(*Config)

// WithLogger sets the loader logger.
func WithLogger(l contracts.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// WithProgressCallback reports every record written.
func WithProgressCallback(cb ProgressCallback) Option {
	return func(c *Config) {
		c.Progress = cb
	}
}
