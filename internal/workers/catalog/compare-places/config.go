// internal/workers/catalog/compare-places/config.go
package compareplaces

import (
	"time"

	"github.com/google/uuid"
)

type Config struct {
	Timeout time.Duration
	// NewID issues comparison ids. Defaults to random UUIDs.
	NewID func() string
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
		NewID:   uuid.NewString,
	}
}
