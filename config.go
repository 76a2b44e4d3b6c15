package eventsource

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds the Store settings.
type Config struct {
	// Hostname uniquely identifies this node. It is stamped into the
	// context of every committed event and is required for named-queue
	// emulation on buses without native queue support.
	Hostname string `env:"EVENTSOURCE_HOSTNAME"`

	// PublishAsync selects the publish mode after persistence. When true
	// (the default) publication is handed to a background worker and
	// publish failures are only logged; when false Commit awaits
	// publication and propagates its failure.
	PublishAsync bool `env:"EVENTSOURCE_PUBLISH_ASYNC" envDefault:"true"`
}

// ConfigFromEnv loads the store configuration from environment variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
