package natsref

import (
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/quivery/rpcgate"
)

// Config holds the natsref binding configuration, loaded from environment
// variables.
type Config struct {
	// RegistryURL is the statically configured default target, used when a
	// selector carries no dynamic upstream.
	RegistryURL string `envconfig:"RPCGATE_REGISTRY_URL" default:"nats://127.0.0.1:4222"`
	ClientName  string `envconfig:"RPCGATE_CLIENT_NAME" default:"rpcgate"`

	// Serialization is the default mode negotiated for built references.
	Serialization string `envconfig:"RPCGATE_SERIALIZATION" default:"json"`

	RequestTimeout time.Duration `envconfig:"RPCGATE_REQUEST_TIMEOUT" default:"10s"`
}

// LoadConfig loads the binding configuration from environment variables.
func LoadConfig() (Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) withDefaults() Config {
	if c.RegistryURL == "" {
		c.RegistryURL = "nats://127.0.0.1:4222"
	}
	if c.ClientName == "" {
		c.ClientName = "rpcgate"
	}
	if c.Serialization == "" {
		c.Serialization = rpcgate.SerializationJSON
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	return c
}
