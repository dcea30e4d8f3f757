package config

import (
	"time"
)

// DataPlaneConfig configures the gRPC requirement-check server.
type DataPlaneConfig struct {
	Port string `envconfig:"PORT" default:"50051"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`

	// gRPC specific
	MaxConcurrentStreams uint32        `envconfig:"MAX_CONCURRENT_STREAMS" default:"100"`
	KeepaliveTime        time.Duration `envconfig:"KEEPALIVE_TIME" default:"120s"`
	KeepaliveTimeout     time.Duration `envconfig:"KEEPALIVE_TIMEOUT" default:"20s"`
	MaxConnectionAge     time.Duration `envconfig:"MAX_CONNECTION_AGE" default:"300s"`
}

// Addr returns the listen address in host:port form.
func (c *DataPlaneConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// Validate performs validation on the DataPlaneConfig.
func (c *DataPlaneConfig) Validate() error {
	if err := validatePort(c.Port, "data plane"); err != nil {
		return err
	}
	return validateHost(c.Host, "data plane")
}
