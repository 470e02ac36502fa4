package config

import (
	"fmt"
	"time"
)

// ControlPlaneConfig configures the REST API server.
type ControlPlaneConfig struct {
	Port              string        `envconfig:"PORT" default:"8080"`
	Host              string        `envconfig:"HOST" default:"0.0.0.0"`
	ReadTimeout       time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout      time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s"`
	ReadHeaderTimeout time.Duration `envconfig:"READ_HEADER_TIMEOUT" default:"5s"`
	IdleTimeout       time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes    int           `envconfig:"MAX_HEADER_BYTES" default:"524288" validate:"min=1"` // 512KB

	// PropagationTimeout bounds the post-commit steps of order placement
	// (cache invalidation, event publish, dormancy scheduling).
	PropagationTimeout time.Duration `envconfig:"PROPAGATION_TIMEOUT" default:"3s" validate:"gt=0"`

	// TLS
	TLSEnabled bool   `envconfig:"TLS_ENABLED" default:"false"`
	TLSCert    string `envconfig:"TLS_CERT_FILE"`
	TLSKey     string `envconfig:"TLS_KEY_FILE"`
}

// Address returns the listen address in host:port format.
func (c *ControlPlaneConfig) Address() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Validate performs validation on the ControlPlaneConfig.
func (c *ControlPlaneConfig) Validate(environment string) error {
	if err := validatePort(c.Port, "control plane"); err != nil {
		return err
	}

	if err := validateHost(c.Host, "control plane"); err != nil {
		return err
	}

	if environment == EnvironmentProduction && !c.TLSEnabled {
		return fmt.Errorf("TLS must be enabled in production environment")
	}

	if c.TLSEnabled && (c.TLSCert == "" || c.TLSKey == "") {
		return fmt.Errorf("TLS enabled but cert or key file not specified")
	}

	return nil
}
