package config

import (
	"fmt"
	"time"
)

// DormancyConfig configures the deferred per-order dormancy re-check.
type DormancyConfig struct {
	// Horizon is the delay between an order and its dormancy check (14 days in production).
	Horizon time.Duration `envconfig:"HORIZON" default:"336h" validate:"gt=0"`
}

// Validate checks the horizon against the granularity of day-based segment rules.
func (c *DormancyConfig) Validate() error {
	if c.Horizon < time.Minute {
		return fmt.Errorf("dormancy horizon must be at least 1m, got %s", c.Horizon)
	}
	return nil
}

// SweeperConfig configures the periodic sweep over dormant users.
type SweeperConfig struct {
	Enabled     bool          `envconfig:"ENABLED" default:"true"`
	Interval    time.Duration `envconfig:"INTERVAL" default:"1h" validate:"gt=0"`
	Concurrency int           `envconfig:"CONCURRENCY" default:"8" validate:"min=1,max=256"`

	// BatchLimit caps the number of users handled per cycle (0 = no limit).
	BatchLimit int `envconfig:"BATCH_LIMIT" default:"0" validate:"min=0"`
}

// ConsumerConfig configures the order event consumer (Redis Streams consumer group).
type ConsumerConfig struct {
	Enabled bool   `envconfig:"ENABLED" default:"true"`
	Stream  string `envconfig:"STREAM" default:"order_placed" validate:"required"`
	Group   string `envconfig:"GROUP" default:"segmentation-group-v2" validate:"required"`

	// Name identifies this consumer inside the group. Defaults to the hostname.
	Name string `envconfig:"NAME"`

	BatchSize    int64         `envconfig:"BATCH_SIZE" default:"32" validate:"min=1"`
	BlockTimeout time.Duration `envconfig:"BLOCK_TIMEOUT" default:"5s" validate:"gt=0"`

	// ClaimMinIdle is how long a delivered but unacknowledged message stays with
	// its consumer before another consumer may claim it for redelivery.
	ClaimMinIdle time.Duration `envconfig:"CLAIM_MIN_IDLE" default:"1m" validate:"gt=0"`

	// MaxLen bounds the stream length (approximate trimming on publish).
	MaxLen int64 `envconfig:"MAX_LEN" default:"1000000" validate:"min=1"`
}

// SchedulerConfig configures the durable delayed-job runner.
type SchedulerConfig struct {
	Enabled      bool          `envconfig:"ENABLED" default:"true"`
	KeyPrefix    string        `envconfig:"KEY_PREFIX" default:"daffodil:jobs"`
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"1s" validate:"gt=0"`
	BatchSize    int           `envconfig:"BATCH_SIZE" default:"50" validate:"min=1"`

	// Lease is how long a claimed job may run before it is considered abandoned and requeued.
	Lease time.Duration `envconfig:"LEASE" default:"5m" validate:"gt=0"`

	// RetryDelay is the backoff applied to a job whose handler failed.
	RetryDelay time.Duration `envconfig:"RETRY_DELAY" default:"1m" validate:"gt=0"`

	// MisfireGrace bounds how late a job may still fire. Older jobs are dropped.
	MisfireGrace time.Duration `envconfig:"MISFIRE_GRACE" default:"24h" validate:"gt=0"`
}

// Validate checks cross-field constraints.
func (c *SchedulerConfig) Validate() error {
	if err := validateNoWhitespace(c.KeyPrefix, "scheduler key prefix"); err != nil {
		return err
	}
	if c.Lease <= c.PollInterval {
		return fmt.Errorf("scheduler lease (%s) must be longer than poll_interval (%s)", c.Lease, c.PollInterval)
	}
	return nil
}
