package admission

import (
	"fmt"
	"time"
)

// Config holds tunables for the admission engine. Zero values fall back to
// the platform defaults, which match the behavior producers already rely on.
type Config struct {
	// DefaultMaxConcurrent is the viewer limit applied when an event has no
	// explicit max_concurrent_viewers setting.
	// Default: 2
	DefaultMaxConcurrent int

	// HeartbeatTimeout is how long a session may go without a heartbeat
	// before the bulk reaper treats it as stale. Point-in-time validation
	// allows twice this before declaring inactivity, so an occasional missed
	// heartbeat does not flap a healthy viewer.
	// Default: 15s
	HeartbeatTimeout time.Duration

	// SessionTTL is the advisory expiry returned with a fresh token. It is
	// metadata for the caller; continued access depends on heartbeats, not
	// this value.
	// Default: 30m
	SessionTTL time.Duration
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.DefaultMaxConcurrent < 0 {
		return fmt.Errorf("default max concurrent must not be negative")
	}
	if c.HeartbeatTimeout < 0 {
		return fmt.Errorf("heartbeat timeout must not be negative")
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("session TTL must not be negative")
	}
	return nil
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *Config) ApplyDefaults() {
	if c.DefaultMaxConcurrent == 0 {
		c.DefaultMaxConcurrent = 2
	}
	if c.HeartbeatTimeout == 0 {
		c.HeartbeatTimeout = 15 * time.Second
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = 30 * time.Minute
	}
}

// graceWindow is the staleness allowance for point-in-time validation.
func (c *Config) graceWindow() time.Duration {
	return 2 * c.HeartbeatTimeout
}
