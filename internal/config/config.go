// Package config loads the runtime configuration: the isolation domains to
// create, event bus sizing, the inspection gateway, lifecycle hook policy,
// and periodic schedule entries.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Domains   []DomainConfig   `json:"domains"`
	Events    EventsConfig     `json:"events"`
	Gateway   GatewayConfig    `json:"gateway"`
	Lifecycle LifecycleConfig  `json:"lifecycle"`
	Schedules []ScheduleConfig `json:"schedules"`
}

// DomainConfig declares an isolation domain to create at startup.
type DomainConfig struct {
	Name string `json:"name"`
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int `json:"buffer_size"`
}

// GatewayConfig holds the inspection HTTP server settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// LifecycleConfig controls how host view-appear events spawn root tasks.
type LifecycleConfig struct {
	// SpawnMode is "detached" (independent root per view event) or
	// "structured" (root whose cancellation follows the view's disappear).
	SpawnMode string `json:"spawn_mode"`
}

// ScheduleConfig declares a periodic detached root spawn.
type ScheduleConfig struct {
	Name        string   `json:"name"`
	Cron        string   `json:"cron,omitempty"`
	IntervalSec int      `json:"interval_sec,omitempty"`
	Domain      string   `json:"domain,omitempty"`
	Sleep       Duration `json:"sleep,omitempty"` // simulated work duration per trigger
	MaxRuns     int      `json:"max_runs,omitempty"`
	CooldownSec int      `json:"cooldown_sec,omitempty"`
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}
