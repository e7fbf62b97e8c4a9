package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"pushherd/internal/broadcast"
)

// Config is the full process configuration.
//
// Accepted on disk as YAML or JSON; YAML is coerced to JSON and decoded
// strictly, so unknown keys are rejected in both formats.
type Config struct {
	VAPID     VAPIDConfig      `json:"vapid"`
	Push      PushConfig       `json:"push"`
	Storage   StorageConfig    `json:"storage"`
	Broadcast BroadcastConfig  `json:"broadcast"`
	HTTP      HTTPConfig       `json:"http"`
	Logging   LoggingConfig    `json:"logging"`
	Alert     *AlertConfig     `json:"alert,omitempty"`
	Pprof     PprofConfig      `json:"pprof,omitempty"`
	Schedules []ScheduleConfig `json:"schedules,omitempty"`
}

// VAPIDConfig carries the application server keys for the Web Push
// protocol. The dispatcher receives these explicitly; nothing reads
// them from ambient globals.
type VAPIDConfig struct {
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
	// Subscriber is the contact URI sent to push services (mailto: or https:).
	Subscriber string `json:"subscriber"`
}

// PushConfig controls the payload shown by the browser and transport knobs.
type PushConfig struct {
	Icon  string `json:"icon,omitempty"`
	Badge string `json:"badge,omitempty"`
	// TTL is how long (seconds) the push service may retain an undelivered
	// message. 0 lets the transport pick its default.
	TTL int `json:"ttl,omitempty"`
	// Timeout is a Go duration string bounding one delivery attempt.
	Timeout string `json:"timeout,omitempty"`
}

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// BroadcastConfig bounds fan-out during a dispatch.
//
// Defaults (when fields are omitted/zero):
//   - workers: 4
//   - rate_per_sec: 10
type BroadcastConfig struct {
	Workers    int `json:"workers,omitempty"`
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type HTTPConfig struct {
	Addr string `json:"addr,omitempty"`
}

type LoggingConfig struct {
	Level   string         `json:"level,omitempty"`
	Console *bool          `json:"console,omitempty"`
	File    LogFileConfig  `json:"file,omitempty"`
	Alert   LogAlertConfig `json:"alert,omitempty"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// LogAlertConfig forwards WARN+ log records to the admin notifier.
type LogAlertConfig struct {
	Enabled    bool   `json:"enabled,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// AlertConfig configures the Telegram admin notifier used by the log
// alert sink and the scheduler failure reports.
type AlertConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
}

type PprofConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Address string `json:"address,omitempty"`
}

// ScheduleConfig is one recurring broadcast.
type ScheduleConfig struct {
	Name   string `json:"name"`
	Spec   string `json:"spec"` // cron expression, e.g. "0 9 * * MON"
	Title  string `json:"title"`
	Body   string `json:"body"`
	URL    string `json:"url,omitempty"`
	Filter string `json:"filter,omitempty"` // all|free|premium, default all
}

// Validate checks cross-field invariants that the strict decoder cannot.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.VAPID.PublicKey) == "" || strings.TrimSpace(c.VAPID.PrivateKey) == "" {
		return errors.New("vapid: public_key and private_key are required")
	}
	if sub := strings.TrimSpace(c.VAPID.Subscriber); sub != "" {
		if !strings.HasPrefix(sub, "mailto:") && !strings.HasPrefix(sub, "https://") {
			return fmt.Errorf("vapid.subscriber: must be a mailto: or https: URI, got %q", sub)
		}
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("push.timeout", c.Push.Timeout); err != nil {
		return err
	}
	if c.Broadcast.Workers < 0 || c.Broadcast.Workers > 64 {
		return fmt.Errorf("broadcast.workers: must be 0..64, got %d", c.Broadcast.Workers)
	}
	if c.Broadcast.RatePerSec < 0 {
		return fmt.Errorf("broadcast.rate_per_sec: must be >= 0, got %d", c.Broadcast.RatePerSec)
	}
	if c.Logging.Alert.Enabled && c.Alert == nil {
		return errors.New("logging.alert: enabled but no alert block configured")
	}
	if c.Alert != nil {
		if strings.TrimSpace(c.Alert.Token) == "" || c.Alert.ChatID == 0 {
			return errors.New("alert: token and chat_id are required")
		}
	}
	for i, s := range c.Schedules {
		if err := s.validate(); err != nil {
			return fmt.Errorf("schedules[%d]: %w", i, err)
		}
	}
	return nil
}

func (s ScheduleConfig) validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("name is required")
	}
	if strings.TrimSpace(s.Spec) == "" {
		return errors.New("spec is required")
	}
	if _, err := s.Message(); err != nil {
		return err
	}
	return nil
}

// Message builds the validated broadcast message for this schedule entry.
func (s ScheduleConfig) Message() (broadcast.Message, error) {
	return broadcast.NewMessage(s.Title, s.Body, s.URL, s.Filter)
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
