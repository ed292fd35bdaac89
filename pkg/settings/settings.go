// Package settings manages the routevnf configuration file.
package settings

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/newtron-network/routevnf/pkg/controller"
	"github.com/newtron-network/routevnf/pkg/util"
)

// Defaults used when a value is not configured.
const (
	DefaultBaseURL         = controller.DefaultBaseURL
	DefaultUsername        = "onos"
	DefaultPassword        = "rocks"
	DefaultSettleDelay     = time.Second
	DefaultRestartDelay    = 2 * time.Second
	DefaultMaxRestartDelay = 30 * time.Second
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ROUTEVNF_"

// Settings holds the routevnf configuration
type Settings struct {
	Controller Controller `yaml:"controller"`

	// SettleDelay is how long to listen for events before fetching the
	// topology snapshot.
	SettleDelay time.Duration `yaml:"settle_delay,omitempty"`

	// RestartDelay and MaxRestartDelay bound the supervisor's backoff.
	RestartDelay    time.Duration `yaml:"restart_delay,omitempty"`
	MaxRestartDelay time.Duration `yaml:"max_restart_delay,omitempty"`

	// MetricsAddr enables the status listener when set (e.g. ":9090").
	MetricsAddr string `yaml:"metrics_addr,omitempty"`

	// AuditLog is the path of the JSON-lines audit log. Empty disables it.
	AuditLog string `yaml:"audit_log,omitempty"`

	// StateDB enables route export to Redis when set.
	StateDB *StateDB `yaml:"statedb,omitempty"`

	// Access restricts operator commands when set.
	Access *Access `yaml:"access,omitempty"`

	Debug bool `yaml:"debug,omitempty"`
}

// Controller is how to reach the controller's routing application.
type Controller struct {
	BaseURL  string `yaml:"base_url,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// StateDB is the Redis database routes are exported to.
type StateDB struct {
	Addr     string `yaml:"addr"`
	DB       int    `yaml:"db,omitempty"`
	Password string `yaml:"password,omitempty"`

	// SSH reaches Redis through a tunnel when set.
	SSH *SSH `yaml:"ssh,omitempty"`
}

// Access maps permissions to the users and groups holding them.
type Access struct {
	SuperUsers  []string            `yaml:"super_users,omitempty"`
	UserGroups  map[string][]string `yaml:"user_groups,omitempty"`
	Permissions map[string][]string `yaml:"permissions,omitempty"`
}

// SSH holds tunnel credentials.
type SSH struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port,omitempty"`
	User     string `yaml:"user"`
	Password string `yaml:"password,omitempty"`
}

// DefaultSettingsPath returns the default path for the settings file
func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "routevnf.yaml"
	}
	return filepath.Join(home, ".routevnf", "config.yaml")
}

// Load reads settings from the default location
func Load() (*Settings, error) {
	return LoadFrom(DefaultSettingsPath())
}

// LoadFrom reads settings from a specific path. A missing file yields
// empty settings.
func LoadFrom(path string) (*Settings, error) {
	s := &Settings{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading settings file: %w", err)
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing settings YAML: %w", err)
	}

	return s, nil
}

// SaveTo writes settings to a specific path
func (s *Settings) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// ApplyEnv overrides settings from ROUTEVNF_* variables found by lookup
// (usually os.LookupEnv).
func (s *Settings) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		return v, ok && v != ""
	}
	duration := func(name string, dst *time.Duration) error {
		if v, ok := get(name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = d
		}
		return nil
	}

	if v, ok := get("BASE_URL"); ok {
		s.Controller.BaseURL = v
	}
	if v, ok := get("USERNAME"); ok {
		s.Controller.Username = v
	}
	if v, ok := get("PASSWORD"); ok {
		s.Controller.Password = v
	}
	if v, ok := get("METRICS_ADDR"); ok {
		s.MetricsAddr = v
	}
	if v, ok := get("AUDIT_LOG"); ok {
		s.AuditLog = v
	}
	if v, ok := get("REDIS_ADDR"); ok {
		if s.StateDB == nil {
			s.StateDB = &StateDB{}
		}
		s.StateDB.Addr = v
	}
	if v, ok := get("DEBUG"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sDEBUG: %w", EnvPrefix, err)
		}
		s.Debug = b
	}
	if err := duration("SETTLE_DELAY", &s.SettleDelay); err != nil {
		return err
	}
	if err := duration("RESTART_DELAY", &s.RestartDelay); err != nil {
		return err
	}
	return duration("MAX_RESTART_DELAY", &s.MaxRestartDelay)
}

// Validate checks the effective settings.
func (s *Settings) Validate() error {
	v := &util.ValidationBuilder{}

	if u, err := url.Parse(s.GetBaseURL()); err != nil {
		v.AddErrorf("controller.base_url: %v", err)
	} else {
		v.Add(u.Scheme == "http" || u.Scheme == "https", "controller.base_url must be an http or https URL")
		v.Add(u.Host != "", "controller.base_url must name a host")
	}
	v.Add(s.SettleDelay >= 0, "settle_delay must not be negative")
	v.Add(s.RestartDelay >= 0, "restart_delay must not be negative")
	v.Add(s.GetMaxRestartDelay() >= s.GetRestartDelay(), "max_restart_delay must not be below restart_delay")

	if db := s.StateDB; db != nil {
		v.Add(db.Addr != "", "statedb.addr is required")
		v.Add(db.DB >= 0 && db.DB <= 15, "statedb.db must be between 0 and 15")
		if db.SSH != nil {
			v.Add(db.SSH.Host != "", "statedb.ssh.host is required")
			v.Add(db.SSH.User != "", "statedb.ssh.user is required")
		}
	}

	return v.Build()
}

// GetBaseURL returns the controller URL (with fallback)
func (s *Settings) GetBaseURL() string {
	if s.Controller.BaseURL != "" {
		return s.Controller.BaseURL
	}
	return DefaultBaseURL
}

// GetUsername returns the controller user (with fallback)
func (s *Settings) GetUsername() string {
	if s.Controller.Username != "" {
		return s.Controller.Username
	}
	return DefaultUsername
}

// GetPassword returns the controller password (with fallback)
func (s *Settings) GetPassword() string {
	if s.Controller.Password != "" {
		return s.Controller.Password
	}
	return DefaultPassword
}

// GetSettleDelay returns the settle delay (with fallback)
func (s *Settings) GetSettleDelay() time.Duration {
	if s.SettleDelay > 0 {
		return s.SettleDelay
	}
	return DefaultSettleDelay
}

// GetRestartDelay returns the first restart delay (with fallback)
func (s *Settings) GetRestartDelay() time.Duration {
	if s.RestartDelay > 0 {
		return s.RestartDelay
	}
	return DefaultRestartDelay
}

// GetMaxRestartDelay returns the restart delay cap (with fallback)
func (s *Settings) GetMaxRestartDelay() time.Duration {
	if s.MaxRestartDelay > 0 {
		return s.MaxRestartDelay
	}
	return DefaultMaxRestartDelay
}

// SSHPort returns the tunnel port (with fallback)
func (h *SSH) SSHPort() int {
	if h.Port > 0 {
		return h.Port
	}
	return 22
}
