package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models jorf.yml.
type Config struct {
	Organization struct {
		FacilitiesDepartment   string `yaml:"facilities_department"`
		CoordinatorTitlePrefix string `yaml:"coordinator_title_prefix"`
		MinAccessPosition      int    `yaml:"min_access_position"`
		RequestorPosition      int    `yaml:"requestor_position"`
	} `yaml:"organization"`
	Requests struct {
		IDPrefix               string `yaml:"id_prefix"`
		CriticalPendingMinutes int    `yaml:"critical_pending_minutes"`
		PageSize               int    `yaml:"page_size"`
		LogPageSize            int    `yaml:"log_page_size"`
		MaxAttachmentBytes     int64  `yaml:"max_attachment_bytes"`
	} `yaml:"requests"`
	Notifications struct {
		Webhook              WebhookConfig `yaml:"webhook"`
		RetryIntervalSeconds int           `yaml:"retry_interval_seconds"`
		RetryBatch           int           `yaml:"retry_batch"`
		MaxAttempts          int           `yaml:"max_attempts"`
	} `yaml:"notifications"`
	// Webhooks receive audit log entries as they are appended.
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Active reports whether the hook should be used.
func (w WebhookConfig) Active() bool {
	if w.Enabled != nil && !*w.Enabled {
		return false
	}
	return strings.TrimSpace(w.URL) != ""
}

func (w WebhookConfig) Timeout() time.Duration {
	if w.TimeoutSeconds > 0 {
		return time.Duration(w.TimeoutSeconds) * time.Second
	}
	return 5 * time.Second
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with jorf config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOrDefault returns the workspace config, or defaults when no file exists.
func LoadOrDefault(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Organization.FacilitiesDepartment) == "" {
		return fmt.Errorf("config.organization.facilities_department is required")
	}
	if strings.TrimSpace(c.Organization.CoordinatorTitlePrefix) == "" {
		return fmt.Errorf("config.organization.coordinator_title_prefix is required")
	}
	if c.Organization.MinAccessPosition < 0 {
		return fmt.Errorf("config.organization.min_access_position must be >= 0")
	}
	if c.Organization.RequestorPosition <= 0 {
		return fmt.Errorf("config.organization.requestor_position must be > 0")
	}
	prefix := strings.TrimSpace(c.Requests.IDPrefix)
	if prefix == "" {
		return fmt.Errorf("config.requests.id_prefix is required")
	}
	if strings.ContainsAny(prefix, " %_") {
		return fmt.Errorf("config.requests.id_prefix must not contain spaces or SQL wildcards")
	}
	if c.Requests.CriticalPendingMinutes < 0 {
		return fmt.Errorf("config.requests.critical_pending_minutes must be >= 0")
	}
	if c.Requests.PageSize < 0 || c.Requests.PageSize > 200 {
		return fmt.Errorf("config.requests.page_size must be between 0 and 200")
	}
	if c.Requests.LogPageSize < 0 {
		return fmt.Errorf("config.requests.log_page_size must be >= 0")
	}
	if c.Notifications.MaxAttempts < 0 {
		return fmt.Errorf("config.notifications.max_attempts must be >= 0")
	}
	if c.Notifications.RetryIntervalSeconds < 0 {
		return fmt.Errorf("config.notifications.retry_interval_seconds must be >= 0")
	}
	if err := validateWebhook("config.notifications.webhook", c.Notifications.Webhook, true); err != nil {
		return err
	}
	for i, hook := range c.Webhooks {
		if err := validateWebhook(fmt.Sprintf("config.webhooks[%d]", i), hook, false); err != nil {
			return err
		}
	}
	return nil
}

func validateWebhook(field string, hook WebhookConfig, optional bool) error {
	url := strings.TrimSpace(hook.URL)
	if url == "" {
		if optional {
			return nil
		}
		return fmt.Errorf("%s.url is required", field)
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return fmt.Errorf("%s.url must be http(s)", field)
	}
	if hook.TimeoutSeconds < 0 {
		return fmt.Errorf("%s.timeout_seconds must be >= 0", field)
	}
	for _, evt := range hook.Events {
		if strings.TrimSpace(evt) == "" {
			return fmt.Errorf("%s.events contains an empty entry", field)
		}
	}
	return nil
}

// CriticalAfter is how long a request may stay Pending before it is flagged.
func (c *Config) CriticalAfter() time.Duration {
	return time.Duration(c.Requests.CriticalPendingMinutes) * time.Minute
}

func (c *Config) PageSize() int {
	if c.Requests.PageSize <= 0 {
		return 10
	}
	return c.Requests.PageSize
}

func (c *Config) LogPageSize() int {
	if c.Requests.LogPageSize <= 0 {
		return 5
	}
	return c.Requests.LogPageSize
}

func (c *Config) RetryInterval() time.Duration {
	if c.Notifications.RetryIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Notifications.RetryIntervalSeconds) * time.Second
}

func (c *Config) MaxAttempts() int {
	if c.Notifications.MaxAttempts <= 0 {
		return 5
	}
	return c.Notifications.MaxAttempts
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "jorf.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config template: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `organization:
  # Department name that marks facilities staff (substring match).
  facilities_department: Facilities
  # Facilities staff whose job title starts with this prefix coordinate requests.
  coordinator_title_prefix: Facility Engineer
  # Employees below this position need an allow-list entry to sign in.
  min_access_position: 2
  # Employees at exactly this position may submit requests.
  requestor_position: 2

requests:
  id_prefix: JORF
  critical_pending_minutes: 30
  page_size: 10
  log_page_size: 5
  max_attachment_bytes: 10485760

notifications:
  webhook:
    url: ""
    secret: ""
    timeout_seconds: 5
  retry_interval_seconds: 30
  retry_batch: 100
  max_attempts: 5

webhooks: []
`
