package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/tasksync/internal/notion"
	"github.com/starford/tasksync/internal/status"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Vault  VaultConfig       `yaml:"vault"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Auth   AuthConfig        `yaml:"auth"`
	Notion NotionConfig      `yaml:"notion"`
	Sync   SyncConfig        `yaml:"sync"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Notion.Validate(); err != nil {
		return err
	}
	return c.Sync.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig holds the path to the Markdown vault directory.
type VaultConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NotionConfig holds the remote database connection.
type NotionConfig struct {
	Token      string           `yaml:"token"`
	DatabaseID string           `yaml:"database_id"`
	BaseURL    string           `yaml:"base_url"`
	APIVersion string           `yaml:"api_version"`
	Properties PropertiesConfig `yaml:"properties"`
	// Timeout bounds each API request.
	Timeout time.Duration `yaml:"timeout"`
	// Tags are written to the multi-select tags property of created pages.
	Tags []string `yaml:"tags"`
}

// PropertiesConfig names the database columns.
type PropertiesConfig struct {
	Title  string `yaml:"title"`
	Status string `yaml:"status"`
	Tags   string `yaml:"tags"`
}

// Validate validates the Notion configuration.
func (c *NotionConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Token, validation.Required),
		validation.Field(&c.DatabaseID, validation.Required),
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.APIVersion, validation.Required),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
	); err != nil {
		return fmt.Errorf("notion: %w", err)
	}
	if err := validation.ValidateStruct(&c.Properties,
		validation.Field(&c.Properties.Title, validation.Required),
		validation.Field(&c.Properties.Status, validation.Required),
	); err != nil {
		return fmt.Errorf("notion: properties: %w", err)
	}
	return nil
}

// ClientConfig converts the section into a client configuration.
func (c *NotionConfig) ClientConfig() notion.Config {
	return notion.Config{
		Token:      c.Token,
		DatabaseID: c.DatabaseID,
		BaseURL:    c.BaseURL,
		Version:    c.APIVersion,
		Properties: notion.Properties{
			Title:  c.Properties.Title,
			Status: c.Properties.Status,
			Tags:   c.Properties.Tags,
		},
		Tags:    c.Tags,
		Timeout: c.Timeout,
	}
}

// SyncConfig controls the reconciliation engine and its scheduler.
type SyncConfig struct {
	// Interval between bulk scans. Zero disables the scheduler.
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
	SyncContent bool          `yaml:"sync_content"`
	// StatusMap maps remote status names to "open" or "closed".
	StatusMap     map[string]string `yaml:"status_map"`
	DoneStatus    string            `yaml:"done_status"`
	InitialStatus string            `yaml:"initial_status"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Interval, validation.Min(time.Duration(0))),
		validation.Field(&c.Concurrency, validation.Required, validation.Min(1), validation.Max(64)),
		validation.Field(&c.StatusMap, validation.Each(validation.In(string(status.Open), string(status.Closed)))),
	); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if len(c.StatusMap) == 0 {
		return nil
	}
	if c.DoneStatus != "" && c.StatusMap[c.DoneStatus] != string(status.Closed) {
		return fmt.Errorf("sync: done_status %q must map to %q", c.DoneStatus, status.Closed)
	}
	if c.InitialStatus != "" && c.StatusMap[c.InitialStatus] != string(status.Open) {
		return fmt.Errorf("sync: initial_status %q must map to %q", c.InitialStatus, status.Open)
	}
	return nil
}

// Mapper builds the status mapper described by the section.
func (c *SyncConfig) Mapper() *status.Mapper {
	table := make(map[string]status.Local, len(c.StatusMap))
	for remote, local := range c.StatusMap {
		table[remote] = status.Local(local)
	}
	return status.New(table, c.DoneStatus, c.InitialStatus)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path: "./vault",
		},
		SQLite: SQLiteConfig{
			Path: "./tasksync.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Notion: NotionConfig{
			BaseURL:    notion.DefaultBaseURL,
			APIVersion: notion.DefaultVersion,
			Timeout:    notion.DefaultTimeout,
			Properties: PropertiesConfig{
				Title:  "Name",
				Status: "Status",
				Tags:   "Tags",
			},
		},
		Sync: SyncConfig{
			Interval:    5 * time.Minute,
			Concurrency: 4,
		},
	}
}
