package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/cardsync/internal/anki"
	"github.com/starford/cardsync/internal/watcher"
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
	Anki   AnkiConfig        `yaml:"anki"`
	Cards  CardsConfig       `yaml:"cards"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Auth   AuthConfig        `yaml:"auth"`
	Watch  WatchConfig       `yaml:"watch"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.Anki.Validate(); err != nil {
		return err
	}
	if err := c.Cards.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.Watch.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	// LogFile, when set, receives the log instead of the console and is
	// rotated once it grows past LogMaxSizeMB.
	LogFile       string     `yaml:"log_file"`
	LogMaxSizeMB  int        `yaml:"log_max_size_mb"`
	LogMaxBackups int        `yaml:"log_max_backups"`
	HTTP          HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.LogMaxSizeMB, validation.Min(0)),
		validation.Field(&c.LogMaxBackups, validation.Min(0)),
	); err != nil {
		return err
	}
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

// VaultConfig describes the Markdown vault.
type VaultConfig struct {
	Path string `yaml:"path"`
	// TargetFolder is scanned when no folder is given.
	TargetFolder  string `yaml:"target_folder"`
	AssetFolder   string `yaml:"asset_folder"`
	DiagramFolder string `yaml:"diagram_folder"`
	Recursive     bool   `yaml:"recursive"`
	// LockFile guards runs across processes. Defaults to .cardsync.lock in
	// the vault.
	LockFile string `yaml:"lock_file"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.AssetFolder, validation.Required),
		validation.Field(&c.DiagramFolder, validation.Required),
	)
}

// LockPath returns the run lock file.
func (c *VaultConfig) LockPath() string {
	if c.LockFile != "" {
		return c.LockFile
	}
	return filepath.Join(c.Path, ".cardsync.lock")
}

// AnkiConfig holds the AnkiConnect endpoint.
type AnkiConfig struct {
	URL               string        `yaml:"url"`
	Version           int           `yaml:"version"`
	Model             string        `yaml:"model"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

// Validate validates the Anki configuration.
func (c *AnkiConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.URL, validation.Required, is.URL),
		validation.Field(&c.Version, validation.Required, validation.Min(1)),
		validation.Field(&c.Model, validation.Required),
		validation.Field(&c.Timeout, validation.Min(0)),
		validation.Field(&c.RequestsPerSecond, validation.Min(0.0)),
		validation.Field(&c.Burst, validation.Min(0)),
	)
}

// Client returns the client configuration.
func (c *AnkiConfig) Client() anki.Config {
	return anki.Config{
		URL:               c.URL,
		Version:           c.Version,
		Model:             c.Model,
		Timeout:           c.Timeout,
		RequestsPerSecond: c.RequestsPerSecond,
		Burst:             c.Burst,
	}
}

// CardsConfig controls how documents become cards.
type CardsConfig struct {
	DefaultDeck string   `yaml:"default_deck"`
	ExcludeTags []string `yaml:"exclude_tags"`
	IgnoreTags  []string `yaml:"ignore_tags"`
	// ExclusionPattern is a regular expression removed from every body.
	ExclusionPattern    string `yaml:"exclusion_pattern"`
	DiagramSupport      bool   `yaml:"diagram_support"`
	AbortOnMediaFailure bool   `yaml:"abort_on_media_failure"`
	SkipUnchanged       bool   `yaml:"skip_unchanged"`
	SanitizeHTML        bool   `yaml:"sanitize_html"`
}

// Validate validates the cards configuration.
func (c *CardsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DefaultDeck, validation.Required),
		validation.Field(&c.ExclusionPattern, validation.By(compiles)),
	)
}

// Pattern compiles ExclusionPattern. It returns nil when none is set.
func (c *CardsConfig) Pattern() (*regexp.Regexp, error) {
	if c.ExclusionPattern == "" {
		return nil, nil
	}
	return regexp.Compile(c.ExclusionPattern)
}

func compiles(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := regexp.Compile(s); err != nil {
		return errors.New("must be a valid regular expression")
	}
	return nil
}

// SQLiteConfig holds the sync ledger database configuration.
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
	// Normalise empty mode to "disabled".
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

// WatchConfig controls the file watcher.
type WatchConfig struct {
	// Enabled runs the watcher alongside the HTTP server.
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(0)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel:      slog.LevelInfo,
			LogMaxSizeMB:  10,
			LogMaxBackups: 3,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path:          "./vault",
			AssetFolder:   "attachments",
			DiagramFolder: "Excalidraw",
			Recursive:     true,
		},
		Anki: AnkiConfig{
			URL:     anki.DefaultURL,
			Version: anki.DefaultVersion,
			Model:   anki.DefaultModel,
			Timeout: anki.DefaultTimeout,
		},
		Cards: CardsConfig{
			DefaultDeck: "Default",
		},
		SQLite: SQLiteConfig{
			Path: "./cardsync.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Watch: WatchConfig{
			Debounce: watcher.DefaultDebounce,
		},
	}
}
