package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"
)

// SourceConfig describes one calendar to reconcile. Exactly one of URL and
// Path is normally set; URL wins when both are.
type SourceConfig struct {
	// ID is an internal identifier used for output file names and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
	// URL is an ICS subscription endpoint.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`
	// Path is a local ICS file.
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
}

// MergeConfig mirrors reconcile.MergeConfig.
type MergeConfig struct {
	Notes             bool   `yaml:"notes" json:"notes"`
	URLs              bool   `yaml:"urls" json:"urls"`
	Locations         bool   `yaml:"locations" json:"locations"`
	Alarms            bool   `yaml:"alarms" json:"alarms"`
	Attendees         bool   `yaml:"attendees" json:"attendees"`
	Recurrence        bool   `yaml:"recurrence" json:"recurrence"`
	PreferredURL      string `yaml:"preferred_url,omitempty" json:"preferred_url,omitempty"`
	PreferredLocation string `yaml:"preferred_location,omitempty" json:"preferred_location,omitempty"`
}

// ReconcileConfig tunes duplicate detection and the pre-processing the
// runner does before handing a batch to the core.
type ReconcileConfig struct {
	// TitleThreshold is the max case-insensitive edit distance between titles.
	TitleThreshold int `yaml:"title_threshold" json:"title_threshold"`
	// TimeThreshold is the max distance between start times, e.g. "30m".
	TimeThreshold time.Duration `yaml:"time_threshold" json:"time_threshold"`
	// SkipBlankTitles drops untitled events before grouping.
	SkipBlankTitles bool `yaml:"skip_blank_titles" json:"skip_blank_titles"`
	// ConvertReminders turns overdue VTODOs into events.
	ConvertReminders bool `yaml:"convert_reminders" json:"convert_reminders"`

	Merge MergeConfig `yaml:"merge" json:"merge"`
}

// MarshalJSON writes TimeThreshold as a duration string ("30m0s"), the
// same spelling the YAML file uses.
func (r ReconcileConfig) MarshalJSON() ([]byte, error) {
	type plain ReconcileConfig
	return json.Marshal(struct {
		plain
		TimeThreshold string `json:"time_threshold"`
	}{plain(r), r.TimeThreshold.String()})
}

func (r *ReconcileConfig) UnmarshalJSON(b []byte) error {
	type plain ReconcileConfig
	aux := struct {
		*plain
		TimeThreshold string `json:"time_threshold"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if aux.TimeThreshold != "" {
		d, err := time.ParseDuration(aux.TimeThreshold)
		if err != nil {
			return err
		}
		r.TimeThreshold = d
	}
	return nil
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone that floating ICS times are read in and
	// whose wall clock the rescheduler preserves.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is "monday" (default) or "sunday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// RefreshCron schedules periodic passes, e.g. "*/15 * * * *".
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// OutputDir receives one reconciled ICS file per source.
	OutputDir string `yaml:"output_dir" json:"output_dir"`

	// CacheDir holds the HTTP cache for remote sources.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	Sources []SourceConfig `yaml:"sources" json:"sources"`

	Reconcile ReconcileConfig `yaml:"reconcile" json:"reconcile"`

	// BasicAuth, if non-nil, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen         = "127.0.0.1:8080"
	defaultTimezone       = "UTC"
	defaultRefresh        = "0 * * * *"
	defaultOutputDir      = "./var/reconciled"
	defaultCacheDir       = "./var/ics-cache"
	defaultTitleThreshold = 3
	defaultTimeThreshold  = 30 * time.Minute
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      defaultListen,
		Timezone:    defaultTimezone,
		WeekStart:   "monday",
		RefreshCron: defaultRefresh,
		OutputDir:   defaultOutputDir,
		CacheDir:    defaultCacheDir,
		LogLevel:    "info",
		Sources:     []SourceConfig{},
		Reconcile: ReconcileConfig{
			TitleThreshold:   defaultTitleThreshold,
			TimeThreshold:    defaultTimeThreshold,
			SkipBlankTitles:  true,
			ConvertReminders: true,
			Merge: MergeConfig{
				Notes:      true,
				URLs:       true,
				Locations:  true,
				Alarms:     true,
				Attendees:  true,
				Recurrence: true,
			},
		},
	}
}

// Normalize fills in missing/zero values so partially-filled configs still
// behave correctly. Sources without an ID get one derived from their name
// (or URL/path).
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	switch strings.ToLower(c.WeekStart) {
	case "monday", "sunday":
		c.WeekStart = strings.ToLower(c.WeekStart)
	default:
		c.WeekStart = "monday"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefresh
	}
	if c.OutputDir == "" {
		c.OutputDir = defaultOutputDir
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Reconcile.TitleThreshold < 0 {
		c.Reconcile.TitleThreshold = defaultTitleThreshold
	}
	if c.Reconcile.TimeThreshold <= 0 {
		c.Reconcile.TimeThreshold = defaultTimeThreshold
	}
	if c.Sources == nil {
		c.Sources = []SourceConfig{}
	}

	used := make(map[string]int, len(c.Sources))
	for i := range c.Sources {
		src := &c.Sources[i]
		if src.ID == "" {
			src.ID = deriveSourceID(*src)
		}
		// Keep IDs unique; they double as output file names.
		used[src.ID]++
		if n := used[src.ID]; n > 1 {
			src.ID = slug.Make(src.ID + "-" + strconv.Itoa(n))
		}
	}
}

func deriveSourceID(src SourceConfig) string {
	for _, s := range []string{src.Name, src.Path, src.URL} {
		if s == "" {
			continue
		}
		if id := slug.Make(s); id != "" {
			return id
		}
	}
	return "source"
}

// Location resolves Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ApplyEnv overrides selected fields from the environment. Credentials are
// usually supplied this way (or via .env) rather than stored in the file.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("CALRECON_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("CALRECON_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	user := os.Getenv("CALRECON_BASIC_AUTH_USERNAME")
	pass := os.Getenv("CALRECON_BASIC_AUTH_PASSWORD")
	if user != "" && pass != "" {
		c.BasicAuth = &BasicAuthConfig{Username: user, Password: pass}
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is decoded over the defaults (so omitted keys keep
//     their default value, including booleans) and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms,
// creating the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data)
}

// Save is a convenience method that delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

// WriteFileAtomic writes data next to path and renames it into place.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calrecon-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
