package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the importer looks for its configuration when no
// --config flag is given.
const DefaultPath = "config.yaml"

var (
	// ErrMissing indicates no configuration file exists and the default
	// template could not be written either.
	ErrMissing = errors.New("configuration file missing")

	// ErrCredentialMissing indicates a required secret is absent and could
	// not be obtained interactively.
	ErrCredentialMissing = errors.New("required credential missing")
)

// Duration is a time.Duration that reads and writes YAML as a human form
// like "24h" or "90s". Plain integers are accepted as nanoseconds.
type Duration time.Duration

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("parse duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}
	return fmt.Errorf("invalid duration value: %s", value.Value)
}

// SearchDefinition maps one organization name to its ordered keyword tokens.
// An all-digit token is an exact ASN match; anything else is a
// case-insensitive substring match against the dataset's organization
// description. Definitions are carried as a sequence so that the declaration
// order in the file is the processing order.
type SearchDefinition struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// MaxMindConfig holds the dataset source settings.
type MaxMindConfig struct {
	LicenseKey string `yaml:"license_key"`
	VersionURL string `yaml:"version_url"`
	DatasetURL string `yaml:"dataset_url"`
}

// StealthwatchConfig holds the remote SMC connection settings.
type StealthwatchConfig struct {
	Address     string `yaml:"address"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TenantID    int    `yaml:"tenant_id"`
	ParentTagID int    `yaml:"parent_tag_id"`
	InsecureTLS bool   `yaml:"insecure_tls"`
}

// HTTPConfig holds transport settings shared by the dataset fetcher and the
// Stealthwatch client.
type HTTPConfig struct {
	Timeout    Duration `yaml:"timeout"`
	HTTPProxy  string   `yaml:"http_proxy"`
	HTTPSProxy string   `yaml:"https_proxy"`
}

// Config is the importer's configuration plus its persisted run-state. It is
// constructed once in the CLI and threaded explicitly through the
// orchestrator; there is no ambient global configuration object.
type Config struct {
	MaxMind      MaxMindConfig      `yaml:"maxmind"`
	Stealthwatch StealthwatchConfig `yaml:"stealthwatch"`
	HTTP         HTTPConfig         `yaml:"http"`

	// Searches are processed in declaration order.
	Searches []SearchDefinition `yaml:"searches"`

	// MergeRanges deduplicates and merges each organization's CIDRs before
	// upload. Off by default: the raw dataset can match the same range
	// through several keywords, and the historical behavior keeps every
	// occurrence.
	MergeRanges bool `yaml:"merge_ranges"`

	// Interval is the daemon-mode sleep between cycles.
	Interval Duration `yaml:"interval"`

	// LastVersionImported is run-state: the dataset version of the last
	// fully completed import. Only advanced after a whole cycle succeeds.
	LastVersionImported string `yaml:"last_version_imported"`

	// path the config was loaded from, so Save can write back.
	path string
}

// DefaultConfig returns the template configuration written on first run.
func DefaultConfig() *Config {
	return &Config{
		MaxMind: MaxMindConfig{
			VersionURL: "https://download.maxmind.com/app/geoip_download?edition_id=GeoLite2-ASN-CSV&suffix=zip.md5",
			DatasetURL: "https://download.maxmind.com/app/geoip_download?edition_id=GeoLite2-ASN-CSV&suffix=zip",
		},
		HTTP: HTTPConfig{
			Timeout: Duration(5 * time.Minute),
		},
		Searches: []SearchDefinition{
			{Name: "MaxMind Example", Keywords: []string{"64500", "example"}},
		},
		Interval: Duration(24 * time.Hour),
	}
}

// Load reads the configuration from path. When the file does not exist it
// writes the default template and reads again; if the file is still absent
// the bootstrap failed and ErrMissing is returned. Exactly two attempts,
// never more.
func Load(path string) (*Config, error) {
	for attempt := 0; attempt < 2; attempt++ {
		cfg, err := read(path)
		if err == nil {
			cfg.path = path
			return cfg, nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		if attempt == 0 {
			if werr := DefaultConfig().write(path); werr != nil {
				return nil, fmt.Errorf("%w: cannot write template %s: %v", ErrMissing, path, werr)
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrMissing, path)
}

func read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return &cfg, nil
}

// Save persists the configuration and run-state back to the file it was
// loaded from. The write goes through a temp file in the same directory so a
// crash mid-write never truncates the existing config.
func (c *Config) Save() error {
	if c.path == "" {
		c.path = DefaultPath
	}
	return c.write(c.path)
}

func (c *Config) write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// Path returns the file the configuration was loaded from.
func (c *Config) Path() string {
	if c.path == "" {
		return DefaultPath
	}
	return c.path
}

// SetPath overrides where Save writes. Used when a Config is built in memory
// rather than loaded from disk.
func (c *Config) SetPath(path string) { c.path = path }

// Validate checks the fields every run needs regardless of interactivity.
func (c *Config) Validate() error {
	if c.MaxMind.LicenseKey == "" {
		return fmt.Errorf("%w: maxmind license key (free, register at maxmind.com)", ErrCredentialMissing)
	}
	if c.MaxMind.VersionURL == "" || c.MaxMind.DatasetURL == "" {
		return errors.New("maxmind version_url and dataset_url must be set")
	}
	if len(c.Searches) == 0 {
		return errors.New("no search definitions configured")
	}
	return nil
}

// Redacted returns a copy safe for display: secrets are masked, run-state and
// everything else is kept.
func (c *Config) Redacted() *Config {
	out := *c
	if out.MaxMind.LicenseKey != "" {
		out.MaxMind.LicenseKey = "<redacted>"
	}
	if out.Stealthwatch.Password != "" {
		out.Stealthwatch.Password = "<redacted>"
	}
	return &out
}
