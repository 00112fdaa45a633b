package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultSource is the season 10 lettuce level-4 export the dashboard was built around.
const DefaultSource = "https://data.cyverse.org/dav-anon/iplant/projects/phytooracle/season_10_lettuce_yr_2020/level_4/scanner3DTop/season10_rgb_flir_psii_3d_div.csv"

// Global configuration structure.
type Global struct {
	Source              string `mapstructure:"source" yaml:"source"`
	MissingColumnPolicy string `mapstructure:"missing_column_policy" yaml:"missing_column_policy"`
	// Sheet selects the worksheet for .xlsx sources.
	Sheet string `mapstructure:"sheet" yaml:"sheet,omitempty"`

	// HTTP configuration
	HTTPTimeoutSec int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`

	// Dashboard
	ListenAddr         string   `mapstructure:"listen_addr" yaml:"listen_addr"`
	GalleryDir         string   `mapstructure:"gallery_dir" yaml:"gallery_dir"`
	RefreshIntervalSec int      `mapstructure:"refresh_interval_sec" yaml:"refresh_interval_sec"`
	LowessFrac         float64  `mapstructure:"lowess_frac" yaml:"lowess_frac"`
	DefaultGenotype    string   `mapstructure:"default_genotype" yaml:"default_genotype"`
	Genotypes          []string `mapstructure:"genotypes" yaml:"genotypes"`

	// Object storage (s3:// sources)
	S3Region          string `mapstructure:"s3_region" yaml:"s3_region"`
	S3Endpoint        string `mapstructure:"s3_endpoint" yaml:"s3_endpoint,omitempty"`
	S3PathStyle       bool   `mapstructure:"s3_path_style" yaml:"s3_path_style"`
	S3Anonymous       bool   `mapstructure:"s3_anonymous" yaml:"s3_anonymous"`
	S3AccessKeyID     string `mapstructure:"s3_access_key_id" yaml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `mapstructure:"s3_secret_access_key" yaml:"s3_secret_access_key,omitempty"`
}

// HTTPTimeout is the source fetch timeout.
func (c *Global) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSec) * time.Second
}

// RefreshInterval is the dashboard reload period; zero disables it.
func (c *Global) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSec) * time.Second
}

// DefaultPath is ~/.phenodash/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".phenodash", "config.yaml"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.phenodash/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	// Secrets may be present; keep the file private.
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// LoadDotEnv loads variables from the given .env files (default ./.env)
// without overriding ones already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (applied by the caller) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("PHENODASH")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("source", DefaultSource)
	v.SetDefault("missing_column_policy", "skip")
	v.SetDefault("sheet", "")
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("listen_addr", "127.0.0.1:8501")
	v.SetDefault("gallery_dir", "GIFs")
	v.SetDefault("refresh_interval_sec", 0)
	v.SetDefault("lowess_frac", 1.0)
	v.SetDefault("default_genotype", "Aido")
	v.SetDefault("genotypes", []string{"Aido", "Iceberg", "Xanadu"})
	// S3 defaults
	v.SetDefault("s3_region", "us-east-1")
	v.SetDefault("s3_endpoint", "")
	v.SetDefault("s3_path_style", false)
	v.SetDefault("s3_anonymous", false)
	v.SetDefault("s3_access_key_id", "")
	v.SetDefault("s3_secret_access_key", "")

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(filepath.Dir(p))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		// An explicit --config that cannot be read is an error; a missing default file is not.
		if cfgFile != "" || !errors.As(err, &nf) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.LowessFrac <= 0 || c.LowessFrac > 1 {
		return nil, fmt.Errorf("lowess_frac must be in (0, 1], got %v", c.LowessFrac)
	}
	return &c, nil
}
