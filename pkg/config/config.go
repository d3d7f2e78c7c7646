package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/ethpandaops/fuzzsync/pkg/fsutil"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// EnvPrefix is the prefix for environment variable overrides,
	// e.g. FUZZSYNC_FILESTORE_S3_BUCKET.
	EnvPrefix = "FUZZSYNC"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultSanitizer is the sanitizer used when none is configured.
	DefaultSanitizer = "address"

	// DefaultWorkspace is the default workspace root.
	DefaultWorkspace = "./workspace"

	// DefaultFilestorePrefix is the default key prefix inside a filestore.
	DefaultFilestorePrefix = "fuzzsync"

	// DefaultPublicBaseURL is the base URL of the public object storage.
	DefaultPublicBaseURL = "https://storage.googleapis.com"

	// DefaultBuildsBucket holds the public project builds.
	DefaultBuildsBucket = "clusterfuzz-builds"

	// DefaultCoverageBucket holds the public project coverage reports.
	DefaultCoverageBucket = "oss-fuzz-coverage"

	// DefaultHTTPTimeout bounds a single HTTP transfer.
	DefaultHTTPTimeout = "30m"

	// DefaultExtractConcurrency is the number of zip entries extracted in parallel.
	DefaultExtractConcurrency = 4
)

// Filestore kinds.
const (
	FilestoreNone       = "none"
	FilestoreS3         = "s3"
	FilestoreMinio      = "minio"
	FilestoreFilesystem = "filesystem"
)

// Config is the root configuration for a fuzzsync job.
type Config struct {
	// Platform is resolved from PlatformName or derived from CISystem and
	// ProjectName when loading.
	Platform Platform `yaml:"-" mapstructure:"-"`

	PlatformName   string          `yaml:"platform,omitempty" mapstructure:"platform"`
	CISystem       string          `yaml:"ci_system,omitempty" mapstructure:"ci_system"`
	Sanitizer      string          `yaml:"sanitizer" mapstructure:"sanitizer"`
	ProjectName    string          `yaml:"project_name,omitempty" mapstructure:"project_name"`
	Workspace      string          `yaml:"workspace" mapstructure:"workspace"`
	WorkspaceOwner string          `yaml:"workspace_owner,omitempty" mapstructure:"workspace_owner"`
	LogLevel       string          `yaml:"log_level" mapstructure:"log_level"`
	Filestore      FilestoreConfig `yaml:"filestore" mapstructure:"filestore"`
	Public         PublicConfig    `yaml:"public" mapstructure:"public"`
	HTTP           HTTPConfig      `yaml:"http" mapstructure:"http"`
	Journal        JournalConfig   `yaml:"journal,omitempty" mapstructure:"journal"`
}

// FilestoreConfig selects and configures the artifact store used by
// deployments that keep their own history.
type FilestoreConfig struct {
	Kind       string                    `yaml:"kind" mapstructure:"kind"`
	Prefix     string                    `yaml:"prefix,omitempty" mapstructure:"prefix"`
	S3         S3Config                  `yaml:"s3,omitempty" mapstructure:"s3"`
	Minio      MinioConfig               `yaml:"minio,omitempty" mapstructure:"minio"`
	Filesystem FilesystemFilestoreConfig `yaml:"filesystem,omitempty" mapstructure:"filesystem"`
}

// S3Config contains settings for an AWS S3 (or S3-compatible) bucket.
type S3Config struct {
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
	StorageClass    string `yaml:"storage_class,omitempty" mapstructure:"storage_class"`
	ACL             string `yaml:"acl,omitempty" mapstructure:"acl"`
}

// MinioConfig contains settings for a MinIO server.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	Region    string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	AccessKey string `yaml:"access_key,omitempty" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key,omitempty" mapstructure:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
}

// FilesystemFilestoreConfig stores artifacts below a local directory.
type FilesystemFilestoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PublicConfig describes the public build storage layout.
type PublicConfig struct {
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	BuildsBucket   string `yaml:"builds_bucket" mapstructure:"builds_bucket"`
	CoverageBucket string `yaml:"coverage_bucket" mapstructure:"coverage_bucket"`
}

// HTTPConfig tunes HTTP downloads.
type HTTPConfig struct {
	Timeout            string `yaml:"timeout" mapstructure:"timeout"`
	DownloadRateLimit  string `yaml:"download_rate_limit,omitempty" mapstructure:"download_rate_limit"`
	MaxObjectSize      string `yaml:"max_object_size,omitempty" mapstructure:"max_object_size"`
	ExtractConcurrency int    `yaml:"extract_concurrency" mapstructure:"extract_concurrency"`
	UserAgent          string `yaml:"user_agent,omitempty" mapstructure:"user_agent"`
}

// JournalConfig configures the optional transfer journal database.
type JournalConfig struct {
	Enabled  bool           `yaml:"enabled" mapstructure:"enabled"`
	Driver   string         `yaml:"driver,omitempty" mapstructure:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteConfig contains SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// Load reads configuration from the given files (later files override
// earlier ones) and applies FUZZSYNC_* environment overrides. With no files
// the configuration comes from the environment alone.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range envKeys(reflect.TypeOf(Config{}), "") {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding env for %q: %w", key, err)
		}
	}

	for i, path := range paths {
		v.SetConfigFile(path)

		var err error
		if i == 0 {
			err = v.ReadInConfig()
		} else {
			err = v.MergeInConfig()
		}

		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return nil, fmt.Errorf("creating config decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.resolvePlatform(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// envKeys lists every leaf key of the config struct in viper dot notation
// so that environment overrides work for keys absent from the file.
func envKeys(t reflect.Type, prefix string) []string {
	keys := make([]string, 0, t.NumField())

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		tag := strings.Split(field.Tag.Get("mapstructure"), ",")[0]
		if tag == "" || tag == "-" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		if field.Type.Kind() == reflect.Struct {
			keys = append(keys, envKeys(field.Type, key)...)

			continue
		}

		keys = append(keys, key)
	}

	return keys
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}

	if c.Sanitizer == "" {
		c.Sanitizer = DefaultSanitizer
	}

	if c.Workspace == "" {
		c.Workspace = DefaultWorkspace
	}

	if c.Filestore.Kind == "" {
		c.Filestore.Kind = FilestoreNone
	}

	if c.Filestore.Prefix == "" {
		c.Filestore.Prefix = DefaultFilestorePrefix
	}

	if c.Public.BaseURL == "" {
		c.Public.BaseURL = DefaultPublicBaseURL
	}

	if c.Public.BuildsBucket == "" {
		c.Public.BuildsBucket = DefaultBuildsBucket
	}

	if c.Public.CoverageBucket == "" {
		c.Public.CoverageBucket = DefaultCoverageBucket
	}

	if c.HTTP.Timeout == "" {
		c.HTTP.Timeout = DefaultHTTPTimeout
	}

	if c.HTTP.ExtractConcurrency <= 0 {
		c.HTTP.ExtractConcurrency = DefaultExtractConcurrency
	}

	if c.Journal.Enabled && c.Journal.Driver == "" {
		c.Journal.Driver = "sqlite"
	}
}

// resolvePlatform sets Platform from the explicit platform name, or derives
// it from the CI system and project name.
func (c *Config) resolvePlatform() error {
	var (
		p   Platform
		err error
	)

	if c.PlatformName != "" {
		p, err = ParsePlatform(c.PlatformName)
	} else {
		p, err = DerivePlatform(c.CISystem, c.ProjectName)
	}

	if err != nil {
		return fmt.Errorf("resolving platform: %w", err)
	}

	c.Platform = p
	c.PlatformName = p.String()

	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, ok := platformNames[c.Platform]; !ok {
		return fmt.Errorf("platform is not set")
	}

	if c.Sanitizer == "" {
		return fmt.Errorf("sanitizer is required")
	}

	switch c.Platform {
	case PlatformInternalGenericCI, PlatformInternalGitHub:
		if c.ProjectName == "" {
			return fmt.Errorf("platform %s requires project_name", c.Platform)
		}
	}

	if _, err := fsutil.ParseOwner(c.WorkspaceOwner); err != nil {
		return fmt.Errorf("workspace_owner: %w", err)
	}

	if err := c.Filestore.validate(); err != nil {
		return fmt.Errorf("filestore: %w", err)
	}

	if _, err := c.HTTPTimeout(); err != nil {
		return fmt.Errorf("http.timeout: %w", err)
	}

	if _, err := c.DownloadRateLimit(); err != nil {
		return fmt.Errorf("http.download_rate_limit: %w", err)
	}

	if _, err := c.MaxObjectSize(); err != nil {
		return fmt.Errorf("http.max_object_size: %w", err)
	}

	if c.Journal.Enabled {
		switch c.Journal.Driver {
		case "sqlite":
			if c.Journal.SQLite.Path == "" {
				return fmt.Errorf("journal.sqlite.path is required")
			}
		case "postgres":
			if c.Journal.Postgres.Host == "" {
				return fmt.Errorf("journal.postgres.host is required")
			}
		default:
			return fmt.Errorf("journal: unsupported driver %q", c.Journal.Driver)
		}
	}

	return nil
}

func (f *FilestoreConfig) validate() error {
	switch f.Kind {
	case FilestoreNone:
	case FilestoreS3:
		if f.S3.Bucket == "" {
			return fmt.Errorf("s3.bucket is required")
		}
	case FilestoreMinio:
		if f.Minio.Endpoint == "" {
			return fmt.Errorf("minio.endpoint is required")
		}

		if f.Minio.Bucket == "" {
			return fmt.Errorf("minio.bucket is required")
		}
	case FilestoreFilesystem:
		if f.Filesystem.Path == "" {
			return fmt.Errorf("filesystem.path is required")
		}
	default:
		return fmt.Errorf("unknown kind %q", f.Kind)
	}

	return nil
}

// HTTPTimeout returns the parsed HTTP timeout. Zero disables the timeout.
func (c *Config) HTTPTimeout() (time.Duration, error) {
	if c.HTTP.Timeout == "" {
		return 0, nil
	}

	return time.ParseDuration(c.HTTP.Timeout)
}

// DownloadRateLimit returns the download rate limit in bytes per second,
// parsed from a human readable size such as "50MB". Zero means unlimited.
func (c *Config) DownloadRateLimit() (int64, error) {
	if c.HTTP.DownloadRateLimit == "" {
		return 0, nil
	}

	return units.FromHumanSize(c.HTTP.DownloadRateLimit)
}

// MaxObjectSize returns the largest body read into memory, parsed from a
// human readable size such as "2GB". Zero selects the fetcher default.
func (c *Config) MaxObjectSize() (int64, error) {
	if c.HTTP.MaxObjectSize == "" {
		return 0, nil
	}

	return units.FromHumanSize(c.HTTP.MaxObjectSize)
}

// redacted replaces secret values in rendered configuration.
const redacted = "***"

// Marshal renders the effective configuration as YAML with secrets masked.
func (c *Config) Marshal() ([]byte, error) {
	masked := *c

	mask(&masked.Filestore.S3.SecretAccessKey)
	mask(&masked.Filestore.Minio.SecretKey)
	mask(&masked.Journal.Postgres.Password)

	return yaml.Marshal(&masked)
}

func mask(s *string) {
	if *s != "" {
		*s = redacted
	}
}
