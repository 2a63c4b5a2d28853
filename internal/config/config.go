// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Politeness PolitenessConfig `mapstructure:"politeness"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Headless   HeadlessConfig   `mapstructure:"headless"`
	Harvest    HarvestConfig    `mapstructure:"harvest"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Index      IndexConfig      `mapstructure:"index"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Progress   ProgressConfig   `mapstructure:"progress"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// PolitenessConfig governs pacing and request identity.
type PolitenessConfig struct {
	MinDelay           time.Duration `mapstructure:"min_delay"`
	MaxDelay           time.Duration `mapstructure:"max_delay"`
	GlobalRPS          float64       `mapstructure:"global_rps"`
	GlobalBurst        int           `mapstructure:"global_burst"`
	UserAgents         []string      `mapstructure:"user_agents"`
	ForbiddenThreshold int           `mapstructure:"forbidden_threshold"`
	RespectRobots      bool          `mapstructure:"respect_robots"`
	RobotsUserAgent    string        `mapstructure:"robots_user_agent"`
}

// HTTPConfig configures the plain HTTP transport.
type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// HeadlessConfig configures the headless rendering transport.
type HeadlessConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxParallel int           `mapstructure:"max_parallel"`
	NavTimeout  time.Duration `mapstructure:"nav_timeout"`

	// PromoteMinText is the visible text length below which a plain page
	// that looks like a script shell is re-fetched headless.
	PromoteMinText int `mapstructure:"promote_min_text"`
}

// HarvestConfig controls job execution and the source catalog.
type HarvestConfig struct {
	JobTimeout       time.Duration `mapstructure:"job_timeout"`
	Concurrency      int           `mapstructure:"concurrency"`
	SourcesFile      string        `mapstructure:"sources_file"`
	Enabled          []string      `mapstructure:"enabled"`
	FallbackMinText  int           `mapstructure:"fallback_min_text"`
	FallbackMaxLinks int           `mapstructure:"fallback_max_links"`
	RawCapture       bool          `mapstructure:"raw_capture"`
}

// Storage backends.
const (
	BackendLocal  = "local"
	BackendMemory = "memory"
	BackendGCS    = "gcs"
)

// StorageConfig selects the artifact backend.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// IndexConfig enables the Postgres artifact index and job table.
type IndexConfig struct {
	DSN       string `mapstructure:"dsn"`
	Table     string `mapstructure:"table"`
	JobsTable string `mapstructure:"jobs_table"`
	MaxConns  int32  `mapstructure:"max_conns"`
}

// Enabled reports whether a DSN was configured.
func (c IndexConfig) Enabled() bool {
	return strings.TrimSpace(c.DSN) != ""
}

// PubSubConfig holds metadata for job notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Enabled reports whether both project and topic are set.
func (c PubSubConfig) Enabled() bool {
	return c.ProjectID != "" && c.TopicName != ""
}

// ProgressConfig tunes the event hub.
type ProgressConfig struct {
	BufferSize   int           `mapstructure:"buffer_size"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchWait    time.Duration `mapstructure:"batch_wait"`
	SinkTimeout  time.Duration `mapstructure:"sink_timeout"`
	LogEvents    bool          `mapstructure:"log_events"`
	MetricEvents bool          `mapstructure:"metric_events"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("politeness.min_delay", "1s")
	v.SetDefault("politeness.max_delay", "3s")
	v.SetDefault("politeness.global_rps", 0)
	v.SetDefault("politeness.global_burst", 1)
	v.SetDefault("politeness.user_agents", []string{})
	v.SetDefault("politeness.forbidden_threshold", 3)
	v.SetDefault("politeness.respect_robots", false)
	v.SetDefault("politeness.robots_user_agent", "entity-harvester")
	v.SetDefault("http.timeout", "15s")
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout", "45s")
	v.SetDefault("headless.promote_min_text", 200)
	v.SetDefault("harvest.job_timeout", "60s")
	v.SetDefault("harvest.concurrency", 4)
	v.SetDefault("harvest.sources_file", "")
	v.SetDefault("harvest.enabled", []string{})
	v.SetDefault("harvest.fallback_min_text", 10)
	v.SetDefault("harvest.fallback_max_links", 20)
	v.SetDefault("harvest.raw_capture", true)
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.base_dir", "data")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.gcs_prefix", "")
	v.SetDefault("index.dsn", "")
	v.SetDefault("index.table", "artifacts")
	v.SetDefault("index.jobs_table", "harvest_jobs")
	v.SetDefault("index.max_conns", 4)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.batch_size", 100)
	v.SetDefault("progress.batch_wait", "500ms")
	v.SetDefault("progress.sink_timeout", "10s")
	v.SetDefault("progress.log_events", true)
	v.SetDefault("progress.metric_events", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Politeness.MinDelay < 0 || c.Politeness.MaxDelay < 0 {
		return fmt.Errorf("politeness delays must be >= 0")
	}
	if c.Politeness.MaxDelay < c.Politeness.MinDelay {
		return fmt.Errorf("politeness.max_delay must be >= politeness.min_delay")
	}
	if c.Politeness.GlobalRPS < 0 {
		return fmt.Errorf("politeness.global_rps must be >= 0")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Harvest.JobTimeout <= 0 {
		return fmt.Errorf("harvest.job_timeout must be > 0")
	}
	if c.Harvest.Concurrency <= 0 {
		return fmt.Errorf("harvest.concurrency must be > 0")
	}
	switch c.Storage.Backend {
	case BackendLocal:
		if strings.TrimSpace(c.Storage.BaseDir) == "" {
			return fmt.Errorf("storage.base_dir is required for the local backend")
		}
	case BackendMemory:
	case BackendGCS:
		if strings.TrimSpace(c.Storage.GCSBucket) == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	return nil
}
