package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Sink names accepted in sinks.enabled.
const (
	SinkCSV      = "csv"
	SinkJSON     = "json"
	SinkPostgres = "postgres"
	SinkMongo    = "mongo"
	SinkNeo4j    = "neo4j"
	SinkNATS     = "nats"
	SinkKV       = "kv"
)

// Remote backends accepted in remote.backend.
const (
	RemoteNone  = "none"
	RemoteLocal = "local"
	RemoteGCS   = "gcs"
)

// Config holds all configuration options for the crawler
type Config struct {
	// Upstream API access
	Weibo WeiboConfig `yaml:"weibo" json:"weibo"`

	// Which accounts to crawl and how to pace the crawl
	Crawl CrawlConfig `yaml:"crawl" json:"crawl"`

	// Media mirroring toggles and download settings
	Media MediaConfig `yaml:"media" json:"media"`

	// Remote object store for mirrored media
	Remote RemoteConfig `yaml:"remote" json:"remote"`

	// Record persistence backends
	Sinks SinksConfig `yaml:"sinks" json:"sinks"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Prometheus endpoint
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// WeiboConfig holds upstream API configuration
type WeiboConfig struct {
	BaseURL           string        `yaml:"base_url" json:"base_url"`
	Cookie            string        `yaml:"cookie" json:"-"`
	UserAgent         string        `yaml:"user_agent" json:"user_agent"`
	RequestTimeout    time.Duration `yaml:"request_timeout" json:"request_timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int           `yaml:"burst_size" json:"burst_size"`
}

// CrawlConfig holds the account list and page pacing
type CrawlConfig struct {
	UserIDs            []string      `yaml:"user_ids" json:"user_ids"`
	UserIDListFile     string        `yaml:"user_id_list" json:"user_id_list"`
	FilterOriginalOnly bool          `yaml:"filter_original_only" json:"filter_original_only"`
	PageSize           int           `yaml:"page_size" json:"page_size"`
	PauseEveryMin      int           `yaml:"pause_every_min" json:"pause_every_min"`
	PauseEveryMax      int           `yaml:"pause_every_max" json:"pause_every_max"`
	PauseMin           time.Duration `yaml:"pause_min" json:"pause_min"`
	PauseMax           time.Duration `yaml:"pause_max" json:"pause_max"`
	// Encoding that text fields must be representable in
	Encoding string `yaml:"encoding" json:"encoding"`
}

// MediaConfig holds per-category mirroring toggles
type MediaConfig struct {
	OriginalImages  bool          `yaml:"original_images" json:"original_images"`
	OriginalVideos  bool          `yaml:"original_videos" json:"original_videos"`
	RetweetImages   bool          `yaml:"retweet_images" json:"retweet_images"`
	RetweetVideos   bool          `yaml:"retweet_videos" json:"retweet_videos"`
	OutputDir       string        `yaml:"output_dir" json:"output_dir"`
	DownloadRetries int           `yaml:"download_retries" json:"download_retries"`
	DownloadWorkers int           `yaml:"download_workers" json:"download_workers"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
}

// AnyEnabled reports whether at least one media category is mirrored.
func (m MediaConfig) AnyEnabled() bool {
	return m.OriginalImages || m.OriginalVideos || m.RetweetImages || m.RetweetVideos
}

// RemoteConfig selects and configures the media object store
type RemoteConfig struct {
	Backend     string      `yaml:"backend" json:"backend"`
	RootFolder  string      `yaml:"root_folder" json:"root_folder"`
	GCS         GCSConfig   `yaml:"gcs" json:"gcs"`
	Local       LocalConfig `yaml:"local" json:"local"`
	FolderRetry RetryConfig `yaml:"folder_retry" json:"folder_retry"`
}

// GCSConfig holds Google Cloud Storage settings
type GCSConfig struct {
	Bucket          string `yaml:"bucket" json:"bucket"`
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file"`
}

// LocalConfig holds filesystem store settings
type LocalConfig struct {
	BaseDir string `yaml:"base_dir" json:"base_dir"`
}

// RetryConfig bounds a retried operation
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier   float64       `yaml:"multiplier" json:"multiplier"`
}

// SinksConfig lists enabled sinks in dispatch order plus their settings
type SinksConfig struct {
	Enabled  []string       `yaml:"enabled" json:"enabled"`
	CSV      FileSinkConfig `yaml:"csv" json:"csv"`
	JSON     FileSinkConfig `yaml:"json" json:"json"`
	Postgres PostgresConfig `yaml:"postgres" json:"postgres"`
	Mongo    MongoConfig    `yaml:"mongo" json:"mongo"`
	Neo4j    Neo4jConfig    `yaml:"neo4j" json:"neo4j"`
	NATS     NATSConfig     `yaml:"nats" json:"nats"`
	KV       KVConfig       `yaml:"kv" json:"kv"`
}

// FileSinkConfig holds settings for file based sinks
type FileSinkConfig struct {
	Dir string `yaml:"dir" json:"dir"`
}

// PostgresConfig holds relational sink settings
type PostgresConfig struct {
	DSN         string `yaml:"dsn" json:"-"`
	MaxConns    int32  `yaml:"max_conns" json:"max_conns"`
	AutoMigrate bool   `yaml:"auto_migrate" json:"auto_migrate"`
}

// MongoConfig holds document sink settings
type MongoConfig struct {
	URI      string `yaml:"uri" json:"-"`
	Database string `yaml:"database" json:"database"`
}

// Neo4jConfig holds graph sink settings
type Neo4jConfig struct {
	URI      string `yaml:"uri" json:"uri"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
	Database string `yaml:"database" json:"database"`
}

// NATSConfig holds message sink settings
type NATSConfig struct {
	URL           string `yaml:"url" json:"url"`
	SubjectPrefix string `yaml:"subject_prefix" json:"subject_prefix"`
}

// KVConfig holds key-value sink settings
type KVConfig struct {
	URL    string `yaml:"url" json:"url"`
	Bucket string `yaml:"bucket" json:"bucket"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `yaml:"level" json:"level"`
	File    string `yaml:"file" json:"file"`
	NoColor bool   `yaml:"no_color" json:"no_color"`
}

// MetricsConfig holds the prometheus listener address; empty disables it
type MetricsConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Weibo: WeiboConfig{
			BaseURL:           "https://m.weibo.cn",
			UserAgent:         "Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1",
			RequestTimeout:    15 * time.Second,
			RequestsPerMinute: 60,
			BurstSize:         5,
		},
		Crawl: CrawlConfig{
			PageSize:      10,
			PauseEveryMin: 1,
			PauseEveryMax: 5,
			PauseMin:      6 * time.Second,
			PauseMax:      10 * time.Second,
			Encoding:      "utf-8",
		},
		Media: MediaConfig{
			OriginalImages:  true,
			OriginalVideos:  true,
			OutputDir:       "./weibo",
			DownloadRetries: 5,
			DownloadWorkers: 1,
			ConnectTimeout:  5 * time.Second,
			ReadTimeout:     10 * time.Second,
		},
		Remote: RemoteConfig{
			Backend:    RemoteLocal,
			RootFolder: "weibo",
			Local:      LocalConfig{BaseDir: "./mirror"},
			FolderRetry: RetryConfig{
				MaxAttempts:  5,
				InitialDelay: 2 * time.Second,
				MaxDelay:     30 * time.Second,
				Multiplier:   2.0,
			},
		},
		Sinks: SinksConfig{
			Enabled: []string{SinkCSV},
			CSV:     FileSinkConfig{Dir: "./weibo"},
			JSON:    FileSinkConfig{Dir: "./weibo"},
			Postgres: PostgresConfig{
				MaxConns:    4,
				AutoMigrate: true,
			},
			Mongo: MongoConfig{Database: "weibo"},
			Neo4j: Neo4jConfig{Database: "neo4j"},
			NATS:  NATSConfig{SubjectPrefix: "weibo.posts"},
			KV:    KVConfig{Bucket: "weibo"},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if cookie := os.Getenv("WEIBOCRAWLER_COOKIE"); cookie != "" {
		c.Weibo.Cookie = cookie
	}
	if userAgent := os.Getenv("WEIBOCRAWLER_USER_AGENT"); userAgent != "" {
		c.Weibo.UserAgent = userAgent
	}
	if rpm := os.Getenv("WEIBOCRAWLER_REQUESTS_PER_MINUTE"); rpm != "" {
		val, err := strconv.Atoi(rpm)
		if err != nil {
			errs = append(errs, fmt.Errorf("WEIBOCRAWLER_REQUESTS_PER_MINUTE: %w", err))
		} else if val > 0 {
			c.Weibo.RequestsPerMinute = val
		}
	}

	if ids := os.Getenv("WEIBOCRAWLER_USER_IDS"); ids != "" {
		c.Crawl.UserIDs = splitList(ids)
	}
	if list := os.Getenv("WEIBOCRAWLER_USER_ID_LIST"); list != "" {
		c.Crawl.UserIDListFile = list
	}
	if filter := os.Getenv("WEIBOCRAWLER_FILTER"); filter != "" {
		val, err := strconv.ParseBool(filter)
		if err != nil {
			errs = append(errs, fmt.Errorf("WEIBOCRAWLER_FILTER must be 0 or 1, got %q", filter))
		} else {
			c.Crawl.FilterOriginalOnly = val
		}
	}

	if sinks := os.Getenv("WEIBOCRAWLER_SINKS"); sinks != "" {
		c.Sinks.Enabled = splitList(sinks)
	}
	if dsn := os.Getenv("WEIBOCRAWLER_POSTGRES_DSN"); dsn != "" {
		c.Sinks.Postgres.DSN = dsn
	}
	if uri := os.Getenv("WEIBOCRAWLER_MONGO_URI"); uri != "" {
		c.Sinks.Mongo.URI = uri
	}
	if uri := os.Getenv("WEIBOCRAWLER_NEO4J_URI"); uri != "" {
		c.Sinks.Neo4j.URI = uri
	}
	if password := os.Getenv("WEIBOCRAWLER_NEO4J_PASSWORD"); password != "" {
		c.Sinks.Neo4j.Password = password
	}
	if url := os.Getenv("WEIBOCRAWLER_NATS_URL"); url != "" {
		c.Sinks.NATS.URL = url
	}
	if url := os.Getenv("WEIBOCRAWLER_KV_URL"); url != "" {
		c.Sinks.KV.URL = url
	}

	if backend := os.Getenv("WEIBOCRAWLER_REMOTE_BACKEND"); backend != "" {
		c.Remote.Backend = backend
	}
	if bucket := os.Getenv("WEIBOCRAWLER_GCS_BUCKET"); bucket != "" {
		c.Remote.GCS.Bucket = bucket
	}

	if outputDir := os.Getenv("WEIBOCRAWLER_OUTPUT_DIR"); outputDir != "" {
		c.Media.OutputDir = outputDir
		c.Sinks.CSV.Dir = outputDir
		c.Sinks.JSON.Dir = outputDir
	}
	if logLevel := os.Getenv("WEIBOCRAWLER_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	if addr := os.Getenv("WEIBOCRAWLER_METRICS_ADDR"); addr != "" {
		c.Metrics.Addr = addr
	}

	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	// A relative id list is resolved against the config file's directory
	if c.Crawl.UserIDListFile != "" && !filepath.IsAbs(c.Crawl.UserIDListFile) {
		c.Crawl.UserIDListFile = filepath.Join(filepath.Dir(path), c.Crawl.UserIDListFile)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".weibocrawler.yaml",
		".weibocrawler.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "weibocrawler", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "weibocrawler", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	// Accounts
	if len(c.Crawl.UserIDs) == 0 && c.Crawl.UserIDListFile == "" {
		errs = append(errs, errors.New("at least one user id or a user id list file is required"))
	}
	for _, id := range c.Crawl.UserIDs {
		if !isNumeric(id) {
			errs = append(errs, fmt.Errorf("user id %q must be a string of digits", id))
		}
	}
	if c.Crawl.UserIDListFile != "" {
		if _, err := os.Stat(c.Crawl.UserIDListFile); err != nil {
			errs = append(errs, fmt.Errorf("user id list file %s does not exist", c.Crawl.UserIDListFile))
		}
	}

	// Pacing
	if c.Crawl.PageSize <= 0 {
		errs = append(errs, errors.New("page size must be positive"))
	}
	if c.Crawl.PauseEveryMin <= 0 || c.Crawl.PauseEveryMax < c.Crawl.PauseEveryMin {
		errs = append(errs, errors.New("pause_every range must satisfy 0 < min <= max"))
	}
	if c.Crawl.PauseMin < 0 || c.Crawl.PauseMax < c.Crawl.PauseMin {
		errs = append(errs, errors.New("pause range must satisfy 0 <= min <= max"))
	}

	// Upstream
	if c.Weibo.BaseURL == "" {
		errs = append(errs, errors.New("weibo base url is required"))
	}
	if c.Weibo.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}

	// Media
	if c.Media.AnyEnabled() {
		if c.Media.DownloadRetries < 0 {
			errs = append(errs, errors.New("download retries cannot be negative"))
		}
		if c.Media.DownloadWorkers < 1 {
			errs = append(errs, errors.New("download workers must be at least 1"))
		}
		if c.Media.OutputDir == "" {
			errs = append(errs, errors.New("media output directory is required for the failure logs"))
		}
	}

	// Remote store
	switch strings.ToLower(c.Remote.Backend) {
	case RemoteNone, "":
		if c.Media.AnyEnabled() {
			errs = append(errs, errors.New("media mirroring is enabled but remote backend is none"))
		}
	case RemoteLocal:
		if c.Remote.Local.BaseDir == "" {
			errs = append(errs, errors.New("remote.local.base_dir is required for the local backend"))
		}
	case RemoteGCS:
		if c.Remote.GCS.Bucket == "" {
			errs = append(errs, errors.New("remote.gcs.bucket is required for the gcs backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown remote backend %q", c.Remote.Backend))
	}
	if c.Remote.FolderRetry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("remote folder retry attempts must be positive"))
	}

	// Sinks
	if len(c.Sinks.Enabled) == 0 {
		errs = append(errs, errors.New("at least one sink must be enabled"))
	}
	seen := make(map[string]bool)
	for _, name := range c.Sinks.Enabled {
		if seen[name] {
			errs = append(errs, fmt.Errorf("sink %q listed more than once", name))
			continue
		}
		seen[name] = true

		switch name {
		case SinkCSV:
			if c.Sinks.CSV.Dir == "" {
				errs = append(errs, errors.New("sinks.csv.dir is required"))
			}
		case SinkJSON:
			if c.Sinks.JSON.Dir == "" {
				errs = append(errs, errors.New("sinks.json.dir is required"))
			}
		case SinkPostgres:
			if c.Sinks.Postgres.DSN == "" {
				errs = append(errs, errors.New("sinks.postgres.dsn is required"))
			}
		case SinkMongo:
			if c.Sinks.Mongo.URI == "" {
				errs = append(errs, errors.New("sinks.mongo.uri is required"))
			}
		case SinkNeo4j:
			if c.Sinks.Neo4j.URI == "" {
				errs = append(errs, errors.New("sinks.neo4j.uri is required"))
			}
		case SinkNATS:
			if c.Sinks.NATS.URL == "" {
				errs = append(errs, errors.New("sinks.nats.url is required"))
			}
		case SinkKV:
			if c.Sinks.KV.URL == "" {
				errs = append(errs, errors.New("sinks.kv.url is required"))
			}
		default:
			errs = append(errs, fmt.Errorf("invalid sink %q, choose from csv, json, postgres, mongo, neo4j, nats and kv", name))
		}
	}

	// Logging
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// ResolveUserIDs returns the configured ids followed by the ids read from
// the list file, without duplicates and in first-seen order.
func (c *Config) ResolveUserIDs() ([]string, error) {
	ids := append([]string(nil), c.Crawl.UserIDs...)
	if c.Crawl.UserIDListFile != "" {
		fromFile, err := ReadUserIDList(c.Crawl.UserIDListFile)
		if err != nil {
			return nil, err
		}
		ids = append(ids, fromFile...)
	}

	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}

// ReadUserIDList reads one user id per line. Anything after the first
// whitespace on a line is a free-form note; blank lines and lines starting
// with # are ignored.
func ReadUserIDList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open user id list: %w", err)
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		id := strings.Fields(line)[0]
		if !isNumeric(id) {
			return nil, fmt.Errorf("%s:%d: user id %q must be a string of digits", path, lineNo, id)
		}
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read user id list: %w", err)
	}
	return ids, nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if ids, ok := flags["user-ids"].([]string); ok && len(ids) > 0 {
		c.Crawl.UserIDs = ids
	}
	if filter, ok := flags["filter"].(bool); ok && filter {
		c.Crawl.FilterOriginalOnly = true
	}
	if sinks, ok := flags["sinks"].([]string); ok && len(sinks) > 0 {
		c.Sinks.Enabled = sinks
	}
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Media.OutputDir = outputDir
		c.Sinks.CSV.Dir = outputDir
		c.Sinks.JSON.Dir = outputDir
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if addr, ok := flags["metrics-addr"].(string); ok && addr != "" {
		c.Metrics.Addr = addr
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".weibocrawler.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
