package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Crawl.UserIDs = []string{"1669879400"}
	cfg.Sinks.CSV.Dir = t.TempDir()
	cfg.Remote.Local.BaseDir = t.TempDir()
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "https://m.weibo.cn", cfg.Weibo.BaseURL)
	assert.NotEmpty(t, cfg.Weibo.UserAgent)
	assert.Equal(t, 10, cfg.Crawl.PageSize)
	assert.Equal(t, 1, cfg.Crawl.PauseEveryMin)
	assert.Equal(t, 5, cfg.Crawl.PauseEveryMax)
	assert.Equal(t, 6*time.Second, cfg.Crawl.PauseMin)
	assert.Equal(t, 10*time.Second, cfg.Crawl.PauseMax)
	assert.Equal(t, 5, cfg.Media.DownloadRetries)
	assert.Equal(t, 5*time.Second, cfg.Media.ConnectTimeout)
	assert.Equal(t, 10*time.Second, cfg.Media.ReadTimeout)
	assert.Equal(t, []string{SinkCSV}, cfg.Sinks.Enabled)
	assert.Equal(t, 5, cfg.Remote.FolderRetry.MaxAttempts)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("WEIBOCRAWLER_COOKIE", "SUB=abc")
	t.Setenv("WEIBOCRAWLER_USER_IDS", "111, 222")
	t.Setenv("WEIBOCRAWLER_FILTER", "1")
	t.Setenv("WEIBOCRAWLER_SINKS", "csv,postgres")
	t.Setenv("WEIBOCRAWLER_POSTGRES_DSN", "postgres://localhost/weibo")
	t.Setenv("WEIBOCRAWLER_OUTPUT_DIR", "/env/output")
	t.Setenv("WEIBOCRAWLER_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "SUB=abc", cfg.Weibo.Cookie)
	assert.Equal(t, []string{"111", "222"}, cfg.Crawl.UserIDs)
	assert.True(t, cfg.Crawl.FilterOriginalOnly)
	assert.Equal(t, []string{"csv", "postgres"}, cfg.Sinks.Enabled)
	assert.Equal(t, "postgres://localhost/weibo", cfg.Sinks.Postgres.DSN)
	assert.Equal(t, "/env/output", cfg.Media.OutputDir)
	assert.Equal(t, "/env/output", cfg.Sinks.CSV.Dir)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromEnvInvalidFilter(t *testing.T) {
	t.Setenv("WEIBOCRAWLER_FILTER", "maybe")

	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0 or 1")
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
weibo:
  cookie: "SUB=xyz"
crawl:
  user_ids: ["1669879400"]
  user_id_list: users.txt
  filter_original_only: true
  pause_min: 2s
media:
  retweet_images: true
sinks:
  enabled: [json, mongo]
  mongo:
    uri: mongodb://localhost:27017
remote:
  backend: gcs
  gcs:
    bucket: media
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, "SUB=xyz", cfg.Weibo.Cookie)
	assert.Equal(t, []string{"1669879400"}, cfg.Crawl.UserIDs)
	assert.Equal(t, filepath.Join(dir, "users.txt"), cfg.Crawl.UserIDListFile)
	assert.True(t, cfg.Crawl.FilterOriginalOnly)
	assert.Equal(t, 2*time.Second, cfg.Crawl.PauseMin)
	assert.True(t, cfg.Media.RetweetImages)
	assert.True(t, cfg.Media.OriginalImages, "defaults survive a partial file")
	assert.Equal(t, []string{SinkJSON, SinkMongo}, cfg.Sinks.Enabled)
	assert.Equal(t, RemoteGCS, cfg.Remote.Backend)
	assert.Equal(t, "media", cfg.Remote.GCS.Bucket)
}

func TestLoadFromFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("crawl: [unclosed"), 0644))

	err := DefaultConfig().LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "no accounts",
			mutate:  func(c *Config) { c.Crawl.UserIDs = nil },
			wantErr: "at least one user id",
		},
		{
			name:    "non numeric account",
			mutate:  func(c *Config) { c.Crawl.UserIDs = []string{"dear-dilireba"} },
			wantErr: "must be a string of digits",
		},
		{
			name:    "missing id list file",
			mutate:  func(c *Config) { c.Crawl.UserIDListFile = "/nonexistent/users.txt" },
			wantErr: "does not exist",
		},
		{
			name:    "unknown sink",
			mutate:  func(c *Config) { c.Sinks.Enabled = []string{"dynamo"} },
			wantErr: `invalid sink "dynamo"`,
		},
		{
			name:    "duplicate sink",
			mutate:  func(c *Config) { c.Sinks.Enabled = []string{SinkCSV, SinkCSV} },
			wantErr: "more than once",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.Sinks.Enabled = []string{SinkPostgres} },
			wantErr: "sinks.postgres.dsn",
		},
		{
			name:    "inverted pause range",
			mutate:  func(c *Config) { c.Crawl.PauseMin, c.Crawl.PauseMax = 10*time.Second, 6*time.Second },
			wantErr: "pause range",
		},
		{
			name:    "media without remote",
			mutate:  func(c *Config) { c.Remote.Backend = RemoteNone },
			wantErr: "remote backend is none",
		},
		{
			name:    "unknown remote",
			mutate:  func(c *Config) { c.Remote.Backend = "drive" },
			wantErr: `unknown remote backend "drive"`,
		},
		{
			name:    "kv sink without url",
			mutate:  func(c *Config) { c.Sinks.Enabled = []string{SinkKV} },
			wantErr: "sinks.kv.url is required",
		},
		{
			name: "kv sink with url",
			mutate: func(c *Config) {
				c.Sinks.Enabled = []string{SinkKV}
				c.Sinks.KV.URL = "nats://127.0.0.1:4222"
			},
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "invalid log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestReadUserIDList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.txt")
	content := "# accounts\n1669879400 Dear-迪丽热巴\n\n1223178222\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	ids, err := ReadUserIDList(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"1669879400", "1223178222"}, ids)
}

func TestReadUserIDListRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.txt")
	require.NoError(t, os.WriteFile(path, []byte("abc\n"), 0644))

	_, err := ReadUserIDList(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ":1:")
}

func TestResolveUserIDsDeduplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.txt")
	require.NoError(t, os.WriteFile(path, []byte("222\n111\n"), 0644))

	cfg := DefaultConfig()
	cfg.Crawl.UserIDs = []string{"111"}
	cfg.Crawl.UserIDListFile = path

	ids, err := cfg.ResolveUserIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"111", "222"}, ids)
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := validConfig(t)
	cfg.Sinks.Enabled = []string{SinkCSV, SinkNATS}
	cfg.Sinks.NATS.URL = "nats://127.0.0.1:4222"

	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, cfg.Sinks.Enabled, loaded.Sinks.Enabled)
	assert.Equal(t, cfg.Sinks.NATS.URL, loaded.Sinks.NATS.URL)
	assert.Equal(t, cfg.Crawl.PauseMax, loaded.Crawl.PauseMax)
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"user-ids":  []string{"333"},
		"filter":    true,
		"sinks":     []string{SinkJSON},
		"output":    "/flags/out",
		"log-level": "warn",
	})

	assert.Equal(t, []string{"333"}, cfg.Crawl.UserIDs)
	assert.True(t, cfg.Crawl.FilterOriginalOnly)
	assert.Equal(t, []string{SinkJSON}, cfg.Sinks.Enabled)
	assert.Equal(t, "/flags/out", cfg.Sinks.JSON.Dir)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
crawl:
  user_ids: ["111"]
logging:
  level: error
remote:
  local:
    base_dir: ` + dir + `
sinks:
  csv:
    dir: ` + dir + `
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("WEIBOCRAWLER_LOG_LEVEL", "warn")

	cfg, err := Load(path, map[string]interface{}{"log-level": "debug"})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, []string{"111"}, cfg.Crawl.UserIDs)
}

func TestLoadFailsFast(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("crawl:\n  user_ids: [\"x1\"]\n"), 0644))

	_, err := Load(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
}
