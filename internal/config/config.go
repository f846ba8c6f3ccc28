package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/roomsearch/internal/catalog"
	rserrors "github.com/Aman-CERP/roomsearch/internal/errors"
	"github.com/Aman-CERP/roomsearch/internal/query"
	"github.com/Aman-CERP/roomsearch/pkg/indexer"
	"github.com/Aman-CERP/roomsearch/pkg/roomindex"
	"github.com/Aman-CERP/roomsearch/pkg/searcher"
)

const (
	appName = "roomsearch"

	// ProjectConfigFile is the per-directory config file name.
	ProjectConfigFile = ".roomsearch.yaml"
)

// Config represents the complete roomsearch configuration.
type Config struct {
	Version int           `yaml:"version" json:"version"`
	Writer  WriterConfig  `yaml:"writer" json:"writer"`
	Reader  ReaderConfig  `yaml:"reader" json:"reader"`
	Search  SearchConfig  `yaml:"search" json:"search"`
	Catalog CatalogConfig `yaml:"catalog" json:"catalog"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// WriterConfig controls when staged events are committed.
type WriterConfig struct {
	// MemoryBudgetBytes bounds staged data before a commit is forced.
	MemoryBudgetBytes int64 `yaml:"memory_budget_bytes" json:"memory_budget_bytes"`

	// MinCommitBatchSize is how many staged events trigger a commit.
	// 1 commits every event as it is added.
	MinCommitBatchSize int `yaml:"min_commit_batch_size" json:"min_commit_batch_size"`

	// MaxCommitDelay is the longest an event stays staged (e.g. "5s", "0"
	// disables the background commit).
	MaxCommitDelay string `yaml:"max_commit_delay" json:"max_commit_delay"`
}

// ReaderConfig controls when commits become searchable.
type ReaderConfig struct {
	// ReloadPolicy is "manual" or "on_commit_with_delay".
	ReloadPolicy string `yaml:"reload_policy" json:"reload_policy"`

	// ReloadDelay is the wait before a background reload (e.g. "500ms").
	ReloadDelay string `yaml:"reload_delay" json:"reload_delay"`
}

// SearchConfig configures query handling.
type SearchConfig struct {
	DefaultLimit   int `yaml:"default_limit" json:"default_limit"`
	MaxQueryLength int `yaml:"max_query_length" json:"max_query_length"`
	QueryCacheSize int `yaml:"query_cache_size" json:"query_cache_size"`
}

// CatalogConfig configures the multi-room catalog.
type CatalogConfig struct {
	// DataDir holds the registry and one index directory per room.
	// Defaults to ~/.roomsearch/data
	DataDir           string `yaml:"data_dir" json:"data_dir"`
	MaxOpenRooms      int    `yaml:"max_open_rooms" json:"max_open_rooms"`
	SearchParallelism int    `yaml:"search_parallelism" json:"search_parallelism"`
}

// LoggingConfig configures the CLI log file.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig creates a new Config with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Writer: WriterConfig{
			MemoryBudgetBytes:  indexer.DefaultMemoryBudgetBytes,
			MinCommitBatchSize: indexer.DefaultMinCommitBatchSize,
			MaxCommitDelay:     indexer.DefaultMaxCommitDelay.String(),
		},
		Reader: ReaderConfig{
			ReloadPolicy: string(searcher.ReloadManual),
			ReloadDelay:  searcher.DefaultReloadDelay.String(),
		},
		Search: SearchConfig{
			DefaultLimit:   10,
			MaxQueryLength: query.DefaultMaxQueryLength,
			QueryCacheSize: query.DefaultCacheSize,
		},
		Catalog: CatalogConfig{
			DataDir:           defaultDataDir(),
			MaxOpenRooms:      16,
			SearchParallelism: 4,
		},
		Logging: LoggingConfig{
			Level:     "info",
			File:      "",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".roomsearch", "data")
	}
	return filepath.Join(home, ".roomsearch", "data")
}

// GetUserConfigPath returns the path to the user configuration file:
//   - $XDG_CONFIG_HOME/roomsearch/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/roomsearch/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName, "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", appName, "config.yaml")
	}
	return filepath.Join(home, ".config", appName, "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// LoadUserConfig loads the user configuration file. Returns nil config and
// nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load loads configuration for dir. Later sources override earlier ones:
//  1. Defaults
//  2. User config (~/.config/roomsearch/config.yaml)
//  3. Project config (.roomsearch.yaml in dir)
//  4. Environment variables (ROOMSEARCH_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := LoadUserConfig(); err != nil {
		return nil, err
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile loads .roomsearch.yaml, or .roomsearch.yml as a fallback.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ProjectConfigFile)
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, strings.TrimSuffix(ProjectConfigFile, ".yaml")+".yml")
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return rserrors.Wrapf(rserrors.ErrCodeConfigInvalid, err, "read config file %s", path)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return rserrors.Wrapf(rserrors.ErrCodeConfigInvalid, err, "parse config file %s", path).
			WithDetail("path", path)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Writer.MemoryBudgetBytes != 0 {
		c.Writer.MemoryBudgetBytes = other.Writer.MemoryBudgetBytes
	}
	if other.Writer.MinCommitBatchSize != 0 {
		c.Writer.MinCommitBatchSize = other.Writer.MinCommitBatchSize
	}
	if other.Writer.MaxCommitDelay != "" {
		c.Writer.MaxCommitDelay = other.Writer.MaxCommitDelay
	}

	if other.Reader.ReloadPolicy != "" {
		c.Reader.ReloadPolicy = other.Reader.ReloadPolicy
	}
	if other.Reader.ReloadDelay != "" {
		c.Reader.ReloadDelay = other.Reader.ReloadDelay
	}

	if other.Search.DefaultLimit != 0 {
		c.Search.DefaultLimit = other.Search.DefaultLimit
	}
	if other.Search.MaxQueryLength != 0 {
		c.Search.MaxQueryLength = other.Search.MaxQueryLength
	}
	if other.Search.QueryCacheSize != 0 {
		c.Search.QueryCacheSize = other.Search.QueryCacheSize
	}

	if other.Catalog.DataDir != "" {
		c.Catalog.DataDir = other.Catalog.DataDir
	}
	if other.Catalog.MaxOpenRooms != 0 {
		c.Catalog.MaxOpenRooms = other.Catalog.MaxOpenRooms
	}
	if other.Catalog.SearchParallelism != 0 {
		c.Catalog.SearchParallelism = other.Catalog.SearchParallelism
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}
}

// applyEnvOverrides applies ROOMSEARCH_* environment variable overrides.
// Unparseable numbers are ignored.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ROOMSEARCH_MEMORY_BUDGET_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Writer.MemoryBudgetBytes = n
		}
	}
	if v := os.Getenv("ROOMSEARCH_MIN_COMMIT_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Writer.MinCommitBatchSize = n
		}
	}
	if v := os.Getenv("ROOMSEARCH_MAX_COMMIT_DELAY"); v != "" {
		c.Writer.MaxCommitDelay = v
	}

	if v := os.Getenv("ROOMSEARCH_RELOAD_POLICY"); v != "" {
		c.Reader.ReloadPolicy = v
	}
	if v := os.Getenv("ROOMSEARCH_RELOAD_DELAY"); v != "" {
		c.Reader.ReloadDelay = v
	}

	if v := os.Getenv("ROOMSEARCH_DEFAULT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Search.DefaultLimit = n
		}
	}

	if v := os.Getenv("ROOMSEARCH_DATA_DIR"); v != "" {
		c.Catalog.DataDir = v
	}
	if v := os.Getenv("ROOMSEARCH_MAX_OPEN_ROOMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Catalog.MaxOpenRooms = n
		}
	}

	if v := os.Getenv("ROOMSEARCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ROOMSEARCH_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := c.WriterSettings(); err != nil {
		return err
	}
	if _, err := c.ReaderSettings(); err != nil {
		return err
	}

	if c.Search.DefaultLimit <= 0 {
		return invalid("search.default_limit must be positive, got %d", c.Search.DefaultLimit)
	}
	if c.Search.MaxQueryLength <= 0 {
		return invalid("search.max_query_length must be positive, got %d", c.Search.MaxQueryLength)
	}
	if c.Search.QueryCacheSize <= 0 {
		return invalid("search.query_cache_size must be positive, got %d", c.Search.QueryCacheSize)
	}

	if c.Catalog.DataDir == "" {
		return invalid("catalog.data_dir must not be empty")
	}
	if c.Catalog.MaxOpenRooms <= 0 {
		return invalid("catalog.max_open_rooms must be positive, got %d", c.Catalog.MaxOpenRooms)
	}
	if c.Catalog.SearchParallelism <= 0 {
		return invalid("catalog.search_parallelism must be positive, got %d", c.Catalog.SearchParallelism)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return invalid("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	if c.Logging.MaxSizeMB < 0 {
		return invalid("logging.max_size_mb must be non-negative, got %d", c.Logging.MaxSizeMB)
	}
	if c.Logging.MaxFiles < 0 {
		return invalid("logging.max_files must be non-negative, got %d", c.Logging.MaxFiles)
	}

	return nil
}

// WriterSettings converts the writer section.
func (c *Config) WriterSettings() (indexer.Config, error) {
	delay, err := parseDuration("writer.max_commit_delay", c.Writer.MaxCommitDelay)
	if err != nil {
		return indexer.Config{}, err
	}

	cfg := indexer.Config{
		MemoryBudgetBytes:  c.Writer.MemoryBudgetBytes,
		MinCommitBatchSize: c.Writer.MinCommitBatchSize,
		MaxCommitDelay:     delay,
	}
	if err := cfg.Validate(); err != nil {
		return indexer.Config{}, err
	}
	return cfg, nil
}

// ReaderSettings converts the reader section.
func (c *Config) ReaderSettings() (searcher.ReaderConfig, error) {
	delay, err := parseDuration("reader.reload_delay", c.Reader.ReloadDelay)
	if err != nil {
		return searcher.ReaderConfig{}, err
	}

	cfg := searcher.ReaderConfig{
		Policy:      searcher.ReloadPolicy(strings.ToLower(c.Reader.ReloadPolicy)),
		ReloadDelay: delay,
	}
	if err := cfg.Validate(); err != nil {
		return searcher.ReaderConfig{}, err
	}
	return cfg, nil
}

// QuerySettings converts the search section's parser limits.
func (c *Config) QuerySettings() query.Config {
	return query.Config{
		MaxQueryLength: c.Search.MaxQueryLength,
		CacheSize:      c.Search.QueryCacheSize,
	}
}

// ToIndexOptions converts the configuration to room index options.
func (c *Config) ToIndexOptions() ([]roomindex.Option, error) {
	w, err := c.WriterSettings()
	if err != nil {
		return nil, err
	}
	r, err := c.ReaderSettings()
	if err != nil {
		return nil, err
	}

	return []roomindex.Option{
		roomindex.WithWriterConfig(w),
		roomindex.WithReaderConfig(r),
		roomindex.WithQueryConfig(c.QuerySettings()),
	}, nil
}

// CatalogSettings converts the catalog section. Every room opened by the
// catalog gets the index options of this configuration.
func (c *Config) CatalogSettings() (catalog.Config, error) {
	opts, err := c.ToIndexOptions()
	if err != nil {
		return catalog.Config{}, err
	}
	return catalog.Config{
		MaxOpenRooms:      c.Catalog.MaxOpenRooms,
		SearchParallelism: c.Catalog.SearchParallelism,
		IndexOptions:      opts,
	}, nil
}

// WriteYAML writes the configuration to a YAML file, creating its directory.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func parseDuration(key, value string) (time.Duration, error) {
	if value == "" || value == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, rserrors.Wrapf(rserrors.ErrCodeConfigInvalid, err, "%s must be a duration like \"500ms\", got %q", key, value)
	}
	return d, nil
}

func invalid(format string, args ...any) *rserrors.IndexError {
	return rserrors.Newf(rserrors.ErrCodeConfigInvalid, format, args...)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
