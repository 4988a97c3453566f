/*
Package config manages TOML config for the suggest service.
*/
package config

import (
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/CommerceExperts/smartsuggest/internal/utils"
)

// Config holds the entire config structure
type Config struct {
	Service ServiceConfig `toml:"service"`
	Suggest SuggestConfig `toml:"suggest"`
	Limiter LimiterConfig `toml:"limiter"`
	Source  SourceConfig  `toml:"source"`
	Archive ArchiveConfig `toml:"archive"`
}

// ServiceConfig has HTTP server related options.
type ServiceConfig struct {
	ListenAddr string `toml:"listen_addr"`
	LogLevel   string `toml:"log_level"`
	MaxLimit   int    `toml:"max_limit"`
}

// SuggestConfig holds index lifecycle options.
type SuggestConfig struct {
	BaseDir            string   `toml:"base_dir"`
	UpdateRateSeconds  int      `toml:"update_rate_seconds"`
	IdleTimeoutSeconds int      `toml:"idle_timeout_seconds"`
	UpdatePoolSize     int      `toml:"update_pool_size"`
	PrefetchFactor     int      `toml:"prefetch_factor"`
	UseDataMerger      bool     `toml:"use_data_merger"`
	PreloadIndexes     []string `toml:"preload_indexes"`
}

// LimiterConfig controls group aware result limiting. When GroupKey is
// empty, results are only truncated to the requested limit.
type LimiterConfig struct {
	GroupKey           string        `toml:"group_key"`
	UseRelativeShares  bool          `toml:"use_relative_shares"`
	DefaultLimit       int           `toml:"default_limit"`
	DeduplicationOrder []string      `toml:"deduplication_order"`
	Groups             []GroupConfig `toml:"group"`
}

// GroupConfig is one [[limiter.group]] entry. Limit applies to the
// cut-off limiter, Share to the relative-share limiter.
type GroupConfig struct {
	Name  string  `toml:"name"`
	Limit int     `toml:"limit"`
	Share float64 `toml:"share"`
}

// SourceConfig lists the configured data sources.
type SourceConfig struct {
	File          FileSourceConfig `toml:"file"`
	Elasticsearch ESSourceConfig   `toml:"elasticsearch"`
}

// FileSourceConfig reads datasets from a watched directory.
type FileSourceConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

// ESSourceConfig builds datasets from aggregated query logs.
type ESSourceConfig struct {
	Enabled      bool     `toml:"enabled"`
	URLs         []string `toml:"urls"`
	Username     string   `toml:"username"`
	Password     string   `toml:"password"`
	CloudID      string   `toml:"cloud_id"`
	APIKey       string   `toml:"api_key"`
	IndexPattern string   `toml:"index_pattern"`
	QueryField   string   `toml:"query_field"`
	TimeField    string   `toml:"time_field"`
	MaxRecords   int      `toml:"max_records"`
}

// ArchiveConfig lists the configured archive backends.
type ArchiveConfig struct {
	Local LocalArchiveConfig `toml:"local"`
	Redis RedisArchiveConfig `toml:"redis"`
}

// LocalArchiveConfig persists index snapshots on the filesystem.
type LocalArchiveConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

// RedisArchiveConfig persists index snapshots in redis hashes.
type RedisArchiveConfig struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// GetConfigDir returns the config directory with fallback priority:
// 1. ~/.config/
// 2. ~/Library/Application Support/ (macOS)
// 3. Current executable dir
// 4. builtin defaults
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Errorf("Failed to get home directory: %v", err)
		execDir, execErr := utils.GetExecutableDir()
		if execErr != nil {
			return "", execErr
		}
		return execDir, nil
	}
	primaryPath := filepath.Join(homeDir, ".config", "smartsuggest")
	if result := utils.CheckDirStatus(primaryPath); result.Writable {
		return primaryPath, nil
	}
	// Not conventional, fallback from ~/.config if not writable
	macOSPath := filepath.Join(homeDir, "Library", "Application Support", "smartsuggest")
	if result := utils.CheckDirStatus(macOSPath); result.Writable {
		return macOSPath, nil
	}
	execDir, err := utils.GetExecutableDir()
	if err != nil {
		log.Errorf("Failed to get executable directory: %v", err)
		return "", err
	}
	return execDir, nil
}

// GetDefaultConfigPath returns the default path for config.toml
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}

// LoadConfigWithPriority loads config with priority:
// 1. Custom path from --config flag
// 2. Default path: [UserConfigDir]/smartsuggest/config.toml
// 3. Builtin defaults
func LoadConfigWithPriority(customConfigPath string) (*Config, string, error) {
	var config *Config
	var err error

	if customConfigPath != "" {
		if _, statErr := os.Stat(customConfigPath); statErr == nil {
			config, err = LoadConfig(customConfigPath)
			if err != nil {
				log.Warnf("Failed to load custom config from %s: %v. Trying default path...", customConfigPath, err)
			} else {
				log.Debugf("Loaded config from custom path: %s", customConfigPath)
				return config, customConfigPath, nil
			}
		} else {
			log.Warnf("Custom config file not found at %s: %v. Trying default path...", customConfigPath, statErr)
		}
	}
	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		log.Warnf("Failed to determine default config path: %v. Using built-in defaults...", err)
		return DefaultConfig(), "", nil
	}

	config, err = InitConfig(defaultPath)
	if err != nil {
		log.Warnf("Failed to load/create config at default path %s: %v. Using builtin defaults...", defaultPath, err)
		return DefaultConfig(), "", nil
	}
	log.Debugf("Loaded config from default path: %s", defaultPath)
	return config, defaultPath, nil
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			ListenAddr: ":8081",
			LogLevel:   "info",
			MaxLimit:   64,
		},
		Suggest: SuggestConfig{
			UpdateRateSeconds: 60,
			UpdatePoolSize:    4,
			PrefetchFactor:    1,
		},
		Limiter: LimiterConfig{
			DefaultLimit: 5,
		},
		Source: SourceConfig{
			File: FileSourceConfig{
				Enabled: true,
				Dir:     "data",
			},
			Elasticsearch: ESSourceConfig{
				IndexPattern: "querylog-%s",
				QueryField:   "query.keyword",
				TimeField:    "@timestamp",
				MaxRecords:   10000,
			},
		},
		Archive: ArchiveConfig{
			Local: LocalArchiveConfig{
				Enabled: true,
				Dir:     "archive",
			},
			Redis: RedisArchiveConfig{
				Addr: "localhost:6379",
			},
		},
	}
}

// InitConfig loads config from file or creates default if missing
func InitConfig(configPath string) (*Config, error) {
	configDir := filepath.Dir(configPath)

	if err := utils.EnsureDir(configDir); err != nil {
		log.Warnf("Failed to create config directory %s: %v. Using built-in defaults...", configDir, err)
		return DefaultConfig(), nil
	}

	if !utils.FileExists(configPath) {
		config := DefaultConfig()
		if err := SaveConfig(config, configPath); err != nil {
			log.Warnf("Failed to create default config file at %s: %v. Using built-in defaults...", configPath, err)
			return DefaultConfig(), nil
		}
		log.Debugf("Created default config file at: %s", configPath)
		return config, nil
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		log.Warnf("Failed to load config from %s: %v. Using built-in defaults...", configPath, err)
		return DefaultConfig(), nil
	}
	return config, nil
}

// LoadConfig loads from a TOML file. Values absent from the file keep
// their defaults.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if err := utils.LoadTOMLFile(configPath, config); err != nil {
		return nil, err
	}
	return config, nil
}

// GetActiveConfigPath returns the absolute path of loaded config file
func GetActiveConfigPath(configPath string) string {
	if configPath == "" {
		if defaultPath, err := GetDefaultConfigPath(); err == nil {
			return defaultPath
		}
		return "unknown"
	}
	return utils.GetAbsolutePath(configPath)
}

// SaveConfig saves into a TOML file
func SaveConfig(config *Config, configPath string) error {
	return utils.SaveTOMLFile(config, configPath)
}
