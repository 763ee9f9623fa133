package config

import (
	"time"
)

// DriverConfig is the top-level configuration structure for suidriver.
type DriverConfig struct {
	// ProjectsDir is the directory scanned for project files.
	ProjectsDir string `yaml:"projectsDir" env:"PROJECTS_DIR"`
	// WorkDir holds private working copies of projects while tasks run.
	WorkDir string `yaml:"workDir" env:"WORK_DIR"`
	// ProjectSuffix selects project files by name.
	ProjectSuffix string `yaml:"projectSuffix" env:"PROJECT_SUFFIX"`

	Watch   WatchConfig   `yaml:"watch" envPrefix:"WATCH_"`
	Engine  EngineConfig  `yaml:"engine" envPrefix:"ENGINE_"`
	Storage StorageConfig `yaml:"storage" envPrefix:"STORAGE_"`
	Server  ServerConfig  `yaml:"server" envPrefix:"SERVER_"`
	Cache   CacheConfig   `yaml:"cache" envPrefix:"CACHE_"`
}

// WatchConfig controls live reloading of the projects directory.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled" env:"ENABLED"`
	Debounce time.Duration `yaml:"debounce" env:"DEBOUNCE"`
}

// EngineConfig describes how the external runner is started.
type EngineConfig struct {
	Command     string        `yaml:"command" env:"COMMAND"`
	Args        []string      `yaml:"args" env:"ARGS"`
	Env         []string      `yaml:"env" env:"ENV"`
	CancelGrace time.Duration `yaml:"cancelGrace" env:"CANCEL_GRACE"`
	// SettingsFile is a plain or encrypted engine settings document.
	SettingsFile string `yaml:"settingsFile" env:"SETTINGS_FILE"`
	// SettingsPassword decrypts SettingsFile. It is only read from the environment.
	SettingsPassword string `yaml:"-" env:"SETTINGS_PASSWORD"`
}

// Storage backends.
const (
	StorageNone  = "none"
	StorageFile  = "file"
	StorageRedis = "redis"
)

// StorageConfig selects where result trees and descriptors are persisted.
type StorageConfig struct {
	Type  string      `yaml:"type" env:"TYPE"`
	Path  string      `yaml:"path" env:"PATH"`
	Redis RedisConfig `yaml:"redis" envPrefix:"REDIS_"`
}

// RedisConfig configures the Redis object store.
type RedisConfig struct {
	Addr     string        `yaml:"addr" env:"ADDR"`
	Password string        `yaml:"-" env:"PASSWORD"`
	DB       int           `yaml:"db" env:"DB"`
	Prefix   string        `yaml:"prefix" env:"PREFIX"`
	TTL      time.Duration `yaml:"ttl" env:"TTL"`
}

// ServerConfig configures the HTTP host API.
type ServerConfig struct {
	Listen string `yaml:"listen" env:"LISTEN"`
	// PersistInterval is how often partial results of running tasks are stored.
	PersistInterval time.Duration `yaml:"persistInterval" env:"PERSIST_INTERVAL"`
	// MaxConcurrentTasks bounds tasks started through the host API.
	MaxConcurrentTasks int `yaml:"maxConcurrentTasks" env:"MAX_CONCURRENT_TASKS"`
}

// CacheConfig sizes the loader's descriptor cache.
type CacheConfig struct {
	Size int `yaml:"size" env:"SIZE"`
}
