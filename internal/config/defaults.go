package config

import (
	"os"
	"path/filepath"
	"time"
)

const (
	// DefaultProjectSuffix matches project files.
	DefaultProjectSuffix = "-soapui-project.xml"

	// DefaultRunnerCommand is the runner executable looked up on PATH.
	DefaultRunnerCommand = "suirunner"
)

// GetDefaultConfig returns the default configuration.
func GetDefaultConfig() DriverConfig {
	return DriverConfig{
		ProjectsDir:   "projects",
		WorkDir:       filepath.Join(os.TempDir(), "suidriver"),
		ProjectSuffix: DefaultProjectSuffix,
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: 500 * time.Millisecond,
		},
		Engine: EngineConfig{
			Command:     DefaultRunnerCommand,
			CancelGrace: 10 * time.Second,
		},
		Storage: StorageConfig{
			Type: StorageNone,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "suidriver",
			},
		},
		Server: ServerConfig{
			Listen:             "localhost:8095",
			PersistInterval:    5 * time.Second,
			MaxConcurrentTasks: 4,
		},
		Cache: CacheConfig{
			Size: 256,
		},
	}
}
