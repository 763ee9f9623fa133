package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/giantswarm/suidriver/pkg/logging"
)

const (
	userConfigDir  = ".config/suidriver"
	configFileName = "config.yaml"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "SUIDRIVER_"
)

// GetDefaultConfigPath returns ~/.config/suidriver, or the working directory
// if the home directory cannot be determined.
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(homeDir, userConfigDir)
}

// LoadConfig loads config.yaml from configPath on top of the defaults, applies
// SUIDRIVER_* environment overrides and validates the result. A missing
// config.yaml is not an error.
func LoadConfig(configPath string) (DriverConfig, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Info("Config", "No config.yaml found at %s, using defaults", configFilePath)
	case err != nil:
		return DriverConfig{}, newFileError(configFilePath, "io", "cannot read configuration file", err)
	default:
		if err := ValidateDocument(data); err != nil {
			return DriverConfig{}, newFileError(configFilePath, "validation", "configuration does not match schema", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return DriverConfig{}, newFileError(configFilePath, "parse", "malformed configuration file", err)
		}
		logging.Info("Config", "Loaded configuration from %s", configFilePath)
	}

	if err := env.ParseWithOptions(&config, env.Options{Prefix: EnvPrefix}); err != nil {
		return DriverConfig{}, ConfigurationError{
			FilePath:  configFilePath,
			FileName:  configFileName,
			Source:    "environment",
			ErrorType: "parse",
			Message:   "invalid environment override",
			Details:   err.Error(),
		}
	}

	if err := config.Validate(); err != nil {
		return DriverConfig{}, err
	}
	return config, nil
}

func newFileError(path, errorType, message string, err error) ConfigurationError {
	return ConfigurationError{
		FilePath:  path,
		FileName:  filepath.Base(path),
		Source:    "file",
		ErrorType: errorType,
		Message:   message,
		Details:   err.Error(),
	}
}

// Validate checks semantic constraints the schema cannot express.
func (c DriverConfig) Validate() error {
	var errs ConfigurationErrorCollection
	add := func(msg string, suggestions ...string) {
		errs.Errors = append(errs.Errors, ConfigurationError{
			FileName:    configFileName,
			Source:      "merged",
			ErrorType:   "validation",
			Message:     msg,
			Suggestions: suggestions,
		})
	}

	if c.ProjectsDir == "" {
		add("projectsDir must not be empty", "set projectsDir or SUIDRIVER_PROJECTS_DIR")
	}
	if c.ProjectSuffix == "" {
		add("projectSuffix must not be empty", fmt.Sprintf("use the default %q", DefaultProjectSuffix))
	}
	if c.Engine.Command == "" {
		add("engine.command must not be empty", "set SUIDRIVER_ENGINE_COMMAND to the runner executable")
	}
	if c.Engine.CancelGrace < 0 {
		add("engine.cancelGrace must not be negative")
	}
	switch c.Storage.Type {
	case StorageNone, "":
	case StorageFile:
		if c.Storage.Path == "" {
			add("storage.path is required for file storage")
		}
	case StorageRedis:
		if c.Storage.Redis.Addr == "" {
			add("storage.redis.addr is required for redis storage")
		}
	default:
		add(fmt.Sprintf("unknown storage type %q", c.Storage.Type), "use one of none, file, redis")
	}
	if c.Cache.Size <= 0 {
		add("cache.size must be positive")
	}
	if c.Server.MaxConcurrentTasks <= 0 {
		add("server.maxConcurrentTasks must be positive")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
