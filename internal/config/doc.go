// Package config loads the driver configuration.
//
// Configuration is read from config.yaml in a single directory (default
// ~/.config/suidriver, overridable with --config-path). Values missing from the
// file fall back to GetDefaultConfig, and every field can be overridden from
// the environment with a SUIDRIVER_ prefix, for example:
//
//	SUIDRIVER_PROJECTS_DIR=/srv/projects
//	SUIDRIVER_ENGINE_COMMAND=/opt/runner/bin/suirunner
//	SUIDRIVER_ENGINE_SETTINGS_PASSWORD=...
//	SUIDRIVER_STORAGE_TYPE=redis
//	SUIDRIVER_STORAGE_REDIS_ADDR=redis:6379
//
// Secrets (the settings password and the Redis password) are only accepted
// from the environment and never read from or written to config.yaml.
//
// # Validation
//
// The raw document is validated against an embedded JSON schema before it is
// decoded, so unknown keys and malformed durations are reported with the
// offending path. The merged result is then checked by DriverConfig.Validate.
// All failures are ConfigurationError values, or a
// ConfigurationErrorCollection when several semantic checks fail at once.
//
// # Example config.yaml
//
//	projectsDir: /srv/ets/sui
//	watch:
//	  enabled: true
//	  debounce: 750ms
//	engine:
//	  command: suirunner
//	  args: ["--headless"]
//	  cancelGrace: 15s
//	  settingsFile: /etc/suidriver/engine-settings.yaml
//	storage:
//	  type: redis
//	  redis:
//	    addr: redis:6379
//	    ttl: 168h
//	server:
//	  listen: 0.0.0.0:8095
package config
