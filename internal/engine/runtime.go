package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/giantswarm/suidriver/internal/settings"
	"github.com/giantswarm/suidriver/pkg/logging"
)

// Runtime is the engine environment shared by all tasks of one driver.
type Runtime struct {
	workDir      string
	settings     *settings.Settings
	settingsFile string
	engine       Engine

	mu     sync.Mutex
	closed bool
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithEngine sets the engine implementation.
func WithEngine(e Engine) RuntimeOption {
	return func(r *Runtime) {
		r.engine = e
	}
}

// WithProcessEngine runs projects with the external runner described by cfg.
func WithProcessEngine(cfg ProcessConfig) RuntimeOption {
	return func(r *Runtime) {
		r.engine = NewProcessEngine(cfg, r)
	}
}

// NewRuntime creates a private working directory below workRoot, writes the
// decrypted settings into it for the engine and applies opts.
func NewRuntime(workRoot string, s *settings.Settings, opts ...RuntimeOption) (*Runtime, error) {
	if workRoot == "" {
		workRoot = os.TempDir()
	}
	if err := os.MkdirAll(workRoot, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work root %s: %w", workRoot, err)
	}
	workDir, err := os.MkdirTemp(workRoot, "runtime-")
	if err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}

	if s == nil {
		s = settings.Empty()
	}
	r := &Runtime{
		workDir:  workDir,
		settings: s,
	}

	if s.Len() > 0 {
		if err := r.writeSettings(); err != nil {
			_ = os.RemoveAll(workDir)
			return nil, err
		}
	}

	for _, opt := range opts {
		opt(r)
	}
	if r.engine == nil {
		_ = os.RemoveAll(workDir)
		return nil, errors.New("no engine configured")
	}

	logging.Debug("Engine", "Runtime created with work directory %s", workDir)
	return r, nil
}

func (r *Runtime) writeSettings() error {
	values := &yaml.Node{Kind: yaml.MappingNode}
	r.settings.Values().Each(func(k, v string) {
		values.Content = append(values.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: k},
			&yaml.Node{Kind: yaml.ScalarNode, Value: v, Style: yaml.DoubleQuotedStyle})
	})
	doc := &yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{
		{Kind: yaml.ScalarNode, Value: "settings"},
		values,
	}}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode engine settings: %w", err)
	}
	path := filepath.Join(r.workDir, "engine-settings.yaml")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write engine settings: %w", err)
	}
	r.settingsFile = path
	return nil
}

// Engine returns the engine implementation.
func (r *Runtime) Engine() Engine {
	return r.engine
}

// WorkDir is the directory for working copies.
func (r *Runtime) WorkDir() string {
	return r.workDir
}

// Settings returns the engine settings.
func (r *Runtime) Settings() *settings.Settings {
	return r.settings
}

// SettingsFile is the path of the decrypted settings handed to the engine,
// or empty when there are none.
func (r *Runtime) SettingsFile() string {
	return r.settingsFile
}

// Closed reports whether Close has been called.
func (r *Runtime) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Close removes the working directory, including any working copies left
// behind. It is safe to call more than once.
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	if err := os.RemoveAll(r.workDir); err != nil {
		return fmt.Errorf("failed to remove work directory %s: %w", r.workDir, err)
	}
	logging.Debug("Engine", "Runtime closed, removed %s", r.workDir)
	return nil
}
