package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/giantswarm/suidriver/internal/api"
	"github.com/giantswarm/suidriver/internal/project"
	"github.com/giantswarm/suidriver/pkg/logging"
)

const (
	maxEventLineSize = 16 * 1024 * 1024
	stderrTailLines  = 40
)

// ProcessConfig describes the runner executable.
type ProcessConfig struct {
	Command string
	Args    []string
	Env     []string
	// CancelGrace is how long a cancelled runner may take to finish its
	// current step before it is killed.
	CancelGrace time.Duration
}

// RunnerError is returned when the runner exits unsuccessfully on its own.
type RunnerError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *RunnerError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("runner exited with code %d: %s", e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("runner exited with code %d", e.ExitCode)
}

func (e *RunnerError) Unwrap() error {
	return e.Err
}

// ProcessEngine runs projects by spawning the external runner.
type ProcessEngine struct {
	cfg     ProcessConfig
	runtime *Runtime
}

// NewProcessEngine creates a process engine bound to rt.
func NewProcessEngine(cfg ProcessConfig, rt *Runtime) *ProcessEngine {
	return &ProcessEngine{cfg: cfg, runtime: rt}
}

// Open reads the project outline; the runner is not started until a Run call.
func (e *ProcessEngine) Open(ctx context.Context, path string) (Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	meta, err := project.Load(path)
	if err != nil {
		return nil, err
	}
	return &processProject{engine: e, path: path, meta: meta}, nil
}

type processProject struct {
	engine *ProcessEngine
	path   string
	meta   *project.Project

	mu         sync.Mutex
	properties api.ParameterSet
	listeners  []Listener
	released   bool
}

func (p *processProject) Metadata() *project.Project {
	return p.meta
}

func (p *processProject) SetProperty(key, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.properties.Set(key, value)
}

func (p *processProject) AddListener(l Listener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, l)
}

func (p *processProject) RunCases(ctx context.Context, cases []api.CaseRef) error {
	selection := make([]string, 0, 2*len(cases))
	for _, ref := range cases {
		selection = append(selection, "--case", ref.String())
	}
	return p.run(ctx, selection)
}

func (p *processProject) RunSuite(ctx context.Context, suite string) error {
	return p.run(ctx, []string{"--suite", suite})
}

func (p *processProject) RunProject(ctx context.Context) error {
	return p.run(ctx, nil)
}

func (p *processProject) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = true
	p.listeners = nil
	return nil
}

func (p *processProject) commandArgs(selection []string) ([]string, []Listener, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return nil, nil, errors.New("project has been released")
	}

	args := append([]string{}, p.engine.cfg.Args...)
	args = append(args, "--project", p.path)
	if f := p.engine.runtime.SettingsFile(); f != "" {
		args = append(args, "--settings", f)
	}
	args = append(args, selection...)
	p.properties.Each(func(k, v string) {
		args = append(args, "--property", k+"="+v)
	})
	return args, append([]Listener(nil), p.listeners...), nil
}

func (p *processProject) run(ctx context.Context, selection []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	args, listeners, err := p.commandArgs(selection)
	if err != nil {
		return err
	}

	cfg := p.engine.cfg
	cmd := exec.CommandContext(ctx, cfg.Command, args...)
	cmd.Dir = p.engine.runtime.WorkDir()
	cmd.Env = append(os.Environ(), cfg.Env...)
	configureProcAttr(cmd)
	cmd.Cancel = func() error {
		logging.Debug("Engine", "Interrupting runner pid %d", cmd.Process.Pid)
		return interruptProcess(cmd)
	}
	cmd.WaitDelay = cfg.CancelGrace

	stdoutReader, stdoutWriter := io.Pipe()
	stderr := newTailBuffer(stderrTailLines)
	cmd.Stdout = stdoutWriter
	cmd.Stderr = stderr

	consumed := make(chan error, 1)
	go func() {
		consumed <- consumeEvents(stdoutReader, listeners)
	}()

	logging.Debug("Engine", "Starting runner %s with %d arguments", cfg.Command, len(args))
	if err := cmd.Start(); err != nil {
		stdoutWriter.Close()
		<-consumed
		return fmt.Errorf("failed to start runner %s: %w", cfg.Command, err)
	}

	waitErr := cmd.Wait()
	stdoutWriter.Close()
	readErr := <-consumed

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if waitErr != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return &RunnerError{ExitCode: exitCode, Stderr: stderr.String(), Err: waitErr}
	}
	if readErr != nil {
		return fmt.Errorf("failed to read runner output: %w", readErr)
	}
	return nil
}

// consumeEvents dispatches runner output until EOF. After a read error the
// rest of the output is drained so the runner never blocks on a full pipe.
func consumeEvents(r io.Reader, listeners []Listener) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxEventLineSize)
	for scanner.Scan() {
		line := scanner.Text()
		if err := dispatchLine(line, listeners); err != nil {
			if strings.TrimSpace(line) != "" {
				logging.Debug("Engine", "runner: %s", line)
			}
		}
	}
	err := scanner.Err()
	if err != nil {
		_, _ = io.Copy(io.Discard, r)
	}
	return err
}

// tailBuffer keeps the last lines written to it.
type tailBuffer struct {
	mu      sync.Mutex
	max     int
	lines   []string
	partial strings.Builder
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(data []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range string(data) {
		if c == '\n' {
			b.push(b.partial.String())
			b.partial.Reset()
			continue
		}
		b.partial.WriteRune(c)
	}
	return len(data), nil
}

func (b *tailBuffer) push(line string) {
	b.lines = append(b.lines, line)
	if len(b.lines) > b.max {
		b.lines = b.lines[len(b.lines)-b.max:]
	}
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	lines := append([]string(nil), b.lines...)
	if b.partial.Len() > 0 {
		lines = append(lines, b.partial.String())
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
