package cmd

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/giantswarm/suidriver/internal/api"
	"github.com/giantswarm/suidriver/internal/driver"
	"github.com/giantswarm/suidriver/internal/report"
	"github.com/giantswarm/suidriver/internal/task"
)

type runOptions struct {
	all          bool
	withDeps     bool
	cases        []string
	suite        string
	params       []string
	resources    []string
	username     string
	password     string
	ignoreErrors bool
	output       string
	template     string
	noColor      bool
	quiet        bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [descriptor-id...]",
		Short: "Run test suites and print their results",
		Long: `Run one or more test suites against a test object and print the results.

Suites run in parallel, bounded by server.maxConcurrentTasks. With --with-deps
the selected suites and their dependencies run one after another in
dependency order.

The command exits with code 2 when a suite finished with failed assertions
and with code 4 when it was interrupted.`,
		Example: `  suidriver run --all -o json
  suidriver run 4c1f... --case GetCapabilities --param maxFeatures=10 \
    --resource serviceEndpoint=https://example.com/wfs`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args, opts)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&opts.all, "all", false, "Run every known test suite")
	f.BoolVar(&opts.withDeps, "with-deps", false, "Also run dependencies, sequentially in dependency order")
	f.StringSliceVar(&opts.cases, "case", nil, "Test case to run (repeatable); all cases when omitted")
	f.StringVar(&opts.suite, "suite", "", "Restrict the run to one test suite of the project")
	f.StringArrayVar(&opts.params, "param", nil, "Test run argument as key=value (repeatable)")
	f.StringArrayVar(&opts.resources, "resource", nil, "Test object resource as name=uri (repeatable)")
	f.StringVar(&opts.username, "username", "", "Test object user name")
	f.StringVar(&opts.password, "password", "", "Test object password")
	f.BoolVar(&opts.ignoreErrors, "ignore-errors", false, "Report suites as passed even with failed assertions")
	f.StringVarP(&opts.output, "output", "o", string(report.FormatTable), "Output format: table, json, yaml or text")
	f.StringVar(&opts.template, "template", "", "Go template for text output")
	f.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "Do not show progress")
	return cmd
}

func runRun(cmd *cobra.Command, ids []string, opts *runOptions) error {
	format, err := report.ParseFormat(opts.output)
	if err != nil {
		return err
	}
	if len(ids) == 0 && !opts.all {
		return fmt.Errorf("no test suites selected: pass descriptor ids or --all")
	}
	base, err := opts.taskConfig()
	if err != nil {
		return err
	}

	drv, err := startOneShotDriver(cmd)
	if err != nil {
		return err
	}
	defer closeDriver(drv)

	if opts.all {
		ids = ids[:0]
		for _, d := range drv.Descriptors() {
			ids = append(ids, d.ID)
		}
	}
	if opts.withDeps {
		ordered, err := drv.Catalog().Order(ids)
		if err != nil {
			return err
		}
		ids = ids[:0]
		for _, d := range ordered {
			ids = append(ids, d.ID)
		}
	}

	stop := startProgress(cmd, drv, opts.quiet)
	ctrls, err := executeAll(cmd, drv, ids, base, opts.withDeps)
	stop()
	if err != nil {
		return err
	}

	reps := make([]report.Report, 0, len(ctrls))
	for _, ctrl := range ctrls {
		if ctrl != nil {
			reps = append(reps, report.Report{Outcome: ctrl.Outcome(), Result: ctrl.Result()})
		}
	}
	r := report.Renderer{Format: format, Color: !opts.noColor, Template: opts.template}
	if err := r.Tasks(cmd.OutOrStdout(), reps); err != nil {
		return err
	}

	if err := cmd.Context().Err(); err != nil {
		return api.NewTaskError(api.KindCancelled, err, "run interrupted")
	}
	return verdictError(reps)
}

// executeAll runs one task per id and returns the controllers in id order.
func executeAll(cmd *cobra.Command, drv *driver.Driver, ids []string, base api.TaskConfig, sequential bool) ([]*task.Controller, error) {
	ctx := cmd.Context()
	ctrls := make([]*task.Controller, len(ids))

	if sequential {
		for i, id := range ids {
			if ctx.Err() != nil {
				break
			}
			ctrl, err := drv.Execute(ctx, forDescriptor(base, id))
			if ctrl == nil {
				return ctrls, err
			}
			ctrls[i] = ctrl
		}
		return ctrls, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(drv.Config().Server.MaxConcurrentTasks, 1))
	for i, id := range ids {
		g.Go(func() error {
			ctrl, err := drv.Execute(gctx, forDescriptor(base, id))
			if ctrl == nil {
				return err
			}
			ctrls[i] = ctrl
			return nil
		})
	}
	return ctrls, g.Wait()
}

func forDescriptor(base api.TaskConfig, id string) api.TaskConfig {
	cfg := base
	cfg.DescriptorID = id
	cfg.Cases = append([]string(nil), base.Cases...)
	cfg.Arguments = base.Arguments.Clone()
	cfg.TestObject.Resources = base.TestObject.Resources.Clone()
	return cfg
}

// verdictError turns failed suites into an error carrying the exit code.
// Assertion failures exit with ExitCodeTestsFailed, anything else with
// ExitCodeError.
func verdictError(reps []report.Report) error {
	failed := 0
	kind := api.KindAssertionFailure
	for _, rep := range reps {
		if rep.Outcome.Passed {
			continue
		}
		failed++
		if rep.Outcome.ErrorKind != api.KindAssertionFailure {
			kind = api.KindExecutionFailure
		}
	}
	if failed == 0 {
		return nil
	}
	return api.NewTaskError(kind, nil, "%d of %d test suites did not pass", failed, len(reps))
}

func (o *runOptions) taskConfig() (api.TaskConfig, error) {
	args, err := parseAssignments("param", o.params)
	if err != nil {
		return api.TaskConfig{}, err
	}
	resources, err := parseAssignments("resource", o.resources)
	if err != nil {
		return api.TaskConfig{}, err
	}
	return api.TaskConfig{
		Cases:     o.cases,
		Suite:     o.suite,
		Arguments: args,
		TestObject: api.TestObject{
			Resources: resources,
			Username:  o.username,
			Password:  o.password,
		},
		IgnoreErrors: o.ignoreErrors,
	}, nil
}

// parseAssignments parses key=value flags, keeping their order. A repeated
// key overwrites the earlier value.
func parseAssignments(flag string, values []string) (api.ParameterSet, error) {
	var ps api.ParameterSet
	for _, v := range values {
		key, value, ok := strings.Cut(v, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return ps, fmt.Errorf("invalid --%s %q: expected key=value", flag, v)
		}
		ps.Set(key, value)
	}
	return ps, nil
}

// startProgress shows a spinner with the combined step progress of all
// tasks until the returned func is called.
func startProgress(cmd *cobra.Command, drv *driver.Driver, quiet bool) func() {
	if quiet {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
	s.Suffix = " Starting test suites..."
	s.Start()

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				suffix := progressSuffix(drv.Tasks())
				s.Lock()
				s.Suffix = suffix
				s.Unlock()
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
		s.Stop()
	}
}

func progressSuffix(ctrls []*task.Controller) string {
	var completed, total, finished int
	for _, ctrl := range ctrls {
		p := ctrl.Progress()
		completed += p.StepsCompleted
		total += p.StepsTotal
		if ctrl.State().IsTerminal() {
			finished++
		}
	}
	return fmt.Sprintf(" %d/%d suites finished, %d/%d steps", finished, len(ctrls), completed, total)
}
