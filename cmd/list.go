package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/giantswarm/suidriver/internal/api"
	"github.com/giantswarm/suidriver/internal/driver"
	"github.com/giantswarm/suidriver/internal/report"
	"github.com/giantswarm/suidriver/pkg/logging"
)

type listOptions struct {
	output   string
	noColor  bool
	withDeps bool
}

func newListCmd() *cobra.Command {
	opts := &listOptions{}
	cmd := &cobra.Command{
		Use:   "list [descriptor-id...]",
		Short: "List the test suites found in the projects directory",
		Long: `Scan the projects directory once and list the executable test suites.

When descriptor ids are given only those are listed; unknown ids are skipped.
With --with-deps the listed suites include their dependencies, ordered so
that every suite follows the suites it depends on.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, args, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.output, "output", "o", string(report.FormatTable), "Output format: table, json, yaml or text")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().BoolVar(&opts.withDeps, "with-deps", false, "Include dependencies, in execution order")
	return cmd
}

func runList(cmd *cobra.Command, ids []string, opts *listOptions) error {
	format, err := report.ParseFormat(opts.output)
	if err != nil {
		return err
	}
	drv, err := startOneShotDriver(cmd)
	if err != nil {
		return err
	}
	defer closeDriver(drv)

	var descs []*api.ProjectDescriptor
	switch {
	case len(ids) == 0:
		descs = drv.Descriptors()
	case opts.withDeps:
		descs, err = drv.Catalog().Order(ids)
		if err != nil {
			return err
		}
	default:
		descs = drv.Lookup(ids)
	}

	r := report.Renderer{Format: format, Color: !opts.noColor}
	return r.Descriptors(cmd.OutOrStdout(), descs)
}

// startOneShotDriver loads the configuration, disables directory watching
// and performs the initial scan.
func startOneShotDriver(cmd *cobra.Command) (*driver.Driver, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	cfg.Watch.Enabled = false

	drv, err := newDriver(cfg)
	if err != nil {
		return nil, err
	}
	if err := drv.Start(cmd.Context()); err != nil {
		closeDriver(drv)
		return nil, fmt.Errorf("failed to scan %s: %w", cfg.ProjectsDir, err)
	}
	return drv, nil
}

func closeDriver(drv *driver.Driver) {
	if err := drv.Close(); err != nil {
		logging.Warn("CLI", "Failed to close driver: %v", err)
	}
}
