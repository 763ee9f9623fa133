package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/giantswarm/suidriver/internal/api"
	"github.com/giantswarm/suidriver/internal/config"
	"github.com/giantswarm/suidriver/internal/driver"
	"github.com/giantswarm/suidriver/pkg/logging"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeTestsFailed indicates that at least one test suite did not pass.
	ExitCodeTestsFailed = 2
	// ExitCodeConfiguration indicates unusable configuration or engine settings.
	ExitCodeConfiguration = 3
	// ExitCodeCancelled indicates the run was interrupted.
	ExitCodeCancelled = 4
)

var (
	appVersion = "dev"

	configPath string
	debug      bool
	logLevel   string
	logFormat  string
)

// rootCmd is the entry point when the application is called without any subcommands.
var rootCmd = newRootCmd()

// newDriver builds the driver used by commands. Tests replace it to inject
// a scripted engine.
var newDriver = func(cfg config.DriverConfig) (*driver.Driver, error) {
	return driver.New(driver.Options{Config: cfg, Version: GetVersion()})
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	appVersion = v
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return appVersion
}

// Execute runs the root command and exits with a code derived from the error.
// SIGINT and SIGTERM cancel the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if detailed, ok := config.Detailed(err); ok {
			fmt.Fprintln(os.Stderr, detailed)
		}
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
func getExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	if _, ok := config.Detailed(err); ok {
		return ExitCodeConfiguration
	}
	if errors.Is(err, context.Canceled) {
		return ExitCodeCancelled
	}

	switch api.KindOf(err) {
	case api.KindAssertionFailure:
		return ExitCodeTestsFailed
	case api.KindConfigurationError:
		return ExitCodeConfiguration
	case api.KindCancelled:
		return ExitCodeCancelled
	}
	return ExitCodeError
}

// loadConfig reads the driver configuration from --config-path.
func loadConfig() (config.DriverConfig, error) {
	path := configPath
	if path == "" {
		path = config.GetDefaultConfigPath()
	}
	return config.LoadConfig(path)
}

// newRootCmd builds the command tree. Persistent flags are bound to package
// variables, so every call resets them to their defaults.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "suidriver",
		Short: "Run SoapUI projects as executable test suites",
		Long: `suidriver discovers SoapUI projects in a directory, publishes them as
executable test suites and runs them against a test object.

It can run suites directly from the command line or serve them to a host
over HTTP and MCP.`,
		// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
		SilenceUsage:      true,
		Version:           appVersion,
		PersistentPreRunE: initLogging,
	}
	root.SetVersionTemplate(`{{printf "suidriver version %s\n" .Version}}`)

	root.PersistentFlags().StringVar(&configPath, "config-path", "", "Directory containing config.yaml (default is $HOME/.config/suidriver)")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging (same as --log-level debug)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	root.PersistentFlags().StringVar(&logFormat, "log-format", string(logging.FormatText), "Log format: text or json")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newSettingsCmd())
	return root
}

func initLogging(cmd *cobra.Command, _ []string) error {
	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	if debug {
		level = logging.LevelDebug
	}
	format, err := logging.ParseFormat(logFormat)
	if err != nil {
		return err
	}
	logging.Init(level, format, cmd.ErrOrStderr())
	return nil
}
