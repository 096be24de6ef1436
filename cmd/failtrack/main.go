// Package main implements the failtrack CLI: a debug session client for the
// failure-tracking service and the `capture` command that reports failures
// from a `go test -json` stream.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/failtrack/internal/config"
	"github.com/fyrsmithlabs/failtrack/internal/logging"
	"github.com/fyrsmithlabs/failtrack/internal/telemetry"
	"github.com/fyrsmithlabs/failtrack/pkg/client"
)

// version is set at build time.
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run executes the CLI and returns the process exit code.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdin, stdout, stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err == nil {
		return 0
	}
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}

// exitError ends the process with code without printing anything further.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// app carries the state shared by all subcommands.
type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	serverURL  string
	configPath string
	output     string
	logLevel   string

	cfg    *config.Config
	logger *logging.Logger
	tel    *telemetry.Telemetry
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{in: stdin, out: stdout, errOut: stderr}

	root := &cobra.Command{
		Use:   "failtrack",
		Short: "Track and debug test failures",
		Long: `failtrack reports failing tests to a failure-tracking service and walks
through a structured debugging session for each failure.

Examples:
  # Report failures from a test run
  go test -json ./... | failtrack capture

  # Inspect a failure and record progress
  failtrack info --failure-id f1
  failtrack debug --failure-id f1 --principle 1 --analysis "read the handler"`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: a.teardown,
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&a.serverURL, "server", "", "failure tracker URL (default "+config.DefaultServerURL+")")
	flags.StringVar(&a.configPath, "config", "", "config file path")
	flags.StringVarP(&a.output, "output", "o", "text", "output format: text, json or yaml")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: trace, debug, info, warn or error")

	root.AddCommand(
		newRegisterCmd(a),
		newListCmd(a),
		newInfoCmd(a),
		newDebugCmd(a),
		newDocsCmd(a),
		newAnalyzeCmd(a),
		newPromptCmd(a),
		newDemoCmd(a),
		newAnalyticsDemoCmd(a),
		newCaptureCmd(a),
		newVersionCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	switch a.output {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("--output must be text, json or yaml, got %q", a.output)
	}

	cfg, err := config.Load(config.Options{Path: a.configPath})
	if err != nil {
		return err
	}
	if a.serverURL != "" {
		cfg.Server.URL = a.serverURL
		cfg.Capture.Endpoints = nil
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	a.cfg = cfg

	tel, err := telemetry.New(cmd.Context(), telemetry.FromConfig(cfg.Telemetry, version))
	if err != nil {
		return err
	}
	a.tel = tel

	logger, err := newLogger(cfg.Logging, a.errOut, tel)
	if err != nil {
		return err
	}
	a.logger = logger
	if degraded, reason := tel.Degraded(); degraded {
		logger.Warn(cmd.Context(), "telemetry degraded", zap.String("reason", reason))
	}
	return nil
}

func (a *app) teardown(cmd *cobra.Command, _ []string) {
	if a.tel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.tel.Shutdown(ctx)
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func newLogger(lc config.LoggingConfig, w io.Writer, tel *telemetry.Telemetry) (*logging.Logger, error) {
	cfg := logging.NewDefaultConfig()
	cfg.Format = lc.Format
	if lc.Level != "" {
		level, err := logging.LevelFromString(lc.Level)
		if err != nil {
			return nil, err
		}
		cfg.Level = level
	}
	if tel.LoggerProvider() != nil {
		cfg.Output.OTEL = true
	}
	return logging.NewLoggerTo(cfg, w, tel.LoggerProvider())
}

// client returns a protocol client for the configured service.
func (a *app) client() *client.Client {
	return client.FromConfig(a.cfg,
		client.WithLogger(a.logger.Named("client")),
		client.WithTracer(a.tel.Tracer("github.com/fyrsmithlabs/failtrack/cmd/failtrack")),
	)
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the failtrack version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.render(map[string]string{"version": version}, func(w io.Writer) {
				fmt.Fprintf(w, "failtrack %s\n", version)
			})
		},
	}
}
