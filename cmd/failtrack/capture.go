package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/failtrack/internal/delivery"
	"github.com/fyrsmithlabs/failtrack/internal/extract"
	"github.com/fyrsmithlabs/failtrack/internal/hooks"
	"github.com/fyrsmithlabs/failtrack/internal/testjson"
)

type captureOptions struct {
	input         string
	quiet         bool
	metricsFile   string
	propagateExit bool
	moduleRoot    string
}

func newCaptureCmd(a *app) *cobra.Command {
	var opts captureOptions
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Report failures from a go test -json stream",
		Long: `Read the JSON event stream of 'go test -json' and register every failing
test with the failure tracker.

The test output is echoed to stdout as it arrives. Delivery problems are
reported but never change the exit status; use --propagate-exit to exit
non-zero when the test run itself failed.

Examples:
  go test -json ./... | failtrack capture
  failtrack capture --input results.json --quiet --metrics-file capture.prom`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runCapture(cmd.Context(), opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.input, "input", "i", "-", "test2json stream to read, - for stdin")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "do not echo the test output")
	f.StringVar(&opts.metricsFile, "metrics-file", "", "write delivery metrics in Prometheus text format to this file")
	f.BoolVar(&opts.propagateExit, "propagate-exit", false, "exit 1 when the test run failed")
	f.StringVar(&opts.moduleRoot, "module-root", "", "module root used to locate test sources (default capture.module_root or the working directory)")
	return cmd
}

func (a *app) runCapture(ctx context.Context, opts captureOptions) error {
	in := a.in
	if opts.input != "" && opts.input != "-" {
		f, err := os.Open(opts.input)
		if err != nil {
			return fmt.Errorf("opening test stream: %w", err)
		}
		defer f.Close()
		in = f
	}

	logger := a.logger.Named("capture")
	reg := prometheus.NewRegistry()
	hook, err := hooks.FromConfig(a.cfg, hooks.Deps{
		Out:     a.out,
		Logger:  logger,
		Tracer:  a.tel.Tracer("github.com/fyrsmithlabs/failtrack/internal/delivery"),
		Metrics: delivery.NewMetrics(reg),
	})
	if err != nil {
		return err
	}
	hook.Manager().RegisterHandler(hooks.HookRunEnd, func(_ context.Context, data map[string]any) error {
		fmt.Fprintf(a.out, "\nfailtrack: %v failures captured, %v registered\n", data["captured"], data["delivered"])
		return nil
	})

	root := opts.moduleRoot
	if root == "" {
		root = a.cfg.Capture.ModuleRoot
	}
	scanOpts := []testjson.Option{testjson.WithLogger(logger)}
	if resolver, err := testjson.NewResolver(root); err != nil {
		logger.Warn(ctx, "test sources will not be resolved", zap.Error(err))
	} else {
		scanOpts = append(scanOpts, testjson.WithResolver(resolver))
	}
	if !opts.quiet {
		scanOpts = append(scanOpts, testjson.WithEcho(a.out))
	}

	hook.Start(ctx)
	summary, scanErr := testjson.NewScanner(scanOpts...).Scan(ctx, in, func(ctx context.Context, inv extract.TestInvocation) {
		hook.OnOutcome(ctx, inv)
	})
	hook.End(ctx, map[string]any{
		"passed":  summary.Passed,
		"failed":  summary.Failed,
		"skipped": summary.Skipped,
	})

	if opts.metricsFile != "" {
		if err := prometheus.WriteToTextfile(opts.metricsFile, reg); err != nil {
			logger.Warn(ctx, "writing metrics file", zap.String("path", opts.metricsFile), zap.Error(err))
		}
	}
	if scanErr != nil {
		return scanErr
	}
	if opts.propagateExit && !summary.OK() {
		return &exitError{code: 1}
	}
	return nil
}
