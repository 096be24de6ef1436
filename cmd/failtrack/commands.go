package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	v1 "github.com/fyrsmithlabs/failtrack/pkg/api/v1"
	"github.com/fyrsmithlabs/failtrack/pkg/client"
)

// sampleFailure is registered when no record file is given.
func sampleFailure() *v1.FailureRecord {
	return &v1.FailureRecord{
		TestName:     "test_user_authentication",
		FilePath:     "/path/to/auth_test.go",
		LineNumber:   42,
		ErrorMessage: "AssertionError: Expected 'authenticated', got None",
		Traceback: `panic: AssertionError: Expected 'authenticated', got None

example.com/app/auth.TestUserAuthentication(...)
	/path/to/auth_test.go:42
`,
		Locals: map[string]string{
			"user":            `{"id": 123, "username": "testuser", "status": null}`,
			"expected_status": "authenticated",
		},
	}
}

// diagnose prints a failed operation the way a user wants to read it.
func (a *app) diagnose(err error) {
	w := a.out
	if a.output != "text" {
		w = a.errOut
	}

	var (
		transportErr *client.TransportError
		statusErr    *client.StatusError
		apiErr       *client.APIError
	)
	switch {
	case errors.As(err, &transportErr):
		failure(w, "Error connecting to failure tracker: %v", transportErr.Err)
	case errors.As(err, &statusErr):
		failure(w, "Error: Server returned %d", statusErr.StatusCode)
		if statusErr.Body != "" {
			fmt.Fprintln(w, statusErr.Body)
		}
	case errors.As(err, &apiErr):
		failure(w, "Error: %s", apiErr.Message)
		if len(apiErr.AvailableTopics) > 0 {
			fmt.Fprintf(w, "Available topics: %s\n", strings.Join(apiErr.AvailableTopics, ", "))
		}
	default:
		failure(w, "Error: %v", err)
	}
}

// failed is returned by commands whose diagnostic has already been printed.
var failed = &exitError{code: 1}

func (a *app) registerFailure(ctx context.Context, c *client.Client, rec *v1.FailureRecord) (string, bool) {
	a.status("📋 Registering a test failure...")
	resp, err := c.Register(ctx, rec)
	if err != nil {
		a.diagnose(err)
		return "", false
	}
	_ = a.render(resp, func(w io.Writer) {
		success(w, "Success! Failure registered with ID: %s", resp.FailureID)
		fmt.Fprintf(w, "🔍 Session ID: %s\n", resp.SessionID)
	})
	return resp.FailureID, true
}

func (a *app) listFailures(ctx context.Context, c *client.Client) ([]v1.FailureSummary, bool) {
	a.status("📋 Listing all registered failures...")
	resp, err := c.List(ctx)
	if err != nil {
		a.diagnose(err)
		return nil, false
	}
	_ = a.render(resp, func(w io.Writer) {
		success(w, "Found %d registered failures:", len(resp.Failures))
		for i, f := range resp.Failures {
			fmt.Fprintf(w, "\n--- Failure #%d ---\n", i+1)
			field(w, "ID", f.ID)
			field(w, "Test", f.TestName)
			field(w, "Error", f.ErrorMessage)
			field(w, "Status", f.Status)
			field(w, "Current debug step", f.CurrentDebugStep)
		}
	})
	return resp.Failures, true
}

func (a *app) failureInfo(ctx context.Context, c *client.Client, id string) (*v1.FailureInfo, bool) {
	a.status("🔍 Getting details for failure: %s...", id)
	info, err := c.GetInfo(ctx, id)
	if err != nil {
		a.diagnose(err)
		return nil, false
	}
	_ = a.render(info, func(w io.Writer) {
		header(w, "Failure Details")
		field(w, "Test", info.Failure.TestName)
		field(w, "File", info.Failure.FilePath)
		field(w, "Error", info.Failure.ErrorMessage)

		header(w, "Debugging Progress")
		if p := info.Debugging.CurrentPrinciple; p != nil {
			field(w, "Current principle", fmt.Sprintf("#%d - %s", p.Number, p.Name))
		} else {
			field(w, "Current principle", "none, all principles completed")
		}
		field(w, "Progress", client.ProgressLine(info))

		if len(info.Debugging.CompletedPrinciples) > 0 {
			header(w, "Completed Debugging Steps")
			for _, step := range info.Debugging.CompletedPrinciples {
				fmt.Fprintf(w, "#%d - %s\n", step.Number, step.Name)
				field(w, "Analysis", strings.TrimSpace(step.Analysis))
				fmt.Fprintln(w, "---")
			}
		}
	})
	return info, true
}

func (a *app) applyPrinciple(ctx context.Context, c *client.Client, ann v1.DebugAnnotation) bool {
	a.status("🧠 Applying debugging principle #%d to failure %s...", ann.PrincipleNumber, ann.FailureID)
	resp, err := c.Annotate(ctx, ann)
	if err != nil {
		a.diagnose(err)
		return false
	}
	_ = a.render(resp, func(w io.Writer) {
		success(w, "Successfully applied principle #%d", ann.PrincipleNumber)
		if next := resp.NextPrinciple; next != nil {
			fmt.Fprintf(w, "📝 Next principle: #%d - %s\n", next.Number, next.Name)
			field(w, "Description", next.Description)
		}
	})
	return true
}

func (a *app) analyzeFailures(ctx context.Context, c *client.Client, q v1.AnalysisQuery) (*v1.AnalysisResponse, bool) {
	a.status("🔍 Analyzing test failures...")
	resp, err := c.Analyze(ctx, q)
	if err != nil {
		a.diagnose(err)
		return nil, false
	}
	_ = a.render(resp, func(w io.Writer) {
		header(w, "Failure Analysis Results")
		field(w, "Total Failures", resp.TotalFailures)
		field(w, "Groups Found", resp.GroupCount)
		field(w, "Grouped By", resp.GroupBy)

		if len(resp.Groups) > 0 {
			fmt.Fprintln(w, "\n--- Failure Groups ---")
			for i, g := range resp.Groups {
				fmt.Fprintf(w, "\nGroup #%d: %s\n", i+1, g.Name)
				fmt.Fprintf(w, "  Count: %d failures\n", g.Count)
				fmt.Fprintf(w, "  Error Type: %s\n", g.CommonErrorType)
				fmt.Fprintf(w, "  Hypothesis: %s\n", g.RootCauseHypothesis)
			}
		}
		if in := resp.Insights; in != nil {
			fmt.Fprintln(w, "\n--- Insights ---")
			field(w, "Most Common Error", in.MostCommonError)
			fmt.Fprintln(w, "\nError Distribution:")
			for _, kind := range slices.Sorted(maps.Keys(in.ErrorDistribution)) {
				fmt.Fprintf(w, "  %s: %d failures\n", kind, in.ErrorDistribution[kind])
			}
			fmt.Fprintln(w, "\nTriage Recommendations:")
			for _, r := range in.TriageRecommendations {
				fmt.Fprintf(w, "  [Priority: %s] %s\n", r.Priority, r.Recommendation)
			}
		}
	})
	return resp, true
}

func (a *app) generatePrompt(ctx context.Context, c *client.Client, p v1.PromptRequest) bool {
	if err := p.Validate(); err != nil {
		a.diagnose(err)
		return false
	}
	kind, id := p.Target()
	a.status("📝 Generating debug prompt for %s %s...", kind, id)
	resp, err := c.GeneratePrompt(ctx, p)
	if err != nil {
		a.diagnose(err)
		return false
	}
	_ = a.render(resp, func(w io.Writer) {
		header(w, "Debug Prompt")
		field(w, "Title", resp.Title)
		field(w, "Style", resp.PromptStyle)
		fmt.Fprintf(w, "\nInstructions for LLM:\n%s\n", resp.Instructions)
		fmt.Fprintln(w, "\nPrompt Content:")
		fmt.Fprintln(w, rule)
		fmt.Fprintln(w, resp.Prompt)
		fmt.Fprintln(w, rule)
	})
	return true
}

func (a *app) documentation(ctx context.Context, c *client.Client, topic string) bool {
	on := ""
	if topic != "" {
		on = " on " + topic
	}
	a.status("📚 Getting documentation%s...", on)
	resp, err := c.GetDocs(ctx, topic)
	if err != nil {
		a.diagnose(err)
		return false
	}
	_ = a.render(resp, func(w io.Writer) {
		header(w, "Documentation: "+resp.Topic)
		fmt.Fprintln(w, resp.Description)
		fmt.Fprintln(w)
		fmt.Fprintln(w, strings.TrimRight(resp.Docs, "\n"))
	})
	return true
}

func newRegisterCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a failure record",
		Long: `Register a failure record with the service.

Without --file a built-in sample failure is registered.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rec := sampleFailure()
			if file != "" {
				loaded, err := readRecord(file)
				if err != nil {
					return err
				}
				rec = loaded
			}
			if _, ok := a.registerFailure(cmd.Context(), a.client(), rec); !ok {
				return failed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "JSON failure record to register")
	return cmd
}

func readRecord(path string) (*v1.FailureRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading record: %w", err)
	}
	var rec v1.FailureRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing record %s: %w", path, err)
	}
	if rec.Locals == nil {
		rec.Locals = map[string]string{}
	}
	return &rec, nil
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered failures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, ok := a.listFailures(cmd.Context(), a.client()); !ok {
				return failed
			}
			return nil
		},
	}
}

func newInfoCmd(a *app) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show a failure and its debugging progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, ok := a.failureInfo(cmd.Context(), a.client(), id); !ok {
				return failed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "failure-id", "", "failure id")
	_ = cmd.MarkFlagRequired("failure-id")
	return cmd
}

func newDebugCmd(a *app) *cobra.Command {
	var ann v1.DebugAnnotation
	cmd := &cobra.Command{
		Use:   "debug",
		Short: "Record the analysis for one debugging principle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !a.applyPrinciple(cmd.Context(), a.client(), ann) {
				return failed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&ann.FailureID, "failure-id", "", "failure id")
	cmd.Flags().IntVar(&ann.PrincipleNumber, "principle", 0, "principle number (1-9)")
	cmd.Flags().StringVar(&ann.Analysis, "analysis", "", "analysis text")
	for _, name := range []string{"failure-id", "principle", "analysis"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newDocsCmd(a *app) *cobra.Command {
	var topic string
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Show service documentation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !a.documentation(cmd.Context(), a.client(), topic) {
				return failed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&topic, "topic", "", "documentation topic")
	return cmd
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		groupBy, timeRange string
		includeResolved    bool
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Group failures and show triage insights",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := v1.AnalysisQuery{
				GroupBy:         v1.GroupBy(groupBy),
				TimeRange:       v1.TimeRange(timeRange),
				IncludeResolved: includeResolved,
			}
			if _, ok := a.analyzeFailures(cmd.Context(), a.client(), q); !ok {
				return failed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&groupBy, "group-by", "", "error_type, file_path or pattern")
	cmd.Flags().StringVar(&timeRange, "time-range", "", "all, today, week or month")
	cmd.Flags().BoolVar(&includeResolved, "include-resolved", false, "include resolved failures")
	return cmd
}

func newPromptCmd(a *app) *cobra.Command {
	var (
		p     v1.PromptRequest
		style string
	)
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Generate a debugging prompt for a failure or a group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p.PromptStyle = v1.PromptStyle(style)
			if !a.generatePrompt(cmd.Context(), a.client(), p) {
				return failed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&p.FailureID, "failure-id", "", "failure id")
	cmd.Flags().StringVar(&p.GroupID, "group-id", "", "group id")
	cmd.Flags().StringVar(&style, "prompt-style", "", "detailed, concise, step_by_step or root_cause")
	cmd.MarkFlagsOneRequired("failure-id", "group-id")
	cmd.MarkFlagsMutuallyExclusive("failure-id", "group-id")
	return cmd
}
