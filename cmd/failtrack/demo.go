package main

import (
	"github.com/spf13/cobra"

	v1 "github.com/fyrsmithlabs/failtrack/pkg/api/v1"
)

const (
	demoAnalysis1 = `I've analyzed the test_user_authentication function and understand that it's verifying a user's authentication status.
The test expects the user.status to be 'authenticated', but it's actually None.
This suggests that either the authentication process failed or the status was not properly set.`

	demoAnalysis2 = `I've verified that this failure is consistent and reproducible. Each time the test runs,
the user.status is None instead of 'authenticated'. This is not a flaky test but a
consistent behavior indicating a real issue with the authentication process.`
)

func newDemoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Walk through a full debugging session against the service",
		Long: `Register the sample failure, list failures, show its details, apply the
first two debugging principles and generate a step-by-step prompt.

The demo stops if the failure cannot be registered. Later steps run even
when an earlier one fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c := a.client()

			a.status("🚀 Running a full demo of the failtrack client...")
			a.status(rule)

			id, ok := a.registerFailure(ctx, c, sampleFailure())
			if !ok {
				a.status("❌ Demo failed: Could not register a test failure")
				return failed
			}

			a.separate()
			a.listFailures(ctx, c)
			a.separate()
			a.failureInfo(ctx, c, id)
			a.separate()
			a.applyPrinciple(ctx, c, v1.DebugAnnotation{FailureID: id, PrincipleNumber: 1, Analysis: demoAnalysis1})
			a.separate()
			a.applyPrinciple(ctx, c, v1.DebugAnnotation{FailureID: id, PrincipleNumber: 2, Analysis: demoAnalysis2})
			a.separate()
			a.failureInfo(ctx, c, id)
			a.separate()
			a.generatePrompt(ctx, c, v1.PromptRequest{FailureID: id, PromptStyle: v1.PromptStepByStep})
			return nil
		},
	}
}

func newAnalyticsDemoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "analytics-demo",
		Aliases: []string{"analytics_demo"},
		Short:   "Demonstrate failure grouping, prompts and documentation",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c := a.client()

			a.status("🚀 Running a demo of the failure analytics features...")
			a.status(rule)

			if failures, _ := a.listFailures(ctx, c); len(failures) < 2 {
				a.status("\nRegistering some test failures for the demo...")
				a.registerFailure(ctx, c, sampleFailure())
				a.registerFailure(ctx, c, sampleFailure())
			}

			a.separate()
			a.status("\nRunning failure analytics with default grouping (by error type)...")
			resp, ok := a.analyzeFailures(ctx, c, v1.AnalysisQuery{})

			if ok && len(resp.Groups) > 0 {
				first := resp.Groups[0]

				a.separate()
				a.status("\nGenerating a detailed debug prompt for group: %s...", first.Name)
				a.generatePrompt(ctx, c, v1.PromptRequest{GroupID: first.ID, PromptStyle: v1.PromptDetailed})

				a.separate()
				a.status("\nGenerating a concise debug prompt for the same group...")
				a.generatePrompt(ctx, c, v1.PromptRequest{GroupID: first.ID, PromptStyle: v1.PromptConcise})
			}

			a.separate()
			a.status("\nShowing documentation about the debugging principles...")
			a.documentation(ctx, c, "principles")
			return nil
		},
	}
}

// separate draws a rule between demo steps in text mode.
func (a *app) separate() {
	if a.output == "text" {
		separator(a.out)
	}
}
