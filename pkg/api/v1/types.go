// Package v1 defines the wire contract of the failure-tracking service.
//
// Request types validate themselves before they are sent; callers must treat
// a validation error as a precondition failure, never as a remote error.
package v1

import (
	"fmt"
	"net/url"
	"strconv"
)

// TotalPrinciples is the fixed number of debugging principles tracked per failure.
const TotalPrinciples = 9

// FailureRecord is the snapshot of one failed test execution.
type FailureRecord struct {
	TestName     string            `json:"test_name"`
	FilePath     string            `json:"file_path"`
	LineNumber   int               `json:"line_number"`
	ErrorMessage string            `json:"error_message"`
	Traceback    string            `json:"traceback"`
	Locals       map[string]string `json:"locals"`
}

// Validate checks the invariants the service relies on.
func (r *FailureRecord) Validate() error {
	if r.TestName == "" {
		return fmt.Errorf("%w: test_name is required", ErrInvalidRequest)
	}
	if r.LineNumber <= 0 {
		return fmt.Errorf("%w: line_number must be positive, got %d", ErrInvalidRequest, r.LineNumber)
	}
	return nil
}

// RegisterResponse is returned by POST /api/failures and POST /mcp/failures.
type RegisterResponse struct {
	FailureID string `json:"failureId"`
	SessionID string `json:"sessionId"`
}

// FailureSummary is one entry of GET /api/failures.
type FailureSummary struct {
	ID               string `json:"id"`
	TestName         string `json:"test_name"`
	ErrorMessage     string `json:"error_message"`
	Status           string `json:"status"`
	CurrentDebugStep int    `json:"current_debug_step"`
}

// ListResponse is the body of GET /api/failures.
type ListResponse struct {
	Failures []FailureSummary `json:"failures"`
}

// FailureDetail is the failure part of GET /api/failures/{id}.
type FailureDetail struct {
	ID           string         `json:"id,omitempty"`
	TestName     string         `json:"test_name"`
	FilePath     string         `json:"file_path"`
	LineNumber   int            `json:"line_number,omitempty"`
	ErrorMessage string         `json:"error_message"`
	Traceback    string         `json:"traceback,omitempty"`
	Locals       map[string]any `json:"locals,omitempty"`
	Status       string         `json:"status,omitempty"`
}

// Principle identifies one of the nine debugging principles.
type Principle struct {
	Number      int    `json:"number"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CompletedPrinciple is a principle with the analysis submitted for it.
type CompletedPrinciple struct {
	Number   int    `json:"number"`
	Name     string `json:"name"`
	Analysis string `json:"analysis"`
}

// Progress reports how many principles have been completed.
type Progress struct {
	Completed int `json:"completed"`
}

// DebuggingState is owned by the service; the client only displays it.
type DebuggingState struct {
	CurrentPrinciple    *Principle           `json:"current_principle,omitempty"`
	Progress            Progress             `json:"progress"`
	CompletedPrinciples []CompletedPrinciple `json:"completed_principles,omitempty"`
}

// FailureInfo is the body of GET /api/failures/{id}.
type FailureInfo struct {
	Failure   FailureDetail  `json:"failure"`
	Debugging DebuggingState `json:"debugging"`
}

// ProgressLine renders the debugging progress against the fixed denominator.
func (i *FailureInfo) ProgressLine() string {
	return fmt.Sprintf("%d/%d principles completed", i.Debugging.Progress.Completed, TotalPrinciples)
}

// DebugAnnotation applies one principle's analysis to a failure.
type DebugAnnotation struct {
	FailureID       string `json:"failure_id"`
	PrincipleNumber int    `json:"principle_number"`
	Analysis        string `json:"analysis"`
}

// Validate checks the annotation before it is sent.
func (a *DebugAnnotation) Validate() error {
	if a.FailureID == "" {
		return ErrFailureRequired
	}
	if a.PrincipleNumber < 1 || a.PrincipleNumber > TotalPrinciples {
		return fmt.Errorf("%w, got %d", ErrInvalidPrinciple, a.PrincipleNumber)
	}
	if a.Analysis == "" {
		return ErrAnalysisRequired
	}
	return nil
}

// AnnotateResponse is the body of POST /api/debug.
type AnnotateResponse struct {
	NextPrinciple *Principle `json:"next_principle,omitempty"`
}

// GroupBy selects how the service groups failures.
type GroupBy string

const (
	GroupByErrorType GroupBy = "error_type"
	GroupByFilePath  GroupBy = "file_path"
	GroupByPattern   GroupBy = "pattern"
)

// TimeRange restricts the failures considered by an analysis.
type TimeRange string

const (
	TimeRangeAll   TimeRange = "all"
	TimeRangeToday TimeRange = "today"
	TimeRangeWeek  TimeRange = "week"
	TimeRangeMonth TimeRange = "month"
)

// AnalysisQuery requests a grouping view. Zero values are omitted.
type AnalysisQuery struct {
	GroupBy         GroupBy
	TimeRange       TimeRange
	IncludeResolved bool
}

// Validate checks enum fields.
func (q *AnalysisQuery) Validate() error {
	switch q.GroupBy {
	case "", GroupByErrorType, GroupByFilePath, GroupByPattern:
	default:
		return fmt.Errorf("%w, got %q", ErrInvalidGroupBy, q.GroupBy)
	}
	switch q.TimeRange {
	case "", TimeRangeAll, TimeRangeToday, TimeRangeWeek, TimeRangeMonth:
	default:
		return fmt.Errorf("%w, got %q", ErrInvalidTimeRange, q.TimeRange)
	}
	return nil
}

// Values encodes the query as URL parameters.
func (q *AnalysisQuery) Values() url.Values {
	v := url.Values{}
	if q.GroupBy != "" {
		v.Set("group_by", string(q.GroupBy))
	}
	if q.TimeRange != "" {
		v.Set("time_range", string(q.TimeRange))
	}
	if q.IncludeResolved {
		v.Set("include_resolved", strconv.FormatBool(true))
	}
	return v
}

// FailureGroup is one group of an analysis.
type FailureGroup struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Count               int    `json:"count"`
	CommonErrorType     string `json:"common_error_type"`
	RootCauseHypothesis string `json:"root_cause_hypothesis"`
}

// TriageRecommendation is a prioritized suggestion from the service.
type TriageRecommendation struct {
	Priority       string `json:"priority"`
	Recommendation string `json:"recommendation"`
}

// Insights summarizes an analysis.
type Insights struct {
	MostCommonError       string                 `json:"most_common_error"`
	ErrorDistribution     map[string]int         `json:"error_distribution"`
	TriageRecommendations []TriageRecommendation `json:"triage_recommendations"`
}

// AnalysisResponse is the body of GET /api/analytics.
type AnalysisResponse struct {
	TotalFailures int            `json:"total_failures"`
	GroupCount    int            `json:"group_count"`
	GroupBy       string         `json:"group_by"`
	Groups        []FailureGroup `json:"groups"`
	Insights      *Insights      `json:"insights,omitempty"`
}

// PromptStyle selects the shape of a generated prompt.
type PromptStyle string

const (
	PromptDetailed   PromptStyle = "detailed"
	PromptConcise    PromptStyle = "concise"
	PromptStepByStep PromptStyle = "step_by_step"
	PromptRootCause  PromptStyle = "root_cause"
)

// PromptRequest targets exactly one group or one failure.
type PromptRequest struct {
	GroupID     string
	FailureID   string
	PromptStyle PromptStyle
}

// Validate enforces the single-target precondition.
func (p *PromptRequest) Validate() error {
	if p.GroupID == "" && p.FailureID == "" {
		return ErrMissingTarget
	}
	if p.GroupID != "" && p.FailureID != "" {
		return ErrAmbiguousTarget
	}
	switch p.PromptStyle {
	case "", PromptDetailed, PromptConcise, PromptStepByStep, PromptRootCause:
	default:
		return fmt.Errorf("%w, got %q", ErrInvalidStyle, p.PromptStyle)
	}
	return nil
}

// Target returns the kind and id of the prompt target.
func (p *PromptRequest) Target() (kind, id string) {
	if p.GroupID != "" {
		return "group", p.GroupID
	}
	return "failure", p.FailureID
}

// Values encodes the request as URL parameters.
func (p *PromptRequest) Values() url.Values {
	v := url.Values{}
	if p.GroupID != "" {
		v.Set("group_id", p.GroupID)
	}
	if p.FailureID != "" {
		v.Set("failure_id", p.FailureID)
	}
	if p.PromptStyle != "" {
		v.Set("prompt_style", string(p.PromptStyle))
	}
	return v
}

// PromptResponse is the body of GET /api/prompt.
type PromptResponse struct {
	Title        string `json:"title"`
	PromptStyle  string `json:"prompt_style"`
	Instructions string `json:"instructions"`
	Prompt       string `json:"prompt"`
}

// DocsResponse is the body of GET /api/docs.
type DocsResponse struct {
	Topic       string `json:"topic"`
	Description string `json:"description"`
	Docs        string `json:"docs"`
}

// ErrorBody is the application-level error carried by a 200 response.
type ErrorBody struct {
	Error           string   `json:"error,omitempty"`
	AvailableTopics []string `json:"available_topics,omitempty"`
}
