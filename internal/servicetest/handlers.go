package servicetest

import (
	"cmp"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	v1 "github.com/fyrsmithlabs/failtrack/pkg/api/v1"
)

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, v1.ErrorBody{Error: msg})
}

func (s *Service) handleRegister(c echo.Context) error {
	var rec v1.FailureRecord
	if err := c.Bind(&rec); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if rec.TestName == "" {
		return errorJSON(c, http.StatusBadRequest, "test_name is required")
	}

	key := c.Request().Header.Get("Idempotency-Key")

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, seen := s.byKey[key]; seen && key != "" {
		return c.JSON(http.StatusOK, v1.RegisterResponse{FailureID: id, SessionID: s.sessionID})
	}
	id := fmt.Sprintf("f%d", len(s.order)+1)
	s.failures[id] = &failure{
		record:    rec,
		id:        id,
		created:   time.Now(),
		status:    "open",
		completed: make(map[int]string),
	}
	s.order = append(s.order, id)
	if key != "" {
		s.byKey[key] = id
	}
	return c.JSON(http.StatusOK, v1.RegisterResponse{FailureID: id, SessionID: s.sessionID})
}

func (s *Service) handleList(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp := v1.ListResponse{Failures: make([]v1.FailureSummary, 0, len(s.order))}
	for _, id := range s.order {
		f := s.failures[id]
		resp.Failures = append(resp.Failures, v1.FailureSummary{
			ID:               id,
			TestName:         f.record.TestName,
			ErrorMessage:     f.record.ErrorMessage,
			Status:           f.status,
			CurrentDebugStep: f.current(),
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Service) handleInfo(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.failures[c.Param("id")]
	if !ok {
		return errorJSON(c, http.StatusNotFound, "Failure not found")
	}

	locals := make(map[string]any, len(f.record.Locals))
	for k, v := range f.record.Locals {
		locals[k] = v
	}
	info := v1.FailureInfo{
		Failure: v1.FailureDetail{
			ID:           f.id,
			TestName:     f.record.TestName,
			FilePath:     f.record.FilePath,
			LineNumber:   f.record.LineNumber,
			ErrorMessage: f.record.ErrorMessage,
			Traceback:    f.record.Traceback,
			Locals:       locals,
			Status:       f.status,
		},
		Debugging: v1.DebuggingState{
			Progress: v1.Progress{Completed: len(f.completed)},
		},
	}
	if n := f.current(); n > 0 {
		p := Principles[n-1]
		info.Debugging.CurrentPrinciple = &p
	}
	for _, n := range f.completedNumbers() {
		p := Principles[n-1]
		info.Debugging.CompletedPrinciples = append(info.Debugging.CompletedPrinciples, v1.CompletedPrinciple{
			Number:   n,
			Name:     p.Name,
			Analysis: f.completed[n],
		})
	}
	return c.JSON(http.StatusOK, info)
}

func (s *Service) handleDebug(c echo.Context) error {
	var a v1.DebugAnnotation
	if err := c.Bind(&a); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if err := a.Validate(); err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.failures[a.FailureID]
	if !ok {
		return errorJSON(c, http.StatusNotFound, "Failure not found")
	}
	f.completed[a.PrincipleNumber] = a.Analysis
	if len(f.completed) == v1.TotalPrinciples {
		f.status = "resolved"
	} else {
		f.status = "debugging"
	}

	var resp v1.AnnotateResponse
	if n := f.current(); n > 0 {
		p := Principles[n-1]
		resp.NextPrinciple = &p
	}
	return c.JSON(http.StatusOK, resp)
}

// current is the lowest principle not yet completed, or 0 when all are.
func (f *failure) current() int {
	for n := 1; n <= v1.TotalPrinciples; n++ {
		if _, done := f.completed[n]; !done {
			return n
		}
	}
	return 0
}

func (f *failure) completedNumbers() []int {
	nums := make([]int, 0, len(f.completed))
	for n := range f.completed {
		nums = append(nums, n)
	}
	slices.Sort(nums)
	return nums
}

// errorType is the text before the first colon of an error message.
func errorType(msg string) string {
	if i := strings.Index(msg, ":"); i > 0 {
		return strings.TrimSpace(msg[:i])
	}
	if msg == "" {
		return "Unknown"
	}
	return "Error"
}

func (s *Service) handleAnalytics(c echo.Context) error {
	q := v1.AnalysisQuery{
		GroupBy:         v1.GroupBy(c.QueryParam("group_by")),
		TimeRange:       v1.TimeRange(c.QueryParam("time_range")),
		IncludeResolved: c.QueryParam("include_resolved") == "true",
	}
	if err := q.Validate(); err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	if q.GroupBy == "" {
		q.GroupBy = v1.GroupByErrorType
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	type bucket struct {
		name  string
		ids   []string
		types map[string]int
	}
	var buckets []*bucket
	index := map[string]*bucket{}
	dist := map[string]int{}
	total := 0

	cutoff := timeCutoff(q.TimeRange)
	for _, id := range s.order {
		f := s.failures[id]
		if f.status == "resolved" && !q.IncludeResolved {
			continue
		}
		if f.created.Before(cutoff) {
			continue
		}
		total++
		et := errorType(f.record.ErrorMessage)
		dist[et]++

		var name string
		switch q.GroupBy {
		case v1.GroupByFilePath:
			name = f.record.FilePath
		case v1.GroupByPattern:
			name = f.record.ErrorMessage
		default:
			name = et
		}
		b, ok := index[name]
		if !ok {
			b = &bucket{name: name, types: map[string]int{}}
			index[name] = b
			buckets = append(buckets, b)
		}
		b.ids = append(b.ids, id)
		b.types[et]++
	}

	slices.SortStableFunc(buckets, func(a, b *bucket) int { return cmp.Compare(len(b.ids), len(a.ids)) })

	resp := v1.AnalysisResponse{
		TotalFailures: total,
		GroupCount:    len(buckets),
		GroupBy:       string(q.GroupBy),
		Groups:        make([]v1.FailureGroup, 0, len(buckets)),
	}
	for i, b := range buckets {
		common := mostCommon(b.types)
		resp.Groups = append(resp.Groups, v1.FailureGroup{
			ID:                  fmt.Sprintf("g%d", i+1),
			Name:                b.name,
			Count:               len(b.ids),
			CommonErrorType:     common,
			RootCauseHypothesis: fmt.Sprintf("%d failures share %s", len(b.ids), common),
		})
	}
	if total > 0 {
		resp.Insights = &v1.Insights{
			MostCommonError:   mostCommon(dist),
			ErrorDistribution: dist,
		}
		for _, g := range resp.Groups {
			priority := "medium"
			if g.Count > 1 {
				priority = "high"
			}
			resp.Insights.TriageRecommendations = append(resp.Insights.TriageRecommendations, v1.TriageRecommendation{
				Priority:       priority,
				Recommendation: fmt.Sprintf("Investigate %s (%d failures)", g.Name, g.Count),
			})
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func timeCutoff(r v1.TimeRange) time.Time {
	now := time.Now()
	switch r {
	case v1.TimeRangeToday:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	case v1.TimeRangeWeek:
		return now.AddDate(0, 0, -7)
	case v1.TimeRangeMonth:
		return now.AddDate(0, -1, 0)
	}
	return time.Time{}
}

func mostCommon(counts map[string]int) string {
	best, bestN := "", -1
	for k, n := range counts {
		if n > bestN || (n == bestN && k < best) {
			best, bestN = k, n
		}
	}
	return best
}

func (s *Service) handlePrompt(c echo.Context) error {
	req := v1.PromptRequest{
		GroupID:     c.QueryParam("group_id"),
		FailureID:   c.QueryParam("failure_id"),
		PromptStyle: v1.PromptStyle(c.QueryParam("prompt_style")),
	}
	if err := req.Validate(); err != nil {
		return errorJSON(c, http.StatusOK, err.Error())
	}
	if req.PromptStyle == "" {
		req.PromptStyle = v1.PromptDetailed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kind, id := req.Target()
	var subject string
	if kind == "failure" {
		f, ok := s.failures[id]
		if !ok {
			return errorJSON(c, http.StatusOK, fmt.Sprintf("Failure %s not found", id))
		}
		subject = fmt.Sprintf("%s in %s:%d: %s", f.record.TestName, f.record.FilePath, f.record.LineNumber, f.record.ErrorMessage)
	} else {
		if !strings.HasPrefix(id, "g") {
			return errorJSON(c, http.StatusOK, fmt.Sprintf("Group %s not found", id))
		}
		subject = "failure group " + id
	}

	return c.JSON(http.StatusOK, v1.PromptResponse{
		Title:        fmt.Sprintf("Debug %s %s", kind, id),
		PromptStyle:  string(req.PromptStyle),
		Instructions: "Apply the debugging principles in order and report findings for each.",
		Prompt:       fmt.Sprintf("[%s] Investigate %s", req.PromptStyle, subject),
	})
}

func (s *Service) handleDocs(c echo.Context) error {
	topic := c.QueryParam("topic")
	if topic == "" {
		return c.JSON(http.StatusOK, v1.DocsResponse{
			Topic:       "general",
			Description: "Failure tracking service",
			Docs:        "Register test failures and debug them with nine principles.",
		})
	}
	doc, ok := DocTopics[topic]
	if !ok {
		topics := make([]string, 0, len(DocTopics))
		for t := range DocTopics {
			topics = append(topics, t)
		}
		slices.Sort(topics)
		return c.JSON(http.StatusOK, v1.ErrorBody{Error: fmt.Sprintf("Unknown topic: %s", topic), AvailableTopics: topics})
	}
	return c.JSON(http.StatusOK, doc)
}
