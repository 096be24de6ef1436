package v1

import "errors"

// Common API errors.
var (
	ErrInvalidRequest   = errors.New("invalid request")
	ErrFailureRequired  = errors.New("failure_id is required")
	ErrInvalidPrinciple = errors.New("principle_number must be between 1 and 9")
	ErrAnalysisRequired = errors.New("analysis is required")
	ErrMissingTarget    = errors.New("either group_id or failure_id must be provided")
	ErrAmbiguousTarget  = errors.New("only one of group_id or failure_id may be provided")
	ErrInvalidGroupBy   = errors.New("group_by must be one of error_type, file_path, pattern")
	ErrInvalidTimeRange = errors.New("time_range must be one of all, today, week, month")
	ErrInvalidStyle     = errors.New("prompt_style must be one of detailed, concise, step_by_step, root_cause")
)
