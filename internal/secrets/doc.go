// Package secrets redacts credentials from captured failure state.
//
// Error messages, tracebacks and local variable snapshots are scrubbed before
// a failure record leaves the test process. Detection is rule based: each rule
// is a regular expression, optionally gated by keywords that must appear
// somewhere in the input. Config.Gitleaks adds the gitleaks default rule set
// on top of the built-in rules. Overlapping matches are merged into one
// redaction.
package secrets
