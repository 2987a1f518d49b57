package coordinator

import "strings"

// FailureClass categorizes a workflow failure for the escalation event.
type FailureClass string

const (
	// FailureTransient failures (timeouts, connection drops) are worth
	// retrying within budget.
	FailureTransient FailureClass = "transient"
	// FailurePermanent failures will not succeed on retry and escalate
	// immediately.
	FailurePermanent FailureClass = "permanent"
	// FailureUnknown failures get the retry budget, then escalate.
	FailureUnknown FailureClass = "unknown"
	// FailureNeedsClarity failures escalate immediately for human input.
	FailureNeedsClarity FailureClass = "needs_clarity"
)

var transientMarkers = []string{
	"timeout", "timed out", "connection reset", "connection refused",
	"temporarily", "rate limit", "overloaded", "unavailable",
}

var permanentMarkers = []string{
	"compile error", "compilation failed", "syntax error",
	"permission denied", "does not exist", "no such file",
}

var clarityMarkers = []string{
	"needs clarification", "ambiguous", "unclear requirement",
	"conflicting requirement", "missing context",
}

// ClassifyFailure maps an error message to a failure class by keyword.
// Messages matching none of the known markers classify as unknown.
func ClassifyFailure(errText string) FailureClass {
	lower := strings.ToLower(errText)
	for _, m := range clarityMarkers {
		if strings.Contains(lower, m) {
			return FailureNeedsClarity
		}
	}
	for _, m := range permanentMarkers {
		if strings.Contains(lower, m) {
			return FailurePermanent
		}
	}
	for _, m := range transientMarkers {
		if strings.Contains(lower, m) {
			return FailureTransient
		}
	}
	return FailureUnknown
}

// retryable reports whether a class participates in the retry budget at all.
func (c FailureClass) retryable() bool {
	return c == FailureTransient || c == FailureUnknown
}
