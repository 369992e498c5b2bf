package policy

import (
	"fmt"
	"strings"
)

// FailureCategory says who a failure is charged to.
type FailureCategory string

const (
	// CategorySpec marks a failure of the work itself: the generated code
	// did not satisfy its spec. These count against the retry budget.
	CategorySpec FailureCategory = "spec"

	// CategoryInfra marks a failure of the machinery around the work:
	// network, rate limits, a crashed runner. Retried without penalty.
	CategoryInfra FailureCategory = "infra"
)

// infraSignatures are lowercase substrings that identify an infrastructure
// failure. Anything not matching is treated as a spec failure, so an
// unrecognized error burns a retry rather than looping forever.
var infraSignatures = []string{
	"econnreset",
	"econnrefused",
	"etimedout",
	"enotfound",
	"eai_again",
	"socket hang up",
	"network",
	"connection reset",
	"connection refused",
	"timed out",
	"timeout",
	"rate limit",
	"ratelimit",
	"secondary rate",
	"502 bad gateway",
	"503 service unavailable",
	"504 gateway",
	"internal server error",
	"runner has received a shutdown signal",
	"lost communication with the server",
	"the operation was canceled",
}

// Classify buckets a failure message as spec or infra.
func Classify(message string) FailureCategory {
	m := strings.ToLower(message)
	for _, sig := range infraSignatures {
		if strings.Contains(m, sig) {
			return CategoryInfra
		}
	}
	return CategorySpec
}

// RetryDecision is the verdict on one failure event. NewRetryCount is the
// attempts value the item should carry afterwards; for infra failures it
// equals the current count.
type RetryDecision struct {
	ShouldRetry       bool            `json:"shouldRetry"`
	Category          FailureCategory `json:"category"`
	NewRetryCount     int             `json:"newRetryCount"`
	DelaySeconds      int             `json:"delaySeconds"`
	Reason            string          `json:"reason"`
	MaxRetriesReached bool            `json:"maxRetriesReached"`
}

// Decide applies the retry rules to an already-classified failure on an
// item with attempts used out of maxRetries. Infra failures always retry
// and never advance the count. Spec failures retry until the budget is
// spent; after that the caller must route the item to manual intervention
// instead of requeueing.
func Decide(category FailureCategory, attempts, maxRetries int, bc BackoffConfig) RetryDecision {
	if category == CategoryInfra {
		return RetryDecision{
			ShouldRetry:   true,
			Category:      CategoryInfra,
			NewRetryCount: attempts,
			DelaySeconds:  bc.DelaySeconds(attempts),
			Reason:        "infrastructure failure, retrying without penalty",
		}
	}

	if attempts >= maxRetries {
		return RetryDecision{
			Category:          CategorySpec,
			NewRetryCount:     attempts,
			Reason:            fmt.Sprintf("max retries reached (%d), manual intervention required", maxRetries),
			MaxRetriesReached: true,
		}
	}

	next := attempts + 1
	return RetryDecision{
		ShouldRetry:   true,
		Category:      CategorySpec,
		NewRetryCount: next,
		DelaySeconds:  bc.DelaySeconds(attempts),
		Reason:        fmt.Sprintf("spec failure, attempt %d of %d", next, maxRetries),
	}
}

// ShouldRetry classifies message and decides in one step.
func ShouldRetry(message string, attempts, maxRetries int, bc BackoffConfig) RetryDecision {
	return Decide(Classify(message), attempts, maxRetries, bc)
}
