package delivery

import "strings"

// ErrorCategory is a provider error reduced to a fixed taxonomy.
type ErrorCategory string

const (
	CategoryRateLimit      ErrorCategory = "rate_limit"
	CategoryAuthentication ErrorCategory = "authentication"
	CategoryInvalidEmail   ErrorCategory = "invalid_email"
	CategoryContentError   ErrorCategory = "content_error"
	CategoryNetworkError   ErrorCategory = "network_error"
	CategoryTemporaryError ErrorCategory = "temporary_error"
	CategoryPermanentError ErrorCategory = "permanent_error"
	CategoryUnknown        ErrorCategory = "unknown"
)

type errorPattern struct {
	category ErrorCategory
	triggers []string
}

// Match order matters: the first category with a matching substring wins.
var errorPatterns = []errorPattern{
	{CategoryRateLimit, []string{"rate limit", "too many requests", "429"}},
	{CategoryAuthentication, []string{"unauthorized", "invalid api key", "401", "403"}},
	{CategoryInvalidEmail, []string{"invalid email", "bad recipient", "invalid address", "550"}},
	{CategoryContentError, []string{"content", "spam", "blocked", "rejected"}},
	{CategoryNetworkError, []string{"connection", "timeout", "network", "dns"}},
	{CategoryTemporaryError, []string{"temporary", "try again", "503", "504"}},
	{CategoryPermanentError, []string{"permanent", "bounce", "551", "552", "553"}},
}

// Classify maps an error message to (category, retryable) by case-insensitive
// substring matching. Unmatched errors are unknown and not retryable.
func Classify(errText string) (ErrorCategory, bool) {
	lower := strings.ToLower(errText)
	for _, p := range errorPatterns {
		for _, trigger := range p.triggers {
			if strings.Contains(lower, trigger) {
				return p.category, retryable(p.category)
			}
		}
	}
	return CategoryUnknown, false
}

func retryable(c ErrorCategory) bool {
	switch c {
	case CategoryRateLimit, CategoryNetworkError, CategoryTemporaryError:
		return true
	}
	return false
}
