package data

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ForbiddenKeywords are rejected anywhere in a query, checked in this order.
var ForbiddenKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "CREATE", "TRUNCATE", "EXEC", "EXECUTE",
}

// ErrNotSelect is returned for queries that do not start with SELECT.
var ErrNotSelect = errors.New("Only SELECT queries are allowed. Query must start with SELECT.")

var keywordPatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(ForbiddenKeywords))
	for i, kw := range ForbiddenKeywords {
		out[i] = regexp.MustCompile(`\b` + kw + `\b`)
	}
	return out
}()

// ForbiddenKeywordError names the keyword that caused a rejection.
type ForbiddenKeywordError struct {
	Keyword string
}

func (e *ForbiddenKeywordError) Error() string {
	return fmt.Sprintf("Query contains forbidden keyword: %s. Only read-only SELECT queries are allowed.", e.Keyword)
}

// ValidateReadOnly accepts a query only when, after trimming and upper-casing,
// it starts with SELECT and contains none of ForbiddenKeywords as a whole word.
// Identifiers such as created_at or last_update_ts pass.
// The check is lexical: SELECT ... INTO and keywords outside the list pass.
func ValidateReadOnly(query string) error {
	normalized := strings.ToUpper(strings.TrimSpace(query))
	if !strings.HasPrefix(normalized, "SELECT") {
		return ErrNotSelect
	}
	for i, re := range keywordPatterns {
		if re.MatchString(normalized) {
			return &ForbiddenKeywordError{Keyword: ForbiddenKeywords[i]}
		}
	}
	return nil
}
