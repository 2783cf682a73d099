package model

// QueryResult is the structured outcome of the query agent.
type QueryResult struct {
	SQLQuery        string           `json:"sql_query"`
	Rows            []map[string]any `json:"sql_response"`
	Columns         []string         `json:"columns"`
	RowCount        int              `json:"row_count"`
	ConfidenceScore float64          `json:"confidence_score"`
	UsedCachedQuery bool             `json:"used_cached_query"`
	Error           string           `json:"error,omitempty"`
}

// Failed reports whether the query agent produced an error instead of rows.
func (r QueryResult) Failed() bool {
	return r.Error != ""
}

// CachedQuery is a validated question/SQL pair stored in the vector index.
type CachedQuery struct {
	ID        string  `json:"id,omitempty" yaml:"id"`
	Question  string  `json:"question" yaml:"question"`
	Query     string  `json:"query" yaml:"query"`
	Reasoning string  `json:"reasoning" yaml:"reasoning"`
	Score     float64 `json:"score" yaml:"-"`
}

// SearchOutcome is the result of a cached query lookup after the confidence gate.
// BestMatch is set only when HasHighConfidenceMatch is true.
type SearchOutcome struct {
	HasHighConfidenceMatch bool          `json:"has_high_confidence_match"`
	BestMatch              *CachedQuery  `json:"best_match"`
	AllMatches             []CachedQuery `json:"all_matches"`
	Threshold              float64       `json:"threshold"`
	Message                string        `json:"message,omitempty"`
	Error                  string        `json:"error,omitempty"`
}

// SQLResult is the outcome of a guarded SQL execution.
type SQLResult struct {
	Success   bool             `json:"success"`
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	RowCount  int              `json:"row_count"`
	Truncated bool             `json:"truncated,omitempty"`
	Error     string           `json:"error,omitempty"`
}
