package data

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestValidateReadOnly(t *testing.T) {
	cases := []struct {
		name    string
		query   string
		keyword string
		notSel  bool
	}{
		{name: "plain select", query: "SELECT * FROM sales"},
		{name: "leading whitespace lower case", query: "  \n select top 10 name from customers"},
		{name: "identifiers containing keywords", query: "SELECT created_at, updated_by, is_deleted FROM orders"},
		{name: "insert", query: "INSERT INTO t VALUES (1)", notSel: true},
		{name: "with cte", query: "WITH x AS (SELECT 1) SELECT * FROM x", notSel: true},
		{name: "empty", query: "   ", notSel: true},
		{name: "stacked drop", query: "SELECT 1; DROP TABLE users", keyword: "DROP"},
		{name: "update after select", query: "select 1;update t set a=1", keyword: "UPDATE"},
		{name: "exec", query: "SELECT 1; EXEC sp_who", keyword: "EXEC"},
		{name: "execute", query: "SELECT 1; EXECUTE sp_who", keyword: "EXECUTE"},
		{name: "first keyword wins", query: "SELECT 1; DELETE FROM a; INSERT INTO b VALUES (1)", keyword: "INSERT"},
		{name: "create in comment", query: "SELECT 1 -- create something", keyword: "CREATE"},
		// Lexical blocklist only; the database role enforces the rest.
		{name: "select into passes", query: "SELECT * INTO backup FROM sales"},
		{name: "stacked grant passes", query: "SELECT 1; GRANT SELECT ON sales TO public"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateReadOnly(tc.query)
			switch {
			case tc.notSel:
				assert.ErrorIs(t, err, ErrNotSelect)
				assert.Equal(t, "Only SELECT queries are allowed. Query must start with SELECT.", err.Error())
			case tc.keyword != "":
				var kwErr *ForbiddenKeywordError
				assert.True(t, errors.As(err, &kwErr))
				assert.Equal(t, tc.keyword, kwErr.Keyword)
				assert.Equal(t, "Query contains forbidden keyword: "+tc.keyword+". Only read-only SELECT queries are allowed.", err.Error())
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateReadOnlyRejectsEveryKeyword(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		kw := rapid.SampledFrom(ForbiddenKeywords).Draw(t, "keyword")
		prefix := rapid.StringMatching(`[a-z ,*]{0,20}`).Draw(t, "prefix")
		suffix := rapid.StringMatching(`[a-z ,*]{0,20}`).Draw(t, "suffix")
		lower := rapid.Bool().Draw(t, "lower")
		if lower {
			kw = strings.ToLower(kw)
		}
		query := "SELECT " + prefix + " " + kw + " " + suffix
		if err := ValidateReadOnly(query); err == nil {
			t.Fatalf("query %q passed the guard", query)
		}
	})
}

func TestValidateReadOnlyRequiresSelectPrefix(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		head := rapid.StringMatching(`[A-Za-z]{1,10}`).Filter(func(s string) bool {
			return !strings.HasPrefix(strings.ToUpper(s), "SELECT")
		}).Draw(t, "head")
		if err := ValidateReadOnly(head + " SELECT 1"); !errors.Is(err, ErrNotSelect) {
			t.Fatalf("expected ErrNotSelect for %q, got %v", head, err)
		}
	})
}

func TestValidateReadOnlyAcceptsPlainSelects(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		col := rapid.StringMatching(`[a-z]{1,8}_[a-z]{1,8}`).Draw(t, "column")
		table := rapid.StringMatching(`[a-z]{1,8}_[a-z]{1,8}`).Draw(t, "table")
		if err := ValidateReadOnly("SELECT " + col + " FROM " + table); err != nil {
			t.Fatalf("unexpected rejection: %v", err)
		}
	})
}
