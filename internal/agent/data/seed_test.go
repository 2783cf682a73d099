package data

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeedList(t *testing.T) {
	src := `
- question: "  Total sales by region "
  query: SELECT region, SUM(total) FROM sales GROUP BY region
  reasoning: groups sales
- id: fixed
  question: Top customers
  query: SELECT TOP 10 name FROM customers
`
	entries, err := ParseSeed(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Total sales by region", entries[0].Question)
	assert.Equal(t, "groups sales", entries[0].Reasoning)
	assert.Equal(t, "fixed", entries[1].ID)
}

func TestParseSeedDocument(t *testing.T) {
	src := `
queries:
  - question: Orders today
    query: SELECT COUNT(*) FROM orders
`
	entries, err := ParseSeed(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "SELECT COUNT(*) FROM orders", entries[0].Query)
}

func TestParseSeedRejectsInvalid(t *testing.T) {
	_, err := ParseSeed(strings.NewReader("- question: q\n"))
	assert.ErrorContains(t, err, "question and query are required")

	_, err = ParseSeed(strings.NewReader("- question: q\n  query: DELETE FROM t\n"))
	assert.ErrorContains(t, err, "Only SELECT")
}
