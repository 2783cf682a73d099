package data

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/enterprise-data-agent/server/internal/agent/model"
)

// seedFile accepts either a top-level list or a document with a queries key.
type seedFile struct {
	Queries []model.CachedQuery `yaml:"queries"`
}

// ParseSeed reads cached queries from YAML and validates them.
func ParseSeed(r io.Reader) ([]model.CachedQuery, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}

	var entries []model.CachedQuery
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		var doc seedFile
		if derr := yaml.Unmarshal(raw, &doc); derr != nil {
			return nil, fmt.Errorf("parse seed: %w", derr)
		}
		entries = doc.Queries
	}

	for i := range entries {
		entries[i].Question = strings.TrimSpace(entries[i].Question)
		entries[i].Query = strings.TrimSpace(entries[i].Query)
		entries[i].Reasoning = strings.TrimSpace(entries[i].Reasoning)
		if entries[i].Question == "" || entries[i].Query == "" {
			return nil, fmt.Errorf("seed entry %d: question and query are required", i)
		}
		if err := ValidateReadOnly(entries[i].Query); err != nil {
			return nil, fmt.Errorf("seed entry %d: %w", i, err)
		}
	}
	return entries, nil
}
