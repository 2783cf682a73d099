package core

import "strings"

// Environment is the deployment stage the agent runs in.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

func (e Environment) String() string {
	return string(e)
}

// IsProduction reports whether verbose logging and console output must be off.
func (e Environment) IsProduction() bool {
	return e == Production
}

// Decode lets envconfig populate an Environment field directly from ENVIRONMENT.
func (e *Environment) Decode(value string) error {
	*e = ParseEnvironment(value)
	return nil
}

// ParseEnvironment maps a raw value onto a known environment. Unknown or empty
// values resolve to Development.
func ParseEnvironment(v string) Environment {
	switch Environment(strings.ToLower(strings.TrimSpace(v))) {
	case Production, "prod":
		return Production
	case Staging:
		return Staging
	case Testing, "test":
		return Testing
	default:
		return Development
	}
}
