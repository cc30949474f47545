package featureflags

import (
	"os"
	"strings"
)

// Known flags. Each one is switched on with FLAG_<NAME> in the environment.
const (
	// SeedDemo inserts a handful of demo profiles at startup
	SeedDemo = "seed_demo"
	// WebUIDisabled serves only the JSON API and ops endpoints
	WebUIDisabled = "web_ui_disabled"
)

// Set is a flag source. The zero value reads the process environment.
type Set struct {
	lookup func(string) (string, bool)
}

// FromMap builds a Set from fixed values, keyed by FLAG_<NAME>
func FromMap(values map[string]string) Set {
	return Set{lookup: func(k string) (string, bool) {
		v, ok := values[k]
		return v, ok
	}}
}

// Enabled reports whether the flag is on. Accepts 1, true, yes and on in any case.
func (s Set) Enabled(name string) bool {
	lookup := s.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	v, ok := lookup("FLAG_" + strings.ToUpper(name))
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Enabled reads the flag from the process environment
func Enabled(name string) bool {
	return Set{}.Enabled(name)
}
