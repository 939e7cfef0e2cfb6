package config

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

// envVarPattern matches ${VAR} references with POSIX variable names.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// dollarSentinel temporarily replaces $$ so escaped dollars survive expansion.
const dollarSentinel = "\x00stageflow-dollar\x00"

// ExpandEnv substitutes ${VAR} references in raw config bytes with the
// values of the named environment variables. References are required: any
// unset variable fails the expansion rather than silently producing an
// empty string. A literal dollar sign is written as $$. Unbraced dollars
// pass through untouched.
func ExpandEnv(input []byte) ([]byte, error) {
	escaped := strings.ReplaceAll(string(input), "$$", dollarSentinel)

	var missing []string
	expanded := envVarPattern.ReplaceAllStringFunc(escaped, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		value, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
			return match
		}
		return value
	})
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("config: missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return []byte(strings.ReplaceAll(expanded, dollarSentinel, "$")), nil
}

// secretRefPattern matches secretref:<provider>:<name> references.
var secretRefPattern = regexp.MustCompile(`secretref:([a-z][a-z0-9_-]*):([A-Za-z_][A-Za-z0-9_]*)`)

// resolveSecretRefs replaces secretref:env:NAME references with the value
// of the named environment variable. A reference marks a value the engine
// cannot run without, so unset and empty variables fail the resolution.
func resolveSecretRefs(input []byte) ([]byte, error) {
	s := string(input)
	matches := secretRefPattern.FindAllStringSubmatchIndex(s, -1)

	// Replace from the end so earlier match offsets stay valid.
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		provider := s[m[2]:m[3]]
		name := s[m[4]:m[5]]
		if provider != "env" {
			return nil, fmt.Errorf("config: unknown secret provider %q (only env references are supported)", provider)
		}
		value, ok := os.LookupEnv(name)
		if !ok {
			return nil, fmt.Errorf("config: secret env:%s is not set", name)
		}
		if value == "" {
			return nil, fmt.Errorf("config: secret env:%s resolved to an empty value", name)
		}
		s = s[:m[0]] + value + s[m[1]:]
	}

	return []byte(s), nil
}

// Expand prepares raw config bytes for decoding: ${VAR} environment
// expansion first, then secretref:env:NAME resolution.
func Expand(input []byte) ([]byte, error) {
	expanded, err := ExpandEnv(input)
	if err != nil {
		return nil, err
	}
	return resolveSecretRefs(expanded)
}
