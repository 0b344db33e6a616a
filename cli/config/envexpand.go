// Package config handles YAML config file loading for the uadp CLI.
package config

import (
	"os"
	"regexp"
	"strings"
)

// reference matches $${NAME}, ${NAME} and ${NAME:-fallback}.
var reference = regexp.MustCompile(`(\$?)\$\{([A-Za-z_][A-Za-z0-9_]*)(:-[^}]*)?\}`)

// ExpandEnv substitutes environment references in a config file body.
// ${NAME} takes the variable's value; ${NAME:-fallback} takes fallback
// when NAME is unset or empty; $${NAME} is left as the literal ${NAME}.
// Unset names without a fallback become "", so missing required values
// are reported by Validate rather than here.
func ExpandEnv(input string) string {
	return expand(input, os.LookupEnv)
}

func expand(input string, lookup func(string) (string, bool)) string {
	var sb strings.Builder
	last := 0
	for _, m := range reference.FindAllStringSubmatchIndex(input, -1) {
		sb.WriteString(input[last:m[0]])
		last = m[1]

		if m[3] > m[2] {
			sb.WriteString(input[m[0]+1 : m[1]])
			continue
		}
		name := input[m[4]:m[5]]
		if v, ok := lookup(name); ok && v != "" {
			sb.WriteString(v)
		} else if m[6] >= 0 {
			sb.WriteString(input[m[6]+2 : m[7]])
		}
	}
	sb.WriteString(input[last:])
	return sb.String()
}
