package storage

import "strings"

// prefixed qualifies each column of a comma separated list with alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}
