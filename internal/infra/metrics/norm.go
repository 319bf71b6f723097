package metrics

import "strings"

// norm keeps label cardinality bounded and casing uniform.
func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
