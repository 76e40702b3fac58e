package webhook

import (
	"strings"

	"github.com/mailforge/mailforged/internal/config"
)

// wildcardPrefix marks routing patterns that match every address whose
// suffix follows the prefix.
const wildcardPrefix = "*@"

// Router maps recipient addresses to configured webhook endpoints.
//
// Patterns are either literal addresses (support@example.com) or domain
// wildcards (*@example.com). Exact entries always win over wildcards.
type Router struct {
	table map[string]config.WebhookEntry
}

// NewRouter builds a Router over the configured routing table. The table is
// not copied; callers must not mutate it after construction.
func NewRouter(table map[string]config.WebhookEntry) *Router {
	return &Router{table: table}
}

// Resolve returns the endpoint responsible for addr. Exact entries are
// consulted first, then wildcard patterns. Wildcard matching is a plain
// byte-suffix comparison: *@example.com also matches bob@notexample.com.
// When several wildcards match, whichever is seen first wins; iteration
// order over the table is not fixed.
func (r *Router) Resolve(addr string) (config.WebhookEntry, bool) {
	if entry, ok := r.table[addr]; ok {
		return entry, true
	}
	for pattern, entry := range r.table {
		if !strings.HasPrefix(pattern, wildcardPrefix) {
			continue
		}
		if strings.HasSuffix(addr, strings.TrimPrefix(pattern, wildcardPrefix)) {
			return entry, true
		}
	}
	return config.WebhookEntry{}, false
}

// Len returns the number of configured routes.
func (r *Router) Len() int {
	return len(r.table)
}
