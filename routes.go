// routes.go
// ----------
// This file derives rate-limit route keys from a method and path. The
// remote API scopes its per-route quotas by the resource family plus the
// "major" resource identifier (channel, guild, or webhook id); every
// other numeric identifier in a path shares the family's quota. The key
// therefore keeps the major id literal and collapses all other numeric
// segments to a placeholder, so that e.g. deleting two different messages
// in one channel contends on a single bucket while two different guilds
// never do.
package discordbridge

import "strings"

// majorRoots are the path roots whose following identifier participates
// in the rate-limit scope.
var majorRoots = map[string]bool{
	"channels": true,
	"guilds":   true,
	"webhooks": true,
}

const idPlaceholder = ":id"

// RouteKey maps a method and path to the identity under which its rate
// limit is tracked. It is deterministic and side-effect free.
func RouteKey(method, path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	var b strings.Builder
	b.WriteString(method)
	b.WriteByte(':')
	for i, seg := range segments {
		b.WriteByte('/')
		if isNumericSegment(seg) && !(i > 0 && majorRoots[segments[i-1]]) {
			b.WriteString(idPlaceholder)
			continue
		}
		b.WriteString(seg)
	}
	return b.String()
}

// majorParameter extracts the major resource id from a derived route key,
// or "" when the route has none. Only the major id survives derivation as
// a numeric segment, so the first one found is it.
func majorParameter(routeKey string) string {
	_, path, ok := strings.Cut(routeKey, ":")
	if !ok {
		return ""
	}
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if isNumericSegment(seg) {
			return seg
		}
	}
	return ""
}

func isNumericSegment(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
