package config

import (
	"strings"
	"unicode"
)

// maxProjectIDLength is the platform limit for project identifiers.
const maxProjectIDLength = 30

// ResolveIdentity derives the globally-unique project identifier for an
// environment:
//
//	<base>-<environment>            (staging, prod)
//	<base>-<environment>-<developer> (dev)
//
// The result satisfies project naming constraints: lowercase alphanumeric
// plus hyphen, at most 30 characters, never ending in a hyphen. The same
// inputs always yield the same identity; there is no durable identity store.
func ResolveIdentity(base string, env Environment, developer string) string {
	parts := []string{normalize(base), normalize(string(env))}
	if env == EnvDev && developer != "" {
		parts = append(parts, normalize(developer))
	}

	id := strings.Join(parts, "-")
	if len(id) > maxProjectIDLength {
		id = id[:maxProjectIDLength]
	}
	return strings.TrimRight(id, "-")
}

// ResolveResourceName normalizes a resource name (service, repository) the
// same way identities are normalized, without the length cap: the platform
// limits differ per resource kind and are enforced server-side.
func ResolveResourceName(name string) string {
	return normalize(name)
}

// normalize lowercases and replaces runs of disallowed characters with a
// single hyphen. Underscores are treated as separators: the source scripts
// disagreed on hyphen vs underscore, and hyphen is the canonical choice here
// since project IDs reject underscores outright.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	lastHyphen := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLower(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			lastHyphen = true
		}
	}

	return strings.TrimRight(b.String(), "-")
}
