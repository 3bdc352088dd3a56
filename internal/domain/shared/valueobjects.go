// Package shared contains common domain types, errors, and events
// that are used across all domain packages.
package shared

import (
	"strings"
)

// IDGenerator produces opaque unique identifiers for new entities.
type IDGenerator interface {
	GenerateID() string
}

// IDGeneratorFunc adapts a plain function to IDGenerator.
type IDGeneratorFunc func() string

// GenerateID implements IDGenerator.
func (f IDGeneratorFunc) GenerateID() string {
	return f()
}

// NormalizeTitle trims surrounding whitespace and collapses internal runs of spaces.
func NormalizeTitle(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// DedupeStrings returns the distinct non-empty values of in, preserving first-seen order.
func DedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
