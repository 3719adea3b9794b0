// SPDX-License-Identifier: MPL-2.0

package core

import "strings"

// ResolveInput describes a lookup of a logical field reference in a result.
// ExcludeKey keeps two chart axes from resolving to the same column.
type ResolveInput struct {
	SelectedKey string
	RowKeys     []string
	Metadata    []ResultColumn
	FallbackKey string
	ExcludeKey  string
}

// candidateBuilder derives alternative spellings of a dotted key. Builders
// run in order and may return "" when they do not apply.
type candidateBuilder struct {
	name  string
	build func(segments []string, raw string) string
}

var candidateBuilders = []candidateBuilder{
	{"raw", func(_ []string, raw string) string { return raw }},
	{"underscore", func(_ []string, raw string) string { return strings.ReplaceAll(raw, ".", "__") }},
	{"last-two", func(s []string, _ string) string {
		if len(s) < 2 {
			return ""
		}
		return strings.Join(s[len(s)-2:], ".")
	}},
	{"last-two-underscore", func(s []string, _ string) string {
		if len(s) < 2 {
			return ""
		}
		return strings.Join(s[len(s)-2:], "__")
	}},
	{"last-segment", func(s []string, _ string) string {
		if len(s) < 1 {
			return ""
		}
		return s[len(s)-1]
	}},
}

// matchStrategy maps a candidate to an actual row key.
type matchStrategy struct {
	name  string
	match func(candidate string, present map[string]bool, metadata []ResultColumn, exclude string) (string, bool)
}

var matchStrategies = []matchStrategy{
	{"row-key", func(c string, present map[string]bool, _ []ResultColumn, exclude string) (string, bool) {
		return c, present[c] && c != exclude
	}},
	{"metadata-source", func(c string, present map[string]bool, metadata []ResultColumn, exclude string) (string, bool) {
		return matchMetadata(c, present, metadata, exclude, func(m ResultColumn) string { return m.Source })
	}},
	{"metadata-name", func(c string, present map[string]bool, metadata []ResultColumn, exclude string) (string, bool) {
		return matchMetadata(c, present, metadata, exclude, func(m ResultColumn) string { return m.Name })
	}},
}

func matchMetadata(c string, present map[string]bool, metadata []ResultColumn, exclude string, field func(ResultColumn) string) (string, bool) {
	for _, m := range metadata {
		if field(m) == c && present[m.Column] && m.Column != exclude {
			return m.Column, true
		}
	}
	return "", false
}

// CandidateKeys returns the ordered, deduplicated spellings tried for key.
func CandidateKeys(key string) []string {
	if key == "" {
		return nil
	}
	segments := []string{}
	for _, s := range strings.Split(key, ".") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	seen := map[string]bool{}
	out := []string{}
	for _, b := range candidateBuilders {
		c := b.build(segments, key)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// ResolveField returns the row key that best matches in.SelectedKey, trying
// in.FallbackKey next and finally the first usable row key. It returns ""
// only when there are no row keys.
func ResolveField(in ResolveInput) string {
	if len(in.RowKeys) == 0 {
		return ""
	}
	present := make(map[string]bool, len(in.RowKeys))
	for _, k := range in.RowKeys {
		present[k] = true
	}
	for _, key := range []string{in.SelectedKey, in.FallbackKey} {
		if resolved, ok := resolveKey(key, present, in.Metadata, in.ExcludeKey); ok {
			return resolved
		}
	}
	for _, k := range in.RowKeys {
		if k != in.ExcludeKey {
			return k
		}
	}
	return in.RowKeys[0]
}

func resolveKey(key string, present map[string]bool, metadata []ResultColumn, exclude string) (string, bool) {
	for _, c := range CandidateKeys(key) {
		for _, s := range matchStrategies {
			if resolved, ok := s.match(c, present, metadata, exclude); ok {
				return resolved, true
			}
		}
	}
	return "", false
}
