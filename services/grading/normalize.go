// Package grading scores Listening and Reading answers deterministically and
// holds the band arithmetic shared by every test kind.
package grading

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// stripped is the punctuation class removed before comparison
const stripped = ".,;:!?"

// Normalize trims, case-folds, removes [.,;:!?] and collapses whitespace.
// Normalize(Normalize(x)) == Normalize(x).
func Normalize(s string) string {
	s = norm.NFC.String(folder.String(s))
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(stripped, r) {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeSet normalizes every value and drops blanks and duplicates
func NormalizeSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if n := Normalize(v); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

func setsEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// ParsePairs reads MATCHING answers submitted as "key=value" (or "key:value") entries
func ParsePairs(entries []string) map[string]string {
	pairs := make(map[string]string, len(entries))
	for _, e := range entries {
		sep := strings.IndexAny(e, "=:")
		if sep < 0 {
			continue
		}
		key := Normalize(e[:sep])
		if key == "" {
			continue
		}
		pairs[key] = Normalize(e[sep+1:])
	}
	return pairs
}

// FormatPairs is the inverse of ParsePairs, sorted by key for stable storage
func FormatPairs(pairs map[string]string) []string {
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+pairs[k])
	}
	return out
}
