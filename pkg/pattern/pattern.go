// Package pattern extracts wildcard-bound values from user input such as
// genomic coordinates ("chr*:*-*") and fills them back in.
package pattern

import (
	"strings"
)

// Wildcard marks one extracted run in a pattern.
const Wildcard = "*"

// Extract matches value against pattern and returns the substring bound to
// each wildcard, in order. Every wildcard extends greedily up to the next
// occurrence of the literal run that follows it, or to the end of value when
// no literal follows or the literal is not found. Nil is returned when a
// literal character of the pattern does not match. A pattern without
// wildcards extracts the whole value.
func Extract(pattern, value string) []string {
	if !strings.Contains(pattern, Wildcard) {
		return []string{value}
	}

	values := []string{}
	pv, pp := 0, 0
	for pv < len(value) {
		if pp >= len(pattern) {
			return nil
		}
		if pattern[pp] != '*' {
			if pattern[pp] != value[pv] {
				return nil
			}
			pv++
			pp++
			continue
		}

		// Literal run up to the next wildcard.
		end := pp + 1
		for end < len(pattern) && pattern[end] != '*' {
			end++
		}
		literal := pattern[pp+1 : end]

		next := len(value)
		if literal != "" {
			if i := strings.Index(value[pv:], literal); i >= 0 {
				next = pv + i
			}
		}
		values = append(values, value[pv:next])
		pv = next + len(literal)
		pp = end
	}
	return values
}

// ExtractAny tries each pattern in order and returns the first non-empty
// extraction. When none yields values, the result of the last pattern is
// returned, which may be nil.
func ExtractAny(patterns []string, value string) []string {
	var values []string
	for _, p := range patterns {
		values = Extract(p, value)
		if len(values) > 0 {
			return values
		}
	}
	return values
}

// FillIn substitutes comma-separated values into the wildcards of pattern.
// Segments beyond the supplied values are dropped.
func FillIn(pattern, csv string) string {
	if pattern == "" || csv == "" {
		return ""
	}
	segments := strings.Split(pattern, Wildcard)
	values := strings.Split(csv, ",")

	var b strings.Builder
	for i, seg := range segments {
		if i >= len(values) {
			break
		}
		b.WriteString(seg)
		if i < len(segments)-1 {
			b.WriteString(values[i])
		}
	}
	return b.String()
}

// TermFunc rewrites one extracted value for the backend attribute esid.
type TermFunc func(esid, term string) string

// ProcessRows extracts every input row with the pipe-separated patterns and
// joins the extracted values of a row with commas. Rows that do not match
// any pattern are dropped. term may be nil; when set, esids[i] names the
// attribute of the i-th extracted value.
func ProcessRows(patterns []string, esids []string, rows []string, term TermFunc) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		values := ExtractAny(patterns, row)
		if values == nil {
			continue
		}
		if term != nil {
			for i := range values {
				if i < len(esids) {
					values[i] = term(esids[i], values[i])
				}
			}
		}
		out = append(out, strings.Join(values, ","))
	}
	return out
}
