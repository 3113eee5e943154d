package conversation

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	pronounMarkers = regexp.MustCompile(`(?i)\b(their|those|them|it|this|that|these)\b`)
	openerMarkers  = regexp.MustCompile(`(?i)^\s*(and|now|also)\b`)
)

// Resolve rewrites a question that back-references earlier turns by
// prepending a structured preamble naming the previous question and its
// tables. Questions without back-reference markers pass through unchanged.
// Resolve is a pure function and performs no I/O.
func Resolve(current string, history []Turn) string {
	if len(history) == 0 {
		return current
	}

	if !pronounMarkers.MatchString(current) && !openerMarkers.MatchString(current) {
		return current
	}

	last := history[len(history)-1]

	previous := last.ResolvedQuestion
	if previous == "" {
		previous = last.Question
	}

	if previous == "" {
		return current
	}

	preamble := fmt.Sprintf("[context: follows up on %q", previous)
	if len(last.TablesUsed) > 0 {
		preamble += fmt.Sprintf(" involving tables %s", strings.Join(last.TablesUsed, ", "))
	}

	preamble += "]"

	return preamble + " " + current
}
