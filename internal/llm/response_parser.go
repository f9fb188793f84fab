package llm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/scrypster/engram/pkg/types"
)

var (
	// numberPattern matches the first decimal number in a response,
	// including bare fractions like ".5".
	numberPattern = regexp.MustCompile(`-?\d*\.?\d+`)

	// listMarkerPattern matches leading "1." / "1)" numbering.
	listMarkerPattern = regexp.MustCompile(`^\d+[.)]\s*`)
)

// ParseImportance extracts an importance score from a model response and
// clamps it to [0, 1]. Models occasionally decorate the number ("Importance:
// 0.8.") despite instructions; the first number found wins. Returns an error
// only when no number is present at all.
func ParseImportance(raw string) (float64, error) {
	match := numberPattern.FindString(raw)
	if match == "" {
		return 0, fmt.Errorf("no importance score in response %q", truncateForError(raw))
	}
	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, fmt.Errorf("parse importance score %q: %w", match, err)
	}
	return types.ClampImportance(value), nil
}

// ParseQuestions splits a response into questions, one per line, stripping
// the bullets and numbering models add anyway. At most max questions are
// returned; blank lines are dropped.
func ParseQuestions(raw string, max int) []string {
	var questions []string
	for _, line := range strings.Split(raw, "\n") {
		line = stripListMarker(line)
		if line == "" {
			continue
		}
		questions = append(questions, line)
		if len(questions) == max {
			break
		}
	}
	return questions
}

// ParseSummary normalizes a prose response: surrounding whitespace and
// quotes removed, internal line breaks collapsed to spaces.
func ParseSummary(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, `"`)
	s = strings.Join(strings.Fields(s), " ")
	return s
}

func stripListMarker(line string) string {
	line = strings.TrimSpace(line)
	line = strings.TrimLeft(line, "-*• \t")
	if m := listMarkerPattern.FindString(line); m != "" {
		line = line[len(m):]
	}
	return strings.TrimSpace(line)
}

func truncateForError(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 80 {
		return s[:80] + "..."
	}
	return s
}
