// Package quiz grades answers and runs timed quiz sessions.
package quiz

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/vinhtan/academy/internal/content"
)

const (
	// PassingScore is the percentage at or above which an attempt passes.
	PassingScore = 80

	// MaxPoints is the value of a fully correct answer; PartialPoints is
	// awarded for a partially matching free-text answer.
	MaxPoints     = 20
	PartialPoints = 10
)

// Free-text grading thresholds: token overlap of 0.7 earns full points, 0.3
// earns partial. Tuned against the legacy question bank; change with care.
const (
	fullOverlapNum    = 7
	partialOverlapNum = 3
	overlapDen        = 10
)

// Grade scores a single answered question: 0, PartialPoints, or MaxPoints.
// It is a pure function over its inputs.
func Grade(q content.Question, answer string) int {
	switch body := q.Body.(type) {
	case content.Choice:
		if strings.ToUpper(strings.TrimSpace(answer)) == body.Answer {
			return MaxPoints
		}
		return 0
	case content.FreeText:
		return gradeFreeText(answer, body.Reference)
	default:
		return 0
	}
}

func gradeFreeText(answer, reference string) int {
	if strings.TrimSpace(answer) == "" {
		return 0
	}

	user := normalize(answer)
	ref := normalize(reference)
	if user == "" || ref == "" {
		return 0
	}

	if user == ref || strings.Contains(user, ref) || strings.Contains(ref, user) {
		return MaxPoints
	}

	refTokens := tokenSet(ref)
	matched := 0
	for tok := range tokenSet(user) {
		if _, ok := refTokens[tok]; ok {
			matched++
		}
	}

	// Integer comparison keeps the 0.7/0.3 boundaries exact.
	switch {
	case matched*overlapDen >= len(refTokens)*fullOverlapNum:
		return MaxPoints
	case matched*overlapDen >= len(refTokens)*partialOverlapNum:
		return PartialPoints
	default:
		return 0
	}
}

// normalize casefolds a free-text answer, drops punctuation, and collapses
// whitespace. Casefolding handles accented Vietnamese text correctly where
// ASCII lowering would not.
func normalize(s string) string {
	s = cases.Fold().String(s)
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		set[tok] = struct{}{}
	}
	return set
}

// AggregateScore converts per-question points into a 0-100 percentage,
// rounding half up. It panics on an empty point list: callers must refuse to
// run a quiz with no questions, so reaching here is a contract breach.
func AggregateScore(points []int) int {
	if len(points) == 0 {
		panic("quiz: AggregateScore called with no questions")
	}
	sum := 0
	for _, p := range points {
		if p < 0 || p > MaxPoints {
			panic(fmt.Sprintf("quiz: point value %d out of range", p))
		}
		sum += p
	}
	den := len(points) * MaxPoints
	return (100*sum + den/2) / den
}

// Passed reports whether a percentage score meets the passing threshold.
func Passed(score int) bool {
	return score >= PassingScore
}
