// Package question validates and grades submitted answers. Each question
// kind has its own correctness rule; grading is a pure function of the
// resolved question and the participant's choices.
package question

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roadtones/captionstudy/internal/model"
)

// ErrSelectionCount is returned when a multi-select answer does not carry
// exactly the required number of choices.
type ErrSelectionCount struct {
	QuestionID string
	Want       int
	Got        int
}

func (e *ErrSelectionCount) Error() string {
	return fmt.Sprintf("question %s: select exactly %d options, got %d", e.QuestionID, e.Want, e.Got)
}

// ValidationError reports which questions of a screen are still unanswered,
// by their 1-based display numbers.
type ValidationError struct {
	Missing []int
}

func (e *ValidationError) Error() string {
	nums := make([]string, len(e.Missing))
	for i, n := range e.Missing {
		nums[i] = fmt.Sprintf("%d", n)
	}
	return "unanswered question(s): " + strings.Join(nums, ", ")
}

// multiSelectCount is how many options a multi-select question requires.
const multiSelectCount = 2

type scorer func(q model.Question, choices []string) (bool, error)

var scorers = map[model.QuestionKind]scorer{
	model.KindSingle:   scoreSingle,
	model.KindMultiTwo: scoreMulti,
	model.KindOrdinal:  scoreOrdinal,
}

// Score grades one submitted answer. For ordinal questions correctness is
// not defined and the first return value is always false; callers use
// q.Scored() to decide whether the result counts toward anything.
func Score(q model.Question, choices []string) (bool, error) {
	fn, ok := scorers[q.Kind]
	if !ok {
		return false, fmt.Errorf("question %s: unknown kind %q", q.ID, q.Kind)
	}
	return fn(q, choices)
}

func scoreSingle(q model.Question, choices []string) (bool, error) {
	if len(choices) != 1 {
		return false, &ErrSelectionCount{QuestionID: q.ID, Want: 1, Got: len(choices)}
	}
	return len(q.Correct) == 1 && choices[0] == q.Correct[0], nil
}

func scoreMulti(q model.Question, choices []string) (bool, error) {
	if len(choices) != multiSelectCount {
		return false, &ErrSelectionCount{QuestionID: q.ID, Want: multiSelectCount, Got: len(choices)}
	}
	return sameSet(choices, q.Correct), nil
}

func scoreOrdinal(q model.Question, choices []string) (bool, error) {
	if len(choices) != 1 {
		return false, &ErrSelectionCount{QuestionID: q.ID, Want: 1, Got: len(choices)}
	}
	return false, nil
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// Validate checks that every question in the list has an answer. Answers map
// question ID to the chosen options.
func Validate(questions []model.Question, answers map[string][]string) error {
	var missing []int
	for i, q := range questions {
		if len(answers[q.ID]) == 0 {
			missing = append(missing, i+1)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

// VisibleCount implements progressive disclosure: the participant sees every
// question already interacted with plus the next one.
func VisibleCount(total, interacted int) int {
	n := interacted + 1
	if n > total {
		n = total
	}
	return n
}

// JoinChoices renders a multi-select answer the way it is persisted.
func JoinChoices(choices []string) string {
	return strings.Join(choices, ", ")
}
