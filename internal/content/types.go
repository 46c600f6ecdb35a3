// Package content holds the course catalog and the question bank.
package content

import (
	"fmt"
	"strings"
)

// MinLevel and MaxLevel bound the level ladder of every course.
const (
	MinLevel = 1
	MaxLevel = 5
)

// LessonType identifies the media type of a lesson.
type LessonType string

const (
	LessonVideo    LessonType = "VIDEO"
	LessonDocument LessonType = "DOCUMENT"
	LessonImage    LessonType = "IMAGE"
)

// Lesson is a single unit of course material, gated by level.
type Lesson struct {
	ID       string     `yaml:"id" json:"id"`
	Title    string     `yaml:"title" json:"title"`
	Type     LessonType `yaml:"type" json:"type"`
	Duration string     `yaml:"duration" json:"duration"`
	URL      string     `yaml:"url" json:"url,omitempty"`
	Level    int        `yaml:"level" json:"level"`
}

// Topic groups an ordered list of lessons.
type Topic struct {
	ID      string   `yaml:"id" json:"id"`
	Title   string   `yaml:"title" json:"title"`
	Lessons []Lesson `yaml:"lessons" json:"lessons"`
}

// Course is one leveled training course.
type Course struct {
	ID          string  `yaml:"id" json:"id"`
	Title       string  `yaml:"title" json:"title"`
	Description string  `yaml:"description" json:"description"`
	Thumbnail   string  `yaml:"thumbnail" json:"thumbnail,omitempty"`
	Instructor  string  `yaml:"instructor" json:"instructor"`
	Category    string  `yaml:"category" json:"category"`
	Topics      []Topic `yaml:"topics" json:"topics"`
}

// Lessons returns every lesson of the course in topic order.
func (c Course) Lessons() []Lesson {
	var out []Lesson
	for _, t := range c.Topics {
		out = append(out, t.Lessons...)
	}
	return out
}

// LessonsAtLevel returns the course lessons gated at the given level.
func (c Course) LessonsAtLevel(level int) []Lesson {
	var out []Lesson
	for _, t := range c.Topics {
		for _, l := range t.Lessons {
			if l.Level == level {
				out = append(out, l)
			}
		}
	}
	return out
}

// FindLesson looks up a lesson by ID.
func (c Course) FindLesson(lessonID string) (Lesson, bool) {
	for _, t := range c.Topics {
		for _, l := range t.Lessons {
			if l.ID == lessonID {
				return l, true
			}
		}
	}
	return Lesson{}, false
}

// Question is one quiz question. Body carries the variant-specific fields:
// either Choice (four options, one correct letter) or FreeText (a reference
// answer graded by keyword overlap).
type Question struct {
	ID          string
	Text        string
	Level       int
	CourseID    string
	TopicName   string
	Explanation string
	Body        Body
}

// Body is the variant part of a Question.
type Body interface {
	isBody()
}

// Choice is a four-option multiple-choice body. Answer is one of A-D.
type Choice struct {
	Options [4]string
	Answer  string
}

// FreeText is a short-answer body graded against Reference.
type FreeText struct {
	Reference string
}

func (Choice) isBody()   {}
func (FreeText) isBody() {}

// optionLetters are the only valid multiple-choice answers.
const optionLetters = "ABCD"

// NewChoiceQuestion builds a multiple-choice question, enforcing exactly four
// options and an answer letter in A-D.
func NewChoiceQuestion(id, text string, level int, courseID string, options []string, answer string, explanation string) (Question, error) {
	if err := validateCommon(id, text, level, courseID); err != nil {
		return Question{}, err
	}
	if len(options) != 4 {
		return Question{}, fmt.Errorf("question %s: need exactly 4 options, got %d", id, len(options))
	}
	answer = strings.ToUpper(strings.TrimSpace(answer))
	if len(answer) != 1 || !strings.Contains(optionLetters, answer) {
		return Question{}, fmt.Errorf("question %s: answer must be one of A-D, got %q", id, answer)
	}
	for i, opt := range options {
		if strings.TrimSpace(opt) == "" {
			return Question{}, fmt.Errorf("question %s: option %c is empty", id, optionLetters[i])
		}
	}
	var opts [4]string
	copy(opts[:], options)
	return Question{
		ID:          id,
		Text:        text,
		Level:       level,
		CourseID:    courseID,
		Explanation: explanation,
		Body:        Choice{Options: opts, Answer: answer},
	}, nil
}

// NewFreeTextQuestion builds a short-answer question with a non-empty
// reference answer.
func NewFreeTextQuestion(id, text string, level int, courseID, reference, explanation string) (Question, error) {
	if err := validateCommon(id, text, level, courseID); err != nil {
		return Question{}, err
	}
	if strings.TrimSpace(reference) == "" {
		return Question{}, fmt.Errorf("question %s: reference answer is empty", id)
	}
	return Question{
		ID:          id,
		Text:        text,
		Level:       level,
		CourseID:    courseID,
		Explanation: explanation,
		Body:        FreeText{Reference: reference},
	}, nil
}

func validateCommon(id, text string, level int, courseID string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("question id is empty")
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("question %s: text is empty", id)
	}
	if level < MinLevel || level > MaxLevel {
		return fmt.Errorf("question %s: level must be %d-%d, got %d", id, MinLevel, MaxLevel, level)
	}
	if strings.TrimSpace(courseID) == "" {
		return fmt.Errorf("question %s: course id is empty", id)
	}
	return nil
}

// Settings are platform-wide tunables authored alongside the content packs.
type Settings struct {
	// QuizTimePerLevel maps level (1-5) to minutes allowed per question.
	QuizTimePerLevel map[int]int `yaml:"quiz_time_per_level" json:"quiz_time_per_level"`
}

// MinutesFor returns the per-question minutes for a level, falling back to
// fallback (floored at 1) when the level has no configured time.
func (s Settings) MinutesFor(level, fallback int) int {
	if m, ok := s.QuizTimePerLevel[level]; ok && m >= 1 {
		return m
	}
	if fallback < 1 {
		return 1
	}
	return fallback
}
