package content

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Loader loads and caches catalog content from the filesystem.
//
// Content packs are plain files under a root directory:
//
//	*.course.yaml    - one course with its topics and lessons
//	*.questions.yaml - a question bank for one course
//	settings.yaml    - platform settings (quiz time per level)
type Loader struct {
	rootDir   string
	courses   map[string]Course
	questions map[string][]Question // keyed by course ID, authored order
	lessonIDs map[string]string     // lesson ID -> course ID, for uniqueness
	settings  Settings
	mu        sync.RWMutex
}

// questionFile is the raw YAML shape of a *.questions.yaml pack.
type questionFile struct {
	CourseID  string `yaml:"course_id"`
	Questions []struct {
		ID          string   `yaml:"id"`
		Text        string   `yaml:"text"`
		Type        string   `yaml:"type"`
		Level       int      `yaml:"level"`
		Topic       string   `yaml:"topic"`
		Options     []string `yaml:"options"`
		Answer      string   `yaml:"answer"`
		Reference   string   `yaml:"reference"`
		Explanation string   `yaml:"explanation"`
	} `yaml:"questions"`
}

// NewLoader creates a content loader and loads all packs under rootDir.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		rootDir:   rootDir,
		courses:   make(map[string]Course),
		questions: make(map[string][]Question),
		lessonIDs: make(map[string]string),
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading content: %w", err)
	}

	slog.Info("content loaded",
		"courses", len(l.courses),
		"question_banks", len(l.questions),
	)
	return l, nil
}

// GetCourse returns a course by ID.
func (l *Loader) GetCourse(id string) (Course, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.courses[id]
	return c, ok
}

// AllCourses returns all loaded courses.
func (l *Loader) AllCourses() []Course {
	l.mu.RLock()
	defer l.mu.RUnlock()
	courses := make([]Course, 0, len(l.courses))
	for _, c := range l.courses {
		courses = append(courses, c)
	}
	return courses
}

// QuestionsFor returns the questions for one course and level, in authored
// order. This is the only question feed the quiz engine consumes.
func (l *Loader) QuestionsFor(courseID string, level int) []Question {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Question
	for _, q := range l.questions[courseID] {
		if q.Level == level {
			out = append(out, q)
		}
	}
	return out
}

// Settings returns the loaded platform settings.
func (l *Loader) Settings() Settings {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.settings
}

// AddQuestions appends imported questions to a course bank. Questions are
// assumed validated (see ImportQuestions).
func (l *Loader) AddQuestions(courseID string, qs []Question) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.questions[courseID] = append(l.questions[courseID], qs...)
}

func (l *Loader) loadAll() error {
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}

		switch {
		case strings.HasSuffix(path, ".course.yaml"):
			return l.loadCourse(path)
		case strings.HasSuffix(path, ".questions.yaml"):
			return l.loadQuestions(path)
		case filepath.Base(path) == "settings.yaml":
			return l.loadSettings(path)
		}
		return nil
	})
}

func (l *Loader) loadCourse(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var course Course
	if err := yaml.Unmarshal(data, &course); err != nil {
		slog.Warn("skipping invalid course YAML", "path", path, "error", err)
		return nil
	}
	if course.ID == "" {
		return nil // not a course file
	}

	for _, lesson := range course.Lessons() {
		if lesson.Level < MinLevel || lesson.Level > MaxLevel {
			slog.Warn("skipping course with out-of-range lesson level",
				"path", path, "lesson", lesson.ID, "level", lesson.Level)
			return nil
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Lesson IDs must be unique across the whole catalog: completion sets and
	// activity reports are keyed by lesson ID alone.
	for _, lesson := range course.Lessons() {
		if owner, dup := l.lessonIDs[lesson.ID]; dup && owner != course.ID {
			return fmt.Errorf("lesson %s in course %s already defined by course %s",
				lesson.ID, course.ID, owner)
		}
	}
	for _, lesson := range course.Lessons() {
		l.lessonIDs[lesson.ID] = course.ID
	}
	l.courses[course.ID] = course

	return nil
}

func (l *Loader) loadQuestions(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var file questionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		slog.Warn("skipping invalid question YAML", "path", path, "error", err)
		return nil
	}
	if file.CourseID == "" {
		return nil
	}

	qs := make([]Question, 0, len(file.Questions))
	for _, raw := range file.Questions {
		var (
			q    Question
			qerr error
		)
		switch raw.Type {
		case "MULTIPLE_CHOICE":
			q, qerr = NewChoiceQuestion(raw.ID, raw.Text, raw.Level, file.CourseID, raw.Options, raw.Answer, raw.Explanation)
		case "SHORT_ANSWER":
			q, qerr = NewFreeTextQuestion(raw.ID, raw.Text, raw.Level, file.CourseID, raw.Reference, raw.Explanation)
		default:
			qerr = fmt.Errorf("question %s: unknown type %q", raw.ID, raw.Type)
		}
		if qerr != nil {
			// A malformed record invalidates the whole bank rather than
			// silently shrinking a quiz.
			slog.Warn("skipping question bank with malformed record", "path", path, "error", qerr)
			return nil
		}
		q.TopicName = raw.Topic
		qs = append(qs, q)
	}

	l.mu.Lock()
	l.questions[file.CourseID] = append(l.questions[file.CourseID], qs...)
	l.mu.Unlock()

	return nil
}

func (l *Loader) loadSettings(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		slog.Warn("skipping invalid settings YAML", "path", path, "error", err)
		return nil
	}

	l.mu.Lock()
	l.settings = s
	l.mu.Unlock()

	return nil
}
