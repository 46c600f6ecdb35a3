package content_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/vinhtan/academy/internal/content"
)

const testCourseYAML = `
id: course_01
title: "An toàn sinh học trại heo"
description: "Quy trình an toàn sinh học cơ bản"
instructor: "TS. Phạm Văn B"
category: "Kỹ thuật"
topics:
  - id: topic_01
    title: "Vaccine"
    lessons:
      - id: lesson_01
        title: "Giới thiệu vaccine"
        type: VIDEO
        duration: "10:00"
        level: 1
      - id: lesson_02
        title: "Bảo quản vaccine"
        type: DOCUMENT
        duration: "5 trang"
        level: 1
      - id: lesson_03
        title: "Kỹ thuật tiêm"
        type: VIDEO
        duration: "12:00"
        level: 2
`

const testQuestionsYAML = `
course_id: course_01
questions:
  - id: q101
    text: "Mục đích chính của việc tiêm vaccine?"
    type: MULTIPLE_CHOICE
    level: 1
    options: ["Chữa bệnh", "Sinh kháng thể", "Tăng trọng", "Khử mùi"]
    answer: B
    explanation: "Vaccine kích thích sinh kháng thể đặc hiệu."
  - id: q102
    text: "Định nghĩa kháng nguyên."
    type: SHORT_ANSWER
    level: 1
    reference: "Là thành phần kích thích cơ thể sinh kháng thể"
  - id: q201
    text: "Vaccine nhược độc khác gì vaccine vô hoạt?"
    type: MULTIPLE_CHOICE
    level: 2
    options: ["Đắt hơn", "Vi sinh vật còn sống", "Không cần lạnh", "Liều cao hơn"]
    answer: B
`

const testSettingsYAML = `
quiz_time_per_level:
  1: 1
  2: 2
  3: 2
  4: 3
  5: 3
`

func setupTestContent(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"pig-farming.course.yaml":    testCourseYAML,
		"pig-farming.questions.yaml": testQuestionsYAML,
		"settings.yaml":              testSettingsYAML,
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	return dir
}

func TestLoader_LoadCourses(t *testing.T) {
	loader, err := content.NewLoader(setupTestContent(t))
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	course, found := loader.GetCourse("course_01")
	if !found {
		t.Fatal("GetCourse(course_01) not found")
	}
	if got := len(course.Lessons()); got != 3 {
		t.Errorf("Lessons() = %d lessons, want 3", got)
	}
	if got := len(course.LessonsAtLevel(1)); got != 2 {
		t.Errorf("LessonsAtLevel(1) = %d lessons, want 2", got)
	}
}

func TestLoader_QuestionsFor(t *testing.T) {
	loader, err := content.NewLoader(setupTestContent(t))
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	level1 := loader.QuestionsFor("course_01", 1)
	if len(level1) != 2 {
		t.Fatalf("QuestionsFor(course_01, 1) = %d questions, want 2", len(level1))
	}
	if _, ok := level1[0].Body.(content.Choice); !ok {
		t.Errorf("first level-1 question Body = %T, want Choice", level1[0].Body)
	}
	if _, ok := level1[1].Body.(content.FreeText); !ok {
		t.Errorf("second level-1 question Body = %T, want FreeText", level1[1].Body)
	}

	if got := loader.QuestionsFor("course_01", 3); got != nil {
		t.Errorf("QuestionsFor(course_01, 3) = %d questions, want none", len(got))
	}
	if got := loader.QuestionsFor("nonexistent", 1); got != nil {
		t.Errorf("QuestionsFor(nonexistent, 1) = %d questions, want none", len(got))
	}
}

func TestLoader_Settings(t *testing.T) {
	loader, err := content.NewLoader(setupTestContent(t))
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	s := loader.Settings()
	if got := s.MinutesFor(2, 1); got != 2 {
		t.Errorf("MinutesFor(2) = %d, want 2", got)
	}
	// Unconfigured level falls back, floored at 1 minute.
	s2 := content.Settings{}
	if got := s2.MinutesFor(1, 0); got != 1 {
		t.Errorf("MinutesFor with zero fallback = %d, want 1", got)
	}
}

func TestLoader_SkipsMalformedQuestionBank(t *testing.T) {
	dir := setupTestContent(t)
	// A bank with a bad answer letter must be dropped entirely, not loaded
	// minus the bad record.
	bad := `
course_id: course_02
questions:
  - id: bad1
    text: "ok question"
    type: MULTIPLE_CHOICE
    level: 1
    options: ["a", "b", "c", "d"]
    answer: B
  - id: bad2
    text: "broken"
    type: MULTIPLE_CHOICE
    level: 1
    options: ["a", "b"]
    answer: Z
`
	if err := os.WriteFile(filepath.Join(dir, "bad.questions.yaml"), []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}

	loader, err := content.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	if got := loader.QuestionsFor("course_02", 1); got != nil {
		t.Errorf("malformed bank loaded %d questions, want 0", len(got))
	}
}

func TestLoader_DuplicateLessonID(t *testing.T) {
	dir := setupTestContent(t)
	dup := `
id: course_02
title: "Khóa khác"
topics:
  - id: t1
    title: "T1"
    lessons:
      - id: lesson_01
        title: "Trùng ID"
        type: VIDEO
        duration: "1:00"
        level: 1
`
	if err := os.WriteFile(filepath.Join(dir, "dup.course.yaml"), []byte(dup), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := content.NewLoader(dir); err == nil {
		t.Error("NewLoader() should fail on duplicate lesson IDs across courses")
	}
}

func TestLoader_EmptyDir(t *testing.T) {
	loader, err := content.NewLoader(t.TempDir())
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	if got := loader.AllCourses(); len(got) != 0 {
		t.Errorf("AllCourses() = %d courses, want 0", len(got))
	}
}
