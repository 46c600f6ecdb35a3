package quiz

import (
	"sync"
	"testing"
	"time"

	"github.com/vinhtan/academy/internal/content"
)

// threeQuestions builds a small bank: two multiple-choice plus one
// short-answer question.
func threeQuestions(t *testing.T) []content.Question {
	t.Helper()
	q1 := mustChoice(t, "B")
	q2, err := content.NewChoiceQuestion("q3", "Câu hỏi khác?", 1, "course_01",
		[]string{"một", "hai", "ba", "bốn"}, "A", "")
	if err != nil {
		t.Fatalf("NewChoiceQuestion() error = %v", err)
	}
	q3 := mustFreeText(t, "Là thành phần kích thích cơ thể sinh kháng thể")
	return []content.Question{q1, q2, q3}
}

func TestNewSession_EmptyQuestions(t *testing.T) {
	if _, err := NewSession(SessionConfig{}); err != ErrNoQuestions {
		t.Fatalf("NewSession(empty) error = %v, want ErrNoQuestions", err)
	}
}

func TestSession_AnswerBeforeStart(t *testing.T) {
	s, err := NewSession(SessionConfig{Questions: threeQuestions(t)})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	if err := s.SelectOption("A"); err != ErrNotInProgress {
		t.Errorf("SelectOption() before Start error = %v, want ErrNotInProgress", err)
	}
	if err := s.Submit(); err != ErrNotInProgress {
		t.Errorf("Submit() before Start error = %v, want ErrNotInProgress", err)
	}
}

// Q1 correct, Q2 wrong, Q3 reference-identical short answer: 40 of 60
// points rounds to 67, below the default passing score.
func TestSession_FailingAttempt(t *testing.T) {
	var observed []Result
	s, err := NewSession(SessionConfig{
		Questions:   threeQuestions(t),
		OnSubmitted: func(r Result) { observed = append(observed, r) },
	})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := s.SelectOption("B"); err != nil { // correct
		t.Fatalf("SelectOption() error = %v", err)
	}
	if err := s.Next(); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if err := s.SelectOption("C"); err != nil { // wrong
		t.Fatalf("SelectOption() error = %v", err)
	}
	if err := s.Next(); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if err := s.SetText("Là thành phần kích thích cơ thể sinh kháng thể"); err != nil {
		t.Fatalf("SetText() error = %v", err)
	}
	if err := s.Submit(); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	result, err := s.Result()
	if err != nil {
		t.Fatalf("Result() error = %v", err)
	}
	if result.Score != 67 {
		t.Errorf("Score = %d, want 67", result.Score)
	}
	if result.Passed {
		t.Error("Passed = true, want false")
	}
	if len(observed) != 1 {
		t.Fatalf("observer notified %d times, want 1", len(observed))
	}
	if observed[0].Score != 67 || observed[0].Passed {
		t.Errorf("observed result = %+v, want score 67 failed", observed[0])
	}
}

// All three correct scores 100 and passes.
func TestSession_PassingAttempt(t *testing.T) {
	var observed []Result
	s, err := NewSession(SessionConfig{
		Questions:   threeQuestions(t),
		OnSubmitted: func(r Result) { observed = append(observed, r) },
	})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	s.SelectOption("B")
	s.Next()
	s.SelectOption("A")
	s.Next()
	s.SetText("Là thành phần kích thích cơ thể sinh kháng thể")
	if err := s.Submit(); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	result, _ := s.Result()
	if result.Score != 100 || !result.Passed {
		t.Errorf("result = %+v, want score 100 passed", result)
	}
	if len(observed) != 1 {
		t.Errorf("observer notified %d times, want 1", len(observed))
	}
}

func TestSession_OverwriteSelection(t *testing.T) {
	s, _ := NewSession(SessionConfig{Questions: threeQuestions(t)})
	s.Start()

	s.SelectOption("A")
	s.SelectOption("D")
	s.SelectOption("B") // final word counts
	s.Next()
	s.SelectOption("A")
	s.Next()
	s.SetText("Là thành phần kích thích cơ thể sinh kháng thể")
	s.Submit()

	result, _ := s.Result()
	if result.Score != 100 {
		t.Errorf("Score = %d, want 100 after overwriting to correct answers", result.Score)
	}
}

func TestSession_SelectOption_Validation(t *testing.T) {
	s, _ := NewSession(SessionConfig{Questions: threeQuestions(t)})
	s.Start()

	if err := s.SelectOption("E"); err == nil {
		t.Error("SelectOption(E) should fail")
	}
	if err := s.SetText("text"); err == nil {
		t.Error("SetText() on multiple-choice question should fail")
	}

	s.Next()
	s.Next()
	if err := s.SelectOption("A"); err == nil {
		t.Error("SelectOption() on short-answer question should fail")
	}
}

func TestSession_SubmitOnlyOnFinalQuestion(t *testing.T) {
	s, _ := NewSession(SessionConfig{Questions: threeQuestions(t)})
	s.Start()

	if err := s.Submit(); err == nil {
		t.Error("Submit() on first question should fail")
	}
	s.Next()
	s.Next()
	if err := s.Next(); err == nil {
		t.Error("Next() on final question should fail")
	}
	if err := s.Submit(); err != nil {
		t.Errorf("Submit() on final question error = %v", err)
	}
}

// The countdown expires on Q1 with nothing selected; the
// session force-advances to Q2 with a fresh timer and Q1 grades to zero.
func TestSession_TimeoutForcesAdvance(t *testing.T) {
	advanced := make(chan int, 3)
	s, err := NewSession(SessionConfig{
		Questions:       threeQuestions(t),
		TimePerQuestion: 30 * time.Millisecond,
		OnAdvance:       func(i int) { advanced <- i },
	})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	s.Start()

	select {
	case idx := <-advanced:
		if idx != 1 {
			t.Fatalf("advanced to index %d, want 1", idx)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout advancement never fired")
	}

	if _, idx, err := s.Current(); err != nil || idx != 1 {
		t.Fatalf("Current() = index %d, err %v; want index 1", idx, err)
	}
	if got := s.Remaining(); got <= 0 {
		t.Error("Remaining() should be positive after forced advance")
	}
}

func TestSession_FullTimeoutSubmits(t *testing.T) {
	done := make(chan Result, 1)
	s, err := NewSession(SessionConfig{
		Questions:       threeQuestions(t),
		TimePerQuestion: 20 * time.Millisecond,
		OnSubmitted:     func(r Result) { done <- r },
	})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	s.Start()

	select {
	case result := <-done:
		if result.Score != 0 || result.Passed {
			t.Errorf("result = %+v, want score 0 failed", result)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session never finalized by timeout")
	}

	review, err := s.Review()
	if err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	for i, item := range review {
		if !item.TimedOut {
			t.Errorf("review[%d].TimedOut = false, want true", i)
		}
		if item.Answer != "" {
			t.Errorf("review[%d].Answer = %q, want empty", i, item.Answer)
		}
	}
}

// Whichever of manual advance and timer expiry happens first wins; the loser
// must be a no-op. Manual advances cancel the pending countdown, so the only
// expiry that may ever fire is the final question's, which submits.
func TestSession_ManualAdvanceCancelsTimer(t *testing.T) {
	var (
		mu        sync.Mutex
		forced    int
		submitted int
	)
	s, err := NewSession(SessionConfig{
		Questions:       threeQuestions(t),
		TimePerQuestion: 150 * time.Millisecond,
		OnAdvance: func(int) {
			mu.Lock()
			forced++
			mu.Unlock()
		},
		OnSubmitted: func(Result) {
			mu.Lock()
			submitted++
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	s.Start()

	// Advance manually well inside the countdown windows.
	if err := s.Next(); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if err := s.Next(); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if _, idx, err := s.Current(); err != nil || idx != 2 {
		t.Fatalf("Current() = index %d, err %v; want index 2", idx, err)
	}

	// Wait out every original countdown window: only the final question's
	// timer may fire, and it submits exactly once.
	time.Sleep(400 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if forced != 0 {
		t.Errorf("forced advances = %d, want 0 (cancelled timers must be no-ops)", forced)
	}
	if submitted != 1 {
		t.Errorf("submissions = %d, want exactly 1", submitted)
	}
	if s.State() != StateSubmitted {
		t.Errorf("State() = %v, want StateSubmitted", s.State())
	}
}

func TestSession_AbandonInProgress(t *testing.T) {
	notified := false
	s, _ := NewSession(SessionConfig{
		Questions:   threeQuestions(t),
		OnSubmitted: func(Result) { notified = true },
	})
	s.Start()
	s.SelectOption("B")

	if err := s.Abandon(); err != nil {
		t.Fatalf("Abandon() error = %v", err)
	}
	if s.State() != StateAbandoned {
		t.Errorf("State() = %v, want StateAbandoned", s.State())
	}
	if notified {
		t.Error("abandoned attempt must not notify the observer")
	}
	if _, err := s.Result(); err == nil {
		t.Error("Result() after abandon should fail")
	}
	if err := s.SelectOption("A"); err != ErrNotInProgress {
		t.Errorf("SelectOption() after abandon error = %v, want ErrNotInProgress", err)
	}
}

func TestSession_AbandonAfterPassRequiresAck(t *testing.T) {
	s, _ := NewSession(SessionConfig{Questions: threeQuestions(t)})
	s.Start()
	s.SelectOption("B")
	s.Next()
	s.SelectOption("A")
	s.Next()
	s.SetText("Là thành phần kích thích cơ thể sinh kháng thể")
	s.Submit()

	if err := s.Abandon(); err != ErrUnacknowledgedPass {
		t.Fatalf("Abandon() after pass error = %v, want ErrUnacknowledgedPass", err)
	}
	if err := s.Acknowledge(); err != nil {
		t.Fatalf("Acknowledge() error = %v", err)
	}
	if err := s.Abandon(); err != nil {
		t.Errorf("Abandon() after acknowledge error = %v", err)
	}
}

func TestSession_AbandonAfterFailAllowed(t *testing.T) {
	s, _ := NewSession(SessionConfig{Questions: threeQuestions(t)})
	s.Start()
	s.Next()
	s.Next()
	s.Submit() // everything unanswered: score 0, failed

	if err := s.Abandon(); err != nil {
		t.Errorf("Abandon() after failed result error = %v", err)
	}
	// Result survives: closing a failed review does not discard it.
	if result, err := s.Result(); err != nil || result.Passed {
		t.Errorf("Result() = %+v, %v; want failed result intact", result, err)
	}
}

func TestSession_ReviewBreakdown(t *testing.T) {
	s, _ := NewSession(SessionConfig{Questions: threeQuestions(t)})
	s.Start()
	s.SelectOption("B")
	s.Next()
	s.SelectOption("C")
	s.Next()
	s.Submit()

	review, err := s.Review()
	if err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	if len(review) != 3 {
		t.Fatalf("Review() = %d items, want 3", len(review))
	}
	if !review[0].Correct() || review[0].Points != MaxPoints {
		t.Errorf("review[0] = %+v, want correct", review[0])
	}
	if review[1].Correct() || review[1].Answer != "C" {
		t.Errorf("review[1] = %+v, want wrong answer C kept for display", review[1])
	}
	if review[2].Answer != "" || review[2].Points != 0 {
		t.Errorf("review[2] = %+v, want empty zero-point", review[2])
	}
}

func TestSession_StartTwice(t *testing.T) {
	s, _ := NewSession(SessionConfig{Questions: threeQuestions(t)})
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(); err == nil {
		t.Error("second Start() should fail")
	}
}
