package quiz

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vinhtan/academy/internal/content"
)

// State is the lifecycle phase of a quiz session.
type State int

const (
	StateNotStarted State = iota
	StateInProgress
	StateSubmitted
	StateAbandoned
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateInProgress:
		return "in_progress"
	case StateSubmitted:
		return "submitted"
	case StateAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

var (
	// ErrNoQuestions is returned when a session is constructed with an empty
	// question list ("content not ready").
	ErrNoQuestions = errors.New("quiz: no questions available")

	// ErrNotInProgress is returned for answer/advance calls outside InProgress.
	ErrNotInProgress = errors.New("quiz: session is not in progress")

	// ErrUnacknowledgedPass is returned when Abandon is called on a passed,
	// unacknowledged result: level advancement already happened, so the UI
	// must show the result before closing.
	ErrUnacknowledgedPass = errors.New("quiz: passed result must be acknowledged")
)

// Result is the outcome of one completed quiz attempt.
type Result struct {
	Score  int       `json:"score"`
	Passed bool      `json:"passed"`
	Date   time.Time `json:"date"`
}

// ReviewItem is one line of the post-submission answer review.
type ReviewItem struct {
	Question content.Question
	Answer   string
	Points   int
	TimedOut bool
}

// Correct reports whether the answer earned full points.
func (r ReviewItem) Correct() bool {
	return r.Points == MaxPoints
}

// SessionConfig configures one quiz attempt.
type SessionConfig struct {
	// Questions is the pre-filtered (course, level) question list. Must be
	// non-empty.
	Questions []content.Question

	// TimePerQuestion is the countdown per question. Defaults to one minute.
	TimePerQuestion time.Duration

	// PassingScore defaults to PassingScore (80).
	PassingScore int

	// OnSubmitted is notified exactly once when the attempt completes,
	// whether passed or failed. Called without the session lock held.
	OnSubmitted func(Result)

	// OnAdvance is notified when the countdown forces advancement to a new
	// question index. Manual advancement does not fire it.
	OnAdvance func(index int)
}

// Session runs exactly one timed quiz attempt. Every transition (answer
// capture, manual advance, countdown expiry, submission, abandonment) is
// serialized through one mutex, so the timer and a concurrent user action
// cannot both fire for the same question: whichever comes first wins and the
// loser is a no-op.
type Session struct {
	mu sync.Mutex

	questions []content.Question
	answers   []string
	timedOut  []bool

	timePerQuestion time.Duration
	passingScore    int
	onSubmitted     func(Result)
	onAdvance       func(int)

	state    State
	index    int
	timer    *time.Timer
	timerGen int
	deadline time.Time

	result       Result
	acknowledged bool
}

// NewSession creates a session in StateNotStarted. It refuses an empty
// question list.
func NewSession(cfg SessionConfig) (*Session, error) {
	if len(cfg.Questions) == 0 {
		return nil, ErrNoQuestions
	}
	tpq := cfg.TimePerQuestion
	if tpq <= 0 {
		tpq = time.Minute
	}
	passing := cfg.PassingScore
	if passing == 0 {
		passing = PassingScore
	}
	return &Session{
		questions:       cfg.Questions,
		answers:         make([]string, len(cfg.Questions)),
		timedOut:        make([]bool, len(cfg.Questions)),
		timePerQuestion: tpq,
		passingScore:    passing,
		onSubmitted:     cfg.OnSubmitted,
		onAdvance:       cfg.OnAdvance,
	}, nil
}

// Start begins the attempt at question zero with a fresh countdown.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateNotStarted {
		return fmt.Errorf("quiz: cannot start from state %s", s.state)
	}
	s.state = StateInProgress
	s.index = 0
	s.armTimerLocked()
	return nil
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current returns the question under answer and its zero-based index.
func (s *Session) Current() (content.Question, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInProgress {
		return content.Question{}, 0, ErrNotInProgress
	}
	return s.questions[s.index], s.index, nil
}

// Count returns the number of questions in the attempt.
func (s *Session) Count() int {
	return len(s.questions)
}

// Remaining returns the time left on the current question's countdown.
func (s *Session) Remaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInProgress {
		return 0
	}
	if d := time.Until(s.deadline); d > 0 {
		return d
	}
	return 0
}

// SelectOption records a multiple-choice answer for the current question,
// overwriting any prior selection.
func (s *Session) SelectOption(letter string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInProgress {
		return ErrNotInProgress
	}
	if _, ok := s.questions[s.index].Body.(content.Choice); !ok {
		return fmt.Errorf("quiz: question %s is not multiple-choice", s.questions[s.index].ID)
	}
	norm, err := normalizeLetter(letter)
	if err != nil {
		return err
	}
	s.answers[s.index] = norm
	return nil
}

// SetText records a free-text answer for the current question. Called on
// every edit; the last value before advancement counts.
func (s *Session) SetText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInProgress {
		return ErrNotInProgress
	}
	if _, ok := s.questions[s.index].Body.(content.FreeText); !ok {
		return fmt.Errorf("quiz: question %s is not short-answer", s.questions[s.index].ID)
	}
	s.answers[s.index] = text
	return nil
}

// Next manually advances to the following question with a fresh countdown.
// The current question cannot be revisited afterwards. On the final question
// use Submit instead.
func (s *Session) Next() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInProgress {
		return ErrNotInProgress
	}
	if s.index == len(s.questions)-1 {
		return fmt.Errorf("quiz: already on the final question, submit instead")
	}
	s.index++
	s.armTimerLocked()
	return nil
}

// Submit finalizes the attempt from the final question: grades every answer,
// computes the aggregate score, and notifies the attempt observer.
func (s *Session) Submit() error {
	s.mu.Lock()
	if s.state != StateInProgress {
		s.mu.Unlock()
		return ErrNotInProgress
	}
	if s.index != len(s.questions)-1 {
		s.mu.Unlock()
		return fmt.Errorf("quiz: cannot submit before the final question")
	}
	notify := s.finalizeLocked()
	s.mu.Unlock()
	notify()
	return nil
}

// Abandon discards an in-flight attempt: the timer stops, captured answers
// are dropped, and no result or log entry is produced. A submitted passing
// result must be acknowledged first.
func (s *Session) Abandon() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateSubmitted:
		if s.result.Passed && !s.acknowledged {
			return ErrUnacknowledgedPass
		}
		return nil
	case StateAbandoned:
		return nil
	}
	s.cancelTimerLocked()
	s.state = StateAbandoned
	s.answers = make([]string, len(s.questions))
	return nil
}

// Acknowledge marks a submitted result as seen, permitting the session to be
// closed.
func (s *Session) Acknowledge() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSubmitted {
		return fmt.Errorf("quiz: nothing to acknowledge in state %s", s.state)
	}
	s.acknowledged = true
	return nil
}

// Result returns the attempt outcome once submitted.
func (s *Session) Result() (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSubmitted {
		return Result{}, fmt.Errorf("quiz: no result in state %s", s.state)
	}
	return s.result, nil
}

// Review returns the graded per-question breakdown once submitted.
func (s *Session) Review() ([]ReviewItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSubmitted {
		return nil, fmt.Errorf("quiz: no review in state %s", s.state)
	}
	items := make([]ReviewItem, len(s.questions))
	for i, q := range s.questions {
		items[i] = ReviewItem{
			Question: q,
			Answer:   s.answers[i],
			Points:   Grade(q, s.answers[i]),
			TimedOut: s.timedOut[i],
		}
	}
	return items, nil
}

// armTimerLocked resets the countdown for the current question. The
// generation counter makes an already-fired callback from a previous question
// a no-op.
func (s *Session) armTimerLocked() {
	s.cancelTimerLocked()
	s.timerGen++
	gen := s.timerGen
	s.deadline = time.Now().Add(s.timePerQuestion)
	s.timer = time.AfterFunc(s.timePerQuestion, func() { s.expire(gen) })
}

func (s *Session) cancelTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerGen++
}

// expire handles countdown exhaustion: the captured answer is frozen as-is
// and the session force-advances (or finalizes on the last question).
func (s *Session) expire(gen int) {
	var after func()
	s.mu.Lock()
	if s.state != StateInProgress || gen != s.timerGen {
		s.mu.Unlock()
		return
	}
	s.timedOut[s.index] = true
	if s.index == len(s.questions)-1 {
		after = s.finalizeLocked()
	} else {
		s.index++
		s.armTimerLocked()
		idx := s.index
		if cb := s.onAdvance; cb != nil {
			after = func() { cb(idx) }
		}
	}
	s.mu.Unlock()
	if after != nil {
		after()
	}
}

// finalizeLocked grades the attempt and transitions to StateSubmitted. It
// returns the observer notification to run after the lock is released.
func (s *Session) finalizeLocked() func() {
	s.cancelTimerLocked()
	points := make([]int, len(s.questions))
	for i, q := range s.questions {
		points[i] = Grade(q, s.answers[i])
	}
	score := AggregateScore(points)
	s.result = Result{
		Score:  score,
		Passed: score >= s.passingScore,
		Date:   time.Now(),
	}
	s.state = StateSubmitted

	res := s.result
	cb := s.onSubmitted
	return func() {
		if cb != nil {
			cb(res)
		}
	}
}

func normalizeLetter(letter string) (string, error) {
	switch letter {
	case "A", "B", "C", "D":
		return letter, nil
	case "a", "b", "c", "d":
		return string(letter[0] - 'a' + 'A'), nil
	default:
		return "", fmt.Errorf("quiz: option must be A-D, got %q", letter)
	}
}
