package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/vinhtan/academy/internal/activity"
	"github.com/vinhtan/academy/internal/content"
	"github.com/vinhtan/academy/internal/identity"
	"github.com/vinhtan/academy/internal/quiz"
)

// HealthChecker is anything readyz should probe.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server is the HTTP surface over the coordination service.
type Server struct {
	svc    *Service
	checks []HealthChecker
	mux    *http.ServeMux
}

// New creates the HTTP server. checks are probed by readyz.
func New(svc *Service, checks ...HealthChecker) *Server {
	s := &Server{svc: svc, checks: checks}
	s.mux = s.newMux()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/users", s.handleCreateUser)
	mux.HandleFunc("GET /api/users/{userID}", s.handleGetUser)

	mux.HandleFunc("GET /api/courses", s.handleCatalog)
	mux.HandleFunc("POST /api/courses/{courseID}/enroll", s.handleEnroll)
	mux.HandleFunc("GET /api/courses/{courseID}/lessons/{lessonID}", s.handleViewLesson)
	mux.HandleFunc("POST /api/courses/{courseID}/lessons/{lessonID}/complete", s.handleCompleteLesson)
	mux.HandleFunc("POST /api/courses/{courseID}/quiz", s.handleStartQuiz)

	mux.HandleFunc("GET /api/quiz/{sessionID}", s.handleQuizState)
	mux.HandleFunc("POST /api/quiz/{sessionID}/answer", s.handleAnswer)
	mux.HandleFunc("POST /api/quiz/{sessionID}/next", s.handleNext)
	mux.HandleFunc("POST /api/quiz/{sessionID}/submit", s.handleSubmit)
	mux.HandleFunc("POST /api/quiz/{sessionID}/abandon", s.handleAbandon)
	mux.HandleFunc("POST /api/quiz/{sessionID}/acknowledge", s.handleAcknowledge)
	mux.HandleFunc("GET /api/quiz/{sessionID}/review", s.handleReview)
	mux.HandleFunc("GET /api/quiz/{sessionID}/live", s.handleLiveQuiz)

	mux.HandleFunc("POST /api/questions/import", s.handleImport)
	mux.HandleFunc("GET /api/activity", s.handleActivity)
	mux.HandleFunc("GET /api/certificates", s.handleCertificates)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// userID pulls the caller identity from the X-User-ID header. There is
// no session auth here; the platform sits behind the company gateway
// which injects the header.
func userID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	for _, c := range s.checks {
		if err := c.HealthCheck(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	u, err := s.svc.Authenticate(body.Username, body.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
		return
	}
	var body struct {
		identity.User
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	u, err := s.svc.CreateUser(uid, body.User, body.Password)
	if err != nil {
		if errors.Is(err, errForbidden) {
			writeError(w, http.StatusForbidden, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
		return
	}
	u, err := s.svc.User(uid, r.PathValue("userID"))
	if err != nil {
		if errors.Is(err, errForbidden) {
			writeError(w, http.StatusForbidden, err.Error())
			return
		}
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"courses": s.svc.Catalog(r.Context())})
}

func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
		return
	}
	e, err := s.svc.Enroll(uid, r.PathValue("courseID"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleViewLesson(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
		return
	}
	lesson, err := s.svc.ViewLesson(uid, r.PathValue("courseID"), r.PathValue("lessonID"))
	if err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, lesson)
}

func (s *Server) handleCompleteLesson(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
		return
	}
	if err := s.svc.CompleteLesson(uid, r.PathValue("courseID"), r.PathValue("lessonID")); err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

func (s *Server) handleStartQuiz(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
		return
	}
	qs, gate, err := s.svc.StartQuiz(r.Context(), uid, r.PathValue("courseID"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if qs == nil {
		writeJSON(w, http.StatusConflict, gate)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": qs.ID,
		"level":      qs.Level,
		"count":      qs.Quiz.Count(),
	})
}

// questionView is the wire shape of the current question. The correct
// answer and reference text never leave the server mid-quiz.
type questionView struct {
	ID               string   `json:"id"`
	Text             string   `json:"text"`
	Type             string   `json:"type"`
	Options          []string `json:"options,omitempty"`
	Index            int      `json:"index"`
	Count            int      `json:"count"`
	RemainingSeconds int      `json:"remaining_seconds"`
}

func viewOf(qs *QuizSession) (questionView, error) {
	q, idx, err := qs.Quiz.Current()
	if err != nil {
		return questionView{}, err
	}
	v := questionView{
		ID:               q.ID,
		Text:             q.Text,
		Index:            idx,
		Count:            qs.Quiz.Count(),
		RemainingSeconds: int(qs.Quiz.Remaining().Seconds()),
	}
	switch body := q.Body.(type) {
	case content.Choice:
		v.Type = "MULTIPLE_CHOICE"
		v.Options = body.Options[:]
	case content.FreeText:
		v.Type = "SHORT_ANSWER"
	}
	return v, nil
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*QuizSession, bool) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
		return nil, false
	}
	qs, err := s.svc.Session(r.PathValue("sessionID"), uid)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return qs, true
}

func (s *Server) handleQuizState(w http.ResponseWriter, r *http.Request) {
	qs, ok := s.session(w, r)
	if !ok {
		return
	}
	v, err := viewOf(qs)
	if err != nil {
		// Terminal states still report themselves.
		writeJSON(w, http.StatusOK, map[string]string{"state": qs.Quiz.State().String()})
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	qs, ok := s.session(w, r)
	if !ok {
		return
	}
	var body struct {
		Option string `json:"option"`
		Text   string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var err error
	if body.Option != "" {
		err = qs.Quiz.SelectOption(body.Option)
	} else {
		err = qs.Quiz.SetText(body.Text)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	qs, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := qs.Quiz.Next(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v, err := viewOf(qs)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	qs, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := qs.Quiz.Submit(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := qs.Quiz.Result()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAbandon(w http.ResponseWriter, r *http.Request) {
	qs, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := qs.Quiz.Abandon(); err != nil {
		if errors.Is(err, quiz.ErrUnacknowledgedPass) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.svc.ReleaseSession(qs.ID)
	writeJSON(w, http.StatusOK, map[string]string{"state": qs.Quiz.State().String()})
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	qs, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := qs.Quiz.Acknowledge(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.svc.ReleaseSession(qs.ID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
}

// reviewView is one question of the post-submission breakdown. The
// correct answer is only revealed here, after the session is terminal.
type reviewView struct {
	QuestionID    string `json:"question_id"`
	Text          string `json:"text"`
	Answer        string `json:"answer"`
	CorrectAnswer string `json:"correct_answer"`
	Points        int    `json:"points"`
	Correct       bool   `json:"correct"`
	TimedOut      bool   `json:"timed_out"`
	Explanation   string `json:"explanation,omitempty"`
}

func correctAnswerOf(q content.Question) string {
	switch body := q.Body.(type) {
	case content.Choice:
		return body.Answer
	case content.FreeText:
		return body.Reference
	}
	return ""
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	qs, ok := s.session(w, r)
	if !ok {
		return
	}
	items, err := qs.Quiz.Review()
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	out := make([]reviewView, 0, len(items))
	for _, it := range items {
		out = append(out, reviewView{
			QuestionID:    it.Question.ID,
			Text:          it.Question.Text,
			Answer:        it.Answer,
			CorrectAnswer: correctAnswerOf(it.Question),
			Points:        it.Points,
			Correct:       it.Correct(),
			TimedOut:      it.TimedOut,
			Explanation:   it.Question.Explanation,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading body: "+err.Error())
		return
	}
	count, err := s.svc.ImportQuestions(uid, data)
	if err != nil {
		if errors.Is(err, errForbidden) {
			writeError(w, http.StatusForbidden, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": count})
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
		return
	}
	entries, summary, err := s.svc.Report(uid, r.URL.Query().Get("user_id"), r.URL.Query().Get("course_id"))
	if err != nil {
		if errors.Is(err, errForbidden) {
			writeError(w, http.StatusForbidden, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	switch r.URL.Query().Get("format") {
	case "", "json":
		writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "summary": summary})
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="activity.csv"`)
		if err := activity.WriteCSV(w, entries); err != nil {
			slog.Warn("csv export failed", "error", err)
		}
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="activity.xlsx"`)
		if err := activity.WriteXLSX(w, entries); err != nil {
			slog.Warn("xlsx export failed", "error", err)
		}
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown format %q", r.URL.Query().Get("format")))
	}
}

func (s *Server) handleCertificates(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"certificates": s.svc.Certificates(uid)})
}
