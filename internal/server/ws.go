package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vinhtan/academy/internal/quiz"
)

// wsCommand is what the quiz client sends over the live channel.
type wsCommand struct {
	Action string `json:"action"` // select, text, next, submit, abandon
	Option string `json:"option,omitempty"`
	Text   string `json:"text,omitempty"`
}

// wsMessage is what the server pushes to the quiz client.
type wsMessage struct {
	Type             string        `json:"type"` // question, tick, result, state, error
	Question         *questionView `json:"question,omitempty"`
	RemainingSeconds int           `json:"remaining_seconds,omitempty"`
	Result           *quiz.Result  `json:"result,omitempty"`
	State            string        `json:"state,omitempty"`
	Error            string        `json:"error,omitempty"`
}

// handleLiveQuiz upgrades to a websocket and runs the live quiz channel:
// countdown ticks and timeout advances flow out, answers and navigation
// flow in.
func (s *Server) handleLiveQuiz(w http.ResponseWriter, r *http.Request) {
	qs, ok := s.session(w, r)
	if !ok {
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}

	s.liveQuiz(r.Context(), conn, qs)
}

func (s *Server) liveQuiz(ctx context.Context, conn *websocket.Conn, qs *QuizSession) {
	defer conn.CloseNow()

	// The live channel delivers the result inline, so a session that
	// finished by the time the client disconnects has nothing left to
	// serve and can leave the registry.
	defer func() {
		if qs.Quiz.State() != quiz.StateInProgress {
			s.svc.ReleaseSession(qs.ID)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	send := func(msg wsMessage) bool {
		if err := wsjson.Write(ctx, conn, msg); err != nil {
			return false
		}
		return true
	}

	sendQuestion := func() bool {
		v, err := viewOf(qs)
		if err != nil {
			return send(wsMessage{Type: "state", State: qs.Quiz.State().String()})
		}
		return send(wsMessage{Type: "question", Question: &v})
	}

	if !sendQuestion() {
		return
	}

	// Reader goroutine feeds client commands into the main loop.
	commands := make(chan wsCommand)
	go func() {
		defer close(commands)
		for {
			var cmd wsCommand
			if err := wsjson.Read(ctx, conn, &cmd); err != nil {
				return
			}
			select {
			case commands <- cmd:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if qs.Quiz.State() != quiz.StateInProgress {
				continue
			}
			if !send(wsMessage{Type: "tick", RemainingSeconds: int(qs.Quiz.Remaining().Seconds())}) {
				return
			}

		case ev := <-qs.Events():
			switch ev.Kind {
			case "advance":
				if !sendQuestion() {
					return
				}
			case "submitted":
				res := ev.Result
				send(wsMessage{Type: "result", Result: &res})
				conn.Close(websocket.StatusNormalClosure, "quiz finished")
				return
			}

		case cmd, open := <-commands:
			if !open {
				return
			}
			if !s.applyCommand(qs, cmd, send, sendQuestion) {
				return
			}
		}
	}
}

// applyCommand runs one client action against the session. It returns
// false when the channel should shut down.
func (s *Server) applyCommand(qs *QuizSession, cmd wsCommand, send func(wsMessage) bool, sendQuestion func() bool) bool {
	var err error
	switch cmd.Action {
	case "select":
		err = qs.Quiz.SelectOption(cmd.Option)
	case "text":
		err = qs.Quiz.SetText(cmd.Text)
	case "next":
		if err = qs.Quiz.Next(); err == nil {
			return sendQuestion()
		}
	case "submit":
		// The result arrives through the submitted event.
		err = qs.Quiz.Submit()
	case "abandon":
		err = qs.Quiz.Abandon()
		if err == nil {
			s.svc.ReleaseSession(qs.ID)
			send(wsMessage{Type: "state", State: qs.Quiz.State().String()})
			return false
		}
		if errors.Is(err, quiz.ErrUnacknowledgedPass) {
			return send(wsMessage{Type: "error", Error: err.Error()})
		}
	default:
		return send(wsMessage{Type: "error", Error: "unknown action: " + cmd.Action})
	}

	if err != nil {
		return send(wsMessage{Type: "error", Error: err.Error()})
	}
	return true
}
