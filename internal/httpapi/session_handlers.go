package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/lukasbauer/captions/internal/eventlog"
	"github.com/lukasbauer/captions/internal/session"
)

func (r *Router) handleGetSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, r.sessions.Status())
}

func (r *Router) handleJoinSession(w http.ResponseWriter, req *http.Request) {
	// The session outlives the request; a dropped client must not abort the join
	ctx, cancel := context.WithTimeout(context.WithoutCancel(req.Context()), r.cfg.JoinTimeout)
	defer cancel()

	err := r.sessions.JoinCall(ctx)
	switch {
	case errors.Is(err, session.ErrSessionActive):
		http.Error(w, `{"error": "session already active"}`, http.StatusConflict)
		return
	case errors.Is(err, session.ErrLeftDuringJoin):
		http.Error(w, `{"error": "call ended while joining"}`, http.StatusConflict)
		return
	case err != nil:
		// Already reported to Sentry by the session manager
		r.logger.Warnf("session: join via api failed: %v", err)
		http.Error(w, `{"error": "failed to join call"}`, http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, r.sessions.Status())
}

func (r *Router) handleLeaveSession(w http.ResponseWriter, _ *http.Request) {
	r.sessions.LeaveCall()
	writeJSON(w, http.StatusOK, r.sessions.Status())
}

// handleListSessionEvents returns the recorded lifecycle events of the session
// named by ?session_id, or of the current session.
func (r *Router) handleListSessionEvents(w http.ResponseWriter, req *http.Request) {
	sessionID := req.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = r.sessions.Status().SessionID
	}
	if sessionID == "" {
		http.Error(w, `{"error": "no active session"}`, http.StatusNotFound)
		return
	}
	if _, err := uuid.Parse(sessionID); err != nil {
		http.Error(w, `{"error": "invalid session_id"}`, http.StatusBadRequest)
		return
	}

	var events []eventlog.Event
	if r.events != nil {
		var err error
		events, err = r.events.ListSession(req.Context(), sessionID)
		if err != nil {
			r.logger.Errorf("session: list events failed: %v", err)
			captureError(req, err, "failed to list session events")
			http.Error(w, `{"error": "failed to list events"}`, http.StatusInternalServerError)
			return
		}
	}
	if events == nil {
		events = []eventlog.Event{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"events":     events,
	})
}
