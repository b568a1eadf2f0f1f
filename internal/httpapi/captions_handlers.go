package httpapi

import (
	"errors"
	"net/http"

	"github.com/lukasbauer/captions/internal/captions"
	"github.com/lukasbauer/captions/internal/session"
)

func (r *Router) currentView() captions.View {
	return captions.Render(r.state.Snapshot(), r.cfg.Placement)
}

func (r *Router) handleGetCaptions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, r.currentView())
}

func (r *Router) handleToggleCaptions(w http.ResponseWriter, req *http.Request) {
	err := r.sessions.Toggle(req.Context())
	if errors.Is(err, session.ErrNoSession) {
		http.Error(w, `{"error": "no active session"}`, http.StatusConflict)
		return
	}
	if err != nil {
		r.logger.Errorf("captions: toggle failed: %v", err)
		captureError(req, err, "captions toggle failed")
		http.Error(w, `{"error": "failed to toggle captions"}`, http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, r.currentView())
}
