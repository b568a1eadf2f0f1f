package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lukasbauer/captions/internal/token"
)

func (r *Router) handleIssueToken(w http.ResponseWriter, req *http.Request) {
	if r.cfg.Issuer == nil {
		http.Error(w, `{"error": "token signing not configured"}`, http.StatusServiceUnavailable)
		return
	}

	var body token.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, 4096)).Decode(&body); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}

	signed, _, err := r.cfg.Issuer.Issue(body.RoomName, body.IsOwner)
	if errors.Is(err, token.ErrInvalidRoomName) {
		http.Error(w, `{"error": "invalid room name"}`, http.StatusBadRequest)
		return
	}
	if err != nil {
		r.logger.Errorf("token: issue failed: %v", err)
		captureError(req, err, "failed to issue meeting token")
		http.Error(w, `{"error": "failed to issue token"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, token.Response{Token: signed})
}
