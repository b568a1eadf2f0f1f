package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/lukasbauer/captions/internal/captions"
	"github.com/lukasbauer/captions/internal/eventlog"
	"github.com/lukasbauer/captions/internal/session"
	"github.com/lukasbauer/captions/internal/token"
	"go.uber.org/zap"
)

type RouterConfig struct {
	// Placement decides where the captions toggle lives
	Placement captions.Placement

	// Public base URL of this service; the overlay page and tray icon are served from it
	BaseURL string

	// Issuer signs meeting tokens for POST /api/token. Nil disables the endpoint.
	Issuer *token.Issuer

	// JoinTimeout bounds a join started over HTTP
	JoinTimeout time.Duration
}

// SessionController is the call session surface driven over HTTP.
type SessionController interface {
	JoinCall(ctx context.Context) error
	LeaveCall()
	Toggle(ctx context.Context) error
	Status() session.Status
}

// EventLister reads the lifecycle events recorded for a session.
type EventLister interface {
	ListSession(ctx context.Context, sessionID string) ([]eventlog.Event, error)
}

type Router struct {
	cfg      RouterConfig
	logger   *zap.SugaredLogger
	sessions SessionController
	events   EventLister
	state    *captions.State
	hub      *captionHub
	mux      *http.ServeMux
	handler  http.Handler
}

func NewRouter(cfg RouterConfig, logger *zap.SugaredLogger, sessions SessionController, events EventLister, state *captions.State) *Router {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = 30 * time.Second
	}

	r := &Router{
		cfg:      cfg,
		logger:   logger,
		sessions: sessions,
		events:   events,
		state:    state,
		hub:      newCaptionHub(state, cfg.Placement, logger.Named("captions_ws")),
		mux:      http.NewServeMux(),
	}

	r.routes()
	r.handler = withSentryRecovery(withCORS(r.mux))
	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

// Close disconnects caption feed clients and stops listening to the state.
func (r *Router) Close() {
	r.hub.Close()
}

func (r *Router) routes() {
	// Health check
	r.mux.HandleFunc("GET /healthz", r.handleHealthz)

	// Meeting tokens
	r.mux.HandleFunc("POST /api/token", r.handleIssueToken)

	// Call session
	r.mux.HandleFunc("GET /api/session", r.handleGetSession)
	r.mux.HandleFunc("GET /api/session/events", r.handleListSessionEvents)
	r.mux.HandleFunc("POST /api/session/join", r.handleJoinSession)
	r.mux.HandleFunc("POST /api/session/leave", r.handleLeaveSession)

	// Captions
	r.mux.HandleFunc("GET /api/captions", r.handleGetCaptions)
	r.mux.HandleFunc("POST /api/captions/toggle", r.handleToggleCaptions)
	r.mux.HandleFunc("GET /captions/ws", r.handleCaptionsWS)

	// Overlay page and assets
	r.mux.HandleFunc("GET /subtitles.svg", r.handleSubtitlesIcon)
	r.mux.HandleFunc("GET /{$}", r.handleOverlay)
}

func (r *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withSentryRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), err)
				hub.Flush(2 * time.Second)
				http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, req)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// captureError sends an error to Sentry with request context
func captureError(req *http.Request, err error, msg string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(req)
		scope.SetExtra("message", msg)
		sentry.CaptureException(err)
	})
}
