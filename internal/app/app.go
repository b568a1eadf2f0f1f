package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lukasbauer/captions/internal/callframe"
	"github.com/lukasbauer/captions/internal/captions"
	"github.com/lukasbauer/captions/internal/eventlog"
	"github.com/lukasbauer/captions/internal/httpapi"
	"github.com/lukasbauer/captions/internal/notifications"
	"github.com/lukasbauer/captions/internal/session"
	"github.com/lukasbauer/captions/internal/token"
	"go.uber.org/zap"
)

type App struct {
	cfg      Config
	logger   *zap.SugaredLogger
	db       *pgxpool.Pool
	eventLog *eventlog.Logger
	discord  *notifications.Discord
	state    *captions.State
	sessions *session.Manager
	router   *httpapi.Router
}

func New(cfg Config, logger *zap.SugaredLogger) (*App, error) {
	return NewWithFrames(cfg, logger, callframe.NewWSFactory(cfg.CallFrameWSURL, nil, logger.Named("frame")))
}

// NewWithFrames builds the app around a custom call frame factory.
func NewWithFrames(cfg Config, logger *zap.SugaredLogger, frames callframe.Factory) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// The event log is optional: without DATABASE_URL it is a no-op
	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var err error
		db, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}
	el := eventlog.New(db)
	if err := el.EnsureSchema(context.Background()); err != nil {
		if db != nil {
			db.Close()
		}
		return nil, err
	}

	// Shared HTTP client with connection pooling for token requests.
	httpClient := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
		},
	}

	discord := notifications.NewDiscord(cfg.DiscordWebhookURL, logger.Named("discord"))
	state := captions.NewState()

	sessions := session.NewManager(session.Config{
		RoomURL:         cfg.RoomURL(),
		RoomName:        cfg.DailyRoom,
		IsOwner:         cfg.IsOwner,
		ShowLeaveButton: cfg.Display.ShowLeaveButton,
		IframeStyle:     cfg.Display.IframeStyle,
		Placement:       cfg.Placement,
		Buttons:         cfg.Display.TrayButtons,
		UnknownSpeaker:  cfg.Display.UnknownSpeaker,
		Rejoin:          cfg.AutoJoin,
	}, token.NewFetcher(cfg.TokenEndpoint, httpClient), frames, state, el, discord, logger.Named("session"))

	var issuer *token.Issuer
	if cfg.DailyAPIKey != "" {
		issuer = token.NewIssuer(cfg.DailyAPIKey, cfg.DailyDomainID, cfg.TokenExpiry)
	} else {
		logger.Warnf("DAILY_API_KEY not set, POST /api/token is disabled")
	}

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Placement: cfg.Placement,
		BaseURL:   cfg.BaseURL,
		Issuer:    issuer,
	}, logger.Named("httpapi"), sessions, el, state)

	return &App{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		eventLog: el,
		discord:  discord,
		state:    state,
		sessions: sessions,
		router:   router,
	}, nil
}

func (a *App) Router() http.Handler {
	return a.router
}

// Sessions returns the call session manager.
func (a *App) Sessions() *session.Manager {
	return a.sessions
}

// Bootstrap performs the startup join. Failures are already reported by the
// session manager and are not retried. With AUTO_JOIN the manager also rejoins
// when the call service ends the call.
func (a *App) Bootstrap(ctx context.Context) error {
	if !a.cfg.AutoJoin {
		a.logger.Infof("AUTO_JOIN disabled, waiting for POST /api/session/join")
		return nil
	}
	return a.sessions.JoinCall(ctx)
}

// Run serves HTTP on the already bound ln, then performs the bootstrap join, so a
// token endpoint served by this process is reachable. It returns once ctx is done
// and the server has shut down.
func (a *App) Run(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Infof("listening on %s", ln.Addr())
		serveErr <- srv.Serve(ln)
	}()

	go func() {
		if err := a.Bootstrap(ctx); err != nil {
			a.logger.Errorf("bootstrap join failed: %v", err)
		}
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (a *App) Close() error {
	a.sessions.Shutdown()
	a.router.Close()
	if a.db != nil {
		a.db.Close()
	}
	return nil
}
