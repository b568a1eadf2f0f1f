// Package session owns the lifecycle of the single call session: it creates the
// call frame, fetches a meeting token, joins the room and tears everything down
// when the call ends.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/lukasbauer/captions/internal/callframe"
	"github.com/lukasbauer/captions/internal/captions"
	"github.com/lukasbauer/captions/internal/eventlog"
	"go.uber.org/zap"
)

var (
	// ErrSessionActive is returned by JoinCall while a session exists.
	ErrSessionActive = errors.New("a call session is already active")
	// ErrNoSession is returned by operations that need an active session.
	ErrNoSession = errors.New("no active call session")
	// ErrLeftDuringJoin is returned when the call ended before the join completed.
	ErrLeftDuringJoin = errors.New("call ended while joining")
	// ErrShutdown is returned by JoinCall after Shutdown.
	ErrShutdown = errors.New("session manager shut down")
)

// Phase is the lifecycle phase of the session.
type Phase string

const (
	PhaseAbsent  Phase = "absent"
	PhaseJoining Phase = "joining"
	PhaseActive  Phase = "active"
)

// TokenSource supplies meeting tokens.
type TokenSource interface {
	Token(ctx context.Context, roomName string, isOwner bool) (string, error)
}

// EventLogger records session lifecycle events.
type EventLogger interface {
	LogAsync(sessionID string, eventType eventlog.EventType, data map[string]any)
}

// Notifier alerts operators about failures that leave the session degraded.
type Notifier interface {
	NotifyJoinFailed(ctx context.Context, roomURL string, err error)
	NotifyTranscriptionError(ctx context.Context, roomURL, detail string)
}

// Config describes the call to join.
type Config struct {
	RoomURL  string
	RoomName string
	IsOwner  bool

	ShowLeaveButton bool
	IframeStyle     map[string]string

	Placement      captions.Placement
	Buttons        captions.TrayButtons
	UnknownSpeaker string

	// Rejoin starts a new join when the call service ends an active session.
	// Explicit leaves and failed joins are never followed by a rejoin.
	Rejoin      bool
	JoinTimeout time.Duration
}

// Status is a point-in-time view of the session.
type Status struct {
	Phase     Phase      `json:"phase"`
	SessionID string     `json:"session_id,omitempty"`
	RoomURL   string     `json:"room_url"`
	JoinedAt  *time.Time `json:"joined_at,omitempty"`
}

// Manager owns at most one call session at a time.
type Manager struct {
	cfg      Config
	tokens   TokenSource
	frames   callframe.Factory
	state    *captions.State
	events   EventLogger
	notifier Notifier
	logger   *zap.SugaredLogger

	mu        sync.Mutex
	phase     Phase
	sessionID string
	frame     callframe.Frame
	bridge    *captions.Bridge
	joinedAt  *time.Time
	closed    bool

	// rejoinCtx is canceled by Shutdown
	rejoinCtx    context.Context
	cancelRejoin context.CancelFunc
	rejoins      sync.WaitGroup
}

// NewManager creates a Manager. events and notifier may be nil.
func NewManager(cfg Config, tokens TokenSource, frames callframe.Factory, state *captions.State, events EventLogger, notifier Notifier, logger *zap.SugaredLogger) *Manager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = 30 * time.Second
	}
	rejoinCtx, cancelRejoin := context.WithCancel(context.Background())
	return &Manager{
		cfg:          cfg,
		tokens:       tokens,
		frames:       frames,
		state:        state,
		events:       events,
		notifier:     notifier,
		logger:       logger,
		phase:        PhaseAbsent,
		rejoinCtx:    rejoinCtx,
		cancelRejoin: cancelRejoin,
	}
}

// FrameOptions returns the display options for new frames.
func (m *Manager) FrameOptions() callframe.Options {
	opts := callframe.Options{
		ShowLeaveButton: m.cfg.ShowLeaveButton,
		IframeStyle:     m.cfg.IframeStyle,
	}
	if m.cfg.Placement == captions.PlacementTray {
		opts.CustomTrayButtons = map[string]callframe.TrayButton{
			captions.ToggleButtonID: m.cfg.Buttons.Start,
		}
	}
	return opts
}

// JoinCall creates a frame, fetches a token and joins the configured room.
// It fails with ErrSessionActive unless no session exists. On failure the
// session is torn down and left absent; there is no retry.
func (m *Manager) JoinCall(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrShutdown
	}
	if m.phase != PhaseAbsent {
		m.mu.Unlock()
		return ErrSessionActive
	}
	m.phase = PhaseJoining
	m.sessionID = uuid.NewString()
	sessionID := m.sessionID
	m.mu.Unlock()

	log := m.logger.With("session_id", sessionID)

	frame, err := m.frames.Create(ctx, m.FrameOptions())
	if err != nil {
		return m.failJoin(ctx, sessionID, nil, fmt.Errorf("create call frame: %w", err))
	}

	bridge := captions.Attach(context.Background(), frame, m.state, captions.BridgeConfig{
		Placement:      m.cfg.Placement,
		Buttons:        m.cfg.Buttons,
		UnknownSpeaker: m.cfg.UnknownSpeaker,
		OnLeave:        func() { m.handleCallEnded(sessionID) },
		Observe: func(event string, details map[string]any) {
			m.observe(sessionID, event, details)
		},
	}, log.Named("bridge"))

	m.mu.Lock()
	if !m.joiningLocked(sessionID) {
		m.mu.Unlock()
		bridge.Detach()
		_ = frame.Destroy()
		return ErrLeftDuringJoin
	}
	m.frame = frame
	m.bridge = bridge
	m.state.Begin()
	m.mu.Unlock()

	token, err := m.tokens.Token(ctx, m.cfg.RoomName, m.cfg.IsOwner)
	if !m.ownsJoin(sessionID, frame) {
		// LeaveCall already destroyed the frame
		log.Infof("session: call ended while fetching token")
		return ErrLeftDuringJoin
	}
	if err != nil {
		return m.failJoin(ctx, sessionID, frame, fmt.Errorf("fetch meeting token: %w", err))
	}

	if err := frame.Join(ctx, m.cfg.RoomURL, token); err != nil {
		return m.failJoin(ctx, sessionID, frame, fmt.Errorf("join %s: %w", m.cfg.RoomURL, err))
	}

	m.mu.Lock()
	if !m.joiningLocked(sessionID) || m.frame != frame {
		// left-meeting or a frame error arrived while joining
		m.mu.Unlock()
		return ErrLeftDuringJoin
	}
	now := time.Now().UTC()
	m.phase = PhaseActive
	m.joinedAt = &now
	m.state.MarkJoined()
	m.mu.Unlock()

	log.Infof("session: joined %s", m.cfg.RoomURL)
	m.logEvent(sessionID, eventlog.EventSessionJoined, map[string]any{"room_url": m.cfg.RoomURL})
	return nil
}

func (m *Manager) joiningLocked(sessionID string) bool {
	return m.phase == PhaseJoining && m.sessionID == sessionID
}

// ownsJoin reports whether the join of sessionID is still in progress on frame.
func (m *Manager) ownsJoin(sessionID string, frame callframe.Frame) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.joiningLocked(sessionID) && m.frame == frame
}

// failJoin tears down a partially built session and reports err. A join whose
// session was already ended by LeaveCall is not a failure and is not reported.
func (m *Manager) failJoin(ctx context.Context, sessionID string, frame callframe.Frame, err error) error {
	m.mu.Lock()
	owned := m.joiningLocked(sessionID) && m.frame == frame
	if owned {
		m.teardownLocked()
	}
	m.mu.Unlock()

	if !owned {
		m.logger.Infof("session: join abandoned after leave: %v", err)
		return ErrLeftDuringJoin
	}

	if frame != nil {
		if derr := frame.Destroy(); derr != nil {
			m.logger.Warnf("session: destroy after failed join: %v", derr)
		}
	}

	m.logger.Errorf("session: join failed: %v", err)
	sentry.CaptureException(err)
	m.logEvent(sessionID, eventlog.EventJoinFailed, map[string]any{"error": err.Error()})
	if m.notifier != nil {
		m.notifier.NotifyJoinFailed(ctx, m.cfg.RoomURL, err)
	}
	return err
}

// LeaveCall ends the current session. It is idempotent and never rejoins.
func (m *Manager) LeaveCall() {
	m.leave("")
}

// Shutdown ends the session, blocks further joins and waits for a pending
// rejoin to finish.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.cancelRejoin()
	m.leave("")
	m.rejoins.Wait()
}

// handleCallEnded runs when the call service ends the call (left-meeting or a
// fatal frame error). An active session is rejoined once when Rejoin is set.
func (m *Manager) handleCallEnded(sessionID string) {
	if m.leave(sessionID) != PhaseActive || !m.cfg.Rejoin {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.rejoins.Add(1)
	go func() {
		defer m.rejoins.Done()
		ctx, cancel := context.WithTimeout(m.rejoinCtx, m.cfg.JoinTimeout)
		defer cancel()

		m.logger.Infof("session: call ended by the service, rejoining %s", m.cfg.RoomURL)
		err := m.JoinCall(ctx)
		if err != nil && !errors.Is(err, ErrSessionActive) && !errors.Is(err, ErrShutdown) {
			m.logger.Warnf("session: rejoin failed: %v", err)
		}
	}()
}

// leave tears down the current session and returns the phase it ended. A
// non-empty sessionID only ends that session.
func (m *Manager) leave(sessionID string) Phase {
	m.mu.Lock()
	if m.phase == PhaseAbsent || (sessionID != "" && m.sessionID != sessionID) {
		m.mu.Unlock()
		return PhaseAbsent
	}
	ended := m.phase
	frame := m.frame
	sessionID = m.sessionID
	m.teardownLocked()
	m.mu.Unlock()

	if frame != nil {
		if err := frame.Destroy(); err != nil {
			m.logger.Warnf("session: destroy frame: %v", err)
		}
	}

	m.logger.Infof("session: left call session_id=%s", sessionID)
	m.logEvent(sessionID, eventlog.EventSessionLeft, nil)
	return ended
}

// teardownLocked detaches the bridge, ends the caption state and resets to
// absent. The frame itself is destroyed by the caller. m.mu must be held.
func (m *Manager) teardownLocked() {
	if m.bridge != nil {
		m.bridge.Detach()
	}
	m.state.End()
	m.phase = PhaseAbsent
	m.frame = nil
	m.bridge = nil
	m.joinedAt = nil
}

// Toggle starts or stops transcription on the active session.
func (m *Manager) Toggle(ctx context.Context) error {
	m.mu.Lock()
	bridge := m.bridge
	active := m.phase == PhaseActive
	m.mu.Unlock()

	if !active || bridge == nil {
		return ErrNoSession
	}
	return bridge.Toggle(ctx)
}

// Status returns the current session status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{Phase: m.phase, RoomURL: m.cfg.RoomURL, JoinedAt: m.joinedAt}
	if m.phase != PhaseAbsent {
		st.SessionID = m.sessionID
	}
	return st
}

func (m *Manager) observe(sessionID, event string, details map[string]any) {
	switch event {
	case callframe.EventTranscriptionStarted:
		m.logEvent(sessionID, eventlog.EventTranscriptionStarted, details)
	case callframe.EventTranscriptionStopped:
		m.logEvent(sessionID, eventlog.EventTranscriptionStopped, details)
	case callframe.EventTranscriptionError:
		m.logEvent(sessionID, eventlog.EventTranscriptionError, details)
		if m.notifier != nil {
			detail, _ := details["error"].(string)
			m.notifier.NotifyTranscriptionError(context.Background(), m.cfg.RoomURL, detail)
		}
	}
}

func (m *Manager) logEvent(sessionID string, t eventlog.EventType, data map[string]any) {
	if m.events != nil {
		m.events.LogAsync(sessionID, t, data)
	}
}
