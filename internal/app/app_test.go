package app

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lukasbauer/captions/internal/callframe"
	"github.com/lukasbauer/captions/internal/callframe/callframetest"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lukasbauer/captions/internal/captions"
	"github.com/lukasbauer/captions/internal/session"
	"github.com/lukasbauer/captions/internal/token"
	"go.uber.org/zap/zaptest"
)

func testConfig(tokenURL string) Config {
	return Config{
		BaseURL:        "https://captions.example.com",
		DailyDomain:    "acme",
		DailyRoom:      "standup",
		TokenEndpoint:  tokenURL,
		IsOwner:        true,
		CallFrameWSURL: "ws://unused.invalid/frame",
		Placement:      captions.PlacementTray,
		AutoJoin:       true,
		Display: DisplayConfig{
			ShowLeaveButton: true,
			IframeStyle:     callframe.FullViewportStyle(),
			UnknownSpeaker:  captions.DefaultUnknownSpeaker,
			TrayButtons:     captions.DefaultTrayButtons("https://captions.example.com"),
		},
	}
}

func startTokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token": "abc"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestBootstrapJoinsRoom(t *testing.T) {
	tokens := startTokenServer(t)
	frame := callframetest.New(callframe.Participants{})
	frames := callframetest.NewFactory(frame)

	a, err := NewWithFrames(testConfig(tokens.URL), zaptest.NewLogger(t).Sugar(), frames)
	if err != nil {
		t.Fatalf("NewWithFrames failed: %v", err)
	}

	if err := a.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if frame.JoinedURL != "https://acme.daily.co/standup" || frame.JoinToken != "abc" {
		t.Errorf("joined %q with token %q", frame.JoinedURL, frame.JoinToken)
	}

	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/session", nil))
	var st session.Status
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.Phase != session.PhaseActive {
		t.Errorf("phase = %q, want active", st.Phase)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !frame.IsDestroyed() {
		t.Error("Close should leave the call")
	}
}

func TestAutoJoinRejoinsAfterLeftMeeting(t *testing.T) {
	tokens := startTokenServer(t)
	first := callframetest.New(callframe.Participants{})
	frames := callframetest.NewFactory(first)

	a, err := NewWithFrames(testConfig(tokens.URL), zaptest.NewLogger(t).Sugar(), frames)
	if err != nil {
		t.Fatalf("NewWithFrames failed: %v", err)
	}
	if err := a.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	first.Fire(callframe.EventLeftMeeting, nil)

	deadline := time.Now().Add(2 * time.Second)
	for frames.CreatedCount() < 2 || a.Sessions().Status().Phase != session.PhaseActive {
		if time.Now().After(deadline) {
			t.Fatalf("no rejoin: frames created = %d, phase = %q", frames.CreatedCount(), a.Sessions().Status().Phase)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !frames.Frame(1).IsDestroyed() {
		t.Error("Close should leave the rejoined call")
	}
	if got := frames.CreatedCount(); got != 2 {
		t.Errorf("frames created after Close = %d, want 2", got)
	}
}

func TestRunJoinsWithSelfServedToken(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	cfg := testConfig("http://" + ln.Addr().String() + "/api/token")
	cfg.DailyAPIKey = "secret-key"
	cfg.TokenExpiry = time.Hour
	frame := callframetest.New(callframe.Participants{})

	a, err := NewWithFrames(cfg, zaptest.NewLogger(t).Sugar(), callframetest.NewFactory(frame))
	if err != nil {
		t.Fatalf("NewWithFrames failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, ln) }()

	deadline := time.Now().Add(2 * time.Second)
	for a.Sessions().Status().Phase != session.PhaseActive {
		if time.Now().After(deadline) {
			t.Fatalf("bootstrap join did not complete, phase = %q", a.Sessions().Status().Phase)
		}
		time.Sleep(10 * time.Millisecond)
	}

	claims := &token.MeetingClaims{}
	if _, err := jwt.ParseWithClaims(frame.JoinToken, claims, func(*jwt.Token) (any, error) {
		return []byte("secret-key"), nil
	}); err != nil {
		t.Fatalf("join token does not verify: %v", err)
	}
	if claims.Room != "standup" || !claims.Owner {
		t.Errorf("claims = %+v, want owner token for standup", claims)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	_ = a.Close()
}

func TestBootstrapDisabled(t *testing.T) {
	tokens := startTokenServer(t)
	frames := callframetest.NewFactory()
	cfg := testConfig(tokens.URL)
	cfg.AutoJoin = false

	a, err := NewWithFrames(cfg, zaptest.NewLogger(t).Sugar(), frames)
	if err != nil {
		t.Fatalf("NewWithFrames failed: %v", err)
	}
	defer a.Close()

	if err := a.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if len(frames.Created) != 0 {
		t.Error("no frame should be created when AUTO_JOIN is off")
	}
	if a.Sessions().Status().Phase != session.PhaseAbsent {
		t.Error("session should stay absent")
	}
}

func TestTokenEndpointDisabledWithoutKey(t *testing.T) {
	a, err := NewWithFrames(testConfig("http://localhost/api/token"), zaptest.NewLogger(t).Sugar(), callframetest.NewFactory())
	if err != nil {
		t.Fatalf("NewWithFrames failed: %v", err)
	}
	defer a.Close()

	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/token", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig("http://localhost/api/token")
	cfg.DailyRoom = ""

	if _, err := NewWithFrames(cfg, zaptest.NewLogger(t).Sugar(), callframetest.NewFactory()); err == nil {
		t.Error("NewWithFrames should reject a config without a room")
	}
}
