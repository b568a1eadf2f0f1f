package captions

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/lukasbauer/captions/internal/callframe"
	"go.uber.org/zap"
)

// ToggleButtonID is the id of the captions tray button.
const ToggleButtonID = "captions"

// DefaultUnknownSpeaker names speakers that cannot be resolved.
const DefaultUnknownSpeaker = "Unknown"

// TrayButtons are the two descriptors swapped in as captions toggle.
type TrayButtons struct {
	Start callframe.TrayButton `toml:"start"`
	Stop  callframe.TrayButton `toml:"stop"`
}

// DefaultTrayButtons returns the stock captions buttons with icons under baseURL.
func DefaultTrayButtons(baseURL string) TrayButtons {
	icon := strings.TrimRight(baseURL, "/") + "/subtitles.svg"
	return TrayButtons{
		Start: callframe.TrayButton{IconPath: icon, Label: "Captions", Tooltip: "Turn captions on"},
		Stop:  callframe.TrayButton{IconPath: icon, Label: "Stop CC", Tooltip: "Turn captions off"},
	}
}

// BridgeConfig parameterizes a Bridge.
type BridgeConfig struct {
	Placement      Placement
	Buttons        TrayButtons
	UnknownSpeaker string

	// OnLeave ends the session. It is called for left-meeting and fatal frame errors.
	OnLeave func()
	// Observe, if set, is told about transcription lifecycle events.
	Observe func(event string, details map[string]any)
}

// Bridge maps call frame events onto a State. Every handler registered by
// Attach is removed by Detach.
type Bridge struct {
	frame  callframe.Frame
	state  *State
	cfg    BridgeConfig
	logger *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc

	subsMu   sync.Mutex
	subs     []callframe.Subscription
	detached bool

	toggleMu sync.Mutex
}

// Attach subscribes a new bridge to frame. Frame calls made from event handlers
// use a context derived from ctx that is canceled by Detach.
func Attach(ctx context.Context, frame callframe.Frame, state *State, cfg BridgeConfig, logger *zap.SugaredLogger) *Bridge {
	if cfg.UnknownSpeaker == "" {
		cfg.UnknownSpeaker = DefaultUnknownSpeaker
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	b := &Bridge{
		frame:  frame,
		state:  state,
		cfg:    cfg,
		logger: logger,
	}
	b.ctx, b.cancel = context.WithCancel(ctx)

	b.on(callframe.EventLeftMeeting, b.handleLeftMeeting)
	b.on(callframe.EventError, b.handleFrameError)
	b.on(callframe.EventTranscriptionStarted, b.handleTranscriptionStarted)
	b.on(callframe.EventTranscriptionStopped, b.handleTranscriptionStopped)
	b.on(callframe.EventTranscriptionError, b.handleTranscriptionError)
	b.on(callframe.EventCustomButtonClick, b.handleCustomButtonClick)
	b.on(callframe.EventAppMessage, b.handleAppMessage)

	return b
}

func (b *Bridge) on(event string, h callframe.Handler) {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	b.subs = append(b.subs, b.frame.On(event, func(ev callframe.Event) {
		if b.isDetached() {
			return
		}
		h(ev)
	}))
}

// Detach removes every subscription and cancels in-flight handler calls.
// It is safe to call more than once and from inside a handler.
func (b *Bridge) Detach() {
	b.subsMu.Lock()
	if b.detached {
		b.subsMu.Unlock()
		return
	}
	b.detached = true
	subs := b.subs
	b.subs = nil
	b.subsMu.Unlock()

	for _, sub := range subs {
		b.frame.Off(sub)
	}
	b.cancel()
}

func (b *Bridge) isDetached() bool {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	return b.detached
}

// Toggle starts transcription when stopped and stops it when running. With the
// tray placement the button is swapped once the call service confirmed.
// Toggles are serialized.
func (b *Bridge) Toggle(ctx context.Context) error {
	b.toggleMu.Lock()
	defer b.toggleMu.Unlock()

	if b.state.Transcribing() {
		if err := b.frame.StopTranscription(ctx); err != nil {
			return fmt.Errorf("stop transcription: %w", err)
		}
		return b.swapButton(ctx, b.cfg.Buttons.Start)
	}

	if err := b.frame.StartTranscription(ctx); err != nil {
		return fmt.Errorf("start transcription: %w", err)
	}
	return b.swapButton(ctx, b.cfg.Buttons.Stop)
}

func (b *Bridge) swapButton(ctx context.Context, button callframe.TrayButton) error {
	if b.cfg.Placement != PlacementTray {
		return nil
	}
	if err := b.frame.UpdateCustomTrayButtons(ctx, map[string]callframe.TrayButton{ToggleButtonID: button}); err != nil {
		return fmt.Errorf("update tray buttons: %w", err)
	}
	return nil
}

func (b *Bridge) observe(event string, details map[string]any) {
	if b.cfg.Observe != nil {
		b.cfg.Observe(event, details)
	}
}

func (b *Bridge) leave() {
	if b.cfg.OnLeave != nil {
		b.cfg.OnLeave()
	}
}

func (b *Bridge) handleLeftMeeting(callframe.Event) {
	b.logger.Infof("bridge: left meeting")
	b.leave()
}

func (b *Bridge) handleFrameError(ev callframe.Event) {
	var p callframe.ErrorPayload
	_ = ev.Decode(&p)
	b.logger.Errorf("bridge: call frame error: %s", p.ErrorMsg)
	b.leave()
}

func (b *Bridge) handleTranscriptionStarted(callframe.Event) {
	b.logger.Infof("bridge: transcription started")
	b.state.SetTranscribing(true)
	b.observe(callframe.EventTranscriptionStarted, nil)
}

func (b *Bridge) handleTranscriptionStopped(callframe.Event) {
	b.logger.Infof("bridge: transcription stopped")
	b.state.SetTranscribing(false)
	b.observe(callframe.EventTranscriptionStopped, nil)
}

func (b *Bridge) handleTranscriptionError(ev callframe.Event) {
	var p callframe.ErrorPayload
	_ = ev.Decode(&p)
	b.logger.Warnf("bridge: transcription error: %s", p.ErrorMsg)
	b.state.SetTranscribing(false)
	b.observe(callframe.EventTranscriptionError, map[string]any{"error": p.ErrorMsg})
}

func (b *Bridge) handleCustomButtonClick(ev callframe.Event) {
	var click callframe.CustomButtonClick
	if err := ev.Decode(&click); err != nil {
		b.logger.Warnf("bridge: bad custom-button-click payload: %v", err)
		return
	}
	if click.ButtonID != ToggleButtonID {
		return
	}
	if err := b.Toggle(b.ctx); err != nil {
		b.logger.Errorf("bridge: captions toggle failed: %v", err)
	}
}

func (b *Bridge) handleAppMessage(ev callframe.Event) {
	var msg callframe.AppMessage
	if err := ev.Decode(&msg); err != nil {
		b.logger.Warnf("bridge: bad app-message payload: %v", err)
		return
	}
	if msg.FromID != callframe.TranscriptionSenderID || len(msg.Data) == 0 {
		return
	}

	var data callframe.TranscriptionData
	if err := (callframe.Event{Data: msg.Data}).Decode(&data); err != nil {
		b.logger.Warnf("bridge: bad transcription payload: %v", err)
		return
	}
	// Partial transcripts are never rendered
	if !data.IsFinal {
		return
	}

	b.state.Append(FormatCaption(b.speakerName(data), data.Text))
}

// speakerName resolves the display name of a transcript's speaker. Unknown
// speakers fall back to the payload name, then to the placeholder.
func (b *Bridge) speakerName(data callframe.TranscriptionData) string {
	if b.cfg.Placement == PlacementTray {
		roster, err := b.frame.Participants(b.ctx)
		if err != nil {
			b.logger.Warnf("bridge: participants query failed: %v", err)
		} else if p, ok := roster.Lookup(data.SessionID); ok && p.UserName != "" {
			return p.UserName
		} else {
			b.logger.Debugf("bridge: speaker %q not in roster", data.SessionID)
		}
	}

	if data.UserName != "" {
		return data.UserName
	}
	return b.cfg.UnknownSpeaker
}
