// Package callframetest provides an in-memory call frame for tests.
package callframetest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/lukasbauer/captions/internal/callframe"
)

// Frame is a scripted callframe.Frame. Events are delivered synchronously by Emit.
type Frame struct {
	callframe.Emitter

	mu sync.Mutex

	Options   callframe.Options
	JoinedURL string
	JoinToken string
	Destroyed bool
	Calls     []string
	Buttons   []map[string]callframe.TrayButton
	Roster    callframe.Participants

	// Error hooks, returned by the matching operation when set.
	JoinErr         error
	StartErr        error
	StopErr         error
	ParticipantsErr error

	// OnStart and OnStop run after a successful start/stop call, e.g. to emit
	// the service's confirmation event.
	OnStart func(f *Frame)
	OnStop  func(f *Frame)
}

// New returns a frame with the given roster.
func New(roster callframe.Participants) *Frame {
	return &Frame{Roster: roster}
}

func (f *Frame) record(call string) {
	f.mu.Lock()
	f.Calls = append(f.Calls, call)
	f.mu.Unlock()
}

func (f *Frame) Join(ctx context.Context, roomURL, token string) error {
	f.record("join")
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.JoinErr != nil {
		return f.JoinErr
	}
	f.JoinedURL = roomURL
	f.JoinToken = token
	return nil
}

func (f *Frame) Destroy() error {
	f.record("destroy")
	f.mu.Lock()
	f.Destroyed = true
	f.mu.Unlock()
	return nil
}

func (f *Frame) StartTranscription(ctx context.Context) error {
	f.record("startTranscription")
	if f.StartErr != nil {
		return f.StartErr
	}
	if f.OnStart != nil {
		f.OnStart(f)
	}
	return nil
}

func (f *Frame) StopTranscription(ctx context.Context) error {
	f.record("stopTranscription")
	if f.StopErr != nil {
		return f.StopErr
	}
	if f.OnStop != nil {
		f.OnStop(f)
	}
	return nil
}

func (f *Frame) UpdateCustomTrayButtons(ctx context.Context, buttons map[string]callframe.TrayButton) error {
	f.record("updateCustomTrayButtons")
	f.mu.Lock()
	f.Buttons = append(f.Buttons, buttons)
	f.mu.Unlock()
	return nil
}

func (f *Frame) Participants(ctx context.Context) (callframe.Participants, error) {
	f.record("participants")
	if f.ParticipantsErr != nil {
		return callframe.Participants{}, f.ParticipantsErr
	}
	return f.Roster, nil
}

// CallLog returns a copy of the operations invoked so far.
func (f *Frame) CallLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Calls...)
}

// IsDestroyed reports whether Destroy was called.
func (f *Frame) IsDestroyed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Destroyed
}

// LastButtons returns the most recent tray button update, or nil.
func (f *Frame) LastButtons() map[string]callframe.TrayButton {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Buttons) == 0 {
		return nil
	}
	return f.Buttons[len(f.Buttons)-1]
}

// Fire emits an event with v marshaled as its payload.
func (f *Frame) Fire(name string, v any) {
	var data json.RawMessage
	if v != nil {
		data, _ = json.Marshal(v)
	}
	f.Emit(callframe.Event{Name: name, Data: data})
}

// FireTranscript emits an app-message from the transcription service.
func (f *Frame) FireTranscript(d callframe.TranscriptionData) {
	data, _ := json.Marshal(d)
	f.Fire(callframe.EventAppMessage, callframe.AppMessage{
		FromID: callframe.TranscriptionSenderID,
		Data:   data,
	})
}

// Factory hands out pre-built frames.
type Factory struct {
	mu      sync.Mutex
	Frames  []*Frame
	Created []callframe.Options
	Err     error
	next    int
}

// NewFactory returns a factory that hands out frames in order.
func NewFactory(frames ...*Frame) *Factory {
	return &Factory{Frames: frames}
}

func (f *Factory) Create(ctx context.Context, opts callframe.Options) (callframe.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	f.Created = append(f.Created, opts)

	var frame *Frame
	if f.next < len(f.Frames) {
		frame = f.Frames[f.next]
	} else {
		frame = New(callframe.Participants{})
		f.Frames = append(f.Frames, frame)
	}
	f.next++
	frame.Options = opts
	return frame, nil
}

// CreatedCount returns how many frames were created.
func (f *Factory) CreatedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Created)
}

// Frame returns the i-th created frame.
func (f *Factory) Frame(i int) *Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Frames[i]
}
