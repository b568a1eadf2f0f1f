// Package callframe is the client side of the hosted call widget.
//
// A Frame is one embedded call instance. It joins a room with a meeting token,
// exposes the call service operations used for captions and emits named events
// through an On/Off subscription surface.
package callframe

import (
	"context"
	"encoding/json"
	"errors"
)

// Event names emitted by a call frame.
const (
	EventJoinedMeeting        = "joined-meeting"
	EventLeftMeeting          = "left-meeting"
	EventError                = "error"
	EventTranscriptionStarted = "transcription-started"
	EventTranscriptionStopped = "transcription-stopped"
	EventTranscriptionError   = "transcription-error"
	EventCustomButtonClick    = "custom-button-click"
	EventAppMessage           = "app-message"
)

// TranscriptionSenderID is the reserved fromId of app messages carrying transcripts.
const TranscriptionSenderID = "transcription"

// ErrClosed is returned by operations on a destroyed frame.
var ErrClosed = errors.New("call frame is destroyed")

// Event is a single event emitted by a frame.
type Event struct {
	Name string
	Data json.RawMessage
}

// Decode unmarshals the event payload into v. An empty payload leaves v untouched.
func (e Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

// Handler receives events. Handlers for one frame are never called concurrently.
type Handler func(Event)

// Frame is one call widget instance.
type Frame interface {
	Join(ctx context.Context, roomURL, token string) error
	Destroy() error

	StartTranscription(ctx context.Context) error
	StopTranscription(ctx context.Context) error
	UpdateCustomTrayButtons(ctx context.Context, buttons map[string]TrayButton) error
	Participants(ctx context.Context) (Participants, error)

	On(event string, h Handler) Subscription
	Off(sub Subscription)
}

// Factory creates frames with the given display options.
type Factory interface {
	Create(ctx context.Context, opts Options) (Frame, error)
}

// TrayButton describes a custom button in the call widget's control bar.
type TrayButton struct {
	IconPath string `json:"iconPath" toml:"icon_path"`
	Label    string `json:"label" toml:"label"`
	Tooltip  string `json:"tooltip" toml:"tooltip"`
}

// Options are the display options of a new frame.
type Options struct {
	ShowLeaveButton   bool                  `json:"showLeaveButton"`
	IframeStyle       map[string]string     `json:"iframeStyle,omitempty"`
	CustomTrayButtons map[string]TrayButton `json:"customTrayButtons,omitempty"`
}

// FullViewportStyle covers the whole page with the call widget.
func FullViewportStyle() map[string]string {
	return map[string]string{
		"position": "fixed",
		"border":   "0",
		"top":      "0",
		"left":     "0",
		"width":    "100%",
		"height":   "100%",
	}
}

// AppMessage is the payload of an app-message event.
type AppMessage struct {
	FromID string          `json:"fromId"`
	Data   json.RawMessage `json:"data"`
}

// TranscriptionData is the data of an app message sent by the transcription service.
type TranscriptionData struct {
	IsFinal   bool   `json:"is_final"`
	Text      string `json:"text"`
	UserName  string `json:"user_name"`
	SessionID string `json:"session_id"`
	Timestamp string `json:"timestamp,omitempty"`
}

// CustomButtonClick is the payload of a custom-button-click event.
type CustomButtonClick struct {
	ButtonID string `json:"button_id"`
}

// ErrorPayload is the payload of error and transcription-error events.
type ErrorPayload struct {
	ErrorMsg string `json:"errorMsg"`
}
