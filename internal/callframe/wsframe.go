package callframe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsHandshakeTimeout = 10 * time.Second
	wsWriteWait        = 10 * time.Second
)

// wireRequest is an operation sent to the call frame host.
type wireRequest struct {
	ID     uint64 `json:"id"`
	Action string `json:"action"`
	Params any    `json:"params,omitempty"`
}

// wireMessage is either a response (ID set) or an event (Event set).
type wireMessage struct {
	ID     uint64          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Event  string          `json:"event,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`

	failure error
}

// RemoteError is an operation failure reported by the call frame host.
type RemoteError struct {
	Action  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("call frame %s: %s", e.Action, e.Message)
}

// WSFactory creates frames hosted behind a WebSocket endpoint. Each frame owns
// one connection.
type WSFactory struct {
	url    string
	header http.Header
	logger *zap.SugaredLogger
}

// NewWSFactory creates a factory for the call frame host at url.
func NewWSFactory(url string, header http.Header, logger *zap.SugaredLogger) *WSFactory {
	return &WSFactory{url: url, header: header, logger: logger}
}

// Create dials the host and creates a frame with opts.
func (f *WSFactory) Create(ctx context.Context, opts Options) (Frame, error) {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = wsHandshakeTimeout

	conn, resp, err := dialer.DialContext(ctx, f.url, f.header)
	if err != nil {
		return nil, fmt.Errorf("connect to call frame host: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	frame := newWSFrame(conn, f.logger)
	if err := frame.call(ctx, "create", opts, nil); err != nil {
		_ = frame.Destroy()
		return nil, fmt.Errorf("create frame: %w", err)
	}
	return frame, nil
}

// WSFrame is a Frame backed by a WebSocket connection to the call frame host.
//
// Responses are routed by the read loop; events are queued and dispatched by a
// separate goroutine, so handlers may call frame operations and wait for them.
type WSFrame struct {
	events Emitter

	conn    *websocket.Conn
	writeMu sync.Mutex
	logger  *zap.SugaredLogger

	nextID  atomic.Uint64
	pendMu  sync.Mutex
	pending map[uint64]chan wireMessage
	broken  error

	queueMu sync.Mutex
	queue   []Event
	wake    chan struct{}

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup // readLoop
}

func newWSFrame(conn *websocket.Conn, logger *zap.SugaredLogger) *WSFrame {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	f := &WSFrame{
		conn:    conn,
		logger:  logger,
		pending: make(map[uint64]chan wireMessage),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	f.wg.Add(1)
	go f.readLoop()
	go f.dispatchLoop()

	return f
}

// On registers an event handler.
func (f *WSFrame) On(event string, h Handler) Subscription {
	return f.events.On(event, h)
}

// Off removes an event handler.
func (f *WSFrame) Off(sub Subscription) {
	f.events.Off(sub)
}

// Join joins the room at roomURL with token.
func (f *WSFrame) Join(ctx context.Context, roomURL, token string) error {
	params := struct {
		URL   string `json:"url"`
		Token string `json:"token"`
	}{URL: roomURL, Token: token}
	return f.call(ctx, "join", params, nil)
}

// StartTranscription asks the call service to start transcribing the room.
func (f *WSFrame) StartTranscription(ctx context.Context) error {
	return f.call(ctx, "startTranscription", nil, nil)
}

// StopTranscription asks the call service to stop transcribing the room.
func (f *WSFrame) StopTranscription(ctx context.Context) error {
	return f.call(ctx, "stopTranscription", nil, nil)
}

// UpdateCustomTrayButtons replaces the custom tray buttons.
func (f *WSFrame) UpdateCustomTrayButtons(ctx context.Context, buttons map[string]TrayButton) error {
	params := struct {
		CustomTrayButtons map[string]TrayButton `json:"customTrayButtons"`
	}{CustomTrayButtons: buttons}
	return f.call(ctx, "updateCustomTrayButtons", params, nil)
}

// Participants returns the current roster.
func (f *WSFrame) Participants(ctx context.Context) (Participants, error) {
	var p Participants
	if err := f.call(ctx, "participants", nil, &p); err != nil {
		return Participants{}, err
	}
	return p, nil
}

// Destroy tears the frame down. It does not wait for running event handlers,
// so it may be called from inside one.
func (f *WSFrame) Destroy() error {
	var err error
	f.closeOnce.Do(func() {
		_ = f.write(wireRequest{ID: f.nextID.Add(1), Action: "destroy"})
		close(f.done)
		err = f.conn.Close()
		f.wg.Wait()
		f.failPending(ErrClosed)
	})
	return err
}

func (f *WSFrame) call(ctx context.Context, action string, params any, out any) error {
	select {
	case <-f.done:
		return ErrClosed
	default:
	}

	id := f.nextID.Add(1)
	ch := make(chan wireMessage, 1)

	f.pendMu.Lock()
	if f.broken != nil {
		err := f.broken
		f.pendMu.Unlock()
		return err
	}
	f.pending[id] = ch
	f.pendMu.Unlock()

	defer func() {
		f.pendMu.Lock()
		delete(f.pending, id)
		f.pendMu.Unlock()
	}()

	if err := f.write(wireRequest{ID: id, Action: action, Params: params}); err != nil {
		return fmt.Errorf("send %s: %w", action, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.done:
		return ErrClosed
	case m := <-ch:
		if m.failure != nil {
			return m.failure
		}
		if m.Error != "" {
			return &RemoteError{Action: action, Message: m.Error}
		}
		if out != nil && len(m.Result) > 0 {
			if err := json.Unmarshal(m.Result, out); err != nil {
				return fmt.Errorf("decode %s result: %w", action, err)
			}
		}
		return nil
	}
}

func (f *WSFrame) write(req wireRequest) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	_ = f.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return f.conn.WriteJSON(req)
}

// readLoop routes responses to waiting calls and queues events.
func (f *WSFrame) readLoop() {
	defer f.wg.Done()

	for {
		_, msg, err := f.conn.ReadMessage()
		if err != nil {
			select {
			case <-f.done:
				return
			default:
			}
			f.logger.Warnf("frame: read error: %v", err)
			f.failPending(fmt.Errorf("call frame connection lost: %w", err))
			data, _ := json.Marshal(ErrorPayload{ErrorMsg: err.Error()})
			f.enqueue(Event{Name: EventError, Data: data})
			return
		}

		var m wireMessage
		if err := json.Unmarshal(msg, &m); err != nil {
			f.logger.Warnf("frame: failed to parse message: %v", err)
			continue
		}

		if m.Event != "" {
			f.enqueue(Event{Name: m.Event, Data: m.Data})
			continue
		}

		f.pendMu.Lock()
		ch, ok := f.pending[m.ID]
		f.pendMu.Unlock()
		if !ok {
			f.logger.Debugf("frame: response for unknown request %d", m.ID)
			continue
		}
		select {
		case ch <- m:
		default:
			f.logger.Debugf("frame: duplicate response for request %d", m.ID)
		}
	}
}

func (f *WSFrame) failPending(err error) {
	f.pendMu.Lock()
	defer f.pendMu.Unlock()

	if f.broken == nil {
		f.broken = err
	}
	for id, ch := range f.pending {
		select {
		case ch <- wireMessage{ID: id, failure: err}:
		default:
		}
	}
}

func (f *WSFrame) enqueue(ev Event) {
	f.queueMu.Lock()
	f.queue = append(f.queue, ev)
	f.queueMu.Unlock()

	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// dispatchLoop emits queued events one at a time, in arrival order.
func (f *WSFrame) dispatchLoop() {
	for {
		select {
		case <-f.done:
			return
		case <-f.wake:
		}

		for {
			select {
			case <-f.done:
				return
			default:
			}

			f.queueMu.Lock()
			if len(f.queue) == 0 {
				f.queueMu.Unlock()
				break
			}
			ev := f.queue[0]
			f.queue = f.queue[1:]
			f.queueMu.Unlock()

			f.events.Emit(ev)
		}
	}
}
