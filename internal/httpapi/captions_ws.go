package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lukasbauer/captions/internal/captions"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsSendBuffer = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// captionClient is one overlay connected to the caption feed.
type captionClient struct {
	conn *websocket.Conn
	send chan captions.View
}

// captionHub pushes the rendered View to every connected overlay whenever the
// caption state changes. Clients that fall behind are dropped.
type captionHub struct {
	placement captions.Placement
	logger    *zap.SugaredLogger
	stop      func()

	mu      sync.Mutex
	clients map[*captionClient]struct{}
	last    captions.View
	closed  bool
}

func newCaptionHub(state *captions.State, placement captions.Placement, logger *zap.SugaredLogger) *captionHub {
	h := &captionHub{
		placement: placement,
		logger:    logger,
		clients:   make(map[*captionClient]struct{}),
		last:      captions.Render(state.Snapshot(), placement),
	}
	h.stop = state.Listen(h.broadcast)
	return h
}

func (h *captionHub) broadcast(snap captions.Snapshot) {
	view := captions.Render(snap, h.placement)

	h.mu.Lock()
	defer h.mu.Unlock()
	if view == h.last {
		return
	}
	h.last = view
	for c := range h.clients {
		select {
		case c.send <- view:
		default:
			h.logger.Warnf("captions_ws: dropping slow client %s", c.conn.RemoteAddr())
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// register adds c and queues the current view for it.
func (h *captionHub) register(c *captionClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	c.send <- h.last
	return true
}

func (h *captionHub) unregister(c *captionClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Len returns the number of connected clients.
func (h *captionHub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close stops listening and disconnects every client.
func (h *captionHub) Close() {
	h.stop()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (r *Router) handleCaptionsWS(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warnf("captions_ws: upgrade failed: %v", err)
		return
	}

	c := &captionClient{conn: conn, send: make(chan captions.View, wsSendBuffer)}
	if !r.hub.register(c) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}
	r.logger.Debugf("captions_ws: client connected from %s", conn.RemoteAddr())

	go c.writeLoop()
	c.readLoop()
	r.hub.unregister(c)
	r.logger.Debugf("captions_ws: client %s disconnected", conn.RemoteAddr())
}

// readLoop drains client frames so pongs and close frames are processed.
func (c *captionClient) readLoop() {
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *captionClient) writeLoop() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case view, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(view); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
