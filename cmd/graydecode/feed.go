package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"graydecode/internal/graycode"
)

// ============================================================================
// Live annotation feed: hub + per-client pumps + broadcaster
// ============================================================================
//
// This file implements:
//   - A Hub that tracks connected WebSocket clients
//   - Per-client write pumps so one slow client doesn't block others
//   - A broadcaster loop that reads decoder annotations and fans them out
//
// Notes:
//   - Slow clients are disconnected when their send buffer fills.
//   - Messages are JSON text frames with an envelope: {type, ts, data}.
//   - The initial message on connect is "stream_init" with the decode setup.
//   - Annotations are merged per category (latest wins) and sent as
//     "position" at most once per feedCoalesceWindow.
//   - The last message is "stream_end" with the decode summary.
//
// ============================================================================

// wsStreamInit is the JSON `data` payload for "stream_init".
type wsStreamInit struct {
	Source              string `json:"source"`
	SampleRate          uint64 `json:"sample_rate"`
	NumChannels         int    `json:"num_channels"` // 0 = auto-detected
	PulsesPerRevolution int    `json:"pulses_per_revolution"`
	WindowCapacity      int    `json:"window_capacity"`
}

// wsPositionData is the JSON `data` payload for "position". Values maps a
// category id to the text of its latest annotation.
type wsPositionData struct {
	Start  int64             `json:"start"`
	End    int64             `json:"end"`
	Values map[string]string `json:"values"`
}

// wsStreamEndData is the JSON `data` payload for "stream_end".
type wsStreamEndData struct {
	Channels  int    `json:"channels"`
	Edges     int64  `json:"edges"`
	LastIndex int64  `json:"last_index"`
	Phase     uint32 `json:"phase"`
	Count     int64  `json:"count"`
	Turns     *int64 `json:"turns,omitempty"`
	Error     string `json:"error,omitempty"`
}

// envelope is the wire format envelope for WS messages.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

func marshalEnvelope(typ string, data any) ([]byte, error) {
	now := time.Now().UTC()
	return json.Marshal(envelope{Type: typ, Ts: &now, Data: data})
}

// ============================================================================
// Hub
// ============================================================================

type Hub struct {
	logger *slog.Logger

	// Buffered broadcast channel for already-serialized JSON frames.
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size.
	SendBuf int

	// BroadcastBuf is the hub inbound broadcast queue size.
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = defaultFeedSendBuf
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = defaultFeedBroadcastBuf
	}

	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, bcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    sendBuf,
	}
}

// Run processes hub events until ctx is canceled.
// It disconnects all clients on shutdown.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Debug("feed hub starting")

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("feed hub stopping")
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("feed client registered", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			// Collect slow clients first, then remove them after we unlock.
			var slow []*Client

			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		safeCloseChan(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		// Closing send signals writePump to exit.
		safeCloseChan(c.send)

		h.logger.Info("feed client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

func safeCloseChan(ch chan []byte) {
	defer func() {
		_ = recover() // ignore "close of closed channel"
	}()
	close(ch)
}

// BroadcastBytes enqueues a pre-serialized JSON frame for broadcast.
// It never blocks; if the hub queue is full it drops the message.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("feed hub broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub *Hub

	conn *websocket.Conn
	send chan []byte

	remoteAddr string
	logger     *slog.Logger
}

// NewClient creates a client with a buffered send channel.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	sendBuf := defaultFeedSendBuf
	if hub != nil && hub.sendBuf > 0 {
		sendBuf = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBuf),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// closeStatus extracts a websocket close code / text when possible.
func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

func (c *Client) logExit(pump, what string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Debug("feed "+pump+" exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
		return
	}
	c.logger.Debug("feed "+pump+" exiting ("+what+" error)", "remote_addr", c.remoteAddr, "error", err)
}

// writePump writes messages from the send queue to the websocket.
// It exits on write error or when send is closed.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed: hub is disconnecting us.
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("writePump", "write", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("writePump", "ping", err)
				return
			}
		}
	}
}

// readPump reads and discards incoming messages to detect disconnects and
// handle control frames. It exits on read error, then unregisters the client.
func (c *Client) readPump() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logExit("readPump", "read", err)
			if c.hub != nil {
				c.hub.unregister <- c
			}
			return
		}
	}
}

// ============================================================================
// HTTP handler
// ============================================================================

type Server struct {
	logger  *slog.Logger
	hub     *Hub
	initMsg []byte // serialized stream_init frame
}

// NewServer constructs the feed server. Register it on a mux, start
// Hub().Run(ctx), and start RunBroadcaster.
func NewServer(logger *slog.Logger, cfg HubConfig, info wsStreamInit) (*Server, error) {
	initMsg, err := marshalEnvelope("stream_init", info)
	if err != nil {
		return nil, err
	}
	return &Server{
		logger:  logger,
		hub:     NewHub(logger, cfg),
		initMsg: initMsg,
	}, nil
}

func (s *Server) Hub() *Hub { return s.hub }

// Register registers the WS handler on the provided mux.
func (s *Server) Register(mux *http.ServeMux, path string) {
	if mux == nil {
		return
	}
	mux.HandleFunc(path, s.handleFeedWS)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleFeedWS upgrades and registers a client, then sends stream_init.
func (s *Server) handleFeedWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("feed upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr, s.logger)

	// Queue stream_init before registering so it precedes any broadcast.
	client.send <- s.initMsg

	s.hub.register <- client

	// The pumps outlive the request; their lifetime is managed by the hub
	// and by websocket read/write errors.
	go client.writePump(context.Background())
	go client.readPump()
}

// ============================================================================
// Broadcaster
// ============================================================================

// feedItem is one message from the decoder to the broadcaster: either an
// annotation or, last, the end-of-stream summary.
type feedItem struct {
	ann graycode.Annotation
	end *wsStreamEndData
}

// Feed is a graycode.Sink that hands annotations to the broadcaster.
type Feed struct {
	ctx   context.Context
	items chan feedItem
	once  sync.Once
}

// NewFeed returns a sink whose items are consumed by RunBroadcaster. Put
// blocks while the queue is full, until ctx is done.
func NewFeed(ctx context.Context, depth int) *Feed {
	if depth <= 0 {
		depth = feedQueueDepth
	}
	return &Feed{ctx: ctx, items: make(chan feedItem, depth)}
}

// Put implements graycode.Sink.
func (f *Feed) Put(a graycode.Annotation) error {
	select {
	case f.items <- feedItem{ann: a}:
		return nil
	case <-f.ctx.Done():
		return f.ctx.Err()
	}
}

// End sends the decode summary and closes the feed. Later calls are no-ops.
func (f *Feed) End(sum graycode.Summary, decodeErr error) {
	f.once.Do(func() {
		end := &wsStreamEndData{
			Channels:  sum.Channels,
			Edges:     sum.Edges,
			LastIndex: sum.LastIndex,
			Phase:     sum.Phase,
			Count:     sum.Count,
		}
		if sum.TurnsEnabled {
			turns := sum.Turns
			end.Turns = &turns
		}
		if decodeErr != nil {
			end.Error = decodeErr.Error()
		}
		select {
		case f.items <- feedItem{end: end}:
		case <-f.ctx.Done():
		}
		close(f.items)
	})
}

// RunBroadcaster reads feed items, merges annotations into position updates,
// and broadcasts them to all hub clients. Intended to run as a single
// goroutine; it returns when the feed is closed or ctx is done.
func RunBroadcaster(ctx context.Context, hub *Hub, feed *Feed, logger *slog.Logger) {
	if hub == nil || feed == nil {
		return
	}

	// Flush the latest pending position at most once every
	// feedCoalesceWindow, even if annotations keep arriving.
	var pending *wsPositionData
	var timer *time.Timer
	var timerCh <-chan time.Time

	send := func(typ string, data any) {
		msg, err := marshalEnvelope(typ, data)
		if err != nil {
			logger.Warn("feed broadcaster marshal failed", "error", err, "type", typ)
			return
		}
		hub.BroadcastBytes(msg)
	}

	flushPending := func() {
		if pending == nil {
			return
		}
		send("position", pending)
		pending = nil
	}

	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		timer, timerCh = nil, nil
	}

	for {
		select {
		case <-ctx.Done():
			flushPending()
			stopTimer()
			return

		case <-timerCh:
			flushPending()
			stopTimer()

		case it, ok := <-feed.items:
			if !ok {
				flushPending()
				stopTimer()
				logger.Debug("feed broadcaster stopping (stream ended)")
				return
			}

			if it.end != nil {
				flushPending()
				stopTimer()
				send("stream_end", it.end)
				continue
			}

			a := it.ann
			if pending == nil {
				pending = &wsPositionData{Values: make(map[string]string, len(graycode.Categories()))}
			}
			pending.Start, pending.End = a.Start, a.End
			pending.Values[a.Category.String()] = a.Text

			if timer == nil {
				timer = time.NewTimer(feedCoalesceWindow)
				timerCh = timer.C
			}
		}
	}
}
