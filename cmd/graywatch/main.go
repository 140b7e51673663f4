package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"graydecode/internal/graycode"
	"graydecode/internal/logging"
)

// envelope mirrors the feed's wire format.
type envelope struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type position struct {
	Start  int64             `json:"start"`
	End    int64             `json:"end"`
	Values map[string]string `json:"values"`
}

func main() {
	var (
		wsURL       = flag.String("ws", "ws://127.0.0.1:8090/ws", "graydecode feed URL")
		raw         = flag.Bool("raw", false, "Print frames as received")
		logLevelStr = flag.String("log-level", "info", "Log level: error, warn, info, debug")
	)
	flag.Parse()

	logLevel, err := logging.ParseLevel(*logLevelStr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger := logging.New(logLevel, os.Stderr)

	u, err := url.Parse(*wsURL)
	if err != nil {
		logger.Error("invalid websocket URL", "url", *wsURL, "error", err)
		os.Exit(1)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	logger.Info("connecting", "url", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	// Protects concurrent writes (pings vs. close).
	var writeMu sync.Mutex

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	// The server pings every 20 s; refresh the deadline on each ping too.
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Warn("websocket error", "error", err)
				}
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			if *raw {
				fmt.Println(string(message))
				continue
			}
			if end := handleFrame(os.Stdout, message, logger); end {
				return
			}
		}
	}()

	select {
	case <-sigc:
		logger.Info("shutting down")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			logger.Warn("error closing connection", "error", err)
		}
	case <-done:
		logger.Info("feed closed")
	}
}

// handleFrame prints one feed frame. It reports whether the stream ended.
func handleFrame(w io.Writer, message []byte, logger *slog.Logger) bool {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		fmt.Fprintf(w, "[TEXT] %s\n", message)
		return false
	}

	switch env.Type {
	case "stream_init":
		fmt.Fprintf(w, "[INIT] %s\n", env.Data)

	case "position":
		var p position
		if err := json.Unmarshal(env.Data, &p); err != nil {
			logger.Warn("bad position frame", "error", err)
			return false
		}
		fmt.Fprintf(w, "[%d-%d] %s\n", p.Start, p.End, formatValues(p.Values))

	case "stream_end":
		fmt.Fprintf(w, "[END] %s\n", env.Data)
		return true

	default:
		fmt.Fprintf(w, "[%s] %s\n", strings.ToUpper(env.Type), env.Data)
	}
	return false
}

// formatValues renders values in annotation order, then any unknown keys
// sorted by name.
func formatValues(values map[string]string) string {
	var parts []string
	seen := make(map[string]bool, len(values))
	for _, c := range graycode.Categories() {
		if v, ok := values[c.String()]; ok {
			parts = append(parts, c.Title()+"="+v)
			seen[c.String()] = true
		}
	}
	var extra []string
	for k := range values {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		parts = append(parts, k+"="+values[k])
	}
	return strings.Join(parts, "  ")
}
