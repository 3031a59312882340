package emotion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teslashibe/go-facerig/internal/log"
)

// ClientConfig configures the streaming classifier connection.
type ClientConfig struct {
	URL              string        // ws:// or wss:// endpoint
	APIKey           string        // Sent as a bearer token when set
	HandshakeTimeout time.Duration // Dial timeout
	ReadTimeout      time.Duration // Idle read deadline, reset on every message
	PingInterval     time.Duration // Keepalive ping cadence
}

// DefaultClientConfig returns sensible connection defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      120 * time.Second,
		PingInterval:     30 * time.Second,
	}
}

// message is a server push: either scores or an error.
type message struct {
	Emotions []Label `json:"emotions,omitempty"`
	Error    *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Client streams speech audio to an emotion classifier and receives
// score vectors pushed back over a websocket.
type Client struct {
	cfg    ClientConfig
	logger *slog.Logger

	ws     *websocket.Conn
	wsMu   sync.Mutex
	closed bool
	done   chan struct{}

	// OnScores is called from the read goroutine for every score message.
	OnScores func(Scores)
	// OnError is called at most once, when the stream fails or the server
	// reports an error. The client is unusable afterwards.
	OnError func(error)
}

// NewClient creates a client. Call Connect before sending audio.
func NewClient(cfg ClientConfig) *Client {
	d := DefaultClientConfig()
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = d.HandshakeTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = d.ReadTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = d.PingInterval
	}
	return &Client{
		cfg:    cfg,
		logger: log.Component("emotion"),
		done:   make(chan struct{}),
	}
}

// Connect dials the classifier. A 429 handshake response yields an error
// matching ErrRateLimited.
func (c *Client) Connect(ctx context.Context) error {
	header := http.Header{}
	if c.cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	ws, resp, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		}
		return fmt.Errorf("emotion: dial %s: %w", c.cfg.URL, err)
	}

	ws.SetPingHandler(func(appData string) error {
		c.wsMu.Lock()
		defer c.wsMu.Unlock()
		return ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})
	ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))

	c.wsMu.Lock()
	c.ws = ws
	c.wsMu.Unlock()

	c.logger.Info("connected to emotion classifier", "url", c.cfg.URL)

	go c.readLoop(ws)
	go c.keepAlive()
	return nil
}

// SendAudio sends one chunk of 16-bit little-endian mono PCM.
func (c *Client) SendAudio(pcm []byte) error {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	if c.ws == nil || c.closed {
		return ErrNotConnected
	}
	c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.ws.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		return fmt.Errorf("emotion: send audio: %w", err)
	}
	return nil
}

// Close shuts the connection down. Safe to call more than once.
func (c *Client) Close() error {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	if c.ws == nil {
		return nil
	}
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.ws.Close()
}

func (c *Client) isClosed() bool {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	return c.closed
}

func (c *Client) readLoop(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if !c.isClosed() {
				c.fail(fmt.Errorf("%w: %v", ErrConnectionLost, err))
			}
			return
		}
		ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Debug("ignoring malformed classifier message", "error", err)
			continue
		}

		if msg.Error != nil {
			c.fail(&APIError{Code: msg.Error.Code, Message: msg.Error.Message})
			return
		}
		if len(msg.Emotions) > 0 && c.OnScores != nil {
			c.OnScores(FromLabels(msg.Emotions))
		}
	}
}

// fail closes the connection and reports err.
func (c *Client) fail(err error) {
	c.Close()
	if errors.Is(err, ErrRateLimited) {
		c.logger.Warn("emotion classifier rate limited", "error", err)
	} else {
		c.logger.Warn("emotion classifier failed", "error", err)
	}
	if c.OnError != nil {
		c.OnError(err)
	}
}

func (c *Client) keepAlive() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.wsMu.Lock()
			if c.ws != nil && !c.closed {
				if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
					c.wsMu.Unlock()
					return
				}
			}
			c.wsMu.Unlock()
		}
	}
}
