package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrConnClosed is returned by Conn operations after Close.
var ErrConnClosed = errors.New("connection closed")

// Conn is a duplex frame channel.
type Conn interface {
	ReadFrame() (Frame, error)
	WriteFrame(f Frame) error
	Close() error
}

// Dialer opens Conns.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

// WebsocketConfig tunes the websocket keepalive.
type WebsocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

// DefaultWebsocketConfig returns the keepalive defaults.
func DefaultWebsocketConfig() WebsocketConfig {
	return WebsocketConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 64 * 1024,
	}
}

// WebsocketDialer dials gorilla websocket connections.
type WebsocketDialer struct {
	Dialer *websocket.Dialer
	Config WebsocketConfig
}

// NewWebsocketDialer returns a dialer using websocket.DefaultDialer.
func NewWebsocketDialer(cfg WebsocketConfig) *WebsocketDialer {
	return &WebsocketDialer{Dialer: websocket.DefaultDialer, Config: cfg}
}

func (d *WebsocketDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	ws, resp, err := d.Dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial %s: %w (HTTP %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("websocket dial %s: %w", url, err)
	}
	return newWSConn(ws, d.Config), nil
}

// wsConn serializes writes and keeps the socket alive with pings.
type wsConn struct {
	ws      *websocket.Conn
	cfg     WebsocketConfig
	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
}

func newWSConn(ws *websocket.Conn, cfg WebsocketConfig) *wsConn {
	c := &wsConn{ws: ws, cfg: cfg, done: make(chan struct{})}

	if cfg.MaxMessageSize > 0 {
		ws.SetReadLimit(cfg.MaxMessageSize)
	}
	if cfg.PongWait > 0 {
		ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
		})
	}
	if cfg.PingInterval > 0 {
		go c.pingLoop()
	}
	return c
}

func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteWait)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.Close()
				return
			}
		}
	}
}

func (c *wsConn) ReadFrame() (Frame, error) {
	var f Frame
	if err := c.ws.ReadJSON(&f); err != nil {
		select {
		case <-c.done:
			return Frame{}, ErrConnClosed
		default:
		}
		return Frame{}, err
	}
	return f, nil
}

func (c *wsConn) WriteFrame(f Frame) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.cfg.WriteWait > 0 {
		c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
	}
	return c.ws.WriteJSON(f)
}

func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}
