package session

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var (
	// ErrConnClosed is returned when sending on a closed connection
	ErrConnClosed = errors.New("connection closed")

	// ErrSendBufferFull is returned when a slow reader has filled its buffer
	ErrSendBufferFull = errors.New("send buffer full")
)

// HandlerConfig tunes the websocket transport
type HandlerConfig struct {
	SendBuffer   int
	ReadLimit    int64
	WriteTimeout time.Duration
}

func (c *HandlerConfig) applyDefaults() {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 4096
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
}

// Handler upgrades HTTP requests to websocket sessions
type Handler struct {
	registry *Registry
	logger   *slog.Logger
	cfg      HandlerConfig
	upgrader websocket.Upgrader
}

// NewHandler creates a websocket handler bound to the registry
func NewHandler(registry *Registry, logger *slog.Logger, cfg HandlerConfig) *Handler {
	cfg.applyDefaults()
	return &Handler{
		registry: registry,
		logger:   logger,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: cfg.WriteTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
	}
}

// Serve handles GET /api/v1/ws?userId=
func (h *Handler) Serve(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed",
			slog.String("ip", c.ClientIP()),
			slog.Any("error", err),
		)
		return
	}

	// the server read deadline survives the hijack
	_ = ws.SetReadDeadline(time.Time{})

	conn := newWSConn(ws, h.cfg.SendBuffer)
	go conn.writePump(h.cfg.WriteTimeout, h.logger)

	s := h.registry.Register(conn, c.Query("userId"))

	ws.SetReadLimit(h.cfg.ReadLimit)
	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("Websocket read failed",
					slog.String("session_id", s.ID),
					slog.Any("error", err),
				)
			}
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		h.registry.HandleMessage(c.Request.Context(), s, data)
	}

	h.registry.Unregister(s)
	<-conn.stopped
}

// wsConn adapts a gorilla connection to Conn. Writes happen on a single
// goroutine draining a bounded buffer.
type wsConn struct {
	ws        *websocket.Conn
	send      chan Message
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

func newWSConn(ws *websocket.Conn, buffer int) *wsConn {
	return &wsConn{
		ws:      ws,
		send:    make(chan Message, buffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

func (c *wsConn) Send(msg Message) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *wsConn) writePump(timeout time.Duration, logger *slog.Logger) {
	defer close(c.stopped)
	defer c.ws.Close()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(timeout))
			if err := c.ws.WriteJSON(msg); err != nil {
				logger.Debug("Websocket write failed", slog.Any("error", err))
				c.Close()
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(timeout))
			return
		}
	}
}
