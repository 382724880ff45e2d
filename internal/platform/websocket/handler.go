package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/apperr"
	"github.com/yadsashel/yadsashel-Telehealth-Collaboration-Platform/internal/platform/auth"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	eventTimeout   = 15 * time.Second
)

// Dispatcher handles validated send_message and typing events on behalf of
// the connection's identity.
type Dispatcher interface {
	Dispatch(ctx context.Context, id auth.Identity, ev Inbound) error
}

// HandlerConfig bounds the transport.
type HandlerConfig struct {
	MaxConnections  int64
	EventsPerSecond float64
	AllowedOrigins  []string
}

// WebSocketHandler upgrades /ws requests and runs one read and one write pump
// per connection.
type WebSocketHandler struct {
	hub        *Hub
	dispatcher Dispatcher
	cfg        HandlerConfig
	admission  *semaphore.Weighted
	upgrader   gorillawebsocket.Upgrader
	logger     zerolog.Logger

	mu    sync.Mutex
	conns map[*connection]struct{}
}

// NewWebSocketHandler creates a handler bound to the given Hub.
func NewWebSocketHandler(hub *Hub, dispatcher Dispatcher, cfg HandlerConfig, logger zerolog.Logger) *WebSocketHandler {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 10000
	}
	if cfg.EventsPerSecond <= 0 {
		cfg.EventsPerSecond = 20
	}
	h := &WebSocketHandler{
		hub:        hub,
		dispatcher: dispatcher,
		cfg:        cfg,
		admission:  semaphore.NewWeighted(cfg.MaxConnections),
		logger:     logger.With().Str("component", "ws").Logger(),
		conns:      make(map[*connection]struct{}),
	}
	h.upgrader = gorillawebsocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// RegisterRoutes registers the WebSocket endpoint. Authentication middleware
// must run before it.
func (wsh *WebSocketHandler) RegisterRoutes(e *echo.Echo, mw ...echo.MiddlewareFunc) {
	e.GET("/ws", wsh.HandleConnect, mw...)
}

func (wsh *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(wsh.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range wsh.cfg.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// HandleConnect admits the connection, upgrades it and starts the pumps.
func (wsh *WebSocketHandler) HandleConnect(c echo.Context) error {
	id, err := auth.CurrentIdentity(c)
	if err != nil {
		return err
	}
	if !wsh.admission.TryAcquire(1) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "too many live connections")
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		wsh.admission.Release(1)
		// The upgrader has already written the HTTP error.
		wsh.logger.Debug().Err(err).Msg("upgrade failed")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	conn := &connection{
		handler:  wsh,
		ws:       ws,
		identity: id,
		direct:   make(chan []byte, 16),
		joined:   make(chan *Channel, 1),
		done:     make(chan struct{}),
		limiter:  rate.NewLimiter(rate.Limit(wsh.cfg.EventsPerSecond), int(wsh.cfg.EventsPerSecond)+1),
		ctx:      ctx,
		cancel:   cancel,
		logger:   wsh.logger.With().Int64("user_id", id.UserID).Logger(),
	}

	wsh.mu.Lock()
	wsh.conns[conn] = struct{}{}
	wsh.mu.Unlock()

	go conn.writePump()
	go conn.readPump()
	return nil
}

// ConnectionCount returns the number of upgraded connections still open.
func (wsh *WebSocketHandler) ConnectionCount() int {
	wsh.mu.Lock()
	defer wsh.mu.Unlock()
	return len(wsh.conns)
}

// Close terminates every open connection.
func (wsh *WebSocketHandler) Close() {
	wsh.mu.Lock()
	conns := make([]*connection, 0, len(wsh.conns))
	for c := range wsh.conns {
		conns = append(conns, c)
	}
	wsh.mu.Unlock()

	for _, c := range conns {
		c.ws.Close()
	}
}

func (wsh *WebSocketHandler) release(c *connection) {
	wsh.mu.Lock()
	delete(wsh.conns, c)
	wsh.mu.Unlock()
	wsh.admission.Release(1)
}

type connection struct {
	handler  *WebSocketHandler
	ws       *gorillawebsocket.Conn
	identity auth.Identity

	// channel is owned by the read pump; the write pump learns about it
	// through joined.
	channel *Channel
	direct  chan []byte
	joined  chan *Channel
	done    chan struct{}

	limiter *rate.Limiter
	ctx     context.Context
	cancel  context.CancelFunc
	logger  zerolog.Logger
}

func (c *connection) readPump() {
	defer func() {
		c.handler.hub.Unregister(c.channel)
		c.cancel()
		close(c.done)
		c.ws.Close()
		c.handler.release(c)
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if gorillawebsocket.IsUnexpectedCloseError(err, gorillawebsocket.CloseGoingAway, gorillawebsocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Msg("connection closed")
			}
			return
		}

		if !c.limiter.Allow() {
			c.replyError(apperr.KindValidation, "too many events, slow down")
			continue
		}

		ev, err := DecodeInbound(data)
		if err != nil {
			c.replyError(apperr.KindValidation, err.Error())
			continue
		}
		c.handle(ev)
	}
}

func (c *connection) handle(ev Inbound) {
	switch ev.Type {
	case EventJoin:
		if ev.UserID != c.identity.UserID {
			c.replyError(apperr.KindForbidden, "user_id does not match the authenticated user")
			return
		}
		if c.channel == nil {
			c.channel = c.handler.hub.Register(c.identity.UserID)
			c.joined <- c.channel
		}
		c.reply(EventJoined, map[string]interface{}{"user_id": c.identity.UserID, "channel_id": c.channel.ID})

	case EventSendMessage, EventTyping:
		if ev.SenderID != c.identity.UserID {
			c.replyError(apperr.KindForbidden, "sender_id does not match the authenticated user")
			return
		}
		ctx, cancel := context.WithTimeout(c.ctx, eventTimeout)
		err := c.handler.dispatcher.Dispatch(ctx, c.identity, ev)
		cancel()
		if err != nil {
			kind := apperr.KindOf(err)
			msg := err.Error()
			if kind == "" {
				c.logger.Error().Err(err).Str("event", ev.Type).Msg("dispatch failed")
				msg = "internal error"
			}
			c.replyError(kind, msg)
		}
	}
}

func (c *connection) reply(eventType string, data interface{}) {
	payload, err := Encode(eventType, data)
	if err != nil {
		c.logger.Error().Err(err).Msg("encode reply")
		return
	}
	select {
	case c.direct <- payload:
	default:
		c.logger.Debug().Str("event", eventType).Msg("reply dropped")
	}
}

func (c *connection) replyError(kind apperr.Kind, msg string) {
	c.reply(EventError, ErrorData{Kind: string(kind), Error: msg})
}

func (c *connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	var deliveries <-chan []byte
	for {
		select {
		case ch := <-c.joined:
			deliveries = ch.Messages()

		case payload, ok := <-deliveries:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(gorillawebsocket.TextMessage, payload); err != nil {
				c.logWriteErr(err)
				return
			}

		case payload := <-c.direct:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(gorillawebsocket.TextMessage, payload); err != nil {
				c.logWriteErr(err)
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				c.logWriteErr(err)
				return
			}

		case <-c.done:
			return
		}
	}
}

func (c *connection) logWriteErr(err error) {
	if errors.Is(err, gorillawebsocket.ErrCloseSent) {
		return
	}
	c.logger.Debug().Err(err).Msg("write failed")
}
