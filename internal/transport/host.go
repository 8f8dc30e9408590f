package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pitabwire/coreitems/internal/command"
	"github.com/pitabwire/coreitems/internal/config"
	"github.com/pitabwire/coreitems/internal/interaction"
	"github.com/pitabwire/coreitems/internal/observability"
	"github.com/pitabwire/coreitems/internal/search"
	"github.com/pitabwire/coreitems/model"
)

// Inbound frame types.
const (
	FrameJoin        = "join"
	FrameInteract    = "interact"
	FrameHeld        = "held"
	FrameGrant       = "grant"
	FrameDrop        = "drop"
	FrameLeave       = "leave"
	FrameSearch      = "search"
	FrameSearchInput = "search_input"
	FramePing        = "ping"
)

// Outbound frame types.
const (
	FrameOutcome       = "outcome"
	FrameDropOutcome   = "drop_outcome"
	FrameCounts        = "counts"
	FrameSearchResults = "search_results"
	FrameSearchTimeout = "search_timeout"
	FrameExecute       = "execute"
	FrameError         = "error"
	FramePong          = "pong"
)

const (
	defaultPingInterval = 30 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultReadLimit    = 64 << 10
	defaultSendBuffer   = 64
)

// ErrNoHost is returned when an execution is sent with no host connected.
var ErrNoHost = model.NewUnavailableError("no host connected")

// InboundFrame is a message sent by the host.
type InboundFrame struct {
	Type        string               `json:"type"`
	RequestID   string               `json:"request_id,omitempty"`
	UserID      string               `json:"user_id,omitempty"`
	UserName    string               `json:"user_name,omitempty"`
	Action      string               `json:"action,omitempty"`
	Item        model.ObservedItem   `json:"item,omitempty"`
	Held        []model.ObservedItem `json:"held,omitempty"`
	TargetBlock bool                 `json:"target_block,omitempty"`
	Input       string               `json:"input,omitempty"`
}

// OutboundFrame is a message sent to the host.
type OutboundFrame struct {
	Type        string                   `json:"type"`
	RequestID   string                   `json:"request_id,omitempty"`
	UserID      string                   `json:"user_id,omitempty"`
	Outcome     *interaction.Outcome     `json:"outcome,omitempty"`
	DropOutcome *interaction.DropOutcome `json:"drop_outcome,omitempty"`
	Counts      map[string]int           `json:"counts,omitempty"`
	Search      *search.Result           `json:"search,omitempty"`
	Execution   *command.Execution       `json:"execution,omitempty"`
	Error       *model.ErrorEnvelope     `json:"error,omitempty"`
}

// Hub accepts websocket connections from the host, feeds their frames to the
// interaction service and pushes command executions back. It implements
// command.HostSink.
type Hub struct {
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	writeTimeout time.Duration
	readLimit    int64
	sendBuffer   int

	service *interaction.Service
	prompts *search.Prompts
	metrics *observability.Metrics
	logger  *zap.Logger

	mu    sync.RWMutex
	conns map[string]*hostConn
}

// NewHub creates a Hub. Bind must be called before the hub serves
// connections.
func NewHub(cfg config.HostConfig, metrics *observability.Metrics, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		pingInterval: cfg.PingInterval,
		writeTimeout: cfg.WriteTimeout,
		readLimit:    cfg.ReadLimit,
		sendBuffer:   cfg.SendBuffer,
		metrics:      metrics,
		logger:       logger,
		conns:        make(map[string]*hostConn),
	}
	if h.pingInterval <= 0 {
		h.pingInterval = defaultPingInterval
	}
	if h.writeTimeout <= 0 {
		h.writeTimeout = defaultWriteTimeout
	}
	if h.readLimit <= 0 {
		h.readLimit = defaultReadLimit
	}
	if h.sendBuffer <= 0 {
		h.sendBuffer = defaultSendBuffer
	}

	origins := append([]string(nil), cfg.AllowedOrigins...)
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			return slices.Contains(origins, "*") || slices.Contains(origins, origin)
		},
	}
	return h
}

// Bind attaches the service and search prompts frames are handled with.
func (h *Hub) Bind(service *interaction.Service, prompts *search.Prompts) {
	h.service = service
	h.prompts = prompts
}

// Connections returns the number of connected hosts.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// SendExecution implements command.HostSink. The execution is queued on
// every connected host; it fails only when no host accepted it.
func (h *Hub) SendExecution(_ context.Context, exec command.Execution) error {
	data, err := json.Marshal(OutboundFrame{Type: FrameExecute, UserID: exec.UserID, Execution: &exec})
	if err != nil {
		return err
	}

	h.mu.RLock()
	conns := make([]*hostConn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		return ErrNoHost
	}
	delivered := false
	for _, c := range conns {
		if c.enqueue(data) {
			delivered = true
		} else {
			h.logger.Warn("host send buffer full, dropping execution",
				zap.String("conn_id", c.id),
				zap.String("execution_id", exec.ID),
			)
		}
	}
	if !delivered {
		return errors.New("no host accepted the execution")
	}
	return nil
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		WriteError(w, model.NewUnavailableError("host bridge is not ready"))
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &hostConn{
		id:   uuid.NewString(),
		ws:   ws,
		send: make(chan []byte, h.sendBuffer),
		done: make(chan struct{}),
	}
	h.register(c)
	defer h.unregister(c)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	logger := observability.LoggerFrom(ctx, h.logger).With(zap.String("conn_id", c.id))
	ctx = observability.WithLogger(ctx, logger)
	logger.Info("host connected")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.writeLoop(c)
	}()

	h.readLoop(ctx, c)
	c.close()
	wg.Wait()
	logger.Info("host disconnected")
}

func (h *Hub) register(c *hostConn) {
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
	h.metrics.HostConnected()
}

func (h *Hub) unregister(c *hostConn) {
	h.mu.Lock()
	delete(h.conns, c.id)
	h.mu.Unlock()
	h.metrics.HostDisconnected()
}

// readLoop handles frames one at a time, so events for a user are processed
// in the order the host sent them.
func (h *Hub) readLoop(ctx context.Context, c *hostConn) {
	pongWait := 2 * h.pingInterval
	c.ws.SetReadLimit(h.readLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	logger := observability.LoggerFrom(ctx, h.logger)
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("host connection closed", zap.Error(err))
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		var in InboundFrame
		if err := json.Unmarshal(msg, &in); err != nil {
			c.reply(OutboundFrame{Type: FrameError, Error: model.NewBadRequestError("malformed frame")})
			continue
		}
		c.reply(h.handleFrame(ctx, c, in))
	}
}

func (h *Hub) writeLoop(c *hostConn) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	defer c.ws.Close()

	for {
		select {
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(h.writeTimeout))
			return
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Warn("host write failed", zap.String("conn_id", c.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout)); err != nil {
				return
			}
		}
	}
}

// handleFrame runs one inbound frame and returns the reply. A zero Type
// means no reply is sent.
func (h *Hub) handleFrame(ctx context.Context, c *hostConn, in InboundFrame) OutboundFrame {
	out := OutboundFrame{RequestID: in.RequestID, UserID: in.UserID}
	if in.Type == FramePing {
		out.Type = FramePong
		return out
	}
	if in.UserID == "" {
		return errorFrame(out, model.NewValidationError([]model.FieldError{
			{Field: "user_id", Code: "REQUIRED", Message: "failed required"},
		}))
	}

	switch in.Type {
	case FrameJoin:
		out.Type = FrameCounts
		out.Counts = h.service.Join(ctx, in.UserID, in.UserName, normalizeAll(in.Held))

	case FrameInteract:
		action, ok := model.ParseAction(in.Action)
		if !ok {
			return errorFrame(out, model.NewValidationError([]model.FieldError{
				{Field: "action", Code: "ONEOF", Message: "failed oneof"},
			}))
		}
		outcome := h.service.Interact(ctx, interaction.InteractEvent{
			UserID:      in.UserID,
			UserName:    in.UserName,
			Item:        in.Item.Normalized(),
			Action:      action,
			TargetBlock: in.TargetBlock,
		})
		out.Type = FrameOutcome
		out.Outcome = &outcome

	case FrameHeld:
		out.Type = FrameCounts
		out.Counts = h.service.HeldChanged(ctx, in.UserID, normalizeAll(in.Held))

	case FrameGrant:
		out.Type = FrameCounts
		out.Counts = h.service.ItemGranted(ctx, in.UserID, normalizeAll(in.Held))

	case FrameDrop:
		drop := h.service.Drop(ctx, in.UserID, in.Item.Normalized())
		out.Type = FrameDropOutcome
		out.DropOutcome = &drop

	case FrameLeave:
		h.service.SessionEnded(ctx, in.UserID)
		if h.prompts != nil {
			h.prompts.Cancel(in.UserID)
		}
		return OutboundFrame{}

	case FrameSearch:
		if h.prompts == nil {
			return errorFrame(out, model.NewUnavailableError("catalog search is disabled"))
		}
		user, requestID := in.UserID, in.RequestID
		h.prompts.Begin(user, func() {
			c.reply(OutboundFrame{Type: FrameSearchTimeout, RequestID: requestID, UserID: user})
		})
		return OutboundFrame{}

	case FrameSearchInput:
		if h.prompts == nil {
			return errorFrame(out, model.NewUnavailableError("catalog search is disabled"))
		}
		res, err := h.prompts.Submit(in.UserID, in.Input)
		if err != nil {
			return errorFrame(out, err)
		}
		out.Type = FrameSearchResults
		out.Search = &res

	default:
		return errorFrame(out, model.NewBadRequestError("unknown frame type "+in.Type))
	}
	return out
}

func errorFrame(out OutboundFrame, err error) OutboundFrame {
	var ee *model.ErrorEnvelope
	if !errors.As(err, &ee) {
		ee = model.NewInternalError()
	}
	out.Type = FrameError
	out.Error = ee
	return out
}

// hostConn is one connected host. Only writeLoop writes to ws.
type hostConn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

// enqueue queues data without blocking and reports whether it was accepted.
func (c *hostConn) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *hostConn) reply(f OutboundFrame) {
	if f.Type == "" {
		return
	}
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	c.enqueue(data)
}

func (c *hostConn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

var _ command.HostSink = (*Hub)(nil)
