package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/tcmartin/promptflow/pkg/logging"
	"github.com/tcmartin/promptflow/pkg/runtime"
)

// Update types sent over an execution stream
const (
	UpdateStepStarted   = "step_started"
	UpdateStepCompleted = "step_completed"
	UpdateStepFailed    = "step_failed"
	UpdateResult        = "result"
	UpdateError         = "error"
	UpdatePong          = "pong"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsMaxPending   = 8
)

// WebSocketManager streams flow executions over WebSocket connections
type WebSocketManager struct {
	upgrader websocket.Upgrader

	// connections maps each open connection to its metadata
	connections map[*websocket.Conn]*ConnectionMetadata
	mu          sync.RWMutex

	// a connection with no pong or message for pongWait is closed
	pingInterval time.Duration
	pongWait     time.Duration

	flowRuntime runtime.FlowRuntime
	logger      logging.Logger
}

// ConnectionMetadata stores metadata about a WebSocket connection
type ConnectionMetadata struct {
	FlowID      string
	ConnectedAt time.Time

	// LastPingAt is when the client last answered a ping
	LastPingAt time.Time
}

// WebSocketMessage is a client request on an execution stream. A message
// without a type is treated as "execute".
type WebSocketMessage struct {
	Type        string `json:"type,omitempty"` // "execute", "ping"
	UserMessage string `json:"user_message,omitempty"`
}

// ExecutionUpdate is a server message on an execution stream
type ExecutionUpdate struct {
	Type        string          `json:"type"`
	ExecutionID string          `json:"execution_id,omitempty"`
	FlowID      string          `json:"flow_id,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	Step        *StepUpdate     `json:"step,omitempty"`
	Result      *runtime.Result `json:"result,omitempty"`
	Error       *ErrorResponse  `json:"error,omitempty"`
}

// StepUpdate describes the step an update refers to
type StepUpdate struct {
	Name       string `json:"step_name"`
	Order      int    `json:"step_order"`
	Index      int    `json:"index"`
	Total      int    `json:"total"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// NewWebSocketManager creates a new WebSocket manager
func NewWebSocketManager(flowRuntime runtime.FlowRuntime, logger logging.Logger) *WebSocketManager {
	return &WebSocketManager{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections:  make(map[*websocket.Conn]*ConnectionMetadata),
		pingInterval: wsPingInterval,
		pongWait:     2 * wsPingInterval,
		flowRuntime:  flowRuntime,
		logger:       logger,
	}
}

// handleExecuteFlowWebSocket upgrades the request and streams executions of the flow
func (s *Server) handleExecuteFlowWebSocket(w http.ResponseWriter, r *http.Request) {
	s.wsManager.HandleWebSocket(w, r, mux.Vars(r)["id"])
}

// wsConn serialises writes to a connection shared by the ping routine and the executor
type wsConn struct {
	*websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) send(update ExecutionUpdate) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.WriteJSON(update)
}

func (c *wsConn) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

// HandleWebSocket handles the connection upgrade and runs one execution per
// client message until the client disconnects
func (wsm *WebSocketManager) HandleWebSocket(w http.ResponseWriter, r *http.Request, flowID string) {
	logger := wsm.logger.WithContext(r.Context()).WithFields(logging.F("flow_id", flowID))

	raw, err := wsm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed", logging.Err(err))
		return
	}
	conn := &wsConn{Conn: raw}

	// the request context of a hijacked connection is never cancelled, so
	// the reader cancels ctx when the client goes away
	ctx, cancel := context.WithCancel(context.Background())
	if requestID, ok := logging.RequestIDFromContext(r.Context()); ok {
		ctx = logging.ContextWithRequestID(ctx, requestID)
	}
	done := make(chan struct{})

	wsm.mu.Lock()
	wsm.connections[raw] = &ConnectionMetadata{
		FlowID:      flowID,
		ConnectedAt: time.Now(),
		LastPingAt:  time.Now(),
	}
	wsm.mu.Unlock()

	defer func() {
		close(done)
		cancel()
		wsm.mu.Lock()
		delete(wsm.connections, raw)
		wsm.mu.Unlock()
		_ = raw.Close()
		logger.Debug("WebSocket connection closed")
	}()

	logger.Debug("WebSocket connection established")

	_ = raw.SetReadDeadline(time.Now().Add(wsm.pongWait))
	raw.SetPongHandler(func(string) error {
		wsm.mu.Lock()
		if meta, exists := wsm.connections[raw]; exists {
			meta.LastPingAt = time.Now()
		}
		wsm.mu.Unlock()
		return raw.SetReadDeadline(time.Now().Add(wsm.pongWait))
	})

	go wsm.pingRoutine(conn, done, cancel)

	executions := make(chan string, wsMaxPending)
	go wsm.readLoop(ctx, conn, cancel, flowID, executions, logger)

	for userMessage := range executions {
		wsm.execute(ctx, conn, cancel, flowID, userMessage)
		if ctx.Err() != nil {
			return
		}
	}
}

// readLoop reads client messages until the connection fails. Execute requests
// are queued for HandleWebSocket; pings and unknown types are answered
// directly. A read error cancels ctx, which aborts a running execution.
func (wsm *WebSocketManager) readLoop(ctx context.Context, conn *wsConn, cancel context.CancelFunc, flowID string, executions chan<- string, logger logging.Logger) {
	defer close(executions)
	defer cancel()

	for {
		var msg WebSocketMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("WebSocket read failed", logging.Err(err))
			}
			return
		}
		// any client traffic shows the connection is alive
		_ = conn.SetReadDeadline(time.Now().Add(wsm.pongWait))

		switch msg.Type {
		case "", "execute":
			select {
			case executions <- msg.UserMessage:
			default:
				_ = conn.send(ExecutionUpdate{
					Type:      UpdateError,
					FlowID:    flowID,
					Timestamp: time.Now(),
					Error:     &ErrorResponse{Error: "too many pending executions", Kind: kindInvalidFormat},
				})
			}
		case "ping":
			_ = conn.send(ExecutionUpdate{Type: UpdatePong, Timestamp: time.Now()})
		default:
			_ = conn.send(ExecutionUpdate{
				Type:      UpdateError,
				FlowID:    flowID,
				Timestamp: time.Now(),
				Error:     &ErrorResponse{Error: "unknown message type: " + msg.Type, Kind: kindInvalidFormat},
			})
		}

		if ctx.Err() != nil {
			return
		}
	}
}

// execute runs the flow once, streaming step updates followed by the result or error
func (wsm *WebSocketManager) execute(ctx context.Context, conn *wsConn, cancel context.CancelFunc, flowID, userMessage string) {
	executionID := uuid.NewString()
	observer := &streamObserver{conn: conn, flowID: flowID, cancel: cancel}

	result, err := wsm.flowRuntime.ExecuteFlow(ctx, flowID, userMessage,
		runtime.WithExecutionID(executionID),
		runtime.WithObserver(observer),
	)

	update := ExecutionUpdate{
		ExecutionID: executionID,
		FlowID:      flowID,
		Timestamp:   time.Now(),
	}
	if err != nil {
		_, kind := classify(err)
		update.Type = UpdateError
		update.Error = &ErrorResponse{Error: err.Error(), Kind: kind}
	} else {
		update.Type = UpdateResult
		update.Result = result
	}

	if err := conn.send(update); err != nil {
		cancel()
	}
}

// pingRoutine sends periodic ping messages to keep connection alive
func (wsm *WebSocketManager) pingRoutine(conn *wsConn, done <-chan struct{}, cancel context.CancelFunc) {
	ticker := time.NewTicker(wsm.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				cancel()
				_ = conn.Close()
				return
			}
		}
	}
}

// GetConnectedClients returns the number of connected clients
func (wsm *WebSocketManager) GetConnectedClients() int {
	wsm.mu.RLock()
	defer wsm.mu.RUnlock()
	return len(wsm.connections)
}

// streamObserver forwards step events to a connection. A failed write
// cancels the execution.
type streamObserver struct {
	conn   *wsConn
	flowID string
	cancel context.CancelFunc
}

func (o *streamObserver) StepStarted(event runtime.StepEvent) {
	o.forward(UpdateStepStarted, event)
}

func (o *streamObserver) StepCompleted(event runtime.StepEvent) {
	o.forward(UpdateStepCompleted, event)
}

func (o *streamObserver) StepFailed(event runtime.StepEvent) {
	o.forward(UpdateStepFailed, event)
}

func (o *streamObserver) forward(updateType string, event runtime.StepEvent) {
	step := &StepUpdate{
		Name:       event.Step,
		Order:      event.Order,
		Index:      event.Index,
		Total:      event.Total,
		Output:     event.Output,
		DurationMS: event.Duration.Milliseconds(),
	}
	if event.Err != nil {
		step.Error = event.Err.Error()
	}

	err := o.conn.send(ExecutionUpdate{
		Type:        updateType,
		ExecutionID: event.ExecutionID,
		FlowID:      o.flowID,
		Timestamp:   time.Now(),
		Step:        step,
	})
	if err != nil {
		o.cancel()
	}
}
