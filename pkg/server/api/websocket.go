package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/StrathCole/oracle-exchange/pkg/logging"
	"github.com/StrathCole/oracle-exchange/pkg/metrics"
	"github.com/StrathCole/oracle-exchange/pkg/oracle"
)

// WebSocketServer streams consensus updates to connected clients.
type WebSocketServer struct {
	addr     string
	ledger   *oracle.PriceLedger
	logger   *logging.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*WebSocketClient]bool

	updates chan oracle.ConsensusUpdate

	ctx    context.Context
	cancel context.CancelFunc
}

// WebSocketClient represents a connected WebSocket client.
type WebSocketClient struct {
	conn          *websocket.Conn
	send          chan []byte
	server        *WebSocketServer
	subscribedAll bool
	classes       map[string]bool
	mu            sync.RWMutex
}

// WebSocketMessage represents a client message.
type WebSocketMessage struct {
	Type         string   `json:"type"` // "subscribe", "unsubscribe", "ping"
	AssetClasses []string `json:"asset_classes"`
}

// ConsensusUpdateMessage is sent to clients after every accepted report.
type ConsensusUpdateMessage struct {
	Type       string `json:"type"`
	Timestamp  string `json:"timestamp"`
	AssetClass string `json:"asset_class"`
	Price      string `json:"price,omitempty"`
	Reports    int    `json:"reports"`
	Reporter   string `json:"reporter"`
	Error      string `json:"error,omitempty"`
}

// NewWebSocketServer creates a server subscribed to ledger updates.
func NewWebSocketServer(addr string, ledger *oracle.PriceLedger, logger *logging.Logger) *WebSocketServer {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &WebSocketServer{
		addr:   addr,
		ledger: ledger,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
		clients: make(map[*WebSocketClient]bool),
		updates: make(chan oracle.ConsensusUpdate, 100),
		ctx:     ctx,
		cancel:  cancel,
	}
	ledger.Subscribe(s.updates)
	return s
}

// Handler returns the upgrade handler, mounted at /ws by Start.
func (s *WebSocketServer) Handler() http.Handler {
	return http.HandlerFunc(s.handleWebSocket)
}

// Start serves /ws and broadcasts updates until Stop is called or ctx ends.
func (s *WebSocketServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", s.Handler())

	server := &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go s.Run(ctx)

	s.logger.Info("Starting WebSocket server", "addr", s.addr)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-s.ctx.Done():
	case <-ctx.Done():
	case err := <-errCh:
		s.Stop()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// Stop stops broadcasting and detaches from the ledger.
func (s *WebSocketServer) Stop() {
	s.cancel()
}

// Run forwards ledger updates to clients until Stop is called or ctx ends.
func (s *WebSocketServer) Run(ctx context.Context) {
	defer s.ledger.Unsubscribe(s.updates)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.ctx.Done():
			return
		case update := <-s.updates:
			s.broadcast(update)
		}
	}
}

func (s *WebSocketServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := &WebSocketClient{
		conn:          conn,
		send:          make(chan []byte, 256),
		server:        s,
		subscribedAll: true,
		classes:       make(map[string]bool),
	}

	s.registerClient(client)

	go client.writePump()
	go client.readPump()

	s.logger.Info("New WebSocket client connected", "remote", conn.RemoteAddr())
}

func (s *WebSocketServer) registerClient(client *WebSocketClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client] = true
	metrics.WebSocketClients.Set(float64(len(s.clients)))
}

func (s *WebSocketServer) unregisterClient(client *WebSocketClient) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
		close(client.send)
	}
	metrics.WebSocketClients.Set(float64(len(s.clients)))
}

func (s *WebSocketServer) broadcast(update oracle.ConsensusUpdate) {
	message := ConsensusUpdateMessage{
		Type:       "consensus_update",
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		AssetClass: update.AssetClass,
		Reports:    update.Reports,
		Reporter:   update.Reporter.Hex(),
	}
	if update.Err != nil {
		message.Error = update.Err.Error()
	} else {
		message.Price = update.Price.String()
	}

	data, err := json.Marshal(message)
	if err != nil {
		s.logger.Error("Failed to marshal consensus update", "error", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for client := range s.clients {
		if client.shouldReceive(update.AssetClass) {
			select {
			case client.send <- data:
			default:
				s.logger.Warn("Client send buffer full, skipping update")
			}
		}
	}
}

func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.server.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WebSocketClient) readPump() {
	defer func() {
		c.server.unregisterClient(c)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.Error("WebSocket error", "error", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

func (c *WebSocketClient) handleMessage(data []byte) {
	var msg WebSocketMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.server.logger.Warn("Invalid client message", "error", err)
		return
	}

	switch msg.Type {
	case "subscribe":
		c.subscribe(msg.AssetClasses)
		c.reply("subscribed")
	case "unsubscribe":
		c.unsubscribe(msg.AssetClasses)
		c.reply("unsubscribed")
	case "ping":
		c.reply("pong")
	default:
		c.server.logger.Warn("Unknown message type", "type", msg.Type)
	}
}

// subscribe narrows the stream to the given classes; "*" or none means all.
func (c *WebSocketClient) subscribe(classes []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(classes) == 0 || (len(classes) == 1 && classes[0] == "*") {
		c.subscribedAll = true
		c.classes = make(map[string]bool)
	} else {
		c.subscribedAll = false
		for _, class := range classes {
			c.classes[class] = true
		}
	}
}

func (c *WebSocketClient) unsubscribe(classes []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(classes) == 0 || (len(classes) == 1 && classes[0] == "*") {
		c.subscribedAll = false
		c.classes = make(map[string]bool)
	} else {
		for _, class := range classes {
			delete(c.classes, class)
		}
	}
}

func (c *WebSocketClient) shouldReceive(assetClass string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscribedAll || c.classes[assetClass]
}

func (c *WebSocketClient) reply(kind string) {
	data, _ := json.Marshal(map[string]string{"type": kind})
	select {
	case c.send <- data:
	default:
	}
}
