// Package dashboard provides a local WebSocket server that streams sync
// activity.
//
// The server broadcasts per-entity sync events and pass summaries to
// connected WebSocket clients, and serves a JSON snapshot of the cache
// state for polling clients.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	gosync "sync"
	"time"

	"github.com/coder/websocket"

	"github.com/mschirtzinger/wallasync/internal/store"
	"github.com/mschirtzinger/wallasync/internal/sync"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeSyncEvent indicates a single entity was reconciled
	MessageTypeSyncEvent MessageType = "sync_event"

	// MessageTypeSyncComplete indicates a sync pass finished
	MessageTypeSyncComplete MessageType = "sync_complete"

	// MessageTypeStatus indicates a cache state snapshot
	MessageTypeStatus MessageType = "status"
)

// Message represents a dashboard broadcast message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// SyncCompleteData summarizes a finished pass
type SyncCompleteData struct {
	Full               bool          `json:"full"`
	EntriesPulled      int           `json:"entries_pulled"`
	EntriesPushed      int           `json:"entries_pushed"`
	EntriesCreated     int           `json:"entries_created"`
	EntriesDeleted     int           `json:"entries_deleted"`
	AnnotationsPulled  int           `json:"annotations_pulled"`
	AnnotationsPushed  int           `json:"annotations_pushed"`
	AnnotationsCreated int           `json:"annotations_created"`
	AnnotationsDeleted int           `json:"annotations_deleted"`
	Duration           time.Duration `json:"duration"`
}

// StatusData is a snapshot of the cache state
type StatusData struct {
	Entries     int       `json:"entries"`
	Annotations int       `json:"annotations"`
	Tags        int       `json:"tags"`
	Pending     int       `json:"pending"`
	LastSync    time.Time `json:"last_sync"`
}

// Server manages WebSocket connections and broadcasts sync activity
type Server struct {
	addr     string
	store    *store.Store
	listener net.Listener
	server   *http.Server

	clients   map[*websocket.Conn]bool
	clientsMu gosync.RWMutex

	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     gosync.WaitGroup

	logger *log.Logger
}

// Config holds server configuration
type Config struct {
	// Addr to listen on (default: 127.0.0.1:8846)
	Addr string

	// Logger for server activity (default: log.Default())
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Addr:   "127.0.0.1:8846",
		Logger: log.Default(),
	}
}

// NewServer creates a dashboard server reading snapshots from st
func NewServer(st *store.Store, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Addr == "" {
		config.Addr = "127.0.0.1:8846"
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:      config.Addr,
		store:     st,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    config.Logger,
	}
}

// Start begins the HTTP server and WebSocket handler
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleRoot)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard listening on %s", s.addr)
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	s.logger.Println("Stopping dashboard")

	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.wg.Wait()

	s.logger.Println("Dashboard stopped")
	return nil
}

// NotifySyncEvent broadcasts a single reconciliation outcome. Suitable as
// the sync engine's Notify callback.
func (s *Server) NotifySyncEvent(ev sync.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Printf("Failed to marshal sync event: %v", err)
		return
	}
	s.Broadcast(Message{Type: MessageTypeSyncEvent, Data: data})
}

// NotifySyncComplete broadcasts a pass summary.
func (s *Server) NotifySyncComplete(res *sync.Result) {
	data, err := json.Marshal(SyncCompleteData{
		Full:               res.Full,
		EntriesPulled:      res.EntriesPulled,
		EntriesPushed:      res.EntriesPushed,
		EntriesCreated:     res.EntriesCreated,
		EntriesDeleted:     res.EntriesDeleted,
		AnnotationsPulled:  res.AnnotationsPulled,
		AnnotationsPushed:  res.AnnotationsPushed,
		AnnotationsCreated: res.AnnotationsCreated,
		AnnotationsDeleted: res.AnnotationsDeleted,
		Duration:           res.Duration,
	})
	if err != nil {
		s.logger.Printf("Failed to marshal sync summary: %v", err)
		return
	}
	s.Broadcast(Message{Type: MessageTypeSyncComplete, Data: data})
}

// Broadcast sends a message to all connected clients
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
		return
	default:
		s.logger.Println("Warning: broadcast channel full, dropping message")
	}
}

// broadcastLoop handles message delivery to all clients
func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}

			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("Failed to marshal message: %v", err)
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			// Send outside the read lock to avoid blocking broadcasts
			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()

				if err != nil {
					s.logger.Printf("Failed to send to client: %v", err)
					s.removeClient(conn)
				}
			}
		}
	}
}

// handleWebSocket upgrades HTTP connections to WebSocket
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Printf("Client connected (total: %d)", clientCount)

	// Greet the new client with a current snapshot
	if snapshot, err := s.snapshot(r.Context()); err == nil {
		data, _ := json.Marshal(snapshot)
		welcome, _ := json.Marshal(Message{
			Type:      MessageTypeStatus,
			Timestamp: time.Now(),
			Data:      data,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = conn.Write(ctx, websocket.MessageText, welcome)
		cancel()
	}

	go s.readLoop(conn)
}

// readLoop keeps the connection alive and notices client disconnects
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)

	for {
		_, _, err := conn.Read(s.ctx)
		if err != nil {
			return
		}
		// Client messages are not processed
	}
}

// removeClient safely removes a client connection
func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; exists {
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Client disconnected (total: %d)", clientCount)
	} else {
		s.clientsMu.Unlock()
	}
}

// snapshot builds the current cache state
func (s *Server) snapshot(ctx context.Context) (*StatusData, error) {
	entries, err := s.store.CountEntries(ctx)
	if err != nil {
		return nil, err
	}
	annotations, err := s.store.CountAnnotations(ctx)
	if err != nil {
		return nil, err
	}
	tags, err := s.store.CountTags(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.store.CountPending(ctx)
	if err != nil {
		return nil, err
	}
	lastSync, err := s.store.GetLastSync(ctx)
	if err != nil {
		return nil, err
	}
	return &StatusData{
		Entries:     entries,
		Annotations: annotations,
		Tags:        tags,
		Pending:     pending,
		LastSync:    lastSync,
	}, nil
}

// handleStatus returns the cache state snapshot
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.snapshot(r.Context())
	if err != nil {
		s.logger.Printf("Status snapshot failed: %v", err)
		http.Error(w, "failed to read cache state", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snapshot)
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.clientsMu.RLock()
	clientCount := len(s.clients)
	s.clientsMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"clients": clientCount,
	})
}

// handleRoot returns basic server information
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>wsync Dashboard</title>
</head>
<body>
    <h1>wsync Dashboard</h1>
    <p>WebSocket endpoint: <code>ws://%s/ws</code></p>
    <p>Cache state: <a href="/status">/status</a></p>
    <p>Health check: <a href="/health">/health</a></p>
    <p>Connect a WebSocket client to watch sync activity live.</p>
</body>
</html>`, r.Host)
}

// GetAddr returns the server's listening address
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of connected clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
