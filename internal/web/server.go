// Package web provides the HTTP status page, a JSON endpoint and a live
// websocket feed of every published message.
package web

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/codegangsta/negroni"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/sweeney/room-sensor/internal/status"
)

// Message is one published telemetry message as sent to websocket clients.
type Message struct {
	Topic     string    `json:"topic"`
	Payload   string    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	tracker    *status.Tracker
	hub        *hub
	logger     *slog.Logger
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The page is served from the device itself on the local network.
	CheckOrigin: func(*http.Request) bool { return true },
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker, logger *slog.Logger) *Server {
	logger = logger.With("component", "web")
	s := &Server{
		tracker: tracker,
		hub:     newHub(logger),
		logger:  logger,
	}

	s.router = mux.NewRouter()
	s.router.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	s.router.HandleFunc("/index.html", s.handleIndex).Methods(http.MethodGet)
	s.router.HandleFunc("/index.json", s.handleJSON).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)

	n := negroni.New(negroni.NewRecovery())
	n.UseHandler(s.router)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           n,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the root handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown closes websocket clients and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.closeAll()
	return s.httpServer.Shutdown(ctx)
}

// Broadcast sends msg to every connected websocket client. Slow clients
// are disconnected rather than allowed to block the caller.
func (s *Server) Broadcast(msg Message) {
	s.hub.broadcast(msg)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		s.logger.Warn("render status page", "error", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	s.hub.serve(conn)
}
