package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lyricsync/internal/display"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// HTTPServer is a display sink for browser overlays. GET /now returns the
// last frame, GET /ws streams frames, POST and DELETE /standby toggle manual
// standby.
type HTTPServer struct {
	addr    string
	control StandbyController
	router  *mux.Router
	srv     *http.Server
	logger  zerolog.Logger

	lastMu sync.RWMutex
	last   []byte

	clientsMu sync.Mutex
	clients   map[*wsClient]struct{}
}

func NewHTTPServer(addr string, control StandbyController) *HTTPServer {
	s := &HTTPServer{
		addr:    addr,
		control: control,
		router:  mux.NewRouter(),
		clients: make(map[*wsClient]struct{}),
		logger:  log.With().Str("component", "http").Logger(),
	}
	s.router.HandleFunc("/now", s.handleNow).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)
	s.router.HandleFunc("/standby", s.handleStandby).Methods(http.MethodPost, http.MethodDelete)
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves in the background.
func (s *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("HTTP server stopped")
		}
	}()
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.clientsMu.Lock()
	for c := range s.clients {
		close(c.send)
		delete(s.clients, c)
	}
	s.clientsMu.Unlock()

	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *HTTPServer) Show(f display.Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode frame")
		return
	}

	s.lastMu.Lock()
	s.last = data
	s.lastMu.Unlock()

	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			// slow client
			close(c.send)
			delete(s.clients, c)
		}
	}
}

func (s *HTTPServer) handleNow(w http.ResponseWriter, r *http.Request) {
	s.lastMu.RLock()
	data := s.last
	s.lastMu.RUnlock()

	if data == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (s *HTTPServer) handleStandby(w http.ResponseWriter, r *http.Request) {
	if s.control == nil {
		http.Error(w, "standby not available", http.StatusServiceUnavailable)
		return
	}

	switch r.Method {
	case http.MethodPost:
		app := s.control.Dismiss()
		s.logger.Info().Str("app", app).Msg("Manual standby")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"app_id": app})
	case http.MethodDelete:
		s.control.Restore()
		s.logger.Info().Msg("Manual standby cleared")
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *HTTPServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, 16)}

	s.clientsMu.Lock()
	s.lastMu.RLock()
	if s.last != nil {
		c.send <- s.last
	}
	s.lastMu.RUnlock()
	s.clients[c] = struct{}{}
	s.clientsMu.Unlock()

	go s.writePump(c)
	s.readPump(c)
}

func (s *HTTPServer) writePump(c *wsClient) {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.logger.Debug().Err(err).Msg("websocket write failed")
			s.drop(c)
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

// readPump discards client messages and notices when the peer goes away.
func (s *HTTPServer) readPump(c *wsClient) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			s.drop(c)
			return
		}
	}
}

func (s *HTTPServer) drop(c *wsClient) {
	s.clientsMu.Lock()
	if _, ok := s.clients[c]; ok {
		close(c.send)
		delete(s.clients, c)
	}
	s.clientsMu.Unlock()
}
