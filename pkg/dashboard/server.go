// Package dashboard mirrors the network table over HTTP and websockets so a
// browser can watch the characterization run and switch robot modes.
package dashboard

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/gorilla/websocket"

	"github.com/wpilibsuite/frc-characterization/pkg/characterize"
	"github.com/wpilibsuite/frc-characterization/pkg/nt"
)

const (
	sendBuffer   = 64
	writeTimeout = time.Second
)

// Update is one key change pushed to websocket clients.
type Update struct {
	Key   string   `json:"key"`
	Value nt.Value `json:"value"`
}

// Table is the network table view the dashboard needs.
type Table interface {
	nt.Table
	nt.Snapshotter
}

type client struct {
	conn *websocket.Conn
	send chan Update
}

// Server fans table updates out to websocket clients.
type Server struct {
	table    Table
	logf     func(format string, args ...any)
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// New creates a server and subscribes it to every key of the table.
func New(table Table, logf func(format string, args ...any)) *Server {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	s := &Server{
		table: table,
		logf:  logf,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
	table.AddListener("/", s.broadcast)
	return s
}

// Router returns the HTTP routes:
//
//	GET  /api/values       every key and value
//	GET  /api/values/*     one key
//	POST /api/mode         {"mode": "auto"} sets the control word
//	POST /api/autospeed    {"value": 0.5} sets the autospeed
//	GET  /ws               websocket stream of Update messages
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/values", s.handleValues)
		r.Get("/values/*", s.handleValue)
		r.Post("/mode", s.handleMode)
		r.Post("/autospeed", s.handleAutoSpeed)
	})
	r.Get("/ws", s.handleWS)
	return r
}

func (s *Server) handleValues(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.table.Snapshot())
}

func (s *Server) handleValue(w http.ResponseWriter, r *http.Request) {
	key := "/" + strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	v, ok := s.table.Snapshot()[key]
	if !ok {
		render.Render(w, r, ErrNotFound)
		return
	}
	render.JSON(w, r, Update{Key: key, Value: v})
}

// ModePayload selects a robot mode by name.
type ModePayload struct {
	Mode string `json:"mode"`
	mode characterize.Mode
}

func (p *ModePayload) Bind(r *http.Request) error {
	m, err := characterize.ParseMode(p.Mode)
	if err != nil {
		return err
	}
	p.mode = m
	return nil
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	data := &ModePayload{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	word := characterize.ControlWord(data.mode)
	s.table.SetNumber(nt.ControlWordKey, float64(word))
	s.logf("Dashboard set mode %s", data.mode)
	render.JSON(w, r, Update{Key: nt.ControlWordKey, Value: nt.NumberValue(float64(word))})
}

// NumberPayload carries one number.
type NumberPayload struct {
	Value *float64 `json:"value"`
}

func (p *NumberPayload) Bind(r *http.Request) error {
	if p.Value == nil {
		return errors.New("missing value")
	}
	if *p.Value < -1 || *p.Value > 1 {
		return errors.New("value must be within [-1, 1]")
	}
	return nil
}

func (s *Server) handleAutoSpeed(w http.ResponseWriter, r *http.Request) {
	data := &NumberPayload{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	s.table.SetNumber(nt.AutoSpeedKey, *data.Value)
	render.JSON(w, r, Update{Key: nt.AutoSpeedKey, Value: nt.NumberValue(*data.Value)})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logf("upgrade: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan Update, sendBuffer)}
	for key, v := range s.table.Snapshot() {
		select {
		case c.send <- Update{Key: key, Value: v}:
		default:
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	go s.writeLoop(c)

	// Clients only listen; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.remove(c)
}

func (s *Server) writeLoop(c *client) {
	for u := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteJSON(u); err != nil {
			s.logf("websocket write: %v", err)
			c.conn.Close()
			s.remove(c)
			for range c.send {
			}
			return
		}
	}
	c.conn.Close()
}

func (s *Server) remove(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
}

// broadcast queues an update for every client. Slow clients miss updates.
func (s *Server) broadcast(key string, v nt.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- Update{Key: key, Value: v}:
		default:
		}
	}
}

// Clients returns the number of connected websocket clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close disconnects every client.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
	}
	return nil
}
