package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yegors/co-subtitles/internal/subtitles"
	"github.com/yegors/co-subtitles/pkg/logger"
)

// Message types a viewer may send
const (
	MessageTypeSubscribe   = "subscribe"   // follow one session
	MessageTypeUnsubscribe = "unsubscribe" // follow every session again
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 256
)

// Message is the envelope sent to viewers. Data is a subtitles.SubtitleMessage
// or a subtitles.VoiceMessage.
type Message struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Data      any    `json:"data"`
}

// Client is one connected viewer
type Client struct {
	conn    *websocket.Conn
	send    chan *Message
	server  *Server
	mu      sync.Mutex
	closed  bool
	session string // empty follows every session
}

// Server fans subtitle ticks out to read-only viewers
type Server struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	upgrader   websocket.Upgrader
	logger     *logger.Logger
	mu         sync.RWMutex
	done       chan struct{}
}

// NewServer creates a new viewer hub
func NewServer(log *logger.Logger) *Server {
	return &Server{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, sendBuffer),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: log.Named("web-socket"),
		done:   make(chan struct{}),
	}
}

// Run dispatches registrations and broadcasts until ctx is done
func (s *Server) Run(ctx context.Context) {
	s.logger.Info("Starting WebSocket hub")

	for {
		select {
		case <-ctx.Done():
			close(s.done)
			s.closeAll()
			s.logger.Info("WebSocket hub stopped")
			return

		case client := <-s.register:
			s.mu.Lock()
			s.clients[client] = true
			clientCount := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("Viewer registered", Int("client_count", clientCount))

		case client := <-s.unregister:
			s.mu.Lock()
			s.removeLocked(client)
			clientCount := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("Viewer unregistered", Int("client_count", clientCount))

		case message := <-s.broadcast:
			s.mu.RLock()
			var slow []*Client
			for client := range s.clients {
				if !client.follows(message.SessionID) {
					continue
				}
				select {
				case client.send <- message:
				default:
					slow = append(slow, client)
				}
			}
			s.mu.RUnlock()

			if len(slow) > 0 {
				s.mu.Lock()
				for _, client := range slow {
					s.removeLocked(client)
				}
				s.mu.Unlock()
				s.logger.Debug("Dropped slow viewers", Int("count", len(slow)))
			}
		}
	}
}

// removeLocked drops a client and closes its send channel. s.mu must be held.
func (s *Server) removeLocked(client *Client) {
	if _, ok := s.clients[client]; !ok {
		return
	}
	delete(s.clients, client)
	client.mu.Lock()
	if !client.closed {
		client.closed = true
		close(client.send)
	}
	client.mu.Unlock()
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for client := range s.clients {
		s.removeLocked(client)
	}
}

// ClientCount returns the number of connected viewers
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// HandleConnection upgrades a viewer connection. The optional session query
// parameter restricts the viewer to one session.
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("Handling new WebSocket connection request",
		String("remote_addr", r.RemoteAddr),
		String("user_agent", r.UserAgent()))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection",
			Error(err),
			String("remote_addr", r.RemoteAddr))
		return
	}

	client := &Client{
		conn:    conn,
		send:    make(chan *Message, sendBuffer),
		server:  s,
		session: r.URL.Query().Get("session"),
	}

	select {
	case s.register <- client:
	case <-s.done:
		conn.Close()
		return
	}

	go client.readPump()
	go client.writePump()
}

// Broadcast queues a message for every viewer following its session. It
// never blocks; when the hub is saturated the message is dropped, since the
// next tick supersedes it.
func (s *Server) Broadcast(message *Message) {
	select {
	case s.broadcast <- message:
	default:
		s.logger.Debug("Broadcast queue full, dropping message",
			String("message_type", message.Type),
			String("session_id", message.SessionID))
	}
}

// Presenter returns a subtitles.Presenter that broadcasts one session's
// ticks to viewers
func (s *Server) Presenter(sessionID string) subtitles.Presenter {
	return &presenter{server: s, sessionID: sessionID}
}

type presenter struct {
	server    *Server
	sessionID string
}

func (p *presenter) PresentSubtitles(transcription, translation subtitles.RenderUpdate) error {
	p.server.Broadcast(&Message{
		Type:      subtitles.MessageTypeSubtitle,
		SessionID: p.sessionID,
		Data:      subtitles.NewSubtitleMessage(transcription, translation),
	})
	return nil
}

func (p *presenter) PresentVoice(level float64) error {
	p.server.Broadcast(&Message{
		Type:      subtitles.MessageTypeVoice,
		SessionID: p.sessionID,
		Data:      subtitles.NewVoiceMessage(level),
	})
	return nil
}

func (c *Client) follows(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && (c.session == "" || c.session == sessionID)
}

// Subscribe restricts the client to one session, or all when id is empty
func (c *Client) Subscribe(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = id
}

// readPump handles subscription changes from the viewer
func (c *Client) readPump() {
	defer func() {
		select {
		case c.server.unregister <- c:
		case <-c.server.done:
		}
		c.conn.Close()
	}()

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.server.logger.Error("WebSocket read error", Error(err))
			}
			return
		}

		var message struct {
			Type      string `json:"type"`
			SessionID string `json:"session_id"`
		}
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			c.server.logger.Error("Failed to parse WebSocket message", Error(err))
			continue
		}

		switch message.Type {
		case MessageTypeSubscribe:
			c.Subscribe(message.SessionID)
		case MessageTypeUnsubscribe:
			c.Subscribe("")
		default:
			c.server.logger.Debug("Ignoring viewer message", String("type", message.Type))
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection until
// the hub closes the send channel
func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(message); err != nil {
			c.server.logger.Debug("Failed to write to viewer", Error(err))
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// Import logger functions
var (
	String = logger.String
	Int    = logger.Int
	Error  = logger.Error
)
