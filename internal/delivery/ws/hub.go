package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/user/prober-service/internal/entity"
	"github.com/user/prober-service/internal/usecase"
)

// Envelope types sent to clients.
const (
	TypeLog     = "log"
	TypeStats   = "stats"
	TypeProxies = "proxies"
	TypeResult  = "result"
	TypeStatus  = "status"
)

const (
	broadcastBuffer = 256
	writeWait       = 5 * time.Second
)

// Message is the envelope of every push event.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub fans engine events out to connected websocket clients.
type Hub struct {
	logger     *zap.Logger
	clients    map[*websocket.Conn]struct{}
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mu         sync.Mutex
}

var _ usecase.Notifier = (*Hub)(nil)

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:     logger.With(zap.String("component", "ws_hub")),
		clients:    make(map[*websocket.Conn]struct{}),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes every client.
// It must be called at most once.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for conn := range h.clients {
				_ = conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			return
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = struct{}{}
			h.mu.Unlock()
			h.logger.Info("websocket client registered", zap.String("remote_addr", conn.RemoteAddr().String()))
		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				_ = conn.Close()
				h.logger.Info("websocket client unregistered", zap.String("remote_addr", conn.RemoteAddr().String()))
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					// The read pump unregisters the client.
					h.logger.Warn("websocket write failed", zap.String("remote_addr", conn.RemoteAddr().String()), zap.Error(err))
				}
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) Log(ev entity.LogEvent) { h.publish(TypeLog, ev) }

func (h *Hub) Stats(ev entity.StatsEvent) { h.publish(TypeStats, ev) }

func (h *Hub) Proxies(evs []entity.ProxyEvent) { h.publish(TypeProxies, evs) }

func (h *Hub) Result(rec entity.Record) { h.publish(TypeResult, rec) }

func (h *Hub) Status(state entity.EngineState) { h.publish(TypeStatus, state) }

// publish never blocks; events are dropped when the buffer is full.
func (h *Hub) publish(kind string, data any) {
	msg, err := json.Marshal(Message{Type: kind, Data: data})
	if err != nil {
		h.logger.Error("failed to marshal websocket message", zap.String("type", kind), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- msg:
	default:
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWs upgrades the request and registers the connection with the hub.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade websocket", zap.Error(err))
		return
	}
	select {
	case h.register <- conn:
	case <-h.done:
		_ = conn.Close()
		return
	}

	// Read pump, needed to notice client disconnects.
	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.logger.Warn("unexpected websocket close", zap.Error(err))
				}
				return
			}
		}
	}()
}
