package websocket

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Hub 페르소나별 WebSocket 연결 관리
type Hub struct {
	// 페르소나별 연결 (personaID -> *Client)
	clients map[string]*Client
	mu      sync.RWMutex

	outbound   chan *Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	upgrader       websocket.Upgrader
	allowedOrigins map[string]struct{}

	// 하트비트가 끊기거나 연결이 닫히면 호출 (교체된 연결은 제외)
	onDisconnect func(personaID string)

	logger *zap.Logger
}

// Message WebSocket 메시지
type Message struct {
	PersonaID string      `json:"-"`       // 수신자
	Type      string      `json:"type"`    // 메시지 타입
	Payload   interface{} `json:"payload"` // 메시지 내용
}

// NewHub Hub 생성. allowedOrigins가 비어 있거나 "*"를 포함하면 모든 origin 허용.
func NewHub(allowedOrigins []string, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &Hub{
		clients:        make(map[string]*Client),
		outbound:       make(chan *Message, 256),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		done:           make(chan struct{}),
		allowedOrigins: make(map[string]struct{}, len(allowedOrigins)),
		logger:         logger,
	}
	for _, origin := range allowedOrigins {
		h.allowedOrigins[origin] = struct{}{}
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// OnDisconnect 연결 종료 콜백 설정. Run 전에 호출해야 한다.
func (h *Hub) OnDisconnect(fn func(personaID string)) {
	h.onDisconnect = fn
}

// Run ctx가 끝날 때까지 Hub 실행
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.outbound:
			h.deliver(message)

		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return
		}
	}
}

// registerClient 클라이언트 등록. 같은 페르소나의 기존 연결은 닫는다.
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, exists := h.clients[client.personaID]; exists {
		close(old.send)
		h.logger.Info("Replaced existing WebSocket connection",
			zap.String("persona_id", client.personaID))
	}

	h.clients[client.personaID] = client
	h.logger.Info("WebSocket client registered",
		zap.String("persona_id", client.personaID),
		zap.Int("total_clients", len(h.clients)))
}

// unregisterClient 현재 등록된 바로 그 연결일 때만 해제하고 콜백 호출
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	current, exists := h.clients[client.personaID]
	if !exists || current != client {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client.personaID)
	close(client.send)
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("WebSocket client unregistered",
		zap.String("persona_id", client.personaID),
		zap.Int("total_clients", total))

	if h.onDisconnect != nil {
		go h.onDisconnect(client.personaID)
	}
}

func (h *Hub) deliver(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, exists := h.clients[message.PersonaID]
	if !exists {
		return
	}
	select {
	case client.send <- message:
	default:
		h.logger.Warn("Client send channel full",
			zap.String("persona_id", message.PersonaID))
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		close(client.send)
		delete(h.clients, id)
	}
}

// SendToPersona 특정 페르소나에게 메시지 전송 (이 인스턴스에 연결된 경우만)
func (h *Hub) SendToPersona(personaID, msgType string, payload interface{}) {
	select {
	case h.outbound <- &Message{PersonaID: personaID, Type: msgType, Payload: payload}:
	case <-h.done:
	}
}

// IsConnected 이 인스턴스에 연결되어 있는지
func (h *Hub) IsConnected(personaID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[personaID]
	return ok
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.allowedOrigins) == 0 {
		return true
	}
	if _, ok := h.allowedOrigins["*"]; ok {
		return true
	}
	_, ok := h.allowedOrigins[origin]
	return ok
}
