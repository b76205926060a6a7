package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/damoang/angple-market/internal/domain"
	"github.com/damoang/angple-market/pkg/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisPubSubChannel = "market:messages"

// EventMessageCreated is pushed to the other participants after a successful append
const EventMessageCreated = "message.created"

// Event represents a real-time event sent via WebSocket
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Hub manages WebSocket clients keyed by user id
type Hub struct {
	clients map[uint64]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *targetedEvent

	mu          sync.RWMutex
	redisClient *redis.Client
	instanceID  string
	ctx         context.Context
	cancel      context.CancelFunc
}

type targetedEvent struct {
	Event  *Event
	UserID uint64
}

// NewHub creates a new Hub. redisClient may be nil for a single instance.
func NewHub(redisClient *redis.Client) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[uint64]map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *targetedEvent, 256),
		redisClient: redisClient,
		instanceID:  uuid.NewString(),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	if h.redisClient != nil {
		go h.subscribeRedis()
	}

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.userID] == nil {
				h.clients[client.userID] = make(map[*Client]bool)
			}
			h.clients[client.userID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg.Event)
			if err != nil {
				continue
			}
			h.mu.Lock()
			for client := range h.clients[msg.UserID] {
				select {
				case client.send <- data:
				default:
					// 느린 클라이언트는 끊는다
					h.removeLocked(client)
				}
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.clients, client.userID)
	}
}

// ClientCount returns the number of open connections for a user
func (h *Hub) ClientCount(userID uint64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// SendToUser sends an event to a specific user (local + Redis publish)
func (h *Hub) SendToUser(userID uint64, event *Event) {
	h.enqueue(&targetedEvent{UserID: userID, Event: event})

	if h.redisClient != nil {
		data, err := json.Marshal(&redisMessage{Origin: h.instanceID, UserID: userID, Event: event})
		if err == nil {
			if err := h.redisClient.Publish(h.ctx, redisPubSubChannel, data).Err(); err != nil {
				logger.GetLogger().Warn().Err(err).Msg("ws redis publish failed")
			}
		}
	}
}

// NotifyMessage pushes a message.created event to each recipient
func (h *Hub) NotifyMessage(recipients []uint64, msg *domain.Message) {
	for _, userID := range recipients {
		h.SendToUser(userID, &Event{Type: EventMessageCreated, Payload: msg})
	}
}

func (h *Hub) enqueue(ev *targetedEvent) {
	select {
	case h.broadcast <- ev:
	case <-h.ctx.Done():
	default:
		logger.GetLogger().Warn().Uint64("user_id", ev.UserID).Msg("ws broadcast queue full, event dropped")
	}
}

type redisMessage struct {
	Event  *Event `json:"event"`
	Origin string `json:"origin"`
	UserID uint64 `json:"user_id"`
}

// subscribeRedis listens for events published by other instances
func (h *Hub) subscribeRedis() {
	pubsub := h.redisClient.Subscribe(h.ctx, redisPubSubChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var rm redisMessage
			if err := json.Unmarshal([]byte(msg.Payload), &rm); err != nil || rm.Origin == h.instanceID {
				continue
			}
			// local only, never re-published
			h.enqueue(&targetedEvent{UserID: rm.UserID, Event: rm.Event})
		case <-h.ctx.Done():
			return
		}
	}
}

// Stop gracefully shuts down the hub
func (h *Hub) Stop() {
	h.cancel()
}
