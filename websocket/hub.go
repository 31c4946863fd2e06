package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Client represents a connected WebSocket client
type Client struct {
	Hub      *Hub
	ID       uint
	UserType string // "client", "phixer" or "admin"
	Conn     *websocket.Conn
	Send     chan []byte
}

// Hub manages all WebSocket connections and per-job watch lists. It also
// carries in-process subscriptions so the workflow can be observed (and
// tested) without a network connection.
type Hub struct {
	// Registered clients by user ID
	Clients map[uint]*Client

	// JobWatchers maps a job ID to the user IDs watching it
	JobWatchers map[uint]map[uint]bool

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	// Message handlers by message type
	MessageHandlers map[string]MessageHandler

	// in-process subscribers per job
	subscribers map[uint][]chan Message

	log *logrus.Entry
	mu  sync.RWMutex
}

// Message is one realtime event on the wire.
type Message struct {
	Type      string      `json:"type"`
	JobID     uint        `json:"job_id,omitempty"`
	SenderID  uint        `json:"sender_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// MessageHandler handles different types of messages
type MessageHandler func(*Client, *Message) error

// NewHub creates a new WebSocket hub
func NewHub(log *logrus.Logger) *Hub {
	hub := &Hub{
		Clients:         make(map[uint]*Client),
		JobWatchers:     make(map[uint]map[uint]bool),
		Register:        make(chan *Client),
		Unregister:      make(chan *Client),
		MessageHandlers: make(map[string]MessageHandler),
		subscribers:     make(map[uint][]chan Message),
		log:             log.WithField("component", "hub"),
	}

	hub.MessageHandlers["watch"] = hub.handleWatch
	hub.MessageHandlers["unwatch"] = hub.handleUnwatch
	hub.MessageHandlers["ping"] = hub.handlePing

	return hub
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			h.Clients[client.ID] = client
			h.mu.Unlock()
			h.log.WithFields(logrus.Fields{"user_id": client.ID, "type": client.UserType}).Debug("client registered")

		case client := <-h.Unregister:
			h.mu.Lock()
			if _, ok := h.Clients[client.ID]; ok {
				for jobID := range h.JobWatchers {
					delete(h.JobWatchers[jobID], client.ID)
				}
				delete(h.Clients, client.ID)
				close(client.Send)
			}
			h.mu.Unlock()
			h.log.WithField("user_id", client.ID).Debug("client unregistered")
		}
	}
}

// PublishJob pushes an event to every watcher of a job and to in-process
// subscribers. Implements services.Publisher.
func (h *Hub) PublishJob(jobID uint, event string, data interface{}) {
	message := Message{
		Type:      event,
		JobID:     jobID,
		Timestamp: time.Now(),
		Data:      data,
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subscribers[jobID] {
		select {
		case ch <- message:
		default:
			// slow subscriber, drop rather than block the workflow
		}
	}

	watchers := h.JobWatchers[jobID]
	if len(watchers) == 0 {
		return
	}

	payload, err := json.Marshal(&message)
	if err != nil {
		h.log.WithError(err).Warn("failed to marshal job event")
		return
	}
	for userID := range watchers {
		client, exists := h.Clients[userID]
		if !exists {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			h.log.WithField("user_id", userID).Debug("send buffer full, dropping job event")
		}
	}
}

// PushUser sends an event to a single connected user, if present.
// Implements services.Publisher.
func (h *Hub) PushUser(userID uint, event string, data interface{}) {
	h.mu.RLock()
	client, exists := h.Clients[userID]
	h.mu.RUnlock()
	if !exists {
		return
	}

	payload, err := json.Marshal(&Message{
		Type:      event,
		Timestamp: time.Now(),
		Data:      data,
	})
	if err != nil {
		h.log.WithError(err).Warn("failed to marshal user event")
		return
	}

	select {
	case client.Send <- payload:
	default:
		h.log.WithField("user_id", userID).Debug("send buffer full, dropping user event")
	}
}

// Subscribe returns a channel of events for one job plus a cancel function.
// The store stays the source of truth; the stream only signals that a fresh
// read is worthwhile.
func (h *Hub) Subscribe(jobID uint) (<-chan Message, func()) {
	ch := make(chan Message, 16)

	h.mu.Lock()
	h.subscribers[jobID] = append(h.subscribers[jobID], ch)
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.subscribers[jobID]
		for i, sub := range subs {
			if sub == ch {
				h.subscribers[jobID] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
	return ch, cancel
}

// Watch adds a user to a job's watch list.
func (h *Hub) Watch(userID, jobID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.JobWatchers[jobID] == nil {
		h.JobWatchers[jobID] = make(map[uint]bool)
	}
	h.JobWatchers[jobID][userID] = true
}

// Unwatch removes a user from a job's watch list.
func (h *Hub) Unwatch(userID, jobID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.JobWatchers[jobID] != nil {
		delete(h.JobWatchers[jobID], userID)
	}
}

// IsUserConnected checks if a user is currently connected
func (h *Hub) IsUserConnected(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, exists := h.Clients[userID]
	return exists
}

func (h *Hub) handleWatch(client *Client, message *Message) error {
	if message.JobID == 0 {
		return nil
	}
	h.Watch(client.ID, message.JobID)
	return nil
}

func (h *Hub) handleUnwatch(client *Client, message *Message) error {
	if message.JobID == 0 {
		return nil
	}
	h.Unwatch(client.ID, message.JobID)
	return nil
}

func (h *Hub) handlePing(client *Client, message *Message) error {
	payload, err := json.Marshal(&Message{Type: "pong", Timestamp: time.Now()})
	if err != nil {
		return err
	}
	select {
	case client.Send <- payload:
	default:
	}
	return nil
}
