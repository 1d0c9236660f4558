package sse

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Event types pushed to clients; receivers treat them as "re-fetch this entity"
const (
	EventNCRUpdate       = "ncr_update"
	EventHoldPointUpdate = "holdpoint_update"
	EventClaimUpdate     = "claim_update"
)

// Event represents a Server-Sent Event
type Event struct {
	EventType string `json:"event"`
	Data      string `json:"data"`
}

// Client represents a connected SSE client
type Client struct {
	ID        string
	UserID    string
	ProjectID string // empty = all projects
	Events    chan Event
}

// Hub manages all SSE client connections
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
}

// NewHub creates a new SSE Hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// Register adds a new client to the hub
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	h.logger.Debug("sse client registered",
		zap.String("client_id", client.ID), zap.String("user_id", client.UserID), zap.Int("total", len(h.clients)))
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[clientID]; ok {
		close(client.Events)
		delete(h.clients, clientID)
		h.logger.Debug("sse client unregistered", zap.String("client_id", clientID), zap.Int("total", len(h.clients)))
	}
}

// ClientCount connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends an event to every client subscribed to projectID
func (h *Hub) Broadcast(projectID string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.ProjectID != "" && projectID != "" && client.ProjectID != projectID {
			continue
		}
		select {
		case client.Events <- event:
		default:
			h.logger.Warn("sse client buffer full, skipping event", zap.String("client_id", client.ID), zap.String("event", event.EventType))
		}
	}
}

// SendToUser sends to one user's connections only
func (h *Hub) SendToUser(userID string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.UserID != userID {
			continue
		}
		select {
		case client.Events <- event:
		default:
			h.logger.Warn("sse client buffer full, skipping user event", zap.String("client_id", client.ID))
		}
	}
}

type updatePayload struct {
	ProjectID string `json:"project_id"`
	ID        string `json:"id"`
	Action    string `json:"action"`
	Status    string `json:"status,omitempty"`
	Version   int    `json:"version,omitempty"`
}

func (h *Hub) publish(eventType, projectID, id, action, status string, version int) {
	data, _ := json.Marshal(updatePayload{ProjectID: projectID, ID: id, Action: action, Status: status, Version: version})
	h.Broadcast(projectID, Event{EventType: eventType, Data: string(data)})
	h.logger.Debug("sse published", zap.String("event", eventType), zap.String("id", id), zap.String("action", action))
}

// PublishNCRUpdate NCR changed
func (h *Hub) PublishNCRUpdate(projectID, ncrID, action, status string, version int) {
	h.publish(EventNCRUpdate, projectID, ncrID, action, status, version)
}

// PublishHoldPointUpdate hold point changed
func (h *Hub) PublishHoldPointUpdate(projectID, holdPointID, action, status string, version int) {
	h.publish(EventHoldPointUpdate, projectID, holdPointID, action, status, version)
}

// PublishClaimUpdate claim changed
func (h *Hub) PublishClaimUpdate(projectID, claimID, action, status string, version int) {
	h.publish(EventClaimUpdate, projectID, claimID, action, status, version)
}
