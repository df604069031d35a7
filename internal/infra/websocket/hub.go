package websocket

import (
	"context"
	"sync"

	"github.com/seiforesti/data-wave-sub013/pkg/logger"
)

const (
	// Max connections per remote address.
	maxConnectionsPerAddr = 10

	// Broadcast buffer size.
	broadcastBufferSize = 256
)

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients map[*Client]bool

	// Connection counts per remote address for rate limiting
	addrConnCounts map[string]int

	// Channel subscriptions: channel -> set of clients
	channels map[string]map[*Client]bool

	broadcast  chan *BroadcastMessage
	register   chan *Client
	unregister chan *Client

	logger *logger.Logger

	// replayFn, when set, supplies messages to send a client right
	// after it subscribes to a channel (buffered event catch-up).
	replayFn ReplayFunc

	mu sync.RWMutex
}

// BroadcastMessage represents a message to broadcast to a channel.
type BroadcastMessage struct {
	Channel string
	Message *Message
}

// ReplayFunc returns catch-up messages for a freshly subscribed channel.
type ReplayFunc func(channel string) []*Message

// NewHub creates a new Hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:        make(map[*Client]bool),
		addrConnCounts: make(map[string]int),
		channels:       make(map[string]map[*Client]bool),
		broadcast:      make(chan *BroadcastMessage, broadcastBufferSize),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		logger:         log,
	}
}

// SetReplayFunc sets the catch-up supplier.
func (h *Hub) SetReplayFunc(fn ReplayFunc) {
	h.replayFn = fn
}

// Run starts the hub's main loop.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("websocket hub started")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("websocket hub stopping")
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			if client.RemoteAddr != "" {
				count := h.addrConnCounts[client.RemoteAddr]
				if count >= maxConnectionsPerAddr {
					h.mu.Unlock()
					h.logger.Warn("connection limit exceeded",
						"remote_addr", client.RemoteAddr,
						"current", count,
						"max", maxConnectionsPerAddr,
					)
					client.Close()
					continue
				}
				h.addrConnCounts[client.RemoteAddr] = count + 1
			}
			h.clients[client] = true
			h.mu.Unlock()

			h.logger.Debug("client registered", "client_id", client.ID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				h.removeClientFromAllChannels(client)
				if client.RemoteAddr != "" {
					if count := h.addrConnCounts[client.RemoteAddr]; count > 0 {
						h.addrConnCounts[client.RemoteAddr] = count - 1
						if h.addrConnCounts[client.RemoteAddr] == 0 {
							delete(h.addrConnCounts, client.RemoteAddr)
						}
					}
				}
			}
			h.mu.Unlock()

			h.logger.Debug("client unregistered", "client_id", client.ID)

		case msg := <-h.broadcast:
			h.broadcastToChannel(msg)
		}
	}
}

// RegisterClient registers a new client.
func (h *Hub) RegisterClient(client *Client) {
	h.register <- client
}

// UnregisterClient unregisters a client.
func (h *Hub) UnregisterClient(client *Client) {
	h.unregister <- client
}

// Broadcast sends a message to all clients subscribed to a channel.
func (h *Hub) Broadcast(channel string, msg *Message) {
	h.broadcast <- &BroadcastMessage{
		Channel: channel,
		Message: msg,
	}
}

// BroadcastEvent is a convenience method to broadcast an event payload.
func (h *Hub) BroadcastEvent(channel string, data any) {
	msg := NewMessage(MessageTypeEvent).
		WithChannel(channel).
		WithData(data)
	h.Broadcast(channel, msg)
}

// validChannel reports whether a channel name is subscribable.
func validChannel(channel string) bool {
	if channel == ChannelEvents {
		return true
	}
	channelType, id := ParseChannel(channel)
	return channelType == ChannelTypeRun && id != ""
}

// subscribeToChannel adds a client to a channel (internal use).
func (h *Hub) subscribeToChannel(client *Client, channel string) {
	h.mu.Lock()
	if h.channels[channel] == nil {
		h.channels[channel] = make(map[*Client]bool)
	}
	h.channels[channel][client] = true
	h.mu.Unlock()

	if h.replayFn != nil {
		for _, msg := range h.replayFn(channel) {
			_ = client.SendMessage(msg)
		}
	}
}

// unsubscribeFromChannel removes a client from a channel (internal use).
func (h *Hub) unsubscribeFromChannel(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.channels[channel]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.channels, channel)
		}
	}
}

// broadcastToChannel sends a message to all clients subscribed to a channel.
func (h *Hub) broadcastToChannel(msg *BroadcastMessage) {
	h.mu.RLock()
	clients, ok := h.channels[msg.Channel]
	if !ok || len(clients) == 0 {
		h.mu.RUnlock()
		return
	}

	clientList := make([]*Client, 0, len(clients))
	for client := range clients {
		clientList = append(clientList, client)
	}
	h.mu.RUnlock()

	for _, client := range clientList {
		if err := client.SendMessage(msg.Message); err != nil {
			h.logger.Debug("failed to send message to client",
				"client_id", client.ID,
				"channel", msg.Channel,
				"error", err,
			)
		}
	}
}

// removeClientFromAllChannels removes a client from all channel subscriptions.
func (h *Hub) removeClientFromAllChannels(client *Client) {
	for channel, clients := range h.channels {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.channels, channel)
		}
	}
}

// closeAllClients closes all client connections.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
	h.channels = make(map[string]map[*Client]bool)
}

// Stats contains hub statistics.
type Stats struct {
	TotalClients   int            `json:"total_clients"`
	TotalChannels  int            `json:"total_channels"`
	ChannelClients map[string]int `json:"channel_clients"`
}

// GetStats returns hub statistics.
func (h *Hub) GetStats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	channelStats := make(map[string]int)
	for channel, clients := range h.channels {
		channelStats[channel] = len(clients)
	}

	return Stats{
		TotalClients:   len(h.clients),
		TotalChannels:  len(h.channels),
		ChannelClients: channelStats,
	}
}
