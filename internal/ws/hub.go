package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kbdon7718-ui/fleet-dashboard/internal/mapsurface"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod is the interval for sending pings to peer. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum message size allowed from peer.
	maxMessageSize = 1024

	// sendBufferSize is the number of outbound messages queued per client.
	sendBufferSize = 256
)

var (
	// ErrMountInUse is returned when a view tries to mount on an occupied mount point.
	ErrMountInUse = errors.New("mount point already in use")

	// ErrClientClosed is returned when sending to a client that has gone away.
	ErrClientClosed = errors.New("websocket client closed")

	// ErrSendBufferFull is returned when a client is not draining its queue.
	ErrSendBufferFull = errors.New("websocket send buffer full")
)

// Client is a single mounted view connected over WebSocket.
type Client struct {
	Conn    *websocket.Conn
	MountID string
	Send    chan []byte

	mu     sync.Mutex
	closed bool
}

// NewClient wraps a connection for the given mount point.
func NewClient(conn *websocket.Conn, mountID string) *Client {
	return &Client{
		Conn:    conn,
		MountID: mountID,
		Send:    make(chan []byte, sendBufferSize),
	}
}

// SendFrame implements mapsurface.FrameSink.
func (c *Client) SendFrame(f mapsurface.Frame) error {
	return c.SendJSON(f)
}

// SendJSON queues v for delivery to the view.
func (c *Client) SendJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal websocket message: %w", err)
	}
	return c.enqueue(data)
}

func (c *Client) enqueue(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.Send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// close stops the write pump. Safe to call more than once.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// Hub keeps one client per mount point.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client // mountID -> client
	logger  *zap.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// Register claims the client's mount point.
func (h *Hub) Register(client *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.MountID]; ok {
		return ErrMountInUse
	}
	h.clients[client.MountID] = client

	h.logger.Debug("client registered", zap.String("mount_id", client.MountID))
	return nil
}

// Unregister releases the client's mount point and stops its write pump.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if current, ok := h.clients[client.MountID]; ok && current == client {
		delete(h.clients, client.MountID)
	}
	h.mu.Unlock()

	client.close()

	h.logger.Debug("client unregistered", zap.String("mount_id", client.MountID))
}

// InUse reports whether a view is mounted on mountID.
func (h *Hub) InUse(mountID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[mountID]
	return ok
}

// Notify sends a toast notice to the view on mountID.
func (h *Hub) Notify(mountID string, n Notice) error {
	h.mu.RLock()
	client, ok := h.clients[mountID]
	h.mu.RUnlock()

	if !ok {
		return ErrClientClosed
	}
	return client.SendJSON(n)
}

// Broadcast sends a toast notice to every mounted view.
func (h *Hub) Broadcast(n Notice) {
	data, err := json.Marshal(n)
	if err != nil {
		h.logger.Error("failed to marshal notice", zap.Error(err))
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.enqueue(data); err != nil {
			h.logger.Warn("dropping notice for client",
				zap.String("mount_id", c.MountID),
				zap.Error(err),
			)
		}
	}
}

// MountIDs returns the occupied mount points in sorted order.
func (h *Hub) MountIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
