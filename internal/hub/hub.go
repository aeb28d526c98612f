package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"bikeflow/internal/domain"
	"bikeflow/internal/store"
	"bikeflow/internal/traffic"
)

type Client struct {
	ID         string
	Send       chan []byte
	tiles      map[string]struct{}
	timeFilter int
	mu         sync.RWMutex
}

func NewClient(id string, bufferSize int) *Client {
	return &Client{
		ID:         id,
		Send:       make(chan []byte, bufferSize),
		tiles:      make(map[string]struct{}),
		timeFilter: traffic.NoFilter,
	}
}

func (c *Client) AddTiles(tileIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range tileIDs {
		c.tiles[id] = struct{}{}
	}
}

func (c *Client) RemoveTiles(tileIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range tileIDs {
		delete(c.tiles, id)
	}
}

// GetTiles returns the subscribed tiles in sorted order.
func (c *Client) GetTiles() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tiles := make([]string, 0, len(c.tiles))
	for id := range c.tiles {
		tiles = append(tiles, id)
	}
	sort.Strings(tiles)
	return tiles
}

func (c *Client) SetTimeFilter(timeFilter int) error {
	if !traffic.ValidTimeFilter(timeFilter) {
		return fmt.Errorf("set filter %d: %w", timeFilter, traffic.ErrInvalidTimeFilter)
	}
	c.mu.Lock()
	c.timeFilter = timeFilter
	c.mu.Unlock()
	return nil
}

func (c *Client) TimeFilter() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.timeFilter
}

// SnapshotSource computes station traffic for a set of tiles.
type SnapshotSource interface {
	StationsInTiles(tileIDs []string, timeFilter int) (*store.Snapshot, error)
}

type Metrics interface {
	ClientConnected()
	ClientDisconnected()
	SnapshotSent()
}

type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]struct{}
	tileClients map[string]map[*Client]struct{}

	reload chan string

	src     SnapshotSource
	metrics Metrics
	logger  *slog.Logger
}

func NewHub(src SnapshotSource, metrics Metrics, logger *slog.Logger) *Hub {
	return &Hub{
		clients:     make(map[*Client]struct{}),
		tileClients: make(map[string]map[*Client]struct{}),
		reload:      make(chan string, 1),
		src:         src,
		metrics:     metrics,
		logger:      logger,
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case version := <-h.reload:
			n := h.refreshAll()
			h.logger.Info("dataset reload pushed", "version", version, "clients", n)
		}
	}
}

// Reload schedules a fresh snapshot for every client. Reloads that arrive
// while one is pending collapse into it.
func (h *Hub) Reload(version string) {
	select {
	case h.reload <- version:
	default:
		h.logger.Debug("reload already pending", "version", version)
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.ClientConnected()
	}
	h.logger.Debug("client registered", "client_id", client.ID, "total", total)
}

func (h *Hub) Unregister(client *Client) {
	h.removeClient(client)
}

func (h *Hub) Subscribe(client *Client, tileIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.AddTiles(tileIDs)

	for _, tileID := range tileIDs {
		if h.tileClients[tileID] == nil {
			h.tileClients[tileID] = make(map[*Client]struct{})
		}
		h.tileClients[tileID][client] = struct{}{}
	}
}

func (h *Hub) Unsubscribe(client *Client, tileIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.RemoveTiles(tileIDs)
	h.dropTiles(client, tileIDs)
}

func (h *Hub) dropTiles(client *Client, tileIDs []string) {
	for _, tileID := range tileIDs {
		if h.tileClients[tileID] != nil {
			delete(h.tileClients[tileID], client)
			if len(h.tileClients[tileID]) == 0 {
				delete(h.tileClients, tileID)
			}
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// WatchedTiles is the number of distinct tiles with at least one subscriber.
func (h *Hub) WatchedTiles() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tileClients)
}

type SnapshotMessage struct {
	Type    string          `json:"type"`
	Payload SnapshotPayload `json:"payload"`
}

type SnapshotPayload struct {
	Time     int                 `json:"time"`
	Label    string              `json:"label"`
	AnyTime  bool                `json:"anyTime"`
	Version  string              `json:"version"`
	Scale    traffic.RadiusScale `json:"scale"`
	Stations []*domain.Station   `json:"stations"`
}

type ErrorMessage struct {
	Type    string       `json:"type"`
	Payload ErrorPayload `json:"payload"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// BuildSnapshot encodes the stations in tileIDs with traffic for timeFilter.
func BuildSnapshot(src SnapshotSource, tileIDs []string, timeFilter int) ([]byte, error) {
	snap, err := src.StationsInTiles(tileIDs, timeFilter)
	if err != nil {
		return nil, err
	}
	return json.Marshal(SnapshotMessage{
		Type: "snapshot",
		Payload: SnapshotPayload{
			Time:     timeFilter,
			Label:    traffic.Label(timeFilter),
			AnyTime:  timeFilter == traffic.NoFilter,
			Version:  snap.Version,
			Scale:    snap.Scale,
			Stations: snap.Stations,
		},
	})
}

// PushSnapshot sends the client a snapshot of its current tiles and filter.
func (h *Hub) PushSnapshot(client *Client) error {
	data, err := BuildSnapshot(h.src, client.GetTiles(), client.TimeFilter())
	if err != nil {
		return err
	}
	if h.Send(client, data) && h.metrics != nil {
		h.metrics.SnapshotSent()
	}
	return nil
}

// SendError queues an error message for the client.
func (h *Hub) SendError(client *Client, message string) {
	data, err := json.Marshal(ErrorMessage{Type: "error", Payload: ErrorPayload{Message: message}})
	if err != nil {
		return
	}
	h.Send(client, data)
}

// Send queues data for a registered client without blocking. It reports
// whether the message was queued.
func (h *Hub) Send(client *Client, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.clients[client]; !ok {
		return false
	}
	select {
	case client.Send <- data:
		return true
	default:
		h.logger.Debug("client send buffer full", "client_id", client.ID)
		return false
	}
}

func (h *Hub) refreshAll() int {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	pushed := 0
	for _, client := range clients {
		if len(client.GetTiles()) == 0 {
			continue
		}
		if err := h.PushSnapshot(client); err != nil {
			h.logger.Warn("snapshot failed", "client_id", client.ID, "error", err)
			continue
		}
		pushed++
	}
	return pushed
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()

	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}

	h.dropTiles(client, client.GetTiles())
	delete(h.clients, client)
	close(client.Send)
	total := len(h.clients)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.ClientDisconnected()
	}
	h.logger.Debug("client unregistered", "client_id", client.ID, "total", total)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.Send)
		if h.metrics != nil {
			h.metrics.ClientDisconnected()
		}
	}
	h.clients = make(map[*Client]struct{})
	h.tileClients = make(map[string]map[*Client]struct{})
}
