package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"bikeflow/internal/geo"
	"bikeflow/internal/hub"
	"bikeflow/internal/traffic"
)

const (
	clientBufferSize = 64
	writeTimeout     = 5 * time.Second
	pingInterval     = 30 * time.Second
	maxTilesPerMsg   = 512
)

type WSHandler struct {
	hub      *hub.Hub
	tileZoom int
	logger   *slog.Logger
}

// NewWSHandler accepts subscriptions to tiles at tileZoom only.
func NewWSHandler(h *hub.Hub, tileZoom int, logger *slog.Logger) *WSHandler {
	return &WSHandler{hub: h, tileZoom: tileZoom, logger: logger.With("component", "ws_handler")}
}

type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type TilesPayload struct {
	TileIDs []string `json:"tileIds"`
}

type FilterPayload struct {
	Time *int `json:"time"`
}

type PongMessage struct {
	Type string `json:"type"`
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}

	client := hub.NewClient(uuid.New().String(), clientBufferSize)
	h.hub.Register(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writeLoop(ctx, conn, client)

	h.readLoop(ctx, conn, client)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	defer func() {
		h.hub.Unregister(client)
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				h.logger.Debug("websocket read error", "client_id", client.ID, "error", err)
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.hub.SendError(client, "invalid message format")
			continue
		}

		h.handleMessage(client, msg)
	}
}

func (h *WSHandler) handleMessage(client *hub.Client, msg WSMessage) {
	switch msg.Type {
	case "subscribe":
		tiles, ok := h.decodeTiles(client, msg.Payload)
		if !ok {
			return
		}
		h.hub.Subscribe(client, tiles)
		h.pushSnapshot(client)

	case "unsubscribe":
		tiles, ok := h.decodeTiles(client, msg.Payload)
		if !ok {
			return
		}
		h.hub.Unsubscribe(client, tiles)

	case "filter":
		var payload FilterPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Time == nil {
			h.hub.SendError(client, "filter requires a time")
			return
		}
		if err := client.SetTimeFilter(*payload.Time); err != nil {
			h.hub.SendError(client, fmt.Sprintf("invalid time: must be -1 or a minute in [0, %d)", traffic.MinutesPerDay))
			return
		}
		h.pushSnapshot(client)

	case "ping":
		data, _ := json.Marshal(PongMessage{Type: "pong"})
		h.hub.Send(client, data)

	default:
		h.hub.SendError(client, "unknown message type: "+msg.Type)
	}
}

func (h *WSHandler) decodeTiles(client *hub.Client, raw json.RawMessage) ([]string, bool) {
	var payload TilesPayload
	if err := json.Unmarshal(raw, &payload); err != nil || len(payload.TileIDs) == 0 {
		h.hub.SendError(client, "tileIds required")
		return nil, false
	}
	if len(payload.TileIDs) > maxTilesPerMsg {
		h.hub.SendError(client, "too many tiles")
		return nil, false
	}
	for _, id := range payload.TileIDs {
		tile, ok := geo.ParseTileID(id)
		if !ok {
			h.hub.SendError(client, "invalid tile id: "+id)
			return nil, false
		}
		if tile.Z != h.tileZoom {
			h.hub.SendError(client, fmt.Sprintf("tile %s: zoom must be %d", id, h.tileZoom))
			return nil, false
		}
	}
	return payload.TileIDs, true
}

func (h *WSHandler) pushSnapshot(client *hub.Client) {
	if err := h.hub.PushSnapshot(client); err != nil {
		h.logger.Warn("snapshot failed", "client_id", client.ID, "time", client.TimeFilter(), "error", err)
		h.hub.SendError(client, "snapshot unavailable")
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-client.Send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
