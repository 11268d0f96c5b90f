package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"stakebridge/services/bridged/stream"
)

const streamWriteTimeout = 10 * time.Second

type streamFrame struct {
	Cursor     string            `json:"cursor"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	Timestamp  int64             `json:"ts"`
}

// StreamEvents upgrades to a websocket and pushes committed events, replaying
// retained ones after the optional cursor first. A type query parameter
// restricts the stream to one event type.
func (s *Server) StreamEvents(w http.ResponseWriter, r *http.Request) {
	if s.stream == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "event stream disabled"})
		return
	}
	since, err := stream.ParseCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	only := strings.TrimSpace(r.URL.Query().Get("type"))

	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.streamOrigins})
	if err != nil {
		s.logger.Warn("bridged: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := conn.CloseRead(r.Context())
	if err := s.pump(ctx, conn, since, only); err != nil && websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
		s.logger.Warn("bridged: event stream ended", "error", err)
		_ = conn.Close(websocket.StatusInternalError, "stream error")
	}
}

func (s *Server) pump(ctx context.Context, conn *websocket.Conn, since uint64, only string) error {
	updates, backlog, cancel := s.stream.Subscribe(ctx, since)
	defer cancel()

	for _, update := range backlog {
		if err := writeUpdate(ctx, conn, update, only); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeUpdate(ctx, conn, update, only); err != nil {
				return err
			}
		}
	}
}

func writeUpdate(ctx context.Context, conn *websocket.Conn, update stream.Update, only string) error {
	if only != "" && update.Type != only {
		return nil
	}
	data, err := json.Marshal(streamFrame{
		Cursor:     update.Cursor(),
		Type:       update.Type,
		Attributes: update.Attributes,
		Timestamp:  update.Timestamp,
	})
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
