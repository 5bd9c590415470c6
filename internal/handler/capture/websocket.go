package capture

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhouzirui/emotrack/backend/internal/model/tracking"
	captureService "github.com/zhouzirui/emotrack/backend/internal/service/capture"
	"github.com/zhouzirui/emotrack/backend/internal/storage/remote"
)

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	CaptureID string      `json:"captureId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// wsConn 串行化写操作，gorilla 连接只允许一个并发写者。
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
}

// handleWebSocket 每个连接对应一个采集上下文，连接断开即停止采集。
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	p, err := h.hub.Start()
	if err != nil {
		respondCaptureError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		h.stop(p.ID())
		return
	}
	c := &wsConn{conn: conn}
	defer conn.Close()
	defer h.stop(p.ID())

	log.Printf("[websocket] new capture connection: %s", p.ID())

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	go h.pingLoop(ctx, c)

	updates, unsubscribe := p.Subscribe(64)
	defer unsubscribe()
	go h.forwardOutcomes(ctx, c, p.ID(), updates)

	h.sendInfo(c, p.ID(), "connected", map[string]any{"captureId": p.ID()})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}

		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		h.handleMessage(ctx, c, p, &msg)
	}
}

func (h *Handler) handleMessage(ctx context.Context, c *wsConn, p *captureService.Pipeline, msg *inboundMessage) {
	switch msg.Type {
	case "event", "events":
		events, err := tracking.DecodeEvents(msg.Data)
		if err != nil {
			h.sendError(c, err.Error())
			return
		}
		for _, ev := range events {
			if err := p.Submit(ctx, ev); err != nil {
				h.sendError(c, "event rejected: "+err.Error())
				return
			}
		}
		h.sendInfo(c, p.ID(), "ack", map[string]int{"accepted": len(events)})
	case "close":
		s, ok, err := p.CloseSession(ctx)
		if err != nil {
			h.sendError(c, "close failed: "+err.Error())
			return
		}
		if !ok {
			h.sendInfo(c, p.ID(), "ack", map[string]bool{"closed": false})
			return
		}
		h.sendInfo(c, p.ID(), "session_closed", tracking.ToDocument(s))
	case "abandon":
		s, ok, err := p.Abandon(ctx)
		if err != nil {
			h.sendError(c, "abandon failed: "+err.Error())
			return
		}
		data := map[string]any{"abandoned": ok}
		if ok {
			data["sessionId"] = s.ID
		}
		h.sendInfo(c, p.ID(), "ack", data)
	default:
		h.sendError(c, "unsupported message type: "+msg.Type)
	}
}

// forwardOutcomes 把异步写入结果推送给客户端，只报告失败。
func (h *Handler) forwardOutcomes(ctx context.Context, c *wsConn, captureID string, updates <-chan captureService.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if u.Type != captureService.UpdateWrite || u.Outcome == nil {
				continue
			}
			switch {
			case u.Outcome.Err != nil:
				h.sendError(c, "failed to store session "+u.SessionID+": "+u.Outcome.Err.Error())
			case u.Outcome.SyncErr != nil:
				data := map[string]string{"sessionId": u.SessionID, "message": u.Outcome.SyncErr.Error()}
				var syncErr *remote.SyncError
				if errors.As(u.Outcome.SyncErr, &syncErr) {
					data["op"] = syncErr.Op
				}
				h.sendInfo(c, captureID, "sync_failed", data)
			}
		}
	}
}

func (h *Handler) stop(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), h.stopTimeout)
	defer cancel()
	if err := h.hub.Stop(ctx, id); err != nil && !errors.Is(err, captureService.ErrCaptureNotFound) {
		log.Printf("[websocket] stop capture %s: %v", id, err)
	}
}

func (h *Handler) sendInfo(c *wsConn, captureID, kind string, data any) {
	msg := outgoingMessage{
		Type:      kind,
		CaptureID: captureID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := c.writeJSON(msg); err != nil {
		log.Printf("[websocket] write %s failed: %v", kind, err)
	}
}

func (h *Handler) sendError(c *wsConn, message string) {
	msg := outgoingMessage{
		Type:      "error",
		Data:      map[string]string{"message": message},
		Timestamp: time.Now().Unix(),
	}
	if err := c.writeJSON(msg); err != nil {
		log.Printf("[websocket] write error failed: %v", err)
	}
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(54 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
