package capture

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	captureService "github.com/zhouzirui/emotrack/backend/internal/service/capture"
	"github.com/zhouzirui/emotrack/backend/pkg/utils"
)

type writePayload struct {
	SessionID string `json:"sessionId"`
	Stored    bool   `json:"stored"`
	Synced    bool   `json:"synced"`
	Error     string `json:"error,omitempty"`
}

// handleStream 以 SSE 推送图表数据点与会话状态变化。
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	p, err := h.hub.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondCaptureError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	updates, unsubscribe := p.Subscribe(128)
	defer unsubscribe()

	utils.SetupSSEHeaders(w)
	ctx := r.Context()
	log.Printf("[sse] opening chart stream for capture=%s", p.ID())

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	utils.SendSSEEvent(w, flusher, "connected", map[string]string{"captureId": p.ID()})

	for {
		select {
		case <-ctx.Done():
			log.Printf("[sse] closing chart stream for capture=%s", p.ID())
			return
		case t := <-ticker.C:
			utils.SendSSEEvent(w, flusher, "heartbeat", map[string]string{
				"time": t.UTC().Format(time.RFC3339),
			})
		case u, ok := <-updates:
			if !ok {
				utils.SendSSEEvent(w, flusher, "end", map[string]string{"captureId": p.ID()})
				return
			}
			sendUpdate(w, flusher, u)
		}
	}
}

func sendUpdate(w http.ResponseWriter, flusher http.Flusher, u captureService.Update) {
	switch u.Type {
	case captureService.UpdatePoint:
		utils.SendSSEEvent(w, flusher, string(u.Type), u.Point)
	case captureService.UpdateWrite:
		payload := writePayload{SessionID: u.SessionID}
		if u.Outcome != nil {
			payload.Stored = u.Outcome.Err == nil
			payload.Synced = u.Outcome.Err == nil && u.Outcome.SyncErr == nil
			if u.Outcome.Err != nil {
				payload.Error = u.Outcome.Err.Error()
			} else if u.Outcome.SyncErr != nil {
				payload.Error = u.Outcome.SyncErr.Error()
			}
		}
		utils.SendSSEEvent(w, flusher, string(u.Type), payload)
	default:
		utils.SendSSEEvent(w, flusher, string(u.Type), u)
	}
}
