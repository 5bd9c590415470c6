package capture

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/emotrack/backend/internal/model/tracking"
	captureService "github.com/zhouzirui/emotrack/backend/internal/service/capture"
	"github.com/zhouzirui/emotrack/backend/pkg/utils"
)

// maxEventsBody 限制单次提交的事件请求体大小。
const maxEventsBody = 1 << 20

// Handler 采集相关的 HTTP 处理器
type Handler struct {
	hub      *captureService.Hub
	upgrader websocket.Upgrader
	// stopTimeout 是连接断开后等待管道排空的时间。
	stopTimeout time.Duration
}

// New 创建采集处理器
func New(hub *captureService.Hub) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		stopTimeout: 10 * time.Second,
	}
}

// RegisterRoutes 注册采集相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/capture", func(r chi.Router) {
		r.Post("/", h.handleStart)
		r.Get("/ws", h.handleWebSocket)
		r.Get("/{id}", h.handleStatus)
		r.Delete("/{id}", h.handleStop)
		r.Post("/{id}/events", h.handleEvents)
		r.Post("/{id}/close", h.handleClose)
		r.Get("/{id}/stream", h.handleStream)
	})
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	p, err := h.hub.Start()
	if err != nil {
		respondCaptureError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, map[string]string{"captureId": p.ID()})
}

type statusResponse struct {
	CaptureID string                       `json:"captureId"`
	Stats     captureService.PipelineStats `json:"stats"`
	Current   *tracking.Document           `json:"current"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	p, err := h.hub.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondCaptureError(w, err)
		return
	}
	current, open, err := p.Current(r.Context())
	if err != nil {
		respondCaptureError(w, err)
		return
	}

	resp := statusResponse{CaptureID: p.ID(), Stats: p.Stats()}
	if open {
		doc := tracking.ToDocument(current)
		resp.Current = &doc
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	p, err := h.hub.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondCaptureError(w, err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventsBody))
	if err != nil {
		utils.RespondErrorDetail(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	events, err := tracking.DecodeEvents(body)
	if err != nil {
		respondCaptureError(w, err)
		return
	}

	for _, ev := range events {
		if err := p.Submit(r.Context(), ev); err != nil {
			respondCaptureError(w, err)
			return
		}
	}
	utils.RespondJSON(w, http.StatusAccepted, map[string]int{"accepted": len(events)})
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	p, err := h.hub.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondCaptureError(w, err)
		return
	}
	s, ok, err := p.CloseSession(r.Context())
	if err != nil {
		respondCaptureError(w, err)
		return
	}
	if !ok {
		utils.RespondJSON(w, http.StatusOK, map[string]bool{"closed": false})
		return
	}
	utils.RespondJSON(w, http.StatusOK, tracking.ToDocument(s))
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.stopTimeout)
	defer cancel()

	if err := h.hub.Stop(ctx, chi.URLParam(r, "id")); err != nil {
		respondCaptureError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"stopped": true})
}

// respondCaptureError 把采集错误映射为 HTTP 状态码。
func respondCaptureError(w http.ResponseWriter, err error) {
	var validation *tracking.ValidationError
	switch {
	case errors.As(err, &validation):
		utils.RespondErrorDetail(w, http.StatusBadRequest, "Invalid event payload", err)
	case errors.Is(err, captureService.ErrCaptureNotFound):
		utils.RespondError(w, http.StatusNotFound, "Capture not found")
	case errors.Is(err, captureService.ErrTooManyCaptures):
		utils.RespondErrorDetail(w, http.StatusConflict, "Too many active captures", err)
	case errors.Is(err, captureService.ErrPipelineClosed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		utils.RespondErrorDetail(w, http.StatusServiceUnavailable, "Capture unavailable", err)
	default:
		utils.RespondErrorDetail(w, http.StatusInternalServerError, "Capture failed", err)
	}
}
