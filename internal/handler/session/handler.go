package session

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/emotrack/backend/internal/analysis/stats"
	"github.com/zhouzirui/emotrack/backend/internal/model/tracking"
	"github.com/zhouzirui/emotrack/backend/pkg/utils"
)

// documentStore is implemented by stores that keep creation and update times.
type documentStore interface {
	ListDocuments(ctx context.Context) ([]tracking.Document, error)
	FindDocument(ctx context.Context, id string) (tracking.Document, bool, error)
}

// Handler 会话存储的 REST 处理器
type Handler struct {
	store      tracking.Store
	normalizer tracking.Normalizer
	listLimit  int
}

// New 创建会话处理器。normalizer 用于提交会话中的事件，listLimit 为列表默认条数。
func New(store tracking.Store, normalizer tracking.Normalizer, listLimit int) *Handler {
	if listLimit <= 0 {
		listLimit = 50
	}
	return &Handler{store: store, normalizer: normalizer, listLimit: listLimit}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Get("/stats", h.handleStats)
		r.Get("/{id}", h.handleGet)
		r.Get("/{id}/detail", h.handleDetail)
		r.Delete("/{id}", h.handleDelete)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := h.listLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			utils.RespondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	docs, err := h.documents(r.Context())
	if err != nil {
		utils.RespondErrorDetail(w, http.StatusInternalServerError, "Error fetching sessions", err)
		return
	}
	if len(docs) > limit {
		docs = docs[:limit]
	}
	utils.RespondJSON(w, http.StatusOK, docs)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.List(r.Context())
	if err != nil {
		utils.RespondErrorDetail(w, http.StatusInternalServerError, "Error fetching statistics", err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, stats.Rollup(sessions))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, ok, err := h.document(r.Context(), id)
	if err != nil {
		utils.RespondErrorDetail(w, http.StatusInternalServerError, "Error fetching session", err)
		return
	}
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "Session not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleDetail(w http.ResponseWriter, r *http.Request) {
	s, ok, err := h.store.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		utils.RespondErrorDetail(w, http.StatusInternalServerError, "Error fetching session", err)
		return
	}
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "Session not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, stats.Detail(s))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var doc tracking.Submission
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		utils.RespondErrorDetail(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !doc.Valid() {
		utils.RespondError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	s := doc.ToSession(h.normalizer)
	if err := h.store.Upsert(r.Context(), s); err != nil {
		utils.RespondErrorDetail(w, http.StatusInternalServerError, "Error creating session", err)
		return
	}

	stored, ok, err := h.document(r.Context(), s.ID)
	if err != nil || !ok {
		stored = tracking.ToDocument(s)
	}
	utils.RespondJSON(w, http.StatusCreated, stored)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	removed, err := h.store.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		utils.RespondErrorDetail(w, http.StatusInternalServerError, "Error deleting session", err)
		return
	}
	if !removed {
		utils.RespondError(w, http.StatusNotFound, "Session not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"message": "Session deleted successfully"})
}

// documents returns every stored session as a document, newest first.
func (h *Handler) documents(ctx context.Context) ([]tracking.Document, error) {
	if ds, ok := h.store.(documentStore); ok {
		docs, err := ds.ListDocuments(ctx)
		if err != nil {
			return nil, err
		}
		sortDocuments(docs)
		return docs, nil
	}

	sessions, err := h.store.List(ctx)
	if err != nil {
		return nil, err
	}
	tracking.SortByStartDesc(sessions)
	docs := make([]tracking.Document, len(sessions))
	for i, s := range sessions {
		docs[i] = tracking.ToDocument(s)
	}
	return docs, nil
}

func (h *Handler) document(ctx context.Context, id string) (tracking.Document, bool, error) {
	if ds, ok := h.store.(documentStore); ok {
		return ds.FindDocument(ctx, id)
	}
	s, ok, err := h.store.FindByID(ctx, id)
	if err != nil || !ok {
		return tracking.Document{}, ok, err
	}
	return tracking.ToDocument(s), true, nil
}

func sortDocuments(docs []tracking.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		a, b := docs[i].StartTime, docs[j].StartTime
		if a == nil || b == nil {
			return a != nil
		}
		return a.After(*b)
	})
}
