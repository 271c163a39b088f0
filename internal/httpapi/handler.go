// Package httpapi exposes the aggregated chat data over a local HTTP API
// and receives gateway webhooks.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/abda11atar3k/leblebbot/internal/bus"
	"github.com/abda11atar3k/leblebbot/internal/cache"
	"github.com/abda11atar3k/leblebbot/internal/chats"
	"github.com/abda11atar3k/leblebbot/internal/gateway"
	"github.com/abda11atar3k/leblebbot/internal/messages"
	"github.com/abda11atar3k/leblebbot/internal/status"
)

// ChatLister is the slice of the chat aggregator the API consumes.
type ChatLister interface {
	ChatPage(ctx context.Context, limit, offset int, search string, includeBanned bool) ([]chats.Summary, int, error)
}

// MessageReader is the slice of the message merger the API consumes.
type MessageReader interface {
	MessagePage(ctx context.Context, chatID string, limit, page int, refresh bool) (messages.Page, error)
	Media(ctx context.Context, chatID, messageID string, direction messages.Direction) ([]byte, string, error)
}

// Handler serves the local API.
type Handler struct {
	chats    ChatLister
	messages MessageReader
	caches   *cache.Manager
	machine  *status.Machine
	bus      *bus.Bus
	logger   *zap.Logger
}

// NewHandler creates the API handler.
func NewHandler(cl ChatLister, mr MessageReader, caches *cache.Manager, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *Handler {
	return &Handler{chats: cl, messages: mr, caches: caches, machine: machine, bus: b, logger: logger}
}

type chatListResponse struct {
	Items []chats.Summary `json:"items"`
	Total int             `json:"total"`
}

// HandleChats serves GET /chats.
func (h *Handler) HandleChats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := intParam(q.Get("limit"), 0)
	offset := intParam(q.Get("offset"), 0)
	includeBanned := q.Get("include_banned") == "true"

	items, total, err := h.chats.ChatPage(r.Context(), limit, offset, q.Get("search"), includeBanned)
	if err != nil {
		h.upstreamError(w, "list chats", err)
		return
	}
	if items == nil {
		items = []chats.Summary{}
	}
	writeJSON(w, http.StatusOK, chatListResponse{Items: items, Total: total})
}

// HandleMessages serves GET /chats/{jid}/messages.
func (h *Handler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	jid := chi.URLParam(r, "jid")
	q := r.URL.Query()
	limit := intParam(q.Get("limit"), 0)
	page := intParam(q.Get("page"), 1)
	refresh := q.Get("refresh") == "true"

	result, err := h.messages.MessagePage(r.Context(), jid, limit, page, refresh)
	if err != nil {
		h.upstreamError(w, "list messages", err)
		return
	}
	if result.Items == nil {
		result.Items = []messages.Record{}
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleMedia serves GET /media/{direction}/{jid}/{id}, proxying the decoded
// media bytes with their upstream content type.
func (h *Handler) HandleMedia(w http.ResponseWriter, r *http.Request) {
	direction := messages.Direction(chi.URLParam(r, "direction"))
	if direction != messages.Inbound && direction != messages.Outbound {
		writeError(w, http.StatusBadRequest, "direction must be inbound or outbound")
		return
	}
	jid := chi.URLParam(r, "jid")
	id := chi.URLParam(r, "id")

	data, mimetype, err := h.messages.Media(r.Context(), jid, id, direction)
	if err != nil {
		if errors.Is(err, gateway.ErrMediaUnavailable) || errors.Is(err, gateway.ErrNotFound) {
			writeError(w, http.StatusNotFound, "media unavailable")
			return
		}
		h.upstreamError(w, "fetch media", err)
		return
	}
	if mimetype == "" {
		mimetype = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mimetype)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// HandleCacheClear serves POST /cache/clear.
func (h *Handler) HandleCacheClear(w http.ResponseWriter, r *http.Request) {
	h.caches.FlushAll()
	h.publish("cache.flushed", nil)
	h.logger.Info("caches flushed by request")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleHealth serves GET /health.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": string(h.machine.Current()),
	})
}

func (h *Handler) upstreamError(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op+" failed", zap.Error(err))
	if errors.Is(err, gateway.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeError(w, http.StatusBadGateway, "upstream gateway error")
}

func (h *Handler) publish(kind string, payload any) {
	if h.bus == nil {
		return
	}
	h.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
