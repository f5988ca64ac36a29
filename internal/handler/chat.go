package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"vibesession/internal/config"
	"vibesession/internal/domain/models"
	"vibesession/internal/httputil"
	"vibesession/internal/service/chat"
)

// ChatHandler handles the chat send/select/poll surface backing the
// polling client
type ChatHandler struct {
	controller *chat.Controller
	service    *chat.Service
	cfg        *config.Config
	logger     *slog.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(controller *chat.Controller, service *chat.Service, cfg *config.Config, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		controller: controller,
		service:    service,
		cfg:        cfg,
		logger:     logger,
	}
}

type sendMessageRequest struct {
	State chat.ClientChatState `json:"state"`
	Text  string               `json:"text"`
}

func (r sendMessageRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Text, validation.Required, validation.Length(1, 8000)),
	)
}

// SendMessage appends an optimistic user turn, queues save and generation,
// and returns the updated snapshot immediately
// POST /api/chat/send
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userName := httputil.GetUserName(r)

	var req sendMessageRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if err := req.Validate(); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.State.CurrentChatID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "no chat selected")
		return
	}

	state := h.controller.SendMessage(req.State, req.Text, userName)
	httputil.RespondJSON(w, http.StatusOK, state)
}

type selectChatRequest struct {
	ChatID string `json:"chat_id"`
}

// SelectChat queues a history load for the chat and returns a loading snapshot
// POST /api/chat/select
func (h *ChatHandler) SelectChat(w http.ResponseWriter, r *http.Request) {
	userName := httputil.GetUserName(r)

	var req selectChatRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ChatID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "chat_id is required")
		return
	}

	state := h.controller.SelectChat(req.ChatID, userName)
	httputil.RespondJSON(w, http.StatusOK, state)
}

type pollRequest struct {
	State           chat.ClientChatState    `json:"state"`
	Sessions        []models.SessionSummary `json:"sessions"`
	RefreshSessions bool                    `json:"refreshSessions"`
	DeletedChatID   string                  `json:"deletedChatId"`
}

// Poll runs one render-loop tick: merges completed background work into the
// snapshot and tells the client when to poll next
// POST /api/poll
func (h *ChatHandler) Poll(w http.ResponseWriter, r *http.Request) {
	userName := httputil.GetUserName(r)

	var req pollRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.RefreshSessions {
		h.controller.RefreshSessions(userName)
	}
	if req.DeletedChatID != "" {
		req.State = h.controller.ResetIfCurrent(req.State, req.DeletedChatID)
	}

	res := h.controller.Tick(req.State, nil, req.Sessions, userName)
	httputil.RespondJSON(w, http.StatusOK, res)
}

// SearchMessages runs a similarity search over the caller's stored messages
// GET /api/search?q=...&chat_id=...&k=...
func (h *ChatHandler) SearchMessages(w http.ResponseWriter, r *http.Request) {
	userName := httputil.GetUserName(r)

	query := r.URL.Query().Get("q")
	chatID := r.URL.Query().Get("chat_id")
	k := 0
	if raw := r.URL.Query().Get("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httputil.RespondError(w, http.StatusBadRequest, "k must be a positive integer")
			return
		}
		k = parsed
	}

	results, err := h.service.SearchMessages(r.Context(), userName, chatID, query, k)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, results)
}

// clientConfig is the subset of server configuration the polling client needs
type clientConfig struct {
	TickFastMS     int64 `json:"tickFastMs"`
	TickSlowMS     int64 `json:"tickSlowMs"`
	SessionsTickMS int64 `json:"sessionsTickMs"`
	CacheTTLMS     int64 `json:"cacheTtlMs"`
}

// GetConfig returns the client-facing polling configuration
// GET /api/config
func (h *ChatHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, clientConfig{
		TickFastMS:     h.cfg.TickFast.Milliseconds(),
		TickSlowMS:     h.cfg.TickSlow.Milliseconds(),
		SessionsTickMS: h.cfg.SessionsTick.Milliseconds(),
		CacheTTLMS:     h.cfg.CacheTTL.Milliseconds(),
	})
}
