package http

import (
	"net/http"
	"strconv"

	"github.com/dkeye/Chat/internal/app/orch"
	"github.com/dkeye/Chat/internal/config"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/dkeye/Chat/internal/logging"
	"github.com/gin-gonic/gin"
)

// MessageHandler is the stateless fallback surface of the delivery pipeline.
type MessageHandler struct {
	orch         *orch.Orchestrator
	defaultLimit int
	maxLimit     int
}

func NewMessageHandler(o *orch.Orchestrator, cfg config.ChatConfig) *MessageHandler {
	h := &MessageHandler{orch: o, defaultLimit: cfg.HistoryDefaultLimit, maxLimit: cfg.HistoryMaxLimit}
	if h.defaultLimit <= 0 {
		h.defaultLimit = 50
	}
	if h.maxLimit < h.defaultLimit {
		h.maxLimit = h.defaultLimit
	}
	return h
}

func (h *MessageHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/messages/:roomId", h.PostMessage)
	r.GET("/messages/:roomId", h.RecentMessages)
	r.GET("/messages/:roomId/history", h.History)
}

type postMessageRequest struct {
	UserID  string `json:"userId"`
	Content string `json:"content"`
	// ClientID lets a client retry a live send that timed out without a second copy.
	ClientID string `json:"clientId,omitempty"`
}

// PostMessage persists and broadcasts exactly like the live send.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, domain.ErrBadPayload)
		return
	}

	roomID := domain.RoomID(c.Param("roomId"))
	msg, err := h.orch.SendFallback(c.Request.Context(), orch.SendRequest{
		RoomID:   roomID,
		SenderID: domain.UserID(req.UserID),
		Content:  req.Content,
		ClientID: req.ClientID,
	})
	if err != nil {
		l := logging.Ctx(c.Request.Context())
		l.Info().Err(err).Str(logging.FieldRoomID, string(roomID)).Str(logging.FieldUserID, req.UserID).Msg("fallback send rejected")
		fail(c, err)
		return
	}
	success(c, http.StatusCreated, msg)
}

func (h *MessageHandler) RecentMessages(c *gin.Context) {
	limit, ok := h.parseLimit(c)
	if !ok {
		return
	}
	msgs, err := h.orch.Recent(c.Request.Context(), domain.RoomID(c.Param("roomId")), limit)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"messages": msgs})
}

// History is membership-aware: userId must belong to the room.
func (h *MessageHandler) History(c *gin.Context) {
	limit, ok := h.parseLimit(c)
	if !ok {
		return
	}
	page, err := h.orch.History(
		c.Request.Context(),
		domain.RoomID(c.Param("roomId")),
		domain.UserID(c.Query("userId")),
		c.Query("cursor"),
		limit,
	)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, page)
}

func (h *MessageHandler) parseLimit(c *gin.Context) (int, bool) {
	limit := h.defaultLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			failure(c, http.StatusBadRequest, "bad_limit", "limit must be a positive integer")
			return 0, false
		}
		limit = min(n, h.maxLimit)
	}
	return limit, true
}
