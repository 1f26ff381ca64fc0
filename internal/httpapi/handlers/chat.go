package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/zento-ai/zento-server/internal/chat"
	"github.com/zento-ai/zento-server/internal/common"
)

type createChatReq struct {
	Title string `json:"title"`
}

func (h *Handler) CreateChat(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req createChatReq
	_ = c.ShouldBindJSON(&req) // allow empty {}

	created, err := h.ChatSvc.CreateChat(c.Request.Context(), uid, req.Title)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to create chat")
		return
	}

	common.OK(c, created)
}

func (h *Handler) ListChats(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	chats, err := h.ChatSvc.ListChats(c.Request.Context(), uid)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list chats")
		return
	}

	common.OK(c, gin.H{"chats": chats})
}

type renameChatReq struct {
	Title string `json:"title" binding:"required"`
}

func (h *Handler) RenameChat(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req renameChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	if err := h.ChatSvc.RenameChat(c.Request.Context(), uid, c.Param("chat_id"), req.Title); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40004, "chat not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50003, "failed to rename chat")
		return
	}

	common.OK(c, gin.H{"renamed": true})
}

func (h *Handler) DeleteChat(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	if err := h.ChatSvc.DeleteChat(c.Request.Context(), uid, c.Param("chat_id")); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40004, "chat not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50004, "failed to delete chat")
		return
	}

	common.OK(c, gin.H{"deleted": true})
}

func (h *Handler) ListMessages(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	msgs, err := h.ChatSvc.ListMessages(c.Request.Context(), uid, c.Param("chat_id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40004, "chat not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50005, "failed to list messages")
		return
	}

	common.OK(c, gin.H{"messages": msgs})
}

func (h *Handler) DeleteMessage(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	msgID, err := strconv.ParseUint(c.Param("message_id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid message id")
		return
	}

	if err := h.ChatSvc.DeleteMessage(c.Request.Context(), uid, c.Param("chat_id"), msgID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40004, "chat not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50006, "failed to delete message")
		return
	}

	common.OK(c, gin.H{"deleted": true})
}

type sendMessageReq struct {
	ChatID    string `json:"chat_id"`
	Message   string `json:"message" binding:"required"`
	ImageData string `json:"image_data"`
}

// SendMessageStream runs a streaming send and relays model deltas to the
// client as SSE events. An empty chat_id starts a new chat.
func (h *Handler) SendMessageStream(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	target, events, err := h.ChatSvc.Send(c.Request.Context(), uid, req.ChatID, req.Message, req.ImageData)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40004, "chat not found")
			return
		}
		h.Log.Error("send failed", zap.String("user_id", uid), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50007, "failed to send message")
		return
	}

	h.relayStream(c, target.ChatID, events)
}

// Regenerate replaces the last assistant turn with a freshly streamed one.
func (h *Handler) Regenerate(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	chatID := c.Param("chat_id")
	events, err := h.ChatSvc.Regenerate(c.Request.Context(), uid, chatID)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			common.Fail(c, http.StatusNotFound, 40004, "chat not found")
		case errors.Is(err, chat.ErrNoUserMessage):
			common.Fail(c, http.StatusBadRequest, 10007, "nothing to regenerate")
		default:
			common.Fail(c, http.StatusInternalServerError, 50008, "failed to regenerate")
		}
		return
	}

	h.relayStream(c, chatID, events)
}

// CancelStream aborts the chat's in-flight stream.
func (h *Handler) CancelStream(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	// Cancel is a no-op for chats that are idle or not the caller's.
	if _, err := h.ChatSvc.GetChat(c.Request.Context(), uid, c.Param("chat_id")); err != nil {
		common.Fail(c, http.StatusNotFound, 40004, "chat not found")
		return
	}

	h.ChatSvc.CancelStream(c.Param("chat_id"))
	common.OK(c, gin.H{"cancelled": true})
}

// relayStream forwards orchestrator events over an SSE response.
func (h *Handler) relayStream(c *gin.Context, chatID string, events <-chan chat.StreamEvent) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // helpful if behind nginx
	c.Status(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"streaming unsupported\"}\n\n")
		return
	}

	writeJSON := func(event string, payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"json marshal failed\"}\n\n")
			flusher.Flush()
			return
		}
		if event != "" {
			fmt.Fprintf(c.Writer, "event: %s\n", event)
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", string(b))
		flusher.Flush()
	}

	// heartbeat ticker (keeps connections alive)
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				// cancelled stream: channel closed without a terminal event
				return
			}
			switch {
			case ev.Err != nil:
				writeJSON("error", gin.H{
					"type":    "error",
					"chat_id": chatID,
					"message": ev.Err.Error(),
				})
				return
			case ev.Done != nil:
				writeJSON("done", gin.H{
					"type":       "done",
					"chat_id":    chatID,
					"message_id": ev.Done.ID,
					"content":    ev.Done.Content,
				})
				return
			default:
				writeJSON("chunk", gin.H{
					"type":    "chunk",
					"chat_id": chatID,
					"delta":   ev.Delta,
				})
			}

		case <-ticker.C:
			writeJSON("ping", gin.H{
				"type": "ping",
				"ts":   time.Now().Unix(),
			})

		case <-ctx.Done():
			return
		}
	}
}

// SendMessageAsync persists the user message and queues the reply
// generation for the worker.
func (h *Handler) SendMessageAsync(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil || req.ChatID == "" {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	if h.Rabbit == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "async sends unavailable")
		return
	}

	idempoKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(idempoKey) > 128 {
		common.Fail(c, http.StatusBadRequest, 10003, "idempotency key too long")
		return
	}
	var idempoKeyPtr *string
	if idempoKey != "" {
		idempoKeyPtr = &idempoKey
	}

	if err := h.ChatSvc.InsertUserMessage(c.Request.Context(), uid, req.ChatID, req.Message, req.ImageData); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40004, "chat not found")
			return
		}
		h.Log.Error("insert user message failed",
			zap.String("user_id", uid), zap.String("chat_id", req.ChatID), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	jobID, err := common.NewULID()
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	j := &chat.Job{
		ID:             jobID,
		UserID:         uid,
		ChatID:         req.ChatID,
		Prompt:         req.Message,
		IdempotencyKey: idempoKeyPtr,
		Status:         chat.JobQueued,
	}

	j, created, err := h.ChatSvc.CreateJobOrGetExisting(c.Request.Context(), j)
	if err != nil {
		h.Log.Error("create job failed",
			zap.String("user_id", uid), zap.String("chat_id", req.ChatID), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	// Enqueue only when a new job was created
	if created {
		if err := h.Rabbit.PublishJob(c.Request.Context(), j.ID); err != nil {
			h.Log.Error("publish job failed",
				zap.String("job_id", j.ID), zap.Error(err))
			common.Fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
			return
		}
	}

	common.OK(c, gin.H{"job_id": j.ID})
}

func (h *Handler) GetJob(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	jobID := c.Param("job_id")
	if jobID == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "job_id required")
		return
	}

	j, err := h.ChatSvc.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "job not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	if j.UserID != uid {
		// hide existence
		common.Fail(c, http.StatusNotFound, 40402, "job not found")
		return
	}

	common.OK(c, gin.H{
		"job": gin.H{
			"id":                j.ID,
			"chat_id":           j.ChatID,
			"status":            j.Status,
			"result_message_id": j.ResultMessageID,
			"error":             j.Error,
			"created_at":        j.CreatedAt,
			"updated_at":        j.UpdatedAt,
		},
	})
}
