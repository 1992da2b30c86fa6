package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jinford/kb-chat/internal/core/conversation"
)

// CreateConversation はプロジェクト配下に新しい会話を作成する。
func (h *Handler) CreateConversation(c *gin.Context) {
	projectID, ok := h.pathUUID(c, "projectID")
	if !ok {
		return
	}

	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	conv, err := h.engine.CreateConversation(c.Request.Context(), projectID, req.Title)
	if err != nil {
		h.logger.Error("会話作成に失敗", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create conversation"})
		return
	}
	c.JSON(http.StatusCreated, toConversationResponse(conv))
}

// ListConversations はプロジェクト配下の会話一覧を返す。
func (h *Handler) ListConversations(c *gin.Context) {
	projectID, ok := h.pathUUID(c, "projectID")
	if !ok {
		return
	}

	convs, err := h.engine.ListConversations(c.Request.Context(), projectID)
	if err != nil {
		h.logger.Error("会話一覧の取得に失敗", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}

	res := make([]conversationResponse, 0, len(convs))
	for _, conv := range convs {
		res = append(res, toConversationResponse(conv))
	}
	c.JSON(http.StatusOK, res)
}

// ListMessages は会話のメッセージを時系列順で返す。
func (h *Handler) ListMessages(c *gin.Context) {
	conversationID, ok := h.pathUUID(c, "conversationID")
	if !ok {
		return
	}

	messages, err := h.engine.ListMessages(c.Request.Context(), conversationID)
	if err != nil {
		if errors.Is(err, conversation.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		h.logger.Error("メッセージ一覧の取得に失敗", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}

	res := make([]messageResponse, 0, len(messages))
	for _, m := range messages {
		res = append(res, toMessageResponse(m))
	}
	c.JSON(http.StatusOK, res)
}

// SendMessage はユーザーメッセージを受け付け、応答をSSEでストリームする。
//
// イベントは delta（増分断片）の列のあと、done（全文と確定ソース）または
// error のどちらか1件で必ず終端する。
func (h *Handler) SendMessage(c *gin.Context) {
	conversationID, ok := h.pathUUID(c, "conversationID")
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	mode, err := conversation.ParseMode(req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	events, err := h.engine.SendMessage(c.Request.Context(), conversation.SendMessageParams{
		ConversationID: conversationID,
		Content:        req.Content,
		Mode:           mode,
	})
	if err != nil {
		if errors.Is(err, conversation.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		ev, ok := <-events
		if !ok {
			return false
		}
		switch ev.Type {
		case conversation.EventDelta:
			c.SSEvent("delta", ev.Delta)
			return true
		case conversation.EventDone:
			sources := ev.Sources
			if sources == nil {
				sources = []conversation.SourceRef{}
			}
			c.SSEvent("done", doneEventPayload{Content: ev.Content, Sources: sources})
			return false
		case conversation.EventError:
			c.SSEvent("error", errorEventPayload{Error: ev.Err.Error()})
			return false
		}
		return false
	})
}
