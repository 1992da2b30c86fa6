package httpapi

import (
	"time"

	"github.com/google/uuid"

	"github.com/jinford/kb-chat/internal/core/conversation"
	"github.com/jinford/kb-chat/internal/core/ingestion"
	"github.com/jinford/kb-chat/internal/core/project"
	"github.com/jinford/kb-chat/internal/core/retrieval"
)

type createProjectRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type projectResponse struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"tenantId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toProjectResponse(p *project.Project) projectResponse {
	return projectResponse{
		ID:          p.ID,
		TenantID:    p.TenantID,
		Name:        p.Name,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
	}
}

type tenantStatsResponse struct {
	Projects      int `json:"projects"`
	Documents     int `json:"documents"`
	Chunks        int `json:"chunks"`
	Conversations int `json:"conversations"`
}

type createDocumentRequest struct {
	Title      string `json:"title" binding:"required"`
	Content    string `json:"content" binding:"required"`
	FileName   string `json:"fileName"`
	SourceType string `json:"sourceType" binding:"required"`
}

type documentResponse struct {
	ID           uuid.UUID `json:"id"`
	ProjectID    uuid.UUID `json:"projectId"`
	Title        string    `json:"title"`
	FileName     string    `json:"fileName,omitempty"`
	SourceType   string    `json:"sourceType"`
	Status       string    `json:"status"`
	ChunkCount   int       `json:"chunkCount"`
	ErrorMessage *string   `json:"errorMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func toDocumentResponse(d *ingestion.Document) documentResponse {
	return documentResponse{
		ID:           d.ID,
		ProjectID:    d.ProjectID,
		Title:        d.Title,
		FileName:     d.FileName,
		SourceType:   string(d.SourceType),
		Status:       string(d.Status),
		ChunkCount:   d.ChunkCount,
		ErrorMessage: d.ErrorMessage,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type processPendingResponse struct {
	Processed  int    `json:"processed"`
	Failed     int    `json:"failed"`
	Skipped    int    `json:"skipped"`
	DurationMs int64  `json:"durationMs"`
	Status     string `json:"status"`
}

type searchResultResponse struct {
	ChunkID       uuid.UUID `json:"chunkId"`
	DocumentID    uuid.UUID `json:"documentId"`
	DocumentTitle string    `json:"documentTitle"`
	Seq           int       `json:"seq"`
	Content       string    `json:"content"`
	Score         float64   `json:"score"`
}

func toSearchResultResponse(s *retrieval.Source) searchResultResponse {
	return searchResultResponse{
		ChunkID:       s.ChunkID,
		DocumentID:    s.DocumentID,
		DocumentTitle: s.DocumentTitle,
		Seq:           s.Seq,
		Content:       s.Content,
		Score:         s.Score,
	}
}

type createConversationRequest struct {
	Title string `json:"title"`
}

type conversationResponse struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"projectId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

func toConversationResponse(c *conversation.Conversation) conversationResponse {
	return conversationResponse{
		ID:        c.ID,
		ProjectID: c.ProjectID,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
	}
}

type sendMessageRequest struct {
	Content string `json:"content" binding:"required"`
	Mode    string `json:"mode" binding:"required"`
}

type messageResponse struct {
	ID             uuid.UUID                `json:"id"`
	ConversationID uuid.UUID                `json:"conversationId"`
	Role           string                   `json:"role"`
	Mode           string                   `json:"mode,omitempty"`
	Content        string                   `json:"content"`
	Sources        []conversation.SourceRef `json:"sources"`
	CreatedAt      time.Time                `json:"createdAt"`
}

func toMessageResponse(m *conversation.Message) messageResponse {
	sources := m.Sources
	if sources == nil {
		sources = []conversation.SourceRef{}
	}
	return messageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Role:           string(m.Role),
		Mode:           string(m.Mode),
		Content:        m.Content,
		Sources:        sources,
		CreatedAt:      m.CreatedAt,
	}
}

// SSEで流す終端イベントのペイロード
type doneEventPayload struct {
	Content string                   `json:"content"`
	Sources []conversation.SourceRef `json:"sources"`
}

type errorEventPayload struct {
	Error string `json:"error"`
}
