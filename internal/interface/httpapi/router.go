// Package httpapi はナレッジベースサービスのHTTPインターフェースを提供する。
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jinford/kb-chat/internal/core/conversation"
	"github.com/jinford/kb-chat/internal/core/ingestion"
	"github.com/jinford/kb-chat/internal/core/project"
	"github.com/jinford/kb-chat/internal/core/retrieval"
)

// TenantHeader はテナント識別に使うリクエストヘッダ名
const TenantHeader = "X-Tenant-ID"

// Handler はAPIハンドラ群とその依存を保持する。
type Handler struct {
	projects  *project.Service
	documents *ingestion.Service
	retriever *retrieval.Retriever
	engine    *conversation.Engine
	logger    *slog.Logger
}

// NewHandler は新しい Handler を返す。
func NewHandler(
	projects *project.Service,
	documents *ingestion.Service,
	retriever *retrieval.Retriever,
	engine *conversation.Engine,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		projects:  projects,
		documents: documents,
		retriever: retriever,
		engine:    engine,
		logger:    logger,
	}
}

// NewRouter はルーティング済みのginエンジンを返す。
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.GET("/stats", h.GetStats)

		api.POST("/projects", h.CreateProject)
		api.GET("/projects", h.ListProjects)
		api.GET("/projects/:projectID", h.GetProject)
		api.DELETE("/projects/:projectID", h.DeleteProject)

		api.POST("/projects/:projectID/documents", h.CreateDocument)
		api.GET("/projects/:projectID/documents", h.ListDocuments)
		api.POST("/projects/:projectID/documents/process", h.ProcessPendingDocuments)
		api.GET("/projects/:projectID/search", h.Search)

		api.GET("/documents/:documentID", h.GetDocument)
		api.DELETE("/documents/:documentID", h.DeleteDocument)
		api.POST("/documents/:documentID/process", h.ProcessDocument)

		api.POST("/projects/:projectID/conversations", h.CreateConversation)
		api.GET("/projects/:projectID/conversations", h.ListConversations)
		api.GET("/conversations/:conversationID/messages", h.ListMessages)
		api.POST("/conversations/:conversationID/messages", h.SendMessage)
	}

	return r
}

// tenantID はリクエストヘッダからテナントIDを取り出す。
// 不正または欠落の場合はレスポンスを書き込み、falseを返す。
func (h *Handler) tenantID(c *gin.Context) (uuid.UUID, bool) {
	raw := c.GetHeader(TenantHeader)
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": TenantHeader + " header is required"})
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tenant id"})
		return uuid.Nil, false
	}
	return id, true
}

// pathUUID はパスパラメータをUUIDとして取り出す。
func (h *Handler) pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}
