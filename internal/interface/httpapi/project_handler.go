package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jinford/kb-chat/internal/core/project"
)

// CreateProject は新しいプロジェクトを作成する。
func (h *Handler) CreateProject(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}

	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	p, err := h.projects.Create(c.Request.Context(), project.CreateParams{
		TenantID:    tenantID,
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		h.logger.Error("プロジェクト作成に失敗", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create project"})
		return
	}
	c.JSON(http.StatusCreated, toProjectResponse(p))
}

// ListProjects はテナント配下のプロジェクト一覧を返す。
func (h *Handler) ListProjects(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}

	projects, err := h.projects.List(c.Request.Context(), tenantID)
	if err != nil {
		h.logger.Error("プロジェクト一覧の取得に失敗", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list projects"})
		return
	}

	res := make([]projectResponse, 0, len(projects))
	for _, p := range projects {
		res = append(res, toProjectResponse(p))
	}
	c.JSON(http.StatusOK, res)
}

// GetProject はプロジェクトを1件返す。
func (h *Handler) GetProject(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	projectID, ok := h.pathUUID(c, "projectID")
	if !ok {
		return
	}

	p, err := h.projects.Get(c.Request.Context(), tenantID, projectID)
	if err != nil {
		h.writeProjectError(c, err)
		return
	}
	c.JSON(http.StatusOK, toProjectResponse(p))
}

// DeleteProject はプロジェクトと配下のリソースを削除する。
func (h *Handler) DeleteProject(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	projectID, ok := h.pathUUID(c, "projectID")
	if !ok {
		return
	}

	if err := h.projects.Delete(c.Request.Context(), tenantID, projectID); err != nil {
		h.writeProjectError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetStats はテナント単位の集計情報を返す。
func (h *Handler) GetStats(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}

	stats, err := h.projects.Stats(c.Request.Context(), tenantID)
	if err != nil {
		h.logger.Error("集計情報の取得に失敗", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get stats"})
		return
	}
	c.JSON(http.StatusOK, tenantStatsResponse{
		Projects:      stats.Projects,
		Documents:     stats.Documents,
		Chunks:        stats.Chunks,
		Conversations: stats.Conversations,
	})
}

func (h *Handler) writeProjectError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, project.ErrProjectNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
	case errors.Is(err, project.ErrForbidden):
		// 他テナントのリソースは存在自体を隠す
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
	default:
		h.logger.Error("プロジェクト操作に失敗", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
