package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jinford/kb-chat/internal/core/ingestion"
)

// CreateDocument はドキュメントをPENDING状態で登録する。
// チャンク分割とEmbedding生成は処理エンドポイントが呼ばれるまで行わない。
func (h *Handler) CreateDocument(c *gin.Context) {
	projectID, ok := h.pathUUID(c, "projectID")
	if !ok {
		return
	}

	var req createDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	sourceType, err := ingestion.ParseSourceType(req.SourceType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	doc, err := h.documents.Submit(c.Request.Context(), ingestion.SubmitParams{
		ProjectID:  projectID,
		Title:      req.Title,
		Content:    req.Content,
		FileName:   req.FileName,
		SourceType: sourceType,
	})
	if err != nil {
		h.logger.Error("ドキュメント登録に失敗", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create document"})
		return
	}
	c.JSON(http.StatusCreated, toDocumentResponse(doc))
}

// ListDocuments はプロジェクト配下のドキュメント一覧を返す。
func (h *Handler) ListDocuments(c *gin.Context) {
	projectID, ok := h.pathUUID(c, "projectID")
	if !ok {
		return
	}

	docs, err := h.documents.List(c.Request.Context(), projectID)
	if err != nil {
		h.logger.Error("ドキュメント一覧の取得に失敗", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list documents"})
		return
	}

	res := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		res = append(res, toDocumentResponse(d))
	}
	c.JSON(http.StatusOK, res)
}

// GetDocument はドキュメントを1件返す。ステータスの監視にも使う。
func (h *Handler) GetDocument(c *gin.Context) {
	documentID, ok := h.pathUUID(c, "documentID")
	if !ok {
		return
	}

	doc, err := h.documents.Get(c.Request.Context(), documentID)
	if err != nil {
		if errors.Is(err, ingestion.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return
		}
		h.logger.Error("ドキュメント取得に失敗", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get document"})
		return
	}
	c.JSON(http.StatusOK, toDocumentResponse(doc))
}

// DeleteDocument はドキュメントとそのチャンクを削除する。
func (h *Handler) DeleteDocument(c *gin.Context) {
	documentID, ok := h.pathUUID(c, "documentID")
	if !ok {
		return
	}

	if err := h.documents.Delete(c.Request.Context(), documentID); err != nil {
		if errors.Is(err, ingestion.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return
		}
		h.logger.Error("ドキュメント削除に失敗", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete document"})
		return
	}
	c.Status(http.StatusNoContent)
}

// ProcessDocument はドキュメントのパイプライン処理をバックグラウンドで開始する。
// 受け付けた時点で202を返し、進捗はドキュメントのステータスで追跡する。
func (h *Handler) ProcessDocument(c *gin.Context) {
	documentID, ok := h.pathUUID(c, "documentID")
	if !ok {
		return
	}

	doc, err := h.documents.Get(c.Request.Context(), documentID)
	if err != nil {
		if errors.Is(err, ingestion.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return
		}
		h.logger.Error("ドキュメント取得に失敗", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get document"})
		return
	}

	// リクエストのキャンセルに処理を巻き込まないようコンテキストを切り離す
	ctx := context.WithoutCancel(c.Request.Context())
	go func() {
		if err := h.documents.Process(ctx, documentID); err != nil {
			h.logger.Error("ドキュメント処理に失敗", "documentID", documentID, "error", err)
		}
	}()

	c.JSON(http.StatusAccepted, toDocumentResponse(doc))
}

// ProcessPendingDocuments はプロジェクト配下のPENDINGドキュメントを一括処理する。
// 同期的に完了まで待ち、集計結果を返す。
func (h *Handler) ProcessPendingDocuments(c *gin.Context) {
	projectID, ok := h.pathUUID(c, "projectID")
	if !ok {
		return
	}

	result, err := h.documents.ProcessPending(c.Request.Context(), projectID)
	if err != nil {
		h.logger.Error("一括処理に失敗", "projectID", projectID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process documents"})
		return
	}
	c.JSON(http.StatusOK, processPendingResponse{
		Processed:  result.Processed,
		Failed:     result.Failed,
		Skipped:    result.Skipped,
		DurationMs: result.Duration.Milliseconds(),
		Status:     "completed",
	})
}

// Search はプロジェクトスコープの類似チャンク検索を行う。
func (h *Handler) Search(c *gin.Context) {
	projectID, ok := h.pathUUID(c, "projectID")
	if !ok {
		return
	}

	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}

	k := 0
	if raw := c.Query("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid k"})
			return
		}
		k = parsed
	}

	sources, err := h.retriever.Retrieve(c.Request.Context(), projectID, query, k)
	if err != nil {
		h.logger.Error("検索に失敗", "projectID", projectID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to search"})
		return
	}

	res := make([]searchResultResponse, 0, len(sources))
	for _, s := range sources {
		res = append(res, toSearchResultResponse(s))
	}
	c.JSON(http.StatusOK, res)
}
