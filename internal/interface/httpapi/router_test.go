package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/kb-chat/internal/core/conversation"
	"github.com/jinford/kb-chat/internal/core/ingestion"
	"github.com/jinford/kb-chat/internal/core/ingestion/chunk"
	"github.com/jinford/kb-chat/internal/core/project"
	"github.com/jinford/kb-chat/internal/core/retrieval"
	"github.com/jinford/kb-chat/internal/infra/memory"
)

type fixedEmbedder struct{}

func (e *fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (e *fixedEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0, 0}
	}
	return vectors, nil
}

func (e *fixedEmbedder) MaxBatchSize() int { return 100 }
func (e *fixedEmbedder) Dimension() int    { return 3 }
func (e *fixedEmbedder) ModelName() string { return "fixed" }

type fixedGenerator struct{}

func (g *fixedGenerator) GenerateStream(ctx context.Context, prompt string, onDelta func(delta string) error) (string, error) {
	if err := onDelta("回答です。"); err != nil {
		return "", err
	}
	return "回答です。", nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *memory.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	embedder := &fixedEmbedder{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	chunker, err := chunk.NewTextChunker(nil)
	require.NoError(t, err)

	projects := project.NewService(store, project.WithLogger(logger))
	documents := ingestion.NewService(store, embedder, chunker, ingestion.WithLogger(logger))
	retriever := retrieval.NewRetriever(store, embedder, retrieval.WithRetrieverLogger(logger))
	engine := conversation.NewEngine(store, retriever, &fixedGenerator{}, conversation.WithEngineLogger(logger))

	h := NewHandler(projects, documents, retriever, engine, logger)
	return NewRouter(h), store
}

// closeNotifyRecorder implements http.CloseNotifier, which gin's
// Context.Stream requires from the ResponseWriter.
type closeNotifyRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *closeNotifyRecorder) CloseNotify() <-chan bool { return r.closed }

func doJSON(t *testing.T, router *gin.Engine, method, path, tenant string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tenant != "" {
		req.Header.Set(TenantHeader, tenant)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(&closeNotifyRecorder{ResponseRecorder: w, closed: make(chan bool, 1)}, req)
	return w
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t)
	w := doJSON(t, router, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProjectEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)
	tenant := uuid.NewString()

	// ヘッダなしは400
	w := doJSON(t, router, http.MethodPost, "/api/projects", "", map[string]string{"name": "p"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 作成
	w = doJSON(t, router, http.MethodPost, "/api/projects", tenant, map[string]string{
		"name": "就業規則", "description": "社内規程",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created projectResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "就業規則", created.Name)

	// 一覧は自テナントのみ
	w = doJSON(t, router, http.MethodGet, "/api/projects", tenant, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []projectResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)

	w = doJSON(t, router, http.MethodGet, "/api/projects", uuid.NewString(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var other []projectResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &other))
	assert.Empty(t, other)

	// 他テナントからの取得は404
	w = doJSON(t, router, http.MethodGet, "/api/projects/"+created.ID.String(), uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// 集計
	w = doJSON(t, router, http.MethodGet, "/api/stats", tenant, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats tenantStatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Projects)

	// 削除
	w = doJSON(t, router, http.MethodDelete, "/api/projects/"+created.ID.String(), tenant, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestDocumentLifecycle(t *testing.T) {
	router, _ := newTestRouter(t)
	tenant := uuid.NewString()

	w := doJSON(t, router, http.MethodPost, "/api/projects", tenant, map[string]string{"name": "p"})
	require.Equal(t, http.StatusCreated, w.Code)
	var p projectResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))

	// 登録はPENDINGで返る
	w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/projects/%s/documents", p.ID), "", map[string]string{
		"title":      "休暇規程",
		"content":    "年次有給休暇は20日まで繰り越しできる。",
		"sourceType": "TEXT",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var doc documentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "PENDING", doc.Status)
	assert.Equal(t, 0, doc.ChunkCount)

	// 不正なsourceTypeは400
	w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/projects/%s/documents", p.ID), "", map[string]string{
		"title": "t", "content": "c", "sourceType": "BOGUS",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 一括処理（同期）でREADYになる
	w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/projects/%s/documents/process", p.ID), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var result processPendingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Processed)

	w = doJSON(t, router, http.MethodGet, "/api/documents/"+doc.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ready documentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ready))
	assert.Equal(t, "READY", ready.Status)
	assert.Greater(t, ready.ChunkCount, 0)

	// 検索
	w = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/projects/%s/search?q=%s", p.ID, "休暇"), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var hits []searchResultResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hits))
	require.NotEmpty(t, hits)
	assert.Equal(t, doc.ID, hits[0].DocumentID)

	// クエリなしは400
	w = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/projects/%s/search", p.ID), "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 削除後は404
	w = doJSON(t, router, http.MethodDelete, "/api/documents/"+doc.ID.String(), "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = doJSON(t, router, http.MethodGet, "/api/documents/"+doc.ID.String(), "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConversationEndpoints_StreamedAnswer(t *testing.T) {
	router, _ := newTestRouter(t)
	tenant := uuid.NewString()

	w := doJSON(t, router, http.MethodPost, "/api/projects", tenant, map[string]string{"name": "p"})
	require.Equal(t, http.StatusCreated, w.Code)
	var p projectResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))

	// ドキュメント投入と処理
	w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/projects/%s/documents", p.ID), "", map[string]string{
		"title": "休暇規程", "content": "年次有給休暇は20日まで繰り越しできる。", "sourceType": "TEXT",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/projects/%s/documents/process", p.ID), "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	// 会話作成（ボディ省略可）
	w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/projects/%s/conversations", p.ID), "", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var conv conversationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conv))
	assert.Equal(t, "新しい会話", conv.Title)

	// メッセージ送信はSSEで返る
	w = doJSON(t, router, http.MethodPost, "/api/conversations/"+conv.ID.String()+"/messages", "", map[string]string{
		"content": "有給は何日繰り越せますか", "mode": "KB_ONLY",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")

	body := w.Body.String()
	assert.Contains(t, body, "event:delta")
	assert.Contains(t, body, "event:done")
	assert.NotContains(t, body, "event:error")
	assert.True(t, strings.Index(body, "event:delta") < strings.Index(body, "event:done"))

	// 不正なモードは400
	w = doJSON(t, router, http.MethodPost, "/api/conversations/"+conv.ID.String()+"/messages", "", map[string]string{
		"content": "q", "mode": "BOGUS",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// ターンが永続化されている
	w = doJSON(t, router, http.MethodGet, "/api/conversations/"+conv.ID.String()+"/messages", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var messages []messageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &messages))
	require.Len(t, messages, 2)
	assert.Equal(t, "user", messages[0].Role)
	assert.Equal(t, "assistant", messages[1].Role)
	assert.Equal(t, "回答です。", messages[1].Content)

	// 存在しない会話は404
	w = doJSON(t, router, http.MethodPost, "/api/conversations/"+uuid.NewString()+"/messages", "", map[string]string{
		"content": "q", "mode": "KB_ONLY",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
