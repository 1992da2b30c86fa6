package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/kb-chat/internal/core/conversation"
	"github.com/jinford/kb-chat/internal/core/ingestion"
)

func makeChunk(docID, projectID uuid.UUID, seq int, vector []float32) *ingestion.Chunk {
	return &ingestion.Chunk{
		ID:         uuid.New(),
		DocumentID: docID,
		ProjectID:  projectID,
		Seq:        seq,
		Content:    "chunk",
		Vector:     vector,
		CreatedAt:  time.Now(),
	}
}

func createReadyDocument(t *testing.T, store *Store, projectID uuid.UUID, title string, vectors ...[]float32) *ingestion.Document {
	t.Helper()
	ctx := context.Background()

	doc, err := store.CreateDocument(ctx, projectID, title, "content", "", ingestion.SourceTypeText)
	require.NoError(t, err)

	acquired, err := store.TryMarkProcessing(ctx, doc.ID)
	require.NoError(t, err)
	require.True(t, acquired)

	chunks := make([]*ingestion.Chunk, 0, len(vectors))
	for i, v := range vectors {
		chunks = append(chunks, makeChunk(doc.ID, projectID, i, v))
	}
	require.NoError(t, store.CompleteDocument(ctx, doc.ID, chunks))
	return doc
}

func TestTryMarkProcessing_CASBlocksConcurrentAcquisition(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	doc, err := store.CreateDocument(ctx, uuid.New(), "t", "c", "", ingestion.SourceTypeText)
	require.NoError(t, err)

	const workers = 16
	var wg sync.WaitGroup
	acquiredCount := make(chan bool, workers)

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			acquired, err := store.TryMarkProcessing(ctx, doc.ID)
			assert.NoError(t, err)
			acquiredCount <- acquired
		}()
	}
	wg.Wait()
	close(acquiredCount)

	// 同時に獲得できるのは1件だけ
	winners := 0
	for acquired := range acquiredCount {
		if acquired {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}

func TestTryMarkProcessing_AllowedFromTerminalStates(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	projectID := uuid.New()

	doc := createReadyDocument(t, store, projectID, "t", []float32{1, 0, 0})

	// READYからの再獲得は許可される（再処理）
	acquired, err := store.TryMarkProcessing(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, acquired)

	require.NoError(t, store.FailDocument(ctx, doc.ID, "boom"))

	// FAILEDからの再獲得も許可される
	acquired, err = store.TryMarkProcessing(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestCompleteDocument_ReplacesChunksAtomically(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	projectID := uuid.New()

	doc := createReadyDocument(t, store, projectID, "t", []float32{1, 0, 0}, []float32{0, 1, 0})

	got, err := store.GetDocumentByID(ctx, doc.ID)
	require.NoError(t, err)
	current := got.MustGet()
	assert.Equal(t, ingestion.StatusReady, current.Status)
	assert.Equal(t, 2, current.ChunkCount)

	// 再処理で1チャンク構成に置き換え
	acquired, err := store.TryMarkProcessing(ctx, doc.ID)
	require.NoError(t, err)
	require.True(t, acquired)
	require.NoError(t, store.CompleteDocument(ctx, doc.ID, []*ingestion.Chunk{
		makeChunk(doc.ID, projectID, 0, []float32{0, 0, 1}),
	}))

	got, err = store.GetDocumentByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.MustGet().ChunkCount)

	sources, err := store.SearchChunks(ctx, projectID, []float32{0, 0, 1}, 10)
	require.NoError(t, err)
	require.Len(t, sources, 1)
}

func TestFailDocument_DiscardsChunks(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	projectID := uuid.New()

	doc := createReadyDocument(t, store, projectID, "t", []float32{1, 0, 0})

	require.NoError(t, store.FailDocument(ctx, doc.ID, "embedding api down"))

	got, err := store.GetDocumentByID(ctx, doc.ID)
	require.NoError(t, err)
	failed := got.MustGet()
	assert.Equal(t, ingestion.StatusFailed, failed.Status)
	assert.Equal(t, 0, failed.ChunkCount)
	require.NotNil(t, failed.ErrorMessage)
	assert.Equal(t, "embedding api down", *failed.ErrorMessage)

	// チャンクは検索に出てこない
	sources, err := store.SearchChunks(ctx, projectID, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, sources)
}

func TestSearchChunks_ExcludesNonReadyDocuments(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	projectID := uuid.New()

	createReadyDocument(t, store, projectID, "ready", []float32{1, 0, 0})

	// PENDINGのまま残るドキュメント
	_, err := store.CreateDocument(ctx, projectID, "pending", "c", "", ingestion.SourceTypeText)
	require.NoError(t, err)

	sources, err := store.SearchChunks(ctx, projectID, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "ready", sources[0].DocumentTitle)
}

func TestSearchChunks_ScopedToProject(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	projectA := uuid.New()
	projectB := uuid.New()
	createReadyDocument(t, store, projectA, "a", []float32{1, 0, 0})
	createReadyDocument(t, store, projectB, "b", []float32{1, 0, 0})

	sources, err := store.SearchChunks(ctx, projectA, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "a", sources[0].DocumentTitle)
}

func TestSearchChunks_DeterministicOrdering(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	projectID := uuid.New()

	// 同一ベクトル（同点）のチャンクを持つ2ドキュメント
	docA := createReadyDocument(t, store, projectID, "older",
		[]float32{1, 0, 0}, []float32{1, 0, 0})
	time.Sleep(time.Millisecond)
	docB := createReadyDocument(t, store, projectID, "newer",
		[]float32{1, 0, 0})

	first, err := store.SearchChunks(ctx, projectID, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, first, 3)

	// 同点はドキュメント作成日時の昇順、次いでチャンク連番の昇順
	assert.Equal(t, docA.ID, first[0].DocumentID)
	assert.Equal(t, 0, first[0].Seq)
	assert.Equal(t, docA.ID, first[1].DocumentID)
	assert.Equal(t, 1, first[1].Seq)
	assert.Equal(t, docB.ID, first[2].DocumentID)

	// 繰り返しても同じ並び
	for i := 0; i < 5; i++ {
		again, err := store.SearchChunks(ctx, projectID, []float32{1, 0, 0}, 10)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestSearchChunks_ScoreNormalizedAndRanked(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	projectID := uuid.New()

	createReadyDocument(t, store, projectID, "exact", []float32{1, 0, 0})
	createReadyDocument(t, store, projectID, "orthogonal", []float32{0, 1, 0})
	createReadyDocument(t, store, projectID, "opposite", []float32{-1, 0, 0})

	sources, err := store.SearchChunks(ctx, projectID, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, sources, 3)

	// Postgres側の GREATEST(1 - distance, 0) と同じスケール:
	// 負の類似度は0へ切り詰められる
	assert.Equal(t, "exact", sources[0].DocumentTitle)
	assert.InDelta(t, 1.0, sources[0].Score, 1e-6)
	for _, s := range sources[1:] {
		assert.InDelta(t, 0.0, s.Score, 1e-6)
	}

	for _, s := range sources {
		assert.GreaterOrEqual(t, s.Score, 0.0)
		assert.LessOrEqual(t, s.Score, 1.0)
	}
}

// 無関係（直交）なチャンクはKB_ONLYのデフォルト閾値を超えてはならない
// 閾値判定の意味がPostgresバックエンドと一致することの回帰テスト
func TestSearchChunks_OrthogonalBelowDefaultThreshold(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	projectID := uuid.New()

	createReadyDocument(t, store, projectID, "unrelated", []float32{1, 0, 0})

	sources, err := store.SearchChunks(ctx, projectID, []float32{0, 1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Less(t, sources[0].Score, conversation.DefaultScoreThreshold)
}

func TestSearchChunks_LimitApplied(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	projectID := uuid.New()

	createReadyDocument(t, store, projectID, "doc",
		[]float32{1, 0, 0}, []float32{0.9, 0.1, 0}, []float32{0.8, 0.2, 0})

	sources, err := store.SearchChunks(ctx, projectID, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, sources, 2)
}

func TestDeleteProject_Cascades(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	tenantID := uuid.New()

	p, err := store.CreateProject(ctx, tenantID, "p", "")
	require.NoError(t, err)

	createReadyDocument(t, store, p.ID, "doc", []float32{1, 0, 0})
	conv, err := store.CreateConversation(ctx, p.ID, "c")
	require.NoError(t, err)
	_, err = store.CreateMessage(ctx, conv.ID, conversation.RoleUser, "", "hi", nil)
	require.NoError(t, err)

	require.NoError(t, store.DeleteProject(ctx, p.ID))

	stats, err := store.GetTenantStats(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Projects)
	assert.Equal(t, 0, stats.Documents)
	assert.Equal(t, 0, stats.Chunks)
	assert.Equal(t, 0, stats.Conversations)
}

func TestGetTenantStats_CountsOnlyOwnTenant(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	tenantA := uuid.New()
	tenantB := uuid.New()

	pa, err := store.CreateProject(ctx, tenantA, "a", "")
	require.NoError(t, err)
	_, err = store.CreateProject(ctx, tenantB, "b", "")
	require.NoError(t, err)

	createReadyDocument(t, store, pa.ID, "doc", []float32{1, 0, 0}, []float32{0, 1, 0})

	stats, err := store.GetTenantStats(ctx, tenantA)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Projects)
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, 2, stats.Chunks)
	assert.Equal(t, 0, stats.Conversations)
}

func TestMessages_PersistedInOrder(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, uuid.New(), "t")
	require.NoError(t, err)

	_, err = store.CreateMessage(ctx, conv.ID, conversation.RoleUser, "", "質問", nil)
	require.NoError(t, err)
	_, err = store.CreateMessage(ctx, conv.ID, conversation.RoleAssistant, conversation.ModeKBOnly, "回答", []conversation.SourceRef{
		{ChunkID: uuid.New(), DocumentTitle: "規程", Score: 0.8},
	})
	require.NoError(t, err)

	messages, err := store.ListMessagesByConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, conversation.RoleUser, messages[0].Role)
	assert.Equal(t, conversation.RoleAssistant, messages[1].Role)
	assert.Len(t, messages[1].Sources, 1)
}
