package retrieval

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubIndex struct {
	sources   []*Source
	lastLimit int
	err       error
}

func (i *stubIndex) SearchChunks(ctx context.Context, projectID uuid.UUID, queryVector []float32, limit int) ([]*Source, error) {
	i.lastLimit = limit
	if i.err != nil {
		return nil, i.err
	}
	return i.sources, nil
}

type stubEmbedder struct {
	called bool
	err    error
}

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.called = true
	if e.err != nil {
		return nil, e.err
	}
	return []float32{1, 0, 0}, nil
}

func newTestRetriever(index Index, embedder Embedder, opts ...RetrieverOption) *Retriever {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append(opts, WithRetrieverLogger(logger))
	return NewRetriever(index, embedder, opts...)
}

func TestRetrieve_Validation(t *testing.T) {
	r := newTestRetriever(&stubIndex{}, &stubEmbedder{})

	_, err := r.Retrieve(context.Background(), uuid.Nil, "query", 5)
	assert.Error(t, err)

	_, err = r.Retrieve(context.Background(), uuid.New(), "", 5)
	assert.Error(t, err)
}

func TestRetrieve_UsesDefaultTopK(t *testing.T) {
	index := &stubIndex{sources: []*Source{{ChunkID: uuid.New(), Score: 0.9}}}
	embedder := &stubEmbedder{}
	r := newTestRetriever(index, embedder)

	sources, err := r.Retrieve(context.Background(), uuid.New(), "有給休暇の繰越日数", 0)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, DefaultTopK, index.lastLimit)
	assert.True(t, embedder.called)
}

func TestRetrieve_ExplicitKOverridesDefault(t *testing.T) {
	index := &stubIndex{}
	r := newTestRetriever(index, &stubEmbedder{}, WithTopK(7))

	_, err := r.Retrieve(context.Background(), uuid.New(), "query", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, index.lastLimit)

	// k未指定はオプションで設定した値にフォールバック
	_, err = r.Retrieve(context.Background(), uuid.New(), "query", 0)
	require.NoError(t, err)
	assert.Equal(t, 7, index.lastLimit)
}

func TestRetrieve_PropagatesErrors(t *testing.T) {
	embedErr := errors.New("embed failed")
	r := newTestRetriever(&stubIndex{}, &stubEmbedder{err: embedErr})
	_, err := r.Retrieve(context.Background(), uuid.New(), "query", 5)
	assert.ErrorIs(t, err, embedErr)

	searchErr := errors.New("search failed")
	r = newTestRetriever(&stubIndex{err: searchErr}, &stubEmbedder{})
	_, err = r.Retrieve(context.Background(), uuid.New(), "query", 5)
	assert.ErrorIs(t, err, searchErr)
}
