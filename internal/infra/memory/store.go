// Package memory はリポジトリ群のインメモリ実装を提供する。
// 外部依存なしで全フローを動かせるため、ローカル実行とテストで使う。
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/kb-chat/internal/core/conversation"
	"github.com/jinford/kb-chat/internal/core/ingestion"
	"github.com/jinford/kb-chat/internal/core/project"
	"github.com/jinford/kb-chat/internal/core/retrieval"
)

// Store は全リポジトリインターフェースを単一のミューテックスで実装するインメモリストア。
type Store struct {
	mu sync.Mutex

	projects      map[uuid.UUID]*project.Project
	documents     map[uuid.UUID]*ingestion.Document
	chunks        map[uuid.UUID][]*ingestion.Chunk // documentID -> seq順のチャンク
	conversations map[uuid.UUID]*conversation.Conversation
	messages      map[uuid.UUID][]*conversation.Message // conversationID -> 作成順のメッセージ
}

// NewStore は空の Store を返す。
func NewStore() *Store {
	return &Store{
		projects:      make(map[uuid.UUID]*project.Project),
		documents:     make(map[uuid.UUID]*ingestion.Document),
		chunks:        make(map[uuid.UUID][]*ingestion.Chunk),
		conversations: make(map[uuid.UUID]*conversation.Conversation),
		messages:      make(map[uuid.UUID][]*conversation.Message),
	}
}

var (
	_ project.Repository      = (*Store)(nil)
	_ ingestion.Repository    = (*Store)(nil)
	_ retrieval.Index         = (*Store)(nil)
	_ conversation.Repository = (*Store)(nil)
)

// --- project.Repository ---

func (s *Store) CreateProject(_ context.Context, tenantID uuid.UUID, name string, description string) (*project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := &project.Project{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	s.projects[p.ID] = p
	return clone(p), nil
}

func (s *Store) GetProjectByID(_ context.Context, id uuid.UUID) (mo.Option[*project.Project], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return mo.None[*project.Project](), nil
	}
	return mo.Some(clone(p)), nil
}

func (s *Store) ListProjectsByTenant(_ context.Context, tenantID uuid.UUID) ([]*project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	projects := make([]*project.Project, 0)
	for _, p := range s.projects {
		if p.TenantID == tenantID {
			projects = append(projects, clone(p))
		}
	}
	sort.Slice(projects, func(i, j int) bool {
		if !projects[i].CreatedAt.Equal(projects[j].CreatedAt) {
			return projects[i].CreatedAt.Before(projects[j].CreatedAt)
		}
		return projects[i].ID.String() < projects[j].ID.String()
	})
	return projects, nil
}

func (s *Store) DeleteProject(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.projects, id)
	for docID, doc := range s.documents {
		if doc.ProjectID == id {
			delete(s.documents, docID)
			delete(s.chunks, docID)
		}
	}
	for convID, conv := range s.conversations {
		if conv.ProjectID == id {
			delete(s.conversations, convID)
			delete(s.messages, convID)
		}
	}
	return nil
}

func (s *Store) GetTenantStats(_ context.Context, tenantID uuid.UUID) (*project.TenantStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &project.TenantStats{}
	owned := make(map[uuid.UUID]bool)
	for _, p := range s.projects {
		if p.TenantID == tenantID {
			owned[p.ID] = true
			stats.Projects++
		}
	}
	for docID, doc := range s.documents {
		if owned[doc.ProjectID] {
			stats.Documents++
			stats.Chunks += len(s.chunks[docID])
		}
	}
	for _, conv := range s.conversations {
		if owned[conv.ProjectID] {
			stats.Conversations++
		}
	}
	return stats, nil
}

// --- ingestion.Repository ---

func (s *Store) CreateDocument(_ context.Context, projectID uuid.UUID, title, content, fileName string, sourceType ingestion.SourceType) (*ingestion.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	doc := &ingestion.Document{
		ID:         uuid.New(),
		ProjectID:  projectID,
		Title:      title,
		Content:    content,
		FileName:   fileName,
		SourceType: sourceType,
		Status:     ingestion.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.documents[doc.ID] = doc
	return clone(doc), nil
}

func (s *Store) GetDocumentByID(_ context.Context, id uuid.UUID) (mo.Option[*ingestion.Document], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok {
		return mo.None[*ingestion.Document](), nil
	}
	return mo.Some(clone(doc)), nil
}

func (s *Store) ListDocumentsByProject(_ context.Context, projectID uuid.UUID) ([]*ingestion.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := make([]*ingestion.Document, 0)
	for _, doc := range s.documents {
		if doc.ProjectID == projectID {
			docs = append(docs, clone(doc))
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.Before(docs[j].CreatedAt)
		}
		return docs[i].ID.String() < docs[j].ID.String()
	})
	return docs, nil
}

func (s *Store) DeleteDocument(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.documents, id)
	delete(s.chunks, id)
	return nil
}

func (s *Store) TryMarkProcessing(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok {
		return false, fmt.Errorf("document not found: %s", id)
	}
	if doc.Status == ingestion.StatusProcessing {
		return false, nil
	}
	doc.Status = ingestion.StatusProcessing
	doc.ErrorMessage = nil
	doc.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *Store) CompleteDocument(_ context.Context, documentID uuid.UUID, chunks []*ingestion.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[documentID]
	if !ok {
		return fmt.Errorf("document not found: %s", documentID)
	}

	// 置き換えとステータス遷移はロック下で一括反映する（中間状態を観測させない）
	replaced := make([]*ingestion.Chunk, len(chunks))
	for i, c := range chunks {
		replaced[i] = clone(c)
	}
	s.chunks[documentID] = replaced
	doc.Status = ingestion.StatusReady
	doc.ChunkCount = len(replaced)
	doc.ErrorMessage = nil
	doc.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) FailDocument(_ context.Context, documentID uuid.UUID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[documentID]
	if !ok {
		return fmt.Errorf("document not found: %s", documentID)
	}

	delete(s.chunks, documentID)
	doc.Status = ingestion.StatusFailed
	doc.ChunkCount = 0
	doc.ErrorMessage = &message
	doc.UpdatedAt = time.Now().UTC()
	return nil
}

// --- retrieval.Index ---

func (s *Store) SearchChunks(_ context.Context, projectID uuid.UUID, queryVector []float32, limit int) ([]*retrieval.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type scored struct {
		source    *retrieval.Source
		createdAt time.Time
	}

	candidates := make([]scored, 0)
	for docID, doc := range s.documents {
		if doc.ProjectID != projectID || doc.Status != ingestion.StatusReady {
			continue
		}
		for _, c := range s.chunks[docID] {
			candidates = append(candidates, scored{
				source: &retrieval.Source{
					ChunkID:       c.ID,
					DocumentID:    doc.ID,
					DocumentTitle: doc.Title,
					Seq:           c.Seq,
					Content:       c.Content,
					Score:         cosineScore(queryVector, c.Vector),
				},
				createdAt: doc.CreatedAt,
			})
		}
	}

	// スコア降順、同点はドキュメント作成日時の昇順、さらにチャンク連番の昇順
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].source.Score != candidates[j].source.Score {
			return candidates[i].source.Score > candidates[j].source.Score
		}
		if !candidates[i].createdAt.Equal(candidates[j].createdAt) {
			return candidates[i].createdAt.Before(candidates[j].createdAt)
		}
		if candidates[i].source.DocumentID != candidates[j].source.DocumentID {
			return candidates[i].source.DocumentID.String() < candidates[j].source.DocumentID.String()
		}
		return candidates[i].source.Seq < candidates[j].source.Seq
	})

	if limit > len(candidates) {
		limit = len(candidates)
	}
	sources := make([]*retrieval.Source, 0, limit)
	for _, c := range candidates[:limit] {
		sources = append(sources, c.source)
	}
	return sources, nil
}

// cosineScore はコサイン類似度を [0,1] に正規化して返す。
// Postgres側の GREATEST(1 - (embedding <=> query), 0) と同じスケール
// （負の類似度は0に切り詰め）であり、閾値判定がバックエンド間で一致する。
// 次元不一致やゼロベクトルは類似度なし（0）として扱う。
func cosineScore(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if cos < 0 {
		return 0
	}
	if cos > 1 {
		return 1
	}
	return cos
}

// --- conversation.Repository ---

func (s *Store) CreateConversation(_ context.Context, projectID uuid.UUID, title string) (*conversation.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := &conversation.Conversation{
		ID:        uuid.New(),
		ProjectID: projectID,
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
	s.conversations[c.ID] = c
	return clone(c), nil
}

func (s *Store) GetConversationByID(_ context.Context, id uuid.UUID) (mo.Option[*conversation.Conversation], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok {
		return mo.None[*conversation.Conversation](), nil
	}
	return mo.Some(clone(c)), nil
}

func (s *Store) ListConversationsByProject(_ context.Context, projectID uuid.UUID) ([]*conversation.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conversations := make([]*conversation.Conversation, 0)
	for _, c := range s.conversations {
		if c.ProjectID == projectID {
			conversations = append(conversations, clone(c))
		}
	}
	sort.Slice(conversations, func(i, j int) bool {
		if !conversations[i].CreatedAt.Equal(conversations[j].CreatedAt) {
			return conversations[i].CreatedAt.After(conversations[j].CreatedAt)
		}
		return conversations[i].ID.String() < conversations[j].ID.String()
	})
	return conversations, nil
}

func (s *Store) CreateMessage(_ context.Context, conversationID uuid.UUID, role conversation.Role, mode conversation.Mode, content string, sources []conversation.SourceRef) (*conversation.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return nil, fmt.Errorf("conversation not found: %s", conversationID)
	}

	m := &conversation.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Role:           role,
		Mode:           mode,
		Content:        content,
		Sources:        append([]conversation.SourceRef(nil), sources...),
		CreatedAt:      time.Now().UTC(),
	}
	if sources == nil {
		m.Sources = nil
	}
	s.messages[conversationID] = append(s.messages[conversationID], m)
	return clone(m), nil
}

func (s *Store) ListMessagesByConversation(_ context.Context, conversationID uuid.UUID) ([]*conversation.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.messages[conversationID]
	messages := make([]*conversation.Message, 0, len(stored))
	for _, m := range stored {
		messages = append(messages, clone(m))
	}
	return messages, nil
}

// clone は呼び出し元にストア内部の構造体を共有させないための浅いコピー。
func clone[T any](v *T) *T {
	c := *v
	return &c
}
