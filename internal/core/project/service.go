package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// ErrProjectNotFound はプロジェクトが存在しない場合のエラー
var ErrProjectNotFound = errors.New("project not found")

// ErrForbidden は他テナントのプロジェクトへアクセスした場合のエラー
var ErrForbidden = errors.New("project belongs to another tenant")

// Service はプロジェクト管理のユースケースを提供する
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*Service)

// WithLogger は Service にロガーを設定する
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService は新しいServiceを作成する
func NewService(repo Repository, opts ...ServiceOption) *Service {
	svc := &Service{
		repo:   repo,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc
}

// CreateParams はプロジェクト作成のパラメータ
type CreateParams struct {
	TenantID    uuid.UUID
	Name        string
	Description string
}

// Create は新しいプロジェクトを作成する
func (s *Service) Create(ctx context.Context, params CreateParams) (*Project, error) {
	if params.TenantID == uuid.Nil {
		return nil, fmt.Errorf("tenantID is required")
	}
	if params.Name == "" {
		return nil, fmt.Errorf("name is required")
	}

	proj, err := s.repo.CreateProject(ctx, params.TenantID, params.Name, params.Description)
	if err != nil {
		return nil, fmt.Errorf("プロジェクトの作成に失敗: %w", err)
	}

	s.logger.Info("プロジェクトを作成",
		"projectID", proj.ID,
		"tenantID", proj.TenantID,
		"name", proj.Name,
	)

	return proj, nil
}

// Get はテナント所有権を検証したうえでプロジェクトを取得する
func (s *Service) Get(ctx context.Context, tenantID, projectID uuid.UUID) (*Project, error) {
	opt, err := s.repo.GetProjectByID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("プロジェクトの取得に失敗: %w", err)
	}
	if opt.IsAbsent() {
		return nil, ErrProjectNotFound
	}

	proj := opt.MustGet()
	if proj.TenantID != tenantID {
		return nil, ErrForbidden
	}

	return proj, nil
}

// List はテナント配下のプロジェクト一覧を返す
func (s *Service) List(ctx context.Context, tenantID uuid.UUID) ([]*Project, error) {
	if tenantID == uuid.Nil {
		return nil, fmt.Errorf("tenantID is required")
	}

	projects, err := s.repo.ListProjectsByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("プロジェクト一覧の取得に失敗: %w", err)
	}
	return projects, nil
}

// Delete はプロジェクトと配下のデータをすべて削除する
func (s *Service) Delete(ctx context.Context, tenantID, projectID uuid.UUID) error {
	if _, err := s.Get(ctx, tenantID, projectID); err != nil {
		return err
	}

	if err := s.repo.DeleteProject(ctx, projectID); err != nil {
		return fmt.Errorf("プロジェクトの削除に失敗: %w", err)
	}

	s.logger.Info("プロジェクトを削除", "projectID", projectID, "tenantID", tenantID)
	return nil
}

// Stats はテナント単位の集計情報を返す
func (s *Service) Stats(ctx context.Context, tenantID uuid.UUID) (*TenantStats, error) {
	if tenantID == uuid.Nil {
		return nil, fmt.Errorf("tenantID is required")
	}

	stats, err := s.repo.GetTenantStats(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("統計情報の取得に失敗: %w", err)
	}
	return stats, nil
}
