// Package scan は健康スキャン結果の記録とAIによる画像解析を提供する。
package scan

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/healscope/internal/model"
	"github.com/hitoshi/healscope/internal/repository"
	"github.com/hitoshi/healscope/internal/security"
)

// ImageAnalyzer は画像とプロンプトから解析テキストを得るインターフェース。
type ImageAnalyzer interface {
	Configured() bool
	AnalyzeImage(ctx context.Context, image []byte, mimeType, prompt string) (string, error)
}

// ScanService は健康スキャンのサービス。
type ScanService struct {
	repo      repository.HealthScanRepository
	analyzer  ImageAnalyzer
	sanitizer security.Sanitizer
	logger    *slog.Logger
}

// NewScanService はScanServiceの新しいインスタンスを生成する。
func NewScanService(
	repo repository.HealthScanRepository,
	analyzer ImageAnalyzer,
	sanitizer security.Sanitizer,
	logger *slog.Logger,
) *ScanService {
	return &ScanService{
		repo:      repo,
		analyzer:  analyzer,
		sanitizer: sanitizer,
		logger:    logger,
	}
}

// CreateInput はスキャン結果の作成入力。
type CreateInput struct {
	ScanType   string
	Result     string
	Confidence *int
	Notes      string
	Status     string // 空の場合はsuccess
	ImageURL   string
}

// Create は入力を検証してスキャン結果を保存する。
func (s *ScanService) Create(ctx context.Context, owner string, in CreateInput) (*model.HealthScan, error) {
	scanType := model.ScanType(in.ScanType)
	if !scanType.Valid() {
		return nil, model.NewValidationError("scanType must be one of eyes, teeth, skin")
	}
	result := model.ScanResult(in.Result)
	if !result.Valid() {
		return nil, model.NewValidationError("result must be one of Healthy, Minor Issues, Needs Attention")
	}
	if in.Confidence == nil || *in.Confidence < 0 || *in.Confidence > 100 {
		return nil, model.NewValidationError("confidence must be between 0 and 100")
	}
	status := model.ScanStatus(in.Status)
	if in.Status == "" {
		status = model.ScanStatusSuccess
	}
	if !status.Valid() {
		return nil, model.NewValidationError("status must be one of success, warning, danger")
	}
	if in.ImageURL != "" && !isHTTPURL(in.ImageURL) {
		return nil, model.NewValidationError("imageUrl must be an http(s) URL")
	}

	scan := &model.HealthScan{
		ID:         uuid.New().String(),
		UserID:     owner,
		ScanType:   scanType,
		Result:     result,
		Confidence: *in.Confidence,
		Notes:      s.sanitizer.Sanitize(in.Notes),
		Status:     status,
		ImageURL:   in.ImageURL,
		CreatedAt:  time.Now(),
	}
	if err := s.repo.Create(ctx, scan); err != nil {
		return nil, err
	}
	return scan, nil
}

// List はユーザーのスキャン結果を新しい順に返す。
func (s *ScanService) List(ctx context.Context, owner string) ([]*model.HealthScan, error) {
	return s.repo.ListByUser(ctx, owner)
}

// Get はユーザーのスキャン結果を返す。他ユーザーのものはNotFound。
func (s *ScanService) Get(ctx context.Context, owner, id string) (*model.HealthScan, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewScanNotFoundError(id)
	}
	scan, err := s.repo.FindByIDAndUser(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	if scan == nil {
		return nil, model.NewScanNotFoundError(id)
	}
	return scan, nil
}

// Delete はユーザーのスキャン結果を削除する。他ユーザーのものはNotFound。
func (s *ScanService) Delete(ctx context.Context, owner, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return model.NewScanNotFoundError(id)
	}
	deleted, err := s.repo.DeleteByIDAndUser(ctx, id, owner)
	if err != nil {
		return err
	}
	if !deleted {
		return model.NewScanNotFoundError(id)
	}
	return nil
}

// FaceAnalysis は画像解析から保存したスキャン結果と推奨事項。
type FaceAnalysis struct {
	Scan            *model.HealthScan
	Recommendations []string
}

// AnalyzeFace は画像をAIで解析し、結果をスキャン履歴に保存する。
// scanTypeが空の場合はeyesとして扱う。
func (s *ScanService) AnalyzeFace(ctx context.Context, owner, scanType string, image []byte, mimeType string) (*FaceAnalysis, error) {
	if len(image) == 0 {
		return nil, model.NewValidationError("No image uploaded")
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, model.NewValidationError("Uploaded file must be an image")
	}

	st := model.ScanType(scanType)
	if scanType == "" {
		st = model.ScanTypeEyes
	}
	if !st.Valid() {
		return nil, model.NewValidationError("scanType must be one of eyes, teeth, skin")
	}

	if !s.analyzer.Configured() {
		return nil, model.NewNotConfiguredError("Gemini")
	}

	text, err := s.analyzer.AnalyzeImage(ctx, image, mimeType, Prompt(st))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		s.logger.Error("face analysis failed",
			slog.String("user_id", owner),
			slog.String("scan_type", string(st)),
			slog.String("error", err.Error()),
		)
		return nil, model.NewUpstreamFailedError("Gemini")
	}

	analysis := ParseAnalysis(text)
	scan := &model.HealthScan{
		ID:         uuid.New().String(),
		UserID:     owner,
		ScanType:   st,
		Result:     analysis.Result,
		Confidence: analysis.Confidence,
		Notes:      s.sanitizer.Sanitize(analysis.Notes),
		Status:     analysis.Status(),
		CreatedAt:  time.Now(),
	}
	if err := s.repo.Create(ctx, scan); err != nil {
		return nil, err
	}

	return &FaceAnalysis{Scan: scan, Recommendations: analysis.Recommendations}, nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
