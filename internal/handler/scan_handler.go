package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/healscope/internal/model"
	"github.com/hitoshi/healscope/internal/scan"
)

// ScanServiceInterface は健康スキャンハンドラーが必要とするサービスインターフェース。
type ScanServiceInterface interface {
	Create(ctx context.Context, owner string, in scan.CreateInput) (*model.HealthScan, error)
	List(ctx context.Context, owner string) ([]*model.HealthScan, error)
	Get(ctx context.Context, owner, id string) (*model.HealthScan, error)
	Delete(ctx context.Context, owner, id string) error
	AnalyzeFace(ctx context.Context, owner, scanType string, image []byte, mimeType string) (*scan.FaceAnalysis, error)
}

// ScanHandler は健康スキャン記録のHTTPハンドラー。
type ScanHandler struct {
	service ScanServiceInterface
}

// NewScanHandler はScanHandlerを生成する。
func NewScanHandler(service ScanServiceInterface) *ScanHandler {
	return &ScanHandler{service: service}
}

// createScanRequest はスキャン結果作成リクエストのボディ。
type createScanRequest struct {
	ScanType   string `json:"scanType"`
	Result     string `json:"result"`
	Confidence *int   `json:"confidence"`
	Notes      string `json:"notes"`
	Status     string `json:"status"`
	ImageURL   string `json:"imageUrl"`
}

// scanResponse はスキャン結果のレスポンス。
type scanResponse struct {
	ID         string           `json:"id"`
	ScanType   model.ScanType   `json:"scanType"`
	Result     model.ScanResult `json:"result"`
	Confidence int              `json:"confidence"`
	Notes      string           `json:"notes"`
	Status     model.ScanStatus `json:"status"`
	ImageURL   string           `json:"imageUrl,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
}

func toScanResponse(s *model.HealthScan) scanResponse {
	return scanResponse{
		ID:         s.ID,
		ScanType:   s.ScanType,
		Result:     s.Result,
		Confidence: s.Confidence,
		Notes:      s.Notes,
		Status:     s.Status,
		ImageURL:   s.ImageURL,
		CreatedAt:  s.CreatedAt,
	}
}

// CreateScan はスキャン結果を記録する。
// POST /api/health-scans
func (h *ScanHandler) CreateScan(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createScanRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	s, err := h.service.Create(r.Context(), userID, scan.CreateInput{
		ScanType:   req.ScanType,
		Result:     req.Result,
		Confidence: req.Confidence,
		Notes:      req.Notes,
		Status:     req.Status,
		ImageURL:   req.ImageURL,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, envelope{
		"message": "Scan created successfully",
		"scan":    toScanResponse(s),
	})
}

// ListScans はユーザーのスキャン結果を新しい順に返す。
// GET /api/health-scans
func (h *ScanHandler) ListScans(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	scans, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]scanResponse, len(scans))
	for i, s := range scans {
		results[i] = toScanResponse(s)
	}
	writeSuccess(w, http.StatusOK, envelope{"scans": results})
}

// GetScan はスキャン結果を1件返す。
// GET /api/health-scans/{id}
func (h *ScanHandler) GetScan(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	s, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"scan": toScanResponse(s)})
}

// DeleteScan はスキャン結果を削除する。
// DELETE /api/health-scans/{id}
func (h *ScanHandler) DeleteScan(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"message": "Scan deleted successfully"})
}
