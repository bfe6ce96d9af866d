package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/healscope/internal/medication"
	"github.com/hitoshi/healscope/internal/model"
)

// MedicationServiceInterface は服薬ハンドラーが必要とするサービスインターフェース。
type MedicationServiceInterface interface {
	Create(ctx context.Context, owner string, in medication.CreateInput) (*model.Medication, error)
	List(ctx context.Context, owner string) ([]*model.Medication, error)
	Update(ctx context.Context, owner, id string, patch model.MedicationPatch) (*model.Medication, error)
	Delete(ctx context.Context, owner, id string) error
}

// MedicationHandler は服薬スケジュールのHTTPハンドラー。
type MedicationHandler struct {
	service MedicationServiceInterface
}

// NewMedicationHandler はMedicationHandlerを生成する。
func NewMedicationHandler(service MedicationServiceInterface) *MedicationHandler {
	return &MedicationHandler{service: service}
}

// medicationRequest は服薬情報の作成・更新リクエストのボディ。
// 更新では指定されたフィールドのみ変更する。
type medicationRequest struct {
	Name          *string   `json:"name"`
	Dosage        *string   `json:"dosage"`
	Frequency     *string   `json:"frequency"`
	ReminderTimes *[]string `json:"reminderTimes"`
	StartDate     *string   `json:"startDate"`
	EndDate       *string   `json:"endDate"`
	Notes         *string   `json:"notes"`
	Status        *string   `json:"status"`
}

// medicationResponse は服薬情報のレスポンス。
type medicationResponse struct {
	ID            string                 `json:"id"`
	Name          string                 `json:"name"`
	Dosage        string                 `json:"dosage"`
	Frequency     string                 `json:"frequency"`
	ReminderTimes []string               `json:"reminderTimes"`
	StartDate     *time.Time             `json:"startDate"`
	EndDate       *time.Time             `json:"endDate"`
	Notes         string                 `json:"notes"`
	Status        model.MedicationStatus `json:"status"`
	CreatedAt     time.Time              `json:"createdAt"`
	UpdatedAt     time.Time              `json:"updatedAt"`
}

func toMedicationResponse(m *model.Medication) medicationResponse {
	reminders := m.ReminderTimes
	if reminders == nil {
		reminders = []string{}
	}
	return medicationResponse{
		ID:            m.ID,
		Name:          m.Name,
		Dosage:        m.Dosage,
		Frequency:     m.Frequency,
		ReminderTimes: reminders,
		StartDate:     m.StartDate,
		EndDate:       m.EndDate,
		Notes:         m.Notes,
		Status:        m.Status,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// parseDates はリクエストの開始日・終了日を解釈する。
func (req medicationRequest) parseDates() (start, end *time.Time, err error) {
	if start, err = medication.ParseDate(deref(req.StartDate)); err != nil {
		return nil, nil, err
	}
	if end, err = medication.ParseDate(deref(req.EndDate)); err != nil {
		return nil, nil, err
	}
	return start, end, nil
}

// CreateMedication は服薬情報を登録する。
// POST /api/medications
func (h *MedicationHandler) CreateMedication(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req medicationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	start, end, err := req.parseDates()
	if err != nil {
		handleServiceError(w, err)
		return
	}

	in := medication.CreateInput{
		Name:      deref(req.Name),
		Dosage:    deref(req.Dosage),
		Frequency: deref(req.Frequency),
		StartDate: start,
		EndDate:   end,
		Notes:     deref(req.Notes),
		Status:    deref(req.Status),
	}
	if req.ReminderTimes != nil {
		in.ReminderTimes = *req.ReminderTimes
	}

	m, err := h.service.Create(r.Context(), userID, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, envelope{"medication": toMedicationResponse(m)})
}

// ListMedications はユーザーの服薬情報を新しい順に返す。
// GET /api/medications
func (h *MedicationHandler) ListMedications(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	meds, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]medicationResponse, len(meds))
	for i, m := range meds {
		results[i] = toMedicationResponse(m)
	}
	writeSuccess(w, http.StatusOK, envelope{"medications": results})
}

// UpdateMedication は服薬情報を部分更新する。
// PUT /api/medications/{id}
func (h *MedicationHandler) UpdateMedication(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req medicationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	start, end, err := req.parseDates()
	if err != nil {
		handleServiceError(w, err)
		return
	}

	patch := model.MedicationPatch{
		Name:          req.Name,
		Dosage:        req.Dosage,
		Frequency:     req.Frequency,
		ReminderTimes: req.ReminderTimes,
		StartDate:     start,
		EndDate:       end,
		Notes:         req.Notes,
	}
	if req.Status != nil {
		status := model.MedicationStatus(*req.Status)
		patch.Status = &status
	}

	m, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "id"), patch)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"medication": toMedicationResponse(m)})
}

// DeleteMedication は服薬情報を削除する。
// DELETE /api/medications/{id}
func (h *MedicationHandler) DeleteMedication(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"message": "Medication deleted successfully"})
}
