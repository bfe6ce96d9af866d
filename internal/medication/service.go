// Package medication はユーザーの服薬スケジュール管理を提供する。
package medication

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/healscope/internal/model"
	"github.com/hitoshi/healscope/internal/repository"
	"github.com/hitoshi/healscope/internal/security"
)

// reminderPattern はリマインダー時刻（24時間表記のHH:MM）にマッチする。
var reminderPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// dateLayouts は受け付ける日付の書式。
var dateLayouts = []string{"2006-01-02", time.RFC3339}

// MedicationService は服薬情報のサービス。
type MedicationService struct {
	repo      repository.MedicationRepository
	sanitizer security.Sanitizer
	now       func() time.Time
}

// NewMedicationService はMedicationServiceの新しいインスタンスを生成する。
func NewMedicationService(repo repository.MedicationRepository, sanitizer security.Sanitizer) *MedicationService {
	return &MedicationService{
		repo:      repo,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// CreateInput は服薬情報の作成入力。
type CreateInput struct {
	Name          string
	Dosage        string
	Frequency     string
	ReminderTimes []string
	StartDate     *time.Time
	EndDate       *time.Time
	Notes         string
	Status        string // 空の場合はActive
}

// Create は入力を検証して服薬情報を保存する。
func (s *MedicationService) Create(ctx context.Context, owner string, in CreateInput) (*model.Medication, error) {
	status := model.MedicationStatus(in.Status)
	if in.Status == "" {
		status = model.MedicationStatusActive
	}

	now := s.now()
	med := &model.Medication{
		ID:            uuid.New().String(),
		UserID:        owner,
		Name:          strings.TrimSpace(in.Name),
		Dosage:        strings.TrimSpace(in.Dosage),
		Frequency:     strings.TrimSpace(in.Frequency),
		ReminderTimes: in.ReminderTimes,
		StartDate:     in.StartDate,
		EndDate:       in.EndDate,
		Notes:         s.sanitizer.Sanitize(in.Notes),
		Status:        status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if med.ReminderTimes == nil {
		med.ReminderTimes = []string{}
	}
	if err := validate(med); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, med); err != nil {
		return nil, err
	}
	return med, nil
}

// List はユーザーの服薬情報を新しい順に返す。
func (s *MedicationService) List(ctx context.Context, owner string) ([]*model.Medication, error) {
	return s.repo.ListByUser(ctx, owner)
}

// Update は指定されたフィールドのみを更新する。
// 更新後の値全体を検証し、他ユーザーの服薬情報はNotFoundとする。
func (s *MedicationService) Update(ctx context.Context, owner, id string, patch model.MedicationPatch) (*model.Medication, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewMedicationNotFoundError(id)
	}

	med, err := s.repo.FindByIDAndUser(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	if med == nil {
		return nil, model.NewMedicationNotFoundError(id)
	}

	if patch.Name != nil {
		med.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Dosage != nil {
		med.Dosage = strings.TrimSpace(*patch.Dosage)
	}
	if patch.Frequency != nil {
		med.Frequency = strings.TrimSpace(*patch.Frequency)
	}
	if patch.ReminderTimes != nil {
		med.ReminderTimes = *patch.ReminderTimes
		if med.ReminderTimes == nil {
			med.ReminderTimes = []string{}
		}
	}
	if patch.StartDate != nil {
		med.StartDate = patch.StartDate
	}
	if patch.EndDate != nil {
		med.EndDate = patch.EndDate
	}
	if patch.Notes != nil {
		med.Notes = s.sanitizer.Sanitize(*patch.Notes)
	}
	if patch.Status != nil {
		med.Status = *patch.Status
	}
	if err := validate(med); err != nil {
		return nil, err
	}

	med.UpdatedAt = s.now()
	updated, err := s.repo.Update(ctx, med)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, model.NewMedicationNotFoundError(id)
	}
	return med, nil
}

// Delete はユーザーの服薬情報を削除する。
func (s *MedicationService) Delete(ctx context.Context, owner, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return model.NewMedicationNotFoundError(id)
	}
	deleted, err := s.repo.DeleteByIDAndUser(ctx, id, owner)
	if err != nil {
		return err
	}
	if !deleted {
		return model.NewMedicationNotFoundError(id)
	}
	return nil
}

func validate(m *model.Medication) error {
	switch {
	case m.Name == "":
		return model.NewValidationError("name is required")
	case m.Dosage == "":
		return model.NewValidationError("dosage is required")
	case m.Frequency == "":
		return model.NewValidationError("frequency is required")
	case !m.Status.Valid():
		return model.NewValidationError("status must be one of Active, Completed, Paused")
	}
	for _, rt := range m.ReminderTimes {
		if !reminderPattern.MatchString(rt) {
			return model.NewValidationError("reminder times must be in HH:MM format")
		}
	}
	if m.StartDate != nil && m.EndDate != nil && m.EndDate.Before(*m.StartDate) {
		return model.NewValidationError("endDate must not be before startDate")
	}
	return nil
}

// ParseDate はYYYY-MM-DDまたはRFC3339形式の日付を解析する。
// 空文字列の場合はnilを返す。
func ParseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, model.NewValidationError("dates must be YYYY-MM-DD or RFC3339")
}
