package model

import "time"

// MedicationStatus は服薬の状態を表す。
type MedicationStatus string

const (
	MedicationStatusActive    MedicationStatus = "Active"
	MedicationStatusCompleted MedicationStatus = "Completed"
	MedicationStatusPaused    MedicationStatus = "Paused"
)

// Valid は定義済みの状態かを返す。
func (s MedicationStatus) Valid() bool {
	switch s {
	case MedicationStatusActive, MedicationStatusCompleted, MedicationStatusPaused:
		return true
	}
	return false
}

// Medication はユーザーの服薬スケジュールを表す。
type Medication struct {
	ID            string
	UserID        string
	Name          string
	Dosage        string
	Frequency     string
	ReminderTimes []string // "HH:MM" 形式
	StartDate     *time.Time
	EndDate       *time.Time
	Notes         string
	Status        MedicationStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MedicationPatch は服薬情報の部分更新を表す。
// nilのフィールドは変更しない。
type MedicationPatch struct {
	Name          *string
	Dosage        *string
	Frequency     *string
	ReminderTimes *[]string
	StartDate     *time.Time
	EndDate       *time.Time
	Notes         *string
	Status        *MedicationStatus
}
