package model

import "time"

// ScanType は健康スキャンの種別を表す。
type ScanType string

const (
	ScanTypeEyes  ScanType = "eyes"
	ScanTypeTeeth ScanType = "teeth"
	ScanTypeSkin  ScanType = "skin"
)

// Valid は定義済みの種別かを返す。
func (t ScanType) Valid() bool {
	switch t {
	case ScanTypeEyes, ScanTypeTeeth, ScanTypeSkin:
		return true
	}
	return false
}

// ScanResult はスキャン結果の分類を表す。
type ScanResult string

const (
	ScanResultHealthy        ScanResult = "Healthy"
	ScanResultMinorIssues    ScanResult = "Minor Issues"
	ScanResultNeedsAttention ScanResult = "Needs Attention"
)

// Valid は定義済みの分類かを返す。
func (r ScanResult) Valid() bool {
	switch r {
	case ScanResultHealthy, ScanResultMinorIssues, ScanResultNeedsAttention:
		return true
	}
	return false
}

// ScanStatus はスキャン結果の表示ステータスを表す。
type ScanStatus string

const (
	ScanStatusSuccess ScanStatus = "success"
	ScanStatusWarning ScanStatus = "warning"
	ScanStatusDanger  ScanStatus = "danger"
)

// Valid は定義済みのステータスかを返す。
func (s ScanStatus) Valid() bool {
	switch s {
	case ScanStatusSuccess, ScanStatusWarning, ScanStatusDanger:
		return true
	}
	return false
}

// HealthScan はユーザーが記録した健康スキャン結果を表す。
// 作成後は削除以外で変更されない。
type HealthScan struct {
	ID         string
	UserID     string
	ScanType   ScanType
	Result     ScanResult
	Confidence int // 0〜100
	Notes      string
	Status     ScanStatus
	ImageURL   string
	CreatedAt  time.Time
}
