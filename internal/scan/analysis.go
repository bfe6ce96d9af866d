package scan

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/healscope/internal/model"
)

const (
	// fallbackConfidence はAI応答をJSONとして解釈できなかった場合の信頼度。
	fallbackConfidence = 85
	// fallbackNotesRunes はフォールバック時にメモとして残す応答の最大文字数。
	fallbackNotesRunes = 200
	fallbackResult     = "Analysis Complete"
)

var fallbackRecommendations = []string{"Consult a healthcare provider for detailed assessment"}

// scanPrompts はスキャン種別ごとの解析指示。
var scanPrompts = map[model.ScanType]string{
	model.ScanTypeEyes:  "Analyze this eye image for redness, jaundice, or other visible conditions.",
	model.ScanTypeTeeth: "Analyze this dental image for plaque, cavities, or gum issues.",
	model.ScanTypeSkin:  "Analyze this skin image for rashes, moles, or dermatological concerns.",
}

const analysisFormat = ` Act as a professional medical AI assistant.
IMPORTANT: Return ONLY a valid JSON object with this exact structure (no markdown, no backticks):
{
    "result": "Healthy" or "Concern",
    "confidence": number between 70-99,
    "notes": "Brief, professional medical observation (max 2 sentences)",
    "recommendations": ["Action 1", "Action 2", "Action 3"]
}`

// Prompt はスキャン種別に応じた画像解析プロンプトを返す。
func Prompt(scanType model.ScanType) string {
	p, ok := scanPrompts[scanType]
	if !ok {
		p = "Analyze this medical image for health concerns."
	}
	return p + analysisFormat
}

// Analysis はAIによる画像解析の結果。
type Analysis struct {
	Result          model.ScanResult
	Confidence      int
	Notes           string
	Recommendations []string
}

// Status は解析結果から表示用ステータスを導出する。
func (a Analysis) Status() model.ScanStatus {
	return StatusFor(a.Result)
}

// StatusFor は結果に対応するステータスを返す。
func StatusFor(result model.ScanResult) model.ScanStatus {
	switch result {
	case model.ScanResultHealthy:
		return model.ScanStatusSuccess
	case model.ScanResultNeedsAttention:
		return model.ScanStatusDanger
	default:
		return model.ScanStatusWarning
	}
}

type rawAnalysis struct {
	Result          string   `json:"result"`
	Confidence      float64  `json:"confidence"`
	Notes           string   `json:"notes"`
	Recommendations []string `json:"recommendations"`
}

// ParseAnalysis はAIの応答テキストを解析結果に変換する。
// コードフェンスを除去してJSONとして解釈し、失敗した場合は応答の先頭200文字を
// メモにしたフォールバック結果を返す。
func ParseAnalysis(text string) Analysis {
	var raw rawAnalysis
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &raw); err != nil {
		raw = rawAnalysis{
			Result:          fallbackResult,
			Confidence:      fallbackConfidence,
			Notes:           truncateRunes(strings.TrimSpace(text), fallbackNotesRunes),
			Recommendations: fallbackRecommendations,
		}
	}

	recs := raw.Recommendations
	if recs == nil {
		recs = []string{}
	}

	return Analysis{
		Result:          NormalizeResult(raw.Result),
		Confidence:      clampConfidence(int(raw.Confidence + 0.5)),
		Notes:           raw.Notes,
		Recommendations: recs,
	}
}

// NormalizeResult はAIが返した結果文字列を保存可能な値に丸める。
// "Healthy"はHealthy、"Concern"と"Needs Attention"はNeeds Attention、それ以外はMinor Issues。
func NormalizeResult(s string) model.ScanResult {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "healthy":
		return model.ScanResultHealthy
	case "concern", "needs attention":
		return model.ScanResultNeedsAttention
	default:
		return model.ScanResultMinorIssues
	}
}

// stripCodeFence は```json ... ```形式の囲みを取り除く。
func stripCodeFence(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

func clampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
