package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/healscope/internal/model"
)

const (
	defaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	// DefaultGeminiModel はGEMINI_MODEL未指定時のモデル。
	DefaultGeminiModel = "gemini-1.5-flash"
)

// healthAssistantPrompt はチャットのシステム指示。%sには応答言語が入る。
const healthAssistantPrompt = `You are HealScope, a friendly health and wellness assistant.
Give clear, practical and safe general health information.
You are not a doctor: do not diagnose, and recommend consulting a healthcare professional for serious, persistent or urgent symptoms.
Keep answers concise. Respond in the language with code "%s".`

// GeminiClient はGemini APIのクライアント。
type GeminiClient struct {
	client
	apiKey   string
	model    string
	endpoint string // テスト用にエンドポイントを差し替え可能
}

// NewGeminiClient はGeminiClientの新しいインスタンスを生成する。
// modelが空の場合はDefaultGeminiModelを使う。
func NewGeminiClient(apiKey, geminiModel string, httpClient *http.Client, logger *slog.Logger) *GeminiClient {
	if geminiModel == "" {
		geminiModel = DefaultGeminiModel
	}
	return &GeminiClient{
		client:   newClient("gemini", httpClient, logger),
		apiKey:   apiKey,
		model:    geminiModel,
		endpoint: defaultGeminiEndpoint,
	}
}

// WithRecorder は呼び出し結果の記録先を設定する。
func (c *GeminiClient) WithRecorder(r Recorder) *GeminiClient {
	if r != nil {
		c.recorder = r
	}
	return c
}

// Configured はAPIキーが設定されているかを返す。
func (c *GeminiClient) Configured() bool {
	return c.apiKey != ""
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// geminiRole は会話の送信者をGeminiのロールに変換する。
func geminiRole(sender model.Sender) string {
	if sender == model.SenderAssistant {
		return "model"
	}
	return "user"
}

// Generate は過去のターンとユーザーの発言から応答を生成する。
func (c *GeminiClient) Generate(ctx context.Context, prior []model.Turn, userText, language string) (string, error) {
	contents := make([]geminiContent, 0, len(prior)+1)
	for _, t := range prior {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		contents = append(contents, geminiContent{
			Role:  geminiRole(t.Sender),
			Parts: []geminiPart{{Text: t.Text}},
		})
	}
	contents = append(contents, geminiContent{
		Role:  "user",
		Parts: []geminiPart{{Text: userText}},
	})

	return c.generateContent(ctx, "chat", geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: fmt.Sprintf(healthAssistantPrompt, language)}}},
		Contents:          contents,
	})
}

// AnalyzeImage は画像とプロンプトをGeminiに送り、応答テキストを返す。
func (c *GeminiClient) AnalyzeImage(ctx context.Context, image []byte, mimeType, prompt string) (string, error) {
	return c.generateContent(ctx, "vision", geminiRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{Text: prompt},
				{InlineData: &geminiInlineData{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(image)}},
			},
		}},
	})
}

func (c *GeminiClient) generateContent(ctx context.Context, operation string, body geminiRequest) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal gemini request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.endpoint, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("new gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.do(ctx, operation, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}

	var text strings.Builder
	if len(out.Candidates) > 0 {
		for _, p := range out.Candidates[0].Content.Parts {
			text.WriteString(p.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("gemini returned no text")
	}
	return text.String(), nil
}
