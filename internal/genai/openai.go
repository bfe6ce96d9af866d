package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
)

const (
	defaultOpenAIEndpoint = "https://api.openai.com/v1"
	transcriptionModel    = "whisper-1"
	speechModel           = "tts-1"
	speechVoice           = "alloy"
	// maxSpeechAudio は音声合成レスポンスの最大バイト数。
	maxSpeechAudio = 20 << 20
)

// OpenAIClient はOpenAI音声APIのクライアント。
type OpenAIClient struct {
	client
	apiKey   string
	endpoint string // テスト用にエンドポイントを差し替え可能
}

// NewOpenAIClient はOpenAIClientの新しいインスタンスを生成する。
func NewOpenAIClient(apiKey string, httpClient *http.Client, logger *slog.Logger) *OpenAIClient {
	return &OpenAIClient{
		client:   newClient("openai", httpClient, logger),
		apiKey:   apiKey,
		endpoint: defaultOpenAIEndpoint,
	}
}

// WithRecorder は呼び出し結果の記録先を設定する。
func (c *OpenAIClient) WithRecorder(r Recorder) *OpenAIClient {
	if r != nil {
		c.recorder = r
	}
	return c
}

// Configured はAPIキーが設定されているかを返す。
func (c *OpenAIClient) Configured() bool {
	return c.apiKey != ""
}

// Transcribe は音声データを文字起こしする。
func (c *OpenAIClient) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	if filename == "" {
		filename = "audio.webm"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("model", transcriptionModel); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("write audio: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/audio/transcriptions", &buf)
	if err != nil {
		return "", fmt.Errorf("new transcription request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.do(ctx, "transcribe", req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}
	return out.Text, nil
}

// Speak はテキストを音声合成し、MP3データを返す。
func (c *OpenAIClient) Speak(ctx context.Context, text string) ([]byte, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	payload, err := json.Marshal(map[string]string{
		"model":           speechModel,
		"voice":           speechVoice,
		"input":           text,
		"response_format": "mp3",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal speech request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/audio/speech", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("new speech request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(ctx, "speech", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxSpeechAudio))
	if err != nil {
		return nil, fmt.Errorf("read speech audio: %w", err)
	}
	return audio, nil
}
