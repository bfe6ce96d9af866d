package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/healscope/internal/conversation"
	"github.com/hitoshi/healscope/internal/model"
)

const (
	// maxImageUploadBytes は画像解析でアップロードできる最大サイズ。
	maxImageUploadBytes = 10 << 20
	// maxAudioUploadBytes は文字起こしでアップロードできる最大サイズ。
	maxAudioUploadBytes = 25 << 20
	// maxMultipartMemory はマルチパート解析時にメモリへ保持する上限。超過分は一時ファイルに書き出される。
	maxMultipartMemory = 8 << 20
	// maxSpeechTextLength は音声合成できるテキストの最大文字数。
	maxSpeechTextLength = 4096
)

// SpeechServiceInterface は音声の文字起こしと合成を行うクライアントのインターフェース。
type SpeechServiceInterface interface {
	Configured() bool
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
	Speak(ctx context.Context, text string) ([]byte, error)
}

// MLHandler はAI機能のHTTPハンドラー。
type MLHandler struct {
	chat   ChatServiceInterface
	scans  ScanServiceInterface
	speech SpeechServiceInterface
	logger *slog.Logger
}

// NewMLHandler はMLHandlerを生成する。
func NewMLHandler(chat ChatServiceInterface, scans ScanServiceInterface, speech SpeechServiceInterface, logger *slog.Logger) *MLHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MLHandler{
		chat:   chat,
		scans:  scans,
		speech: speech,
		logger: logger,
	}
}

// historyTurn はクライアントが保持する過去の発言。
type historyTurn struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// mlChatRequest はAIチャットリクエストのボディ。
type mlChatRequest struct {
	Message  string        `json:"message"`
	History  []historyTurn `json:"history"`
	Language string        `json:"language"`
	ChatID   string        `json:"chatId"`
}

// speechRequest は音声合成リクエストのボディ。
type speechRequest struct {
	Text string `json:"text"`
}

// toTurns はクライアントの履歴を到着順のターンに変換する。未知の発言者と空の発言は除外する。
func toTurns(history []historyTurn) []model.Turn {
	turns := make([]model.Turn, 0, len(history))
	for _, h := range history {
		sender := model.Sender(h.Sender)
		if sender != model.SenderUser && sender != model.SenderAssistant {
			continue
		}
		if strings.TrimSpace(h.Text) == "" {
			continue
		}
		turns = append(turns, model.Turn{Seq: len(turns) + 1, Sender: sender, Text: h.Text})
	}
	return turns
}

// Chat は発言に対するAIの応答を返し、会話履歴に記録する。
// chatIdが指定された場合は既存の会話に追記する。
// POST /api/ml/chat
func (h *MLHandler) Chat(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req mlChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.chat.Send(r.Context(), userID, conversation.SendInput{
		ConversationID: req.ChatID,
		Message:        req.Message,
		Language:       req.Language,
		History:        toTurns(req.History),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, envelope{
		"response": result.Reply,
		"chatId":   result.Conversation.ID,
	})
}

// AnalyzeFace はアップロードされた画像を解析し、結果をスキャン履歴に保存する。
// POST /api/ml/analyze-face (multipart: image, scanType)
func (h *MLHandler) AnalyzeFace(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	image, header, ok := h.readUpload(w, r, "image", maxImageUploadBytes)
	if !ok {
		return
	}
	if image == nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("No image uploaded"))
		return
	}

	result, err := h.scans.AnalyzeFace(r.Context(), userID, r.FormValue("scanType"), image, uploadContentType(header, image))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	data := map[string]any{
		"id":              result.Scan.ID,
		"scanType":        result.Scan.ScanType,
		"result":          result.Scan.Result,
		"confidence":      result.Scan.Confidence,
		"notes":           result.Scan.Notes,
		"status":          result.Scan.Status,
		"createdAt":       result.Scan.CreatedAt,
		"recommendations": result.Recommendations,
	}
	writeSuccess(w, http.StatusOK, envelope{
		"message": "Analysis complete",
		"data":    data,
	})
}

// SpeechToText はアップロードされた音声を文字起こしする。
// POST /api/ml/speech-to-text (multipart: audio)
func (h *MLHandler) SpeechToText(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}
	if !h.speech.Configured() {
		handleServiceError(w, model.NewNotConfiguredError("OpenAI"))
		return
	}

	audio, header, ok := h.readUpload(w, r, "audio", maxAudioUploadBytes)
	if !ok {
		return
	}
	if audio == nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("No audio file uploaded"))
		return
	}

	transcript, err := h.speech.Transcribe(r.Context(), audio, header.Filename)
	if err != nil {
		h.handleSpeechError(w, "transcribe", err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"transcript": transcript})
}

// TextToSpeech はテキストを音声合成し、MP3データを返す。
// POST /api/ml/text-to-speech
func (h *MLHandler) TextToSpeech(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}
	if !h.speech.Configured() {
		handleServiceError(w, model.NewNotConfiguredError("OpenAI"))
		return
	}

	var req speechRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("Text is required"))
		return
	}
	if utf8.RuneCountInString(text) > maxSpeechTextLength {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("Text is too long"))
		return
	}

	audio, err := h.speech.Speak(r.Context(), text)
	if err != nil {
		h.handleSpeechError(w, "speech", err)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio); err != nil {
		h.logger.Warn("failed to write speech audio", slog.String("error", err.Error()))
	}
}

// readUpload はマルチパートフォームから指定フィールドのファイルを読み出す。
// フィールドが存在しない場合はnilデータとokを返す。解析に失敗した場合はエラーを書き込みokにfalseを返す。
func (h *MLHandler) readUpload(w http.ResponseWriter, r *http.Request, field string, limit int64) ([]byte, *multipart.FileHeader, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("Uploaded file is too large"))
			return nil, nil, false
		}
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return nil, nil, false
	}

	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil, true
	}
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return nil, nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		handleServiceError(w, fmt.Errorf("read upload %s: %w", field, err))
		return nil, nil, false
	}
	if len(data) == 0 {
		return nil, header, true
	}
	return data, header, true
}

// handleSpeechError は音声APIのエラーをログに記録し、レスポンスに変換する。
func (h *MLHandler) handleSpeechError(w http.ResponseWriter, operation string, err error) {
	if errors.Is(err, context.Canceled) {
		handleServiceError(w, err)
		return
	}
	h.logger.Error("speech request failed",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
	handleServiceError(w, model.NewUpstreamFailedError("OpenAI"))
}

// uploadContentType はパートのContent-Typeを返す。未指定の場合は内容から判定する。
func uploadContentType(header *multipart.FileHeader, data []byte) string {
	if header != nil {
		if ct := header.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
			return ct
		}
	}
	return http.DetectContentType(data)
}
