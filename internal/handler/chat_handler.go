package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/healscope/internal/conversation"
	"github.com/hitoshi/healscope/internal/model"
)

// ChatServiceInterface はチャットハンドラーが必要とするサービスインターフェース。
type ChatServiceInterface interface {
	Send(ctx context.Context, owner string, in conversation.SendInput) (*conversation.SendResult, error)
	List(ctx context.Context, owner string) ([]*model.Conversation, error)
	Get(ctx context.Context, owner, id string) (*model.Conversation, error)
	Delete(ctx context.Context, owner, id string) error
}

// ChatHandler はチャット履歴のHTTPハンドラー。
type ChatHandler struct {
	service ChatServiceInterface
}

// NewChatHandler はChatHandlerを生成する。
func NewChatHandler(service ChatServiceInterface) *ChatHandler {
	return &ChatHandler{service: service}
}

// --- リクエスト/レスポンス型 ---

// chatMessageRequest は会話作成・追記リクエストのボディ。
type chatMessageRequest struct {
	Message  string `json:"message"`
	Language string `json:"language"`
}

// turnResponse は会話内の1発言のレスポンス。
type turnResponse struct {
	Sender    model.Sender `json:"sender"`
	Text      string       `json:"text"`
	Timestamp time.Time    `json:"timestamp"`
}

// chatResponse は会話のレスポンス。messagesは詳細取得時のみ含む。
type chatResponse struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Preview   string         `json:"preview"`
	Messages  []turnResponse `json:"messages,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func toChatResponse(c *model.Conversation) chatResponse {
	resp := chatResponse{
		ID:        c.ID,
		Title:     c.Title,
		Preview:   c.Preview,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if len(c.Turns) > 0 {
		resp.Messages = make([]turnResponse, len(c.Turns))
		for i, t := range c.Turns {
			resp.Messages[i] = turnResponse{Sender: t.Sender, Text: t.Text, Timestamp: t.CreatedAt}
		}
	}
	return resp
}

// ListChats はユーザーの会話サマリーを更新日時の新しい順に返す。
// GET /api/chats
func (h *ChatHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	convs, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	chats := make([]chatResponse, len(convs))
	for i, c := range convs {
		chats[i] = toChatResponse(c)
	}
	writeSuccess(w, http.StatusOK, envelope{"chats": chats})
}

// GetChat は会話を全発言付きで返す。
// GET /api/chats/{id}
func (h *ChatHandler) GetChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	conv, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"chat": toChatResponse(conv)})
}

// CreateChat は最初の発言で新しい会話を作成し、応答を返す。
// POST /api/chats
func (h *ChatHandler) CreateChat(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, "", http.StatusCreated)
}

// AppendChat は既存の会話に発言を追記し、応答を返す。
// PUT /api/chats/{id}
func (h *ChatHandler) AppendChat(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, chi.URLParam(r, "id"), http.StatusOK)
}

func (h *ChatHandler) send(w http.ResponseWriter, r *http.Request, conversationID string, status int) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req chatMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.Send(r.Context(), userID, conversation.SendInput{
		ConversationID: conversationID,
		Message:        req.Message,
		Language:       req.Language,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, status, envelope{
		"chat":     toChatResponse(result.Conversation),
		"response": result.Reply,
	})
}

// DeleteChat は会話を削除する。
// DELETE /api/chats/{id}
func (h *ChatHandler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"message": "Chat deleted successfully"})
}
