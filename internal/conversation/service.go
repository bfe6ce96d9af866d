package conversation

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/healscope/internal/model"
	"github.com/hitoshi/healscope/internal/repository"
	"github.com/hitoshi/healscope/internal/security"
)

// DefaultLanguage は言語未指定時の応答言語。
const DefaultLanguage = "en"

// Generator はアシスタントの応答を生成するインターフェース。
// priorは到着順の過去のターン。
type Generator interface {
	Generate(ctx context.Context, prior []model.Turn, userText, language string) (string, error)
}

// ChatService はチャットの送信と履歴管理のサービス。
type ChatService struct {
	repo      repository.ConversationRepository
	generator Generator
	sanitizer security.Sanitizer
	logger    *slog.Logger
	now       func() time.Time
}

// NewChatService はChatServiceの新しいインスタンスを生成する。
func NewChatService(
	repo repository.ConversationRepository,
	generator Generator,
	sanitizer security.Sanitizer,
	logger *slog.Logger,
) *ChatService {
	return &ChatService{
		repo:      repo,
		generator: generator,
		sanitizer: sanitizer,
		logger:    logger,
		now:       time.Now,
	}
}

// SendInput はSendの入力。
type SendInput struct {
	ConversationID string // 空の場合は新しい会話を作成する
	Message        string
	Language       string
	// History はConversationIDが空のときに使う、クライアント保持の過去ターン。
	// ConversationIDが指定された場合は保存済みのターンを使う。
	History []model.Turn
}

// SendResult はSendの結果。
type SendResult struct {
	Conversation *model.Conversation
	Reply        string
}

// Send はユーザーの発言に対する応答を生成し、会話に記録する。
// 応答生成は書き込みより前に行い、失敗した場合は何も保存しない。
func (s *ChatService) Send(ctx context.Context, owner string, in SendInput) (*SendResult, error) {
	message := s.sanitizer.Sanitize(in.Message)
	if message == "" {
		return nil, model.NewValidationError("Message is required")
	}

	language := in.Language
	if language == "" {
		language = DefaultLanguage
	}

	prior := in.History
	if in.ConversationID != "" {
		conv, err := s.Get(ctx, owner, in.ConversationID)
		if err != nil {
			return nil, err
		}
		prior = conv.Turns
	}

	reply, err := s.generator.Generate(ctx, prior, message, language)
	if err != nil {
		s.logger.Error("failed to generate reply",
			slog.String("user_id", owner),
			slog.String("conversation_id", in.ConversationID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewUpstreamFailedError("AI")
	}

	conv, err := s.RecordTurn(ctx, owner, in.ConversationID, message, reply)
	if err != nil {
		return nil, err
	}
	return &SendResult{Conversation: conv, Reply: reply}, nil
}

// RecordTurn はユーザー発言とアシスタント応答の組を会話に記録する。
// conversationIDが空の場合は新しい会話を作成し、タイトルを最初の発言から決める。
// 指定された場合は所有者の会話に追記し、プレビューとupdated_atのみ更新する。
func (s *ChatService) RecordTurn(ctx context.Context, owner, conversationID, userText, assistantText string) (*model.Conversation, error) {
	now := s.now()
	turns := []model.Turn{
		{Sender: model.SenderUser, Text: userText, CreatedAt: now},
		{Sender: model.SenderAssistant, Text: assistantText, CreatedAt: now},
	}

	if conversationID == "" {
		conv := &model.Conversation{
			ID:        uuid.New().String(),
			UserID:    owner,
			Title:     Title(userText),
			Preview:   Preview(assistantText),
			Turns:     turns,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.Create(ctx, conv); err != nil {
			return nil, err
		}
		return conv, nil
	}

	if _, err := uuid.Parse(conversationID); err != nil {
		return nil, model.NewConversationNotFoundError(conversationID)
	}

	conv, err := s.repo.AppendTurns(ctx, owner, conversationID, turns, Preview(assistantText), now)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, model.NewConversationNotFoundError(conversationID)
	}
	return conv, nil
}

// List はユーザーの会話サマリーを更新日時の新しい順に返す。
func (s *ChatService) List(ctx context.Context, owner string) ([]*model.Conversation, error) {
	return s.repo.ListByUser(ctx, owner)
}

// Get は所有者の会話を全ターン付きで返す。他ユーザーの会話はNotFound。
func (s *ChatService) Get(ctx context.Context, owner, id string) (*model.Conversation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewConversationNotFoundError(id)
	}

	conv, err := s.repo.FindByIDAndUser(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, model.NewConversationNotFoundError(id)
	}
	return conv, nil
}

// Delete は所有者の会話を削除する。他ユーザーの会話はNotFound。
func (s *ChatService) Delete(ctx context.Context, owner, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return model.NewConversationNotFoundError(id)
	}

	deleted, err := s.repo.DeleteByIDAndUser(ctx, id, owner)
	if err != nil {
		return err
	}
	if !deleted {
		return model.NewConversationNotFoundError(id)
	}
	return nil
}
