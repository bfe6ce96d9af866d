package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/healscope/internal/article"
	"github.com/hitoshi/healscope/internal/auth"
	"github.com/hitoshi/healscope/internal/conversation"
	"github.com/hitoshi/healscope/internal/medication"
	"github.com/hitoshi/healscope/internal/middleware"
	"github.com/hitoshi/healscope/internal/model"
	"github.com/hitoshi/healscope/internal/scan"
)

// --- モック定義 ---

// mockArticleService はArticleServiceInterfaceのモック実装。
type mockArticleService struct {
	listFn       func(ctx context.Context, q model.ArticleQuery) (*article.ListResult, error)
	getBySlugFn  func(ctx context.Context, slug string) (*model.Article, error)
	featuredFn   func(ctx context.Context) ([]*model.Article, error)
	categoriesFn func(ctx context.Context) ([]string, error)
	byCategoryFn func(ctx context.Context, category string) ([]*model.Article, error)
	recordViewFn func(ctx context.Context, id string) (int64, error)
	likeFn       func(ctx context.Context, id, action string) (int64, error)
}

func (m *mockArticleService) List(ctx context.Context, q model.ArticleQuery) (*article.ListResult, error) {
	if m.listFn != nil {
		return m.listFn(ctx, q)
	}
	return &article.ListResult{}, nil
}

func (m *mockArticleService) GetBySlug(ctx context.Context, slug string) (*model.Article, error) {
	if m.getBySlugFn != nil {
		return m.getBySlugFn(ctx, slug)
	}
	return nil, model.NewArticleNotFoundError(slug)
}

func (m *mockArticleService) Featured(ctx context.Context) ([]*model.Article, error) {
	if m.featuredFn != nil {
		return m.featuredFn(ctx)
	}
	return nil, nil
}

func (m *mockArticleService) Categories(ctx context.Context) ([]string, error) {
	if m.categoriesFn != nil {
		return m.categoriesFn(ctx)
	}
	return []string{model.CategoryAll}, nil
}

func (m *mockArticleService) ByCategory(ctx context.Context, category string) ([]*model.Article, error) {
	if m.byCategoryFn != nil {
		return m.byCategoryFn(ctx, category)
	}
	return nil, nil
}

func (m *mockArticleService) RecordView(ctx context.Context, id string) (int64, error) {
	if m.recordViewFn != nil {
		return m.recordViewFn(ctx, id)
	}
	return 0, nil
}

func (m *mockArticleService) Like(ctx context.Context, id, action string) (int64, error) {
	if m.likeFn != nil {
		return m.likeFn(ctx, id, action)
	}
	return 0, nil
}

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	registerFn       func(ctx context.Context, in auth.RegisterInput) (*auth.LoginResult, error)
	loginFn          func(ctx context.Context, email, password string) (*auth.LoginResult, error)
	logoutFn         func(ctx context.Context, sessionID string) error
	getCurrentUserFn func(ctx context.Context, userID string) (*model.User, error)
}

func (m *mockAuthService) Register(ctx context.Context, in auth.RegisterInput) (*auth.LoginResult, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, in)
	}
	return nil, nil
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*auth.LoginResult, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, model.NewInvalidCredentialsError()
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, userID string) (*model.User, error) {
	if m.getCurrentUserFn != nil {
		return m.getCurrentUserFn(ctx, userID)
	}
	return nil, model.NewUserNotFoundError()
}

// mockChatService はChatServiceInterfaceのモック実装。
type mockChatService struct {
	sendFn   func(ctx context.Context, owner string, in conversation.SendInput) (*conversation.SendResult, error)
	listFn   func(ctx context.Context, owner string) ([]*model.Conversation, error)
	getFn    func(ctx context.Context, owner, id string) (*model.Conversation, error)
	deleteFn func(ctx context.Context, owner, id string) error
}

func (m *mockChatService) Send(ctx context.Context, owner string, in conversation.SendInput) (*conversation.SendResult, error) {
	if m.sendFn != nil {
		return m.sendFn(ctx, owner, in)
	}
	return nil, model.NewUpstreamFailedError("AI")
}

func (m *mockChatService) List(ctx context.Context, owner string) ([]*model.Conversation, error) {
	if m.listFn != nil {
		return m.listFn(ctx, owner)
	}
	return nil, nil
}

func (m *mockChatService) Get(ctx context.Context, owner, id string) (*model.Conversation, error) {
	if m.getFn != nil {
		return m.getFn(ctx, owner, id)
	}
	return nil, model.NewConversationNotFoundError(id)
}

func (m *mockChatService) Delete(ctx context.Context, owner, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, owner, id)
	}
	return nil
}

// mockScanService はScanServiceInterfaceのモック実装。
type mockScanService struct {
	createFn      func(ctx context.Context, owner string, in scan.CreateInput) (*model.HealthScan, error)
	listFn        func(ctx context.Context, owner string) ([]*model.HealthScan, error)
	getFn         func(ctx context.Context, owner, id string) (*model.HealthScan, error)
	deleteFn      func(ctx context.Context, owner, id string) error
	analyzeFaceFn func(ctx context.Context, owner, scanType string, image []byte, mimeType string) (*scan.FaceAnalysis, error)
}

func (m *mockScanService) Create(ctx context.Context, owner string, in scan.CreateInput) (*model.HealthScan, error) {
	if m.createFn != nil {
		return m.createFn(ctx, owner, in)
	}
	return nil, nil
}

func (m *mockScanService) List(ctx context.Context, owner string) ([]*model.HealthScan, error) {
	if m.listFn != nil {
		return m.listFn(ctx, owner)
	}
	return nil, nil
}

func (m *mockScanService) Get(ctx context.Context, owner, id string) (*model.HealthScan, error) {
	if m.getFn != nil {
		return m.getFn(ctx, owner, id)
	}
	return nil, model.NewScanNotFoundError(id)
}

func (m *mockScanService) Delete(ctx context.Context, owner, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, owner, id)
	}
	return nil
}

func (m *mockScanService) AnalyzeFace(ctx context.Context, owner, scanType string, image []byte, mimeType string) (*scan.FaceAnalysis, error) {
	if m.analyzeFaceFn != nil {
		return m.analyzeFaceFn(ctx, owner, scanType, image, mimeType)
	}
	return nil, model.NewNotConfiguredError("Gemini")
}

// mockMedicationService はMedicationServiceInterfaceのモック実装。
type mockMedicationService struct {
	createFn func(ctx context.Context, owner string, in medication.CreateInput) (*model.Medication, error)
	listFn   func(ctx context.Context, owner string) ([]*model.Medication, error)
	updateFn func(ctx context.Context, owner, id string, patch model.MedicationPatch) (*model.Medication, error)
	deleteFn func(ctx context.Context, owner, id string) error
}

func (m *mockMedicationService) Create(ctx context.Context, owner string, in medication.CreateInput) (*model.Medication, error) {
	if m.createFn != nil {
		return m.createFn(ctx, owner, in)
	}
	return nil, nil
}

func (m *mockMedicationService) List(ctx context.Context, owner string) ([]*model.Medication, error) {
	if m.listFn != nil {
		return m.listFn(ctx, owner)
	}
	return nil, nil
}

func (m *mockMedicationService) Update(ctx context.Context, owner, id string, patch model.MedicationPatch) (*model.Medication, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, owner, id, patch)
	}
	return nil, model.NewMedicationNotFoundError(id)
}

func (m *mockMedicationService) Delete(ctx context.Context, owner, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, owner, id)
	}
	return nil
}

// mockSpeechService はSpeechServiceInterfaceのモック実装。
type mockSpeechService struct {
	configured   bool
	transcribeFn func(ctx context.Context, audio []byte, filename string) (string, error)
	speakFn      func(ctx context.Context, text string) ([]byte, error)
}

func (m *mockSpeechService) Configured() bool { return m.configured }

func (m *mockSpeechService) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if m.transcribeFn != nil {
		return m.transcribeFn(ctx, audio, filename)
	}
	return "", nil
}

func (m *mockSpeechService) Speak(ctx context.Context, text string) ([]byte, error) {
	if m.speakFn != nil {
		return m.speakFn(ctx, text)
	}
	return nil, nil
}

// --- ヘルパー ---

// withUserID はテスト用に認証済みユーザーIDをコンテキストに設定するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディから統一エラーレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, body []byte) middleware.ErrorResponseBody {
	t.Helper()
	var resp middleware.ErrorResponseBody
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("failed to parse error response: %v (body=%s)", err, body)
	}
	return resp
}

// decodeBody はレスポンスボディをmapにデコードするヘルパー。
func decodeBody(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		t.Fatalf("failed to decode body: %v (body=%s)", err, body)
	}
	return m
}

// assertSuccess はsuccess=trueの成功レスポンスであることを検証し、ボディを返す。
func assertSuccess(t *testing.T, status, wantStatus int, body []byte) map[string]any {
	t.Helper()
	if status != wantStatus {
		t.Fatalf("status = %d, want %d (body=%s)", status, wantStatus, body)
	}
	m := decodeBody(t, body)
	if m["success"] != true {
		t.Errorf("success = %v, want true", m["success"])
	}
	return m
}
