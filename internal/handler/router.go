package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/healscope/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Authenticator     middleware.Authenticator
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger

	// 監視
	HealthChecker   HealthChecker
	MetricsRecorder middleware.HTTPRecorder
	MetricsHandler  http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 記事
	ArticleService  ArticleServiceInterface
	ArticleLocation *time.Location

	// チャット・健康スキャン・服薬
	ChatService       ChatServiceInterface
	ScanService       ScanServiceInterface
	MedicationService MedicationServiceInterface

	// 音声
	SpeechService SpeechServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// グローバルミドルウェアの実行順序:
//
//	RealIP → Recovery → Logging → Metrics → SecurityHeaders → CORS
//
// 認証が必要なルートは Session → RateLimit(General) → CSRF を通過し、
// AI呼び出しを伴うルートにはさらにRateLimit(AI)を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.MetricsRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.MetricsRecorder))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	healthHandler := NewHealthHandler(deps.HealthChecker)
	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	articleHandler := NewArticleHandler(deps.ArticleService, deps.ArticleLocation)
	chatHandler := NewChatHandler(deps.ChatService)
	scanHandler := NewScanHandler(deps.ScanService)
	medHandler := NewMedicationHandler(deps.MedicationService)
	mlHandler := NewMLHandler(deps.ChatService, deps.ScanService, deps.SpeechService, logger)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler.Liveness)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Get("/api/health", healthHandler.APIHealth)
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 記事（公開）
		r.Route("/api/articles", func(r chi.Router) {
			r.Get("/", articleHandler.ListArticles)
			r.Get("/featured", articleHandler.FeaturedArticles)
			r.Get("/categories", articleHandler.ListCategories)
			r.Get("/category/{category}", articleHandler.ArticlesByCategory)
			r.Get("/{slug}", articleHandler.GetArticle)
			r.Post("/{id}/view", articleHandler.RecordView)
			r.Post("/{id}/like", articleHandler.LikeArticle)
		})

		// 登録・ログイン
		r.Post("/api/auth/register", authHandler.Register)
		r.Post("/api/auth/login", authHandler.Login)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General) → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.Authenticator))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		ai := deps.RateLimiter.AIMiddleware()

		r.Post("/api/auth/logout", authHandler.Logout)
		r.Get("/api/auth/me", authHandler.Me)

		// チャット履歴（書き込みは応答生成を伴うためAI用の制限を追加）
		r.Route("/api/chats", func(r chi.Router) {
			r.Get("/", chatHandler.ListChats)
			r.With(ai).Post("/", chatHandler.CreateChat)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", chatHandler.GetChat)
				r.With(ai).Put("/", chatHandler.AppendChat)
				r.Delete("/", chatHandler.DeleteChat)
			})
		})

		// 健康スキャン
		r.Route("/api/health-scans", func(r chi.Router) {
			r.Get("/", scanHandler.ListScans)
			r.Post("/", scanHandler.CreateScan)
			r.Get("/{id}", scanHandler.GetScan)
			r.Delete("/{id}", scanHandler.DeleteScan)
		})

		// 服薬
		r.Route("/api/medications", func(r chi.Router) {
			r.Get("/", medHandler.ListMedications)
			r.Post("/", medHandler.CreateMedication)
			r.Put("/{id}", medHandler.UpdateMedication)
			r.Delete("/{id}", medHandler.DeleteMedication)
		})

		// AI機能
		r.Route("/api/ml", func(r chi.Router) {
			r.Use(ai)
			r.Post("/chat", mlHandler.Chat)
			r.Post("/analyze-face", mlHandler.AnalyzeFace)
			r.Post("/speech-to-text", mlHandler.SpeechToText)
			r.Post("/text-to-speech", mlHandler.TextToSpeech)
		})
	})

	return r
}
