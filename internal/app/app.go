package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/hitoshi/healscope/internal/article"
	"github.com/hitoshi/healscope/internal/auth"
	"github.com/hitoshi/healscope/internal/config"
	"github.com/hitoshi/healscope/internal/conversation"
	"github.com/hitoshi/healscope/internal/database"
	"github.com/hitoshi/healscope/internal/genai"
	"github.com/hitoshi/healscope/internal/handler"
	"github.com/hitoshi/healscope/internal/logger"
	"github.com/hitoshi/healscope/internal/medication"
	"github.com/hitoshi/healscope/internal/metrics"
	"github.com/hitoshi/healscope/internal/middleware"
	"github.com/hitoshi/healscope/internal/repository"
	"github.com/hitoshi/healscope/internal/scan"
	"github.com/hitoshi/healscope/internal/security"
	"github.com/hitoshi/healscope/internal/worker/cleanup"
	"github.com/hitoshi/healscope/internal/worker/ingest"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込み前にもログを使えるようにする
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// openDatabase はプール設定付きでDBを開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// rateLimiterConfig は設定のreq/minをreq/secのレートに変換する。
// 0以下の値は既定値のままにする。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rl := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rl.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rl.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitAI > 0 {
		rl.AIRate = rate.Limit(float64(cfg.RateLimitAI) / 60.0)
		rl.AIBurst = cfg.RateLimitAI
	}
	return rl
}

// newRegistry はプロセス・Goランタイムのコレクタを含むレジストリを返す。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// buildRouterDeps はDB接続から全依存関係をワイヤリングする。
func buildRouterDeps(cfg *config.Config, db *sql.DB, collector *metrics.Collector, reg prometheus.Gatherer, limiter *middleware.RateLimiter) *handler.RouterDeps {
	// リポジトリ
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	articleRepo := repository.NewPostgresArticleRepo(db)
	conversationRepo := repository.NewPostgresConversationRepo(db)
	scanRepo := repository.NewPostgresHealthScanRepo(db)
	medicationRepo := repository.NewPostgresMedicationRepo(db)

	// 外部AI
	aiClient := &http.Client{Timeout: cfg.AITimeout}
	gemini := genai.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel, aiClient, slog.Default()).WithRecorder(collector)
	openai := genai.NewOpenAIClient(cfg.OpenAIAPIKey, aiClient, slog.Default()).WithRecorder(collector)
	if !gemini.Configured() {
		slog.Warn("GEMINI_API_KEY is not set; chat and face analysis are disabled")
	}
	if !openai.Configured() {
		slog.Warn("OPENAI_API_KEY is not set; speech endpoints are disabled")
	}

	// ドメインサービス
	textSanitizer := security.NewTextSanitizer()
	authService := auth.NewService(userRepo, sessionRepo, auth.NewTokenManager(cfg.SessionSecret), auth.ServiceConfig{
		SessionMaxAge: cfg.SessionMaxAge,
		BcryptCost:    cfg.BcryptCost,
	})

	return &handler.RouterDeps{
		Authenticator:     authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       limiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		Logger: slog.Default(),

		HealthChecker:   db,
		MetricsRecorder: collector,
		MetricsHandler:  metrics.Handler(reg),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		ArticleService:  article.NewArticleService(articleRepo),
		ArticleLocation: time.Local,

		ChatService:       conversation.NewChatService(conversationRepo, gemini, textSanitizer, slog.Default()),
		ScanService:       scan.NewScanService(scanRepo, gemini, textSanitizer, slog.Default()),
		MedicationService: medication.NewMedicationService(medicationRepo, textSanitizer),
		SpeechService:     openai,
	}
}

// runServe はAPIサーバーモードで起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	limiter := middleware.NewRateLimiter(rateLimiterConfig(cfg))
	defer limiter.Stop()

	router := handler.NewRouter(buildRouterDeps(cfg, db, collector, reg, limiter))

	// AI呼び出しを待つため書き込みタイムアウトは長めにとる
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 取り込み元を登録し、セッションクリーンアップと記事取り込みスケジューラを起動する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	sources, err := config.LoadSources(cfg.ArticleSourcesFile)
	if err != nil {
		return fmt.Errorf("failed to load article sources: %w", err)
	}

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	sourceRepo := repository.NewPostgresArticleSourceRepo(db)
	articleRepo := repository.NewPostgresArticleRepo(db)

	if err := ingest.SeedSources(ctx, sourceRepo, sources, slog.Default()); err != nil {
		return err
	}

	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	ingestService := article.NewIngestService(articleRepo, security.NewArticleSanitizer())
	fetcher := ingest.NewFetcher(
		sourceRepo, ingestService, security.NewURLGuard(), collector,
		slog.Default(), cfg.FetchTimeout, cfg.FetchMaxSize,
	)
	scheduler := ingest.NewScheduler(sourceRepo, fetcher, slog.Default(), cfg.FetchMaxConcurrent)

	cleanupJob := cleanup.NewCleanupJob(db, slog.Default())
	go cleanupJob.Start(ctx)

	slog.Info("worker starting",
		slog.Duration("fetch_interval", cfg.FetchInterval),
		slog.Int("max_concurrent", cfg.FetchMaxConcurrent),
		slog.Int("seeded_sources", len(sources)),
	)

	// スケジューラはctxがキャンセルされるまでブロックする
	scheduler.Start(ctx, cfg.FetchInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
