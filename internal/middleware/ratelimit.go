package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/healscope/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般のレート（req/sec）。120/60 = 2 req/sec
	GeneralBurst    int           // API全般のバーストサイズ
	AIRate          rate.Limit    // AI呼び出しを伴うAPIのレート（req/sec）。20/60
	AIBurst         int           // AI呼び出しを伴うAPIのバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min/client、AI 20 req/min/user
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(120.0 / 60.0),
		GeneralBurst:    120,
		AIRate:          rate.Limit(20.0 / 60.0),
		AIBurst:         20,
		CleanupInterval: 5 * time.Minute,
	}
}

// clientLimiter はクライアントごとのレートリミッターとアクセス時刻を保持する。
type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet は同一設定のリミッターをクライアントキーごとに保持する。
type limiterSet struct {
	mu       sync.RWMutex
	limiters map[string]*clientLimiter
	limit    rate.Limit
	burst    int
}

func newLimiterSet(limit rate.Limit, burst int) *limiterSet {
	return &limiterSet{
		limiters: make(map[string]*clientLimiter),
		limit:    limit,
		burst:    burst,
	}
}

// get はクライアントのリミッターを取得または作成する。
func (s *limiterSet) get(key string) *rate.Limiter {
	s.mu.RLock()
	cl, exists := s.limiters[key]
	s.mu.RUnlock()

	if exists {
		s.mu.Lock()
		cl.lastAccess = time.Now()
		s.mu.Unlock()
		return cl.limiter
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// ダブルチェック
	if cl, exists := s.limiters[key]; exists {
		cl.lastAccess = time.Now()
		return cl.limiter
	}

	limiter := rate.NewLimiter(s.limit, s.burst)
	s.limiters[key] = &clientLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}
	return limiter
}

// evict は最終アクセスからttlを超えたエントリを削除する。
func (s *limiterSet) evict(now time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, cl := range s.limiters {
		if now.Sub(cl.lastAccess) > ttl {
			delete(s.limiters, key)
		}
	}
}

func (s *limiterSet) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.limiters)
}

// RateLimiter はクライアントごとのレート制限を管理する。
// API全般のレート制限とAI呼び出しのレート制限の2種類を提供する。
type RateLimiter struct {
	config  RateLimiterConfig
	general *limiterSet
	ai      *limiterSet

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:  config,
		general: newLimiterSet(config.GeneralRate, config.GeneralBurst),
		ai:      newLimiterSet(config.AIRate, config.AIBurst),
		stopCh:  make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// 認証済みならユーザーID、未認証ならリモートIPをキーとする。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.general, "general")
}

// AIMiddleware はAI呼び出しを伴うAPI専用のレート制限ミドルウェアを返す。
// API全般のレート制限とは独立に動作する。SessionMiddlewareの後に配置する。
func (rl *RateLimiter) AIMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.ai, "ai")
}

func (rl *RateLimiter) middleware(set *limiterSet, limitType string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)
			if !set.get(key).Allow() {
				writeRateLimitResponse(w, set.limit)
				slog.Warn("rate limit exceeded",
					slog.String("client", key),
					slog.String("limit_type", limitType),
				)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.count()
}

// AILimiterCount は現在管理されているAIリミッターのエントリ数を返す。
func (rl *RateLimiter) AILimiterCount() int {
	return rl.ai.count()
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	now := time.Now()
	ttl := rl.config.CleanupInterval * 2
	rl.general.evict(now, ttl)
	rl.ai.evict(now, ttl)
}

// clientKey はレート制限のキーを返す。
func clientKey(r *http.Request) string {
	if userID, err := UserIDFromContext(r.Context()); err == nil {
		return "user:" + userID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitedError())
}
