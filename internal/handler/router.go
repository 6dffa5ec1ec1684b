package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/estately/internal/metrics"
	"github.com/hitoshi/estately/internal/middleware"
)

// HealthChecker はヘルスチェックで疎通確認する対象。*sql.DBが満たす。
type HealthChecker interface {
	Ping() error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig

	// ヘルスチェック
	HealthChecker HealthChecker

	// メトリクス。Collectorがnilの場合は記録しない。
	// MetricsHandlerがnilでない場合、/metricsにマウントする。
	Collector      metrics.MetricsCollector
	MetricsHandler http.Handler

	// ペルソナ
	PersonaService PersonaServiceInterface

	// 賃貸申込
	RentalService RentalServiceInterface

	// 物件スレッド
	ThreadService ThreadServiceInterface

	// 通知
	NotificationService NotificationServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → Metrics → Session → CSRF → RateLimit(General)
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// 全ルートに効くミドルウェア
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewMetricsMiddleware(deps.Collector))

	personaHandler := NewPersonaHandler(deps.PersonaService, deps.Collector)
	rentalHandler := NewRentalHandler(deps.RentalService)
	threadHandler := NewThreadHandler(deps.ThreadService)
	notificationHandler := NewNotificationHandler(deps.NotificationService)

	// --- 認証不要のルート ---

	// ヘルスチェック（DBへの疎通確認を含む）
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if deps.HealthChecker != nil {
			if err := deps.HealthChecker.Ping(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Prometheusスクレイプエンドポイント
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// CSRFトークン取得エンドポイント
	r.Handle("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// ペルソナ解決・管理
		r.Route("/api/persona", func(r chi.Router) {
			r.Post("/resolve", personaHandler.Resolve)
			r.Post("/", personaHandler.AddPersona)
			r.Post("/onboarding/complete", personaHandler.CompleteOnboarding)
		})

		// 賃貸申込
		r.Route("/api/rental-applications", func(r chi.Router) {
			r.Post("/", rentalHandler.Create)
			r.Get("/", rentalHandler.List)
			r.Patch("/{id}/decision", rentalHandler.Decide)
		})

		// 物件スレッド
		r.Route("/api/threads", func(r chi.Router) {
			r.Post("/", threadHandler.CreateThread)

			// POST /api/threads/{id}/messages - メッセージ送信（送信専用レート制限を追加）
			r.With(deps.RateLimiter.MessageSendMiddleware()).Post("/{id}/messages", threadHandler.SendMessage)
		})

		// GET /api/properties/{id}/threads - 物件ごとのスレッド一覧
		r.Get("/api/properties/{id}/threads", threadHandler.ListThreads)

		// 通知
		r.Route("/api/notifications", func(r chi.Router) {
			r.Get("/", notificationHandler.List)
			r.Get("/preferences", notificationHandler.GetPreference)
			r.Put("/preferences", notificationHandler.UpdatePreference)
		})
	})

	return r
}
