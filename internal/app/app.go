package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/estately/internal/config"
	"github.com/hitoshi/estately/internal/database"
	"github.com/hitoshi/estately/internal/events"
	"github.com/hitoshi/estately/internal/handler"
	"github.com/hitoshi/estately/internal/logger"
	"github.com/hitoshi/estately/internal/metrics"
	"github.com/hitoshi/estately/internal/middleware"
	"github.com/hitoshi/estately/internal/model"
	"github.com/hitoshi/estately/internal/notification"
	"github.com/hitoshi/estately/internal/persona"
	"github.com/hitoshi/estately/internal/rentalapp"
	"github.com/hitoshi/estately/internal/repository"
	"github.com/hitoshi/estately/internal/security"
	"github.com/hitoshi/estately/internal/thread"
	"github.com/hitoshi/estately/internal/worker/cleanup"
	"github.com/hitoshi/estately/internal/worker/dispatch"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
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
		port := os.Getenv("SERVER_PORT")
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

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	personaRepo := repository.NewPostgresPersonaRepo(db)
	invitationRepo := repository.NewPostgresInvitationRepo(db)
	propertyRepo := repository.NewPostgresPropertyRepo(db)
	rentalRepo := repository.NewPostgresRentalApplicationRepo(db)
	threadRepo := repository.NewPostgresThreadRepo(db)
	notificationRepo := repository.NewPostgresNotificationRepo(db)
	eventRepo := repository.NewPostgresEventRepo(db)
	txBeginner := repository.NewTxBeginner(db)

	// 3. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()

	// 4. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 5. ドメインサービスの初期化
	eventService := events.NewService(txBeginner, eventRepo)
	eventService.SetCollector(collector)

	personaStore := persona.NewStore(personaRepo)
	resolver := persona.NewResolver(userRepo, invitationRepo, personaStore)

	rentalService := rentalapp.NewService(db, txBeginner, propertyRepo, rentalRepo, eventService, ssrfGuard)
	threadService := thread.NewService(txBeginner, propertyRepo, threadRepo, eventService, sanitizer)
	notificationService := notification.NewService(notificationRepo)

	// 6. ルーターの構築
	// configのレート値はreq/min単位なのでreq/secに変換する
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.MessageRate = rate.Limit(float64(cfg.RateLimitMessage) / 60.0)
	rateLimiterCfg.MessageBurst = cfg.RateLimitMessage

	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		HealthChecker:     db,
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},

		Collector:      collector,
		MetricsHandler: metrics.Handler(registry),

		PersonaService:      resolver,
		RentalService:       rentalService,
		ThreadService:       threadService,
		NotificationService: notificationService,
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、アウトボックスディスパッチャを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	// ワーカーはバッチ処理中心のため小さめのプールで十分
	pool := database.DefaultPoolConfig()
	pool.MaxOpenConns = 10
	db, err := database.Open(cfg.DatabaseURL, pool)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	notificationRepo := repository.NewPostgresNotificationRepo(db)
	eventRepo := repository.NewPostgresEventRepo(db)
	outboxRepo := repository.NewPostgresOutboxRepo(db)
	txBeginner := repository.NewTxBeginner(db)

	// 3. 配信チャネルの初期化
	ssrfGuard := security.NewSSRFGuard()
	notificationService := notification.NewService(notificationRepo)

	notifiers := map[model.NotificationChannel]dispatch.Notifier{
		model.ChannelInApp: dispatch.NewInAppNotifier(notificationService),
		model.ChannelEmail: dispatch.NewEmailNotifier(
			dispatch.NewLogMailer(slog.Default()), userRepo, notificationService,
		),
		model.ChannelPush: dispatch.NewPushNotifier(ssrfGuard, cfg.PushWebhookURL, slog.Default()),
	}

	// 4. メトリクスとディスパッチャの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	dispatcher := dispatch.NewDispatcher(
		txBeginner, eventRepo, outboxRepo, notifiers,
		collector, slog.Default(),
		cfg.DispatchBatchSize, cfg.DispatchMaxAttempts,
	)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	// 5. クリーンアップジョブの起動（日次）
	cleanupJob := cleanup.NewCleanupJob(db, slog.Default())
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := cleanupJob.Run(ctx); err != nil {
					slog.Error("cleanup job failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	slog.Info("worker starting",
		slog.Duration("dispatch_interval", cfg.DispatchInterval),
		slog.Int("batch_size", cfg.DispatchBatchSize),
		slog.Int("max_attempts", cfg.DispatchMaxAttempts),
	)

	// ディスパッチャをメインgoroutineで実行（ブロッキング）
	dispatcher.Start(ctx, cfg.DispatchInterval)

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
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
