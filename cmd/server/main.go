package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/d60-Lab/gin-blog/config"
	"github.com/d60-Lab/gin-blog/internal/api"
	"github.com/d60-Lab/gin-blog/internal/api/handler"
	"github.com/d60-Lab/gin-blog/internal/repository"
	"github.com/d60-Lab/gin-blog/internal/service"
	"github.com/d60-Lab/gin-blog/internal/upload"
	"github.com/d60-Lab/gin-blog/pkg/cache"
	"github.com/d60-Lab/gin-blog/pkg/database"
	"github.com/d60-Lab/gin-blog/pkg/logger"
	"github.com/d60-Lab/gin-blog/pkg/tracing"
)

// @title gin-blog API
// @version 1.0
// @description 博客后端：注册登录、文章发布与编辑
// @BasePath /
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		panic(err)
	}
	defer logger.Sync()

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
			SampleRate:  cfg.Sentry.SampleRate,
		}); err != nil {
			logger.Warn("sentry init failed", zap.Error(err))
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx := context.Background()
	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		logger.Fatal("tracing init failed", zap.Error(err))
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Fatal("database init failed", zap.Error(err))
	}
	defer database.Close(db)

	rdb, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal("redis init failed", zap.Error(err))
	}

	users := repository.NewUserRepository(db)
	posts := repository.NewPostRepository(db)
	var denylist service.TokenDenylist
	if rdb != nil {
		defer rdb.Close()
		posts = repository.NewCachedPostRepository(posts, rdb, cfg.Redis.PostTTL)
		denylist = service.NewRedisDenylist(rdb)
		logger.Info("redis enabled", zap.String("addr", cfg.Redis.Addr))
	}

	relay, err := upload.New(ctx, cfg.Upload)
	if err != nil {
		logger.Fatal("upload relay init failed", zap.Error(err))
	}
	janitor := service.NewImageJanitor(relay, cfg.Janitor.QueueSize, cfg.Upload.Timeout)
	stopJanitor := janitor.Start(cfg.Janitor.Workers)

	tokens := service.NewTokenManager(cfg.JWT.Secret, cfg.JWT.Expire, cfg.JWT.RevokeTTL, denylist)
	h := handler.NewHandler(
		service.NewUserService(users, service.NewPasswordHasher(cfg.Bcrypt.Cost), tokens),
		service.NewPostService(posts, users, relay, janitor, cfg.Upload.Timeout),
		handler.Options{
			SecureCookie:   cfg.Server.IsRelease(),
			TokenTTL:       cfg.JWT.Expire,
			MaxUploadBytes: cfg.Server.MaxUploadBytes,
		},
	)
	router := api.SetupRouter(api.Deps{Config: cfg, DB: db, Tokens: tokens, Handler: h})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr), zap.String("mode", cfg.Server.Mode),
			zap.String("upload_driver", cfg.Upload.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if err := stopJanitor(shutdownCtx); err != nil {
		logger.Warn("image janitor shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
	logger.Info("server exited")
}
