package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"Lifeline/internal/handler"
	"Lifeline/internal/models"
	"Lifeline/internal/service"
	"Lifeline/pkg/cache"
	"Lifeline/pkg/config"
	"Lifeline/pkg/logger"
	"Lifeline/pkg/metrics"
	"Lifeline/pkg/notification"
	"Lifeline/pkg/scheduler"
	"Lifeline/pkg/util"
	"Lifeline/pkg/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := logger.Init(cfg.Log); err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Error("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := util.InitDatabase(cfg.DBDriver, cfg.DSN)
	if err != nil {
		return err
	}
	if err := models.AutoMigrate(db); err != nil {
		return err
	}

	store, err := cache.NewCache(cfg.Cache)
	if err != nil {
		return err
	}
	defer store.Close()

	mailer := notification.NewMailer(cfg.Mail, notification.DefaultPoolConfig(), nil)

	hub := websocket.NewHub(websocket.DefaultConfig())
	defer hub.Close()

	notify := service.NewNotificationService(db, hub, mailer)
	sosSvc := service.NewSOSService(db, notify, hub, mailer, store)
	authSvc := service.NewAuthService(db, mailer, []byte(cfg.JWTSecret), cfg.BaseURL)
	hub.SetLocationHandler(sosSvc.HandleLocationUpdate)

	gin.SetMode(cfg.Mode)
	engine := gin.New()
	engine.Use(gin.Recovery(), metrics.Middleware())
	handler.New(db, authSvc, sosSvc, notify, websocket.NewHandler(hub), []byte(cfg.JWTSecret)).Register(engine)

	cr := scheduler.NewCron(nil)
	if _, err := cr.Add(cfg.ReminderSchedule, scheduler.FuncJob(func(ctx context.Context) {
		sent, err := notify.ReminderSweep(ctx)
		if err != nil {
			logger.Error("reminder sweep", zap.Error(err))
			return
		}
		if sent > 0 {
			logger.Info("reminder sweep", zap.Int("sent", sent))
		}
	})); err != nil {
		return err
	}
	cr.Start()
	defer cr.Stop()

	srv := &http.Server{Addr: cfg.Addr, Handler: engine}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
