package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"ReadyCheckserver/internal/auth"
	"ReadyCheckserver/internal/config"
	"ReadyCheckserver/internal/httpapi"
	"ReadyCheckserver/internal/notifications"
	"ReadyCheckserver/internal/realtime"
	"ReadyCheckserver/internal/service"
	"ReadyCheckserver/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	logger := newLogger(cfg)
	hub := realtime.NewHub(logger)

	var (
		authSvc          *service.AuthService
		friendsSvc       *service.FriendsService
		readychecksSvc   *service.ReadyChecksService
		notificationsSvc *service.NotificationsService
		usersSvc         *service.UsersService
		dbPing           func(context.Context) error
	)

	if cfg.DBDSN != "" {
		pgPool, err := postgres.Open(context.Background(), cfg.DBDSN)
		if err != nil {
			logger.Error("db open failed", "err", err)
			os.Exit(1)
		}
		defer pgPool.Close()

		users := postgres.NewUsersStore(pgPool)
		sessions := postgres.NewSessionsStore(pgPool)
		readychecks := postgres.NewReadyChecksStore(pgPool)
		notificationsStore := postgres.NewNotificationsStore(pgPool)
		userSearch := postgres.NewUserSearchStore(pgPool)

		var pushSender service.PushSender
		if cfg.FCMProjectID != "" {
			fcm, err := notifications.NewFCMSender(context.Background(), cfg.FCMProjectID, cfg.FCMCredentialsPath)
			if err != nil {
				logger.Error("fcm init failed", "err", err)
				os.Exit(1)
			}
			pushSender = fcm
		} else {
			logger.Info("push disabled: APP_FCM_PROJECT_ID not set")
		}

		authSvc = &service.AuthService{
			Users:             users,
			Sessions:          sessions,
			SessionTTL:        cfg.SessionTTL,
			GoogleWebClientID: cfg.GoogleClientID,
			AppleServiceID:    cfg.AppleServiceID,
		}
		notificationsSvc = &service.NotificationsService{
			Store:     notificationsStore,
			Users:     users,
			Sender:    pushSender,
			Broadcast: hub,
			Logger:    logger,
		}
		friendsSvc = &service.FriendsService{
			Users:     users,
			Notifier:  notificationsSvc,
			Broadcast: hub,
			Logger:    logger,
			Timeout:   cfg.OpTimeout,
		}
		readychecksSvc = &service.ReadyChecksService{
			Store:     readychecks,
			Users:     users,
			Notifier:  notificationsSvc,
			Broadcast: hub,
			Logger:    logger,
			Timeout:   cfg.OpTimeout,
		}
		usersSvc = &service.UsersService{Store: userSearch}
		dbPing = pgPool.Ping
	}

	router := httpapi.NewRouter(httpapi.RouterOpts{
		Logger:        logger,
		IsProd:        cfg.IsProd(),
		DBPing:        dbPing,
		Auth:          authSvc,
		Friends:       friendsSvc,
		ReadyChecks:   readychecksSvc,
		Notifications: notificationsSvc,
		Users:         usersSvc,
		Hub:           hub,
		CookieCodec:   auth.NewCookieCodec([]byte(cfg.CookieSecret)),
		CookieSecure:  cfg.CookieSecure(),
		SessionTTL:    cfg.SessionTTL,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "env", cfg.Env, "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsProd() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
