package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ReadyCheckserver/internal/auth"
	"ReadyCheckserver/internal/realtime"
	"ReadyCheckserver/internal/service"
)

type RouterOpts struct {
	Logger *slog.Logger
	IsProd bool

	DBPing func(context.Context) error

	Auth          *service.AuthService
	Friends       *service.FriendsService
	ReadyChecks   *service.ReadyChecksService
	Notifications *service.NotificationsService
	Users         *service.UsersService
	Hub           *realtime.Hub
	CookieCodec   auth.CookieCodec
	CookieSecure  bool
	SessionTTL    time.Duration
}

func NewRouter(opts RouterOpts) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	api := &api{
		logger:           logger,
		isProd:           opts.IsProd,
		dbPing:           opts.DBPing,
		authSvc:          opts.Auth,
		friendsSvc:       opts.Friends,
		readychecksSvc:   opts.ReadyChecks,
		notificationsSvc: opts.Notifications,
		usersSvc:         opts.Users,
		hub:              opts.Hub,
		cookieCodec:      opts.CookieCodec,
		cookieSecure:     opts.CookieSecure,
		sessionTTL:       opts.SessionTTL,
		loginLimiter:     newLoginLimiter(5*time.Minute, 10),
	}

	publicMux := http.NewServeMux()
	apiMux := http.NewServeMux()

	publicMux.HandleFunc("GET /healthz", api.handleHealthz)

	apiMux.HandleFunc("POST /v1/auth/register", api.handleAuthRegister)
	apiMux.HandleFunc("POST /v1/auth/login", api.handleAuthLogin)
	apiMux.HandleFunc("POST /v1/auth/google", api.handleAuthLoginGoogle)
	apiMux.HandleFunc("POST /v1/auth/apple", api.handleAuthLoginApple)
	apiMux.HandleFunc("POST /v1/auth/logout", api.requireAuth(api.handleAuthLogout))

	apiMux.HandleFunc("GET /v1/users/me", api.requireAuth(api.handleUsersMe))
	if api.usersSvc != nil {
		apiMux.HandleFunc("GET /v1/users/search", api.requireAuth(api.handleUsersSearch))
	}
	apiMux.HandleFunc("GET /v1/users/{id}", api.requireAuth(api.handleUsersGet))

	if api.friendsSvc != nil {
		apiMux.HandleFunc("GET /v1/friends", api.requireAuth(api.handleFriendsOverview))
		apiMux.HandleFunc("POST /v1/friends/requests", api.requireAuth(api.handleFriendsRequest))
		apiMux.HandleFunc("POST /v1/friends/requests/{id}/accept", api.requireAuth(api.handleFriendsAccept))
		apiMux.HandleFunc("POST /v1/friends/requests/{id}/reject", api.requireAuth(api.handleFriendsReject))
		apiMux.HandleFunc("DELETE /v1/friends/{id}", api.requireAuth(api.handleFriendsRemove))
	}

	if api.readychecksSvc != nil {
		apiMux.HandleFunc("POST /v1/readychecks", api.requireAuth(api.handleReadyChecksCreate))
		apiMux.HandleFunc("GET /v1/readychecks", api.requireAuth(api.handleReadyChecksList))
		apiMux.HandleFunc("GET /v1/readychecks/{id}", api.requireAuth(api.handleReadyChecksGet))
		apiMux.HandleFunc("PATCH /v1/readychecks/{id}", api.requireAuth(api.handleReadyChecksUpdate))
		apiMux.HandleFunc("DELETE /v1/readychecks/{id}", api.requireAuth(api.handleReadyChecksDelete))
		apiMux.HandleFunc("PUT /v1/readychecks/{id}/rsvp", api.requireAuth(api.handleReadyChecksRSVP))
	}

	if api.notificationsSvc != nil {
		apiMux.HandleFunc("GET /v1/notifications", api.requireAuth(api.handleNotificationsList))
		apiMux.HandleFunc("GET /v1/notifications/unread-count", api.requireAuth(api.handleNotificationsUnreadCount))
		apiMux.HandleFunc("POST /v1/notifications/{id}/read", api.requireAuth(api.handleNotificationsMarkRead))
		apiMux.HandleFunc("DELETE /v1/notifications/{id}", api.requireAuth(api.handleNotificationsDelete))
		apiMux.HandleFunc("POST /v1/notifications/read-all", api.requireAuth(api.handleNotificationsMarkAllRead))
		apiMux.HandleFunc("PUT /v1/notifications/token", api.requireAuth(api.handleNotificationsTokenUpsert))
		apiMux.HandleFunc("DELETE /v1/notifications/token", api.requireAuth(api.handleNotificationsTokenDelete))
	}

	if api.hub != nil {
		apiMux.HandleFunc("GET /v1/ws", api.requireAuth(api.handleWebsocket))
	}

	apiHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, pattern := apiMux.Handler(r)
		if pattern == "" {
			handleV1NotFound(w, r)
			return
		}
		h.ServeHTTP(w, r)
	})

	root := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/v1/") || r.URL.Path == "/v1" {
			apiHandler.ServeHTTP(w, r)
			return
		}
		publicMux.ServeHTTP(w, r)
	})

	var h http.Handler = root
	h = RequestLogger(logger)(h)
	h = RequestID()(h)
	h = Recoverer(logger, opts.IsProd)(h)
	return h
}

func handleV1NotFound(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, http.StatusNotFound, "not_found", "not found")
}

type api struct {
	logger *slog.Logger
	isProd bool

	dbPing func(context.Context) error

	authSvc          *service.AuthService
	friendsSvc       *service.FriendsService
	readychecksSvc   *service.ReadyChecksService
	notificationsSvc *service.NotificationsService
	usersSvc         *service.UsersService
	hub              *realtime.Hub
	cookieCodec      auth.CookieCodec
	cookieSecure     bool
	sessionTTL       time.Duration

	loginLimiter *loginLimiter
}

func (a *api) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if a.dbPing != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
		defer cancel()
		if err := a.dbPing(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db down"))
			return
		}
	}

	_, _ = w.Write([]byte("ok"))
}
