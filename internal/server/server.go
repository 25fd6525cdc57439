package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/errand/internal/auth"
	"github.com/dukerupert/errand/internal/cache"
	"github.com/dukerupert/errand/internal/handler"
	"github.com/dukerupert/errand/internal/lifecycle"
	"github.com/dukerupert/errand/internal/middleware"
	"github.com/dukerupert/errand/internal/model"
	"github.com/dukerupert/errand/internal/notify"
	"github.com/dukerupert/errand/internal/push"
	"github.com/dukerupert/errand/internal/realtime"
	"github.com/dukerupert/errand/internal/storage"
	"github.com/dukerupert/errand/internal/store"
)

// Config carries the settings the server wires into its components.
type Config struct {
	JWTSecret      string
	TokenTTL       time.Duration
	RateLimit      int
	AudienceMax    int
	AllowedOrigins []string

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string

	S3 storage.S3Config
}

type Server struct {
	db          *sql.DB
	hub         *realtime.Hub
	tokens      *auth.Tokens
	taskH       *handler.TaskHandler
	authH       *handler.AuthHandler
	meH         *handler.MeHandler
	notifH      *handler.NotificationHandler
	pushH       *handler.PushHandler
	dispatcher  *push.Dispatcher
	rateLimiter *middleware.RateLimiter
	authLimiter *middleware.RateLimiter
	origins     []string
	cancel      context.CancelFunc
	logger      *slog.Logger
}

// New wires stores, fan-out and handlers over db. profileCache backs actor
// name lookups and may be shared between instances.
func New(db *sql.DB, cfg Config, profileCache cache.Cache[string, model.Profile], logger *slog.Logger) *Server {
	hub := realtime.NewHub(logger)

	taskStore := store.NewTaskStore(db)
	userStore := store.NewUserStore(db)
	notifStore := store.NewNotificationStore(db)
	prefStore := store.NewPreferenceStore(db)
	pushStore := store.NewPushStore(db)
	ledgerStore := store.NewLedgerStore(db)

	profiles := cache.NewProfiles(profileCache, userStore, logger)

	pushSvc := push.NewService(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject)
	var dispatcher *push.Dispatcher
	var pushQueue notify.PushQueue
	if pushSvc.Enabled() {
		dispatcher = push.NewDispatcher(pushSvc, pushStore, logger)
		pushQueue = dispatcher
	}

	var audience notify.Audience = notify.NoAudience{}
	if cfg.AudienceMax > 0 {
		audience = notify.RecentMembers{Users: userStore, Limit: cfg.AudienceMax}
	}
	notifier := notify.New(notifStore, prefStore, profiles, hub, pushQueue, audience, logger)
	engine := lifecycle.New(taskStore, notifier, hub, logger)

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	photos := storage.NewPhotos(cfg.S3)

	return &Server{
		db:          db,
		hub:         hub,
		tokens:      tokens,
		taskH:       handler.NewTaskHandler(engine, store.NewChatStore(db), photos, logger.With("component", "task_handler")),
		authH:       handler.NewAuthHandler(userStore, tokens, logger.With("component", "auth")),
		meH:         handler.NewMeHandler(userStore, ledgerStore, profiles, logger.With("component", "me")),
		notifH:      handler.NewNotificationHandler(notifStore, prefStore, logger.With("component", "notification_handler")),
		pushH:       handler.NewPushHandler(pushStore, pushSvc, logger.With("component", "push_handler")),
		dispatcher:  dispatcher,
		rateLimiter: middleware.NewRateLimiter(cfg.RateLimit, time.Minute),
		authLimiter: middleware.NewRateLimiter(10, time.Minute),
		origins:     cfg.AllowedOrigins,
		logger:      logger,
	}
}

// Dispatcher returns the push dispatcher, or nil when push is not configured.
func (s *Server) Dispatcher() *push.Dispatcher {
	return s.dispatcher
}

// Start launches background workers: push delivery and rate-limit sweeps.
func (s *Server) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	if s.dispatcher != nil {
		s.dispatcher.Start(ctx)
	}
	go s.rateLimiter.Run(ctx)
	go s.authLimiter.Run(ctx)
}

// Stop halts background workers started by Start.
func (s *Server) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.dispatcher != nil {
		s.dispatcher.Stop()
		snap := s.dispatcher.Stats().Snapshot()
		s.logger.Info("push dispatcher stopped", "sent", snap.Sent, "failed", snap.Failed, "expired", snap.Expired, "dropped", snap.Dropped)
	}
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	outerMux.HandleFunc("GET /health", s.healthHandler)
	authLimited := middleware.RateLimit(s.authLimiter, middleware.RealIP)
	outerMux.Handle("POST /api/auth/register", authLimited(http.HandlerFunc(s.authH.Register)))
	outerMux.Handle("POST /api/auth/login", authLimited(http.HandlerFunc(s.authH.Login)))
	outerMux.Handle("POST /api/auth/guest", authLimited(http.HandlerFunc(s.authH.Guest)))
	outerMux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)

	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	requireAuth := middleware.RequireAuth(s.tokens)
	limited := middleware.RateLimit(s.rateLimiter, middleware.ClientKey)
	outerMux.Handle("/", requireAuth(limited(protectedMux)))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check", "error", err)
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"status":      status,
		"subscribers": s.hub.SubscriberCount(),
	})
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Account
	mux.HandleFunc("GET /api/me", s.meH.Get)
	mux.HandleFunc("PATCH /api/me", s.meH.Update)
	mux.HandleFunc("GET /api/me/ledger", s.meH.Ledger)

	// Tasks
	mux.HandleFunc("POST /api/tasks", s.taskH.Create)
	mux.HandleFunc("GET /api/tasks", s.taskH.ListOpen)
	mux.HandleFunc("GET /api/tasks/{id}", s.taskH.Get)
	mux.HandleFunc("POST /api/tasks/{id}/accept", s.taskH.Accept)
	mux.HandleFunc("POST /api/tasks/{id}/status", s.taskH.UpdateStatus)
	mux.HandleFunc("POST /api/tasks/{id}/cancel", s.taskH.Cancel)
	mux.HandleFunc("GET /api/tasks/{id}/history", s.taskH.History)
	mux.HandleFunc("POST /api/tasks/{id}/verify-code", s.taskH.VerifyCode)
	mux.HandleFunc("GET /api/tasks/{id}/code", s.taskH.AcceptanceCode)
	mux.HandleFunc("GET /api/tasks/{id}/chat", s.taskH.Chat)
	mux.HandleFunc("POST /api/tasks/{id}/photos", s.taskH.UploadPhoto)
	mux.HandleFunc("GET /api/tasks/{id}/photos/{name}", s.taskH.GetPhoto)
	mux.HandleFunc("DELETE /api/tasks/{id}/photos/{name}", s.taskH.DeletePhoto)
	mux.Handle("PUT /api/tasks/{id}/moderation", middleware.RequireAdmin(http.HandlerFunc(s.taskH.Moderate)))
	mux.HandleFunc("GET /api/users/{id}/tasks/posted", s.taskH.ListPosted)
	mux.HandleFunc("GET /api/users/{id}/tasks/accepted", s.taskH.ListAccepted)

	// Notifications
	mux.HandleFunc("GET /api/notifications", s.notifH.List)
	mux.HandleFunc("GET /api/notifications/unread-count", s.notifH.UnreadCount)
	mux.HandleFunc("POST /api/notifications/{id}/read", s.notifH.MarkRead)
	mux.HandleFunc("POST /api/notifications/read-all", s.notifH.MarkAllRead)
	mux.HandleFunc("GET /api/notifications/preferences", s.notifH.GetPreferences)
	mux.HandleFunc("PUT /api/notifications/preferences", s.notifH.UpdatePreferences)

	// Push
	mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
	mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
	mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)

	// Realtime
	mux.HandleFunc("GET /ws", realtime.HandleWebSocket(s.hub, s.origins))
}
