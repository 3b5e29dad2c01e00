package server

import (
	"context"
	"encoding/gob"
	"net/http"
	"os"
	"strings"
	"time"

	"peerpulse-backend/internal/aggregate"
	"peerpulse-backend/internal/common"
	"peerpulse-backend/internal/config"
	"peerpulse-backend/internal/email"
	"peerpulse-backend/internal/handlers"
	"peerpulse-backend/internal/insight"
	"peerpulse-backend/internal/lifecycle"
	"peerpulse-backend/internal/realtime"
	"peerpulse-backend/internal/store"
	"peerpulse-backend/internal/telemetry"
	"peerpulse-backend/internal/utils"

	"github.com/go-playground/validator"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/github"
	"github.com/markbates/goth/providers/google"
	"github.com/redis/go-redis/v9"
	resend "github.com/resend/resend-go/v2"
	"github.com/wader/gormstore/v2"
)

// How long restored insights stay in Redis
const insightCacheTTL = 7 * 24 * time.Hour

// CustomValidator Source: https://echo.labstack.com/docs/request#validate-data
type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

type Server struct {
	common.ServerState
	// SocialAuth completes provider logins; tests swap it for a fake
	SocialAuth common.SocialAuthProvider
}

func New(cfg *config.Config) *Server {
	e := echo.New()
	e.Validator = &CustomValidator{validator: utils.NewValidator()}
	e.Logger = &telemetry.SentryLogger{Logger: e.Logger}
	e.Logger.SetLevel(log.DEBUG)

	return &Server{
		ServerState: common.ServerState{
			Echo:   e,
			Config: cfg,
		},
		SocialAuth: &handlers.RealGothicProvider{},
	}
}

func (s *Server) Initialize() error {
	if err := s.setupDatabase(); err != nil {
		return err
	}

	s.setupRedis()

	s.JwtIssuer = handlers.NewJwtAuth(s.Config.Auth.SessionSecret)

	s.setupEmailClient()

	s.setupSessionStore()

	// Domain components, bottom-up
	s.setupFeedback()

	s.setupRoutes()

	s.setupGothProviders()

	telemetry.RegisterRedisMetrics(s.Redis)

	// Keep last to avoid Recover middleware and panic if something goes wrong on init
	s.setupMiddleware()

	return nil
}

func (s *Server) setupDatabase() error {
	dsn := s.Config.Database.DSN
	if dsn == "" {
		s.Echo.Logger.Fatal("DATABASE_DSN environment variable is required")
	}

	db, err := store.Open(dsn)
	if err != nil {
		return err
	}
	s.DB = db
	s.Store = store.New(db)

	if err := s.Store.Migrate(); err != nil {
		return err
	}

	if s.Config.Database.SeedDemo {
		if err := s.Store.Seed(context.Background(), s.Config.Database.SeedPassword); err != nil {
			return err
		}
		s.Echo.Logger.Info("Demo organisation loaded")
	}
	return nil
}

func (s *Server) setupRedis() {
	url := s.Config.Database.RedisURI

	// Redis is optional - insights are simply not restored after a restart
	if url == "" {
		s.Echo.Logger.Warn("REDIS_URI not configured, Redis features will be disabled")
		s.Redis = nil
		return
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		s.Echo.Logger.Warnf("Failed to parse Redis URL: %v, Redis features will be disabled", err)
		s.Redis = nil
		return
	}

	s.Redis = redis.NewClient(opts)

	// Validate proper connection, but don't panic on failure
	ctx := context.Background()
	if err := s.Redis.Ping(ctx).Err(); err != nil {
		s.Echo.Logger.Warnf("Redis connection failed: %v, Redis features will be disabled", err)
		s.Redis = nil
		return
	}
}

func (s *Server) setupSessionStore() {
	sessions := gormstore.New(s.DB, []byte(s.Config.Auth.SessionSecret))
	sessions.SessionOpts.MaxAge = 60 * 60 * 24 * 30 // 30 days
	sessions.SessionOpts.SameSite = http.SameSiteLaxMode
	sessions.SessionOpts.HttpOnly = true

	quit := make(chan struct{})
	go sessions.PeriodicCleanup(1*time.Hour, quit)

	// To solve securecookie: error - caused by: gob: type not registered for interface
	gob.Register(map[string]interface{}{})

	s.SessionStore = sessions
}

func (s *Server) setupEmailClient() {
	s.Notifier = email.NewNotifier(nil, email.NewSlackNotifier(s.Config.Slack.WebhookURL, s.Echo.Logger))
	if s.Config.Slack.WebhookURL == "" {
		s.Echo.Logger.Warn("SLACK_WEBHOOK_URL not configured, Slack notifications will be disabled")
	}

	apiKey := s.Config.Resend.APIKey
	if apiKey == "" {
		s.Echo.Logger.Warn("RESEND_API_KEY not configured, email notifications will be disabled")
		return
	}

	resendClient := resend.NewClient(apiKey)
	client := email.NewResendEmailClient(resendClient,
		s.Config.Resend.DefaultSender,
		"https://"+s.Config.Server.DeployDomain,
		s.Echo.Logger)
	s.EmailClient = client
	s.Notifier.Email = client
}

func (s *Server) setupFeedback() {
	s.Gateway = insight.New(insight.Config{
		APIKey:            s.Config.AI.APIKey,
		BaseURL:           s.Config.AI.BaseURL,
		FastModel:         s.Config.AI.FastModel,
		ProModel:          s.Config.AI.ProModel,
		RequestsPerSecond: s.Config.AI.RequestsPerSecond,
		MaxRetries:        2,
	}, s.Echo.Logger)

	s.Lifecycle = lifecycle.NewController(s.Store, s.Notifier, s.Config.CurrentQuarter, s.Echo.Logger)
	s.ToneChecker = lifecycle.NewToneChecker(s.Gateway, lifecycle.ToneDebounce)

	var cache aggregate.Cache
	if s.Redis != nil {
		cache = aggregate.NewRedisCache(s.Redis, insightCacheTTL)
	}
	s.Engine = aggregate.NewEngine(s.Store, s.Gateway, cache, s.Echo.Logger)

	s.Hub = realtime.NewHub(s.Echo.Logger)
	handlers.RelayEvents(&s.ServerState)

	if s.EmailClient != nil {
		go s.Lifecycle.RunWeeklyDigests(context.Background(), lifecycle.DigestInterval)
	}
}

func (s *Server) setupMiddleware() {
	s.Echo.Use(middleware.CORS())
	s.Echo.Use(session.Middleware(s.SessionStore))
	s.Echo.Use(middleware.Recover())
	// Try to add prometheus middleware, but don't panic if already registered (e.g., in tests)
	// This allows multiple test runs without panicking
	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok && err.Error() == "duplicate metrics collector registration attempted" {
				s.Echo.Logger.Warn("Prometheus middleware already registered, skipping")
			} else {
				panic(r)
			}
		}
	}()
	s.Echo.Use(echoprometheus.NewMiddleware("peerpulse_http"))
}

func (s *Server) setupGothProviders() {
	gothic.Store = s.SessionStore

	goth.UseProviders(
		google.New(s.Config.Auth.GoogleKey, s.Config.Auth.GoogleSecret, s.Config.Auth.GoogleRedirect, "email", "profile", "openid"),
		github.New(s.Config.Auth.GithubKey, s.Config.Auth.GithubSecret, s.Config.Auth.GithubRedirect, "user:email", "read:user"),
	)
}

func (s *Server) setupRoutes() {
	telemetry.SetupSentry(s.Echo, s.Config)

	auth := handlers.NewAuthHandler(s.ServerState, s.SocialAuth)
	feedback := handlers.NewFeedbackHandler(s.ServerState)
	admin := handlers.NewAdminHandler(s.ServerState)

	api := s.Echo.Group("/api")

	// Public API endpoints
	api.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})
	api.GET("/metrics", echoprometheus.NewHandler())

	// Unsubscribe endpoints
	api.GET("/unsubscribe/:token", auth.UnsubscribeUser)
	api.POST("/unsubscribe/:token", auth.UnsubscribeUser)

	// Authentication endpoints
	api.GET("/auth/social/:provider", auth.SocialLogin)
	api.GET("/auth/social/:provider/callback", auth.SocialLoginCallback)
	api.POST("/sign-up", auth.ManualSignUp)
	api.POST("/sign-in", auth.ManualSignIn)

	// Protected API routes group
	protectedAPI := api.Group("/auth", s.JwtIssuer.Middleware())

	protectedAPI.GET("/user", auth.User)
	protectedAPI.PUT("/user/settings", auth.UpdateSettings)
	protectedAPI.GET("/users", auth.Users)
	protectedAPI.GET("/peers/suggestions", feedback.PeerSuggestions)

	protectedAPI.POST("/feedback-requests", feedback.CreateRequests)
	protectedAPI.GET("/feedback-requests", feedback.ListRequests)
	protectedAPI.GET("/feedback-requests/:id", feedback.GetRequest)
	protectedAPI.POST("/feedback-requests/:id/feedback", feedback.SubmitFeedback)
	protectedAPI.POST("/tone-check", feedback.ToneCheck)
	protectedAPI.POST("/coach", feedback.Coach)

	protectedAPI.GET("/dashboard", feedback.Dashboard)
	protectedAPI.GET("/summary/:userId", feedback.Summary)

	// Pushes insight and tone-check results as they complete
	protectedAPI.GET("/websocket", handlers.CreateWSHandler(&s.ServerState))

	// Admin endpoints
	adminAPI := protectedAPI.Group("/admin", admin.RequireAdmin)
	adminAPI.GET("/dashboard", admin.Dashboard)
	adminAPI.POST("/dashboard/refresh", admin.Refresh)
	adminAPI.GET("/export", admin.Export)
	adminAPI.GET("/departments", admin.Departments)
	adminAPI.POST("/departments", admin.CreateDepartment)
	adminAPI.PUT("/users/:id/role", admin.UpdateRole)

	// Debug endpoints - only enabled when ENABLE_DEBUG_ENDPOINTS=true
	if s.Config.Server.Debug {
		api.GET("/jwt-debug", func(c echo.Context) error {
			email := c.QueryParam("email")
			token, err := s.JwtIssuer.GenerateToken(email)
			if err != nil {
				return c.String(http.StatusInternalServerError, "Failed to generate token")
			}
			return c.JSON(http.StatusOK, map[string]string{
				"email": email,
				"token": token,
			})
		})
	}

	s.Echo.GET("/*", func(c echo.Context) error {
		if strings.HasPrefix(c.Request().URL.Path, "/api") {
			return echo.NewHTTPError(http.StatusNotFound, "API endpoint not found")
		}
		return echo.NewHTTPError(http.StatusNotFound, "Not found")
	})
}

func (s *Server) Start() error {
	serverURL := s.Config.Server.Host + ":" + s.Config.Server.Port

	if s.Config.Server.TLS.Enabled {
		if _, err := os.Stat(s.Config.Server.TLS.CertFile); os.IsNotExist(err) {
			s.Echo.Logger.Warn("TLS certificate file not found, falling back to HTTP")
			return s.Echo.Start(serverURL)
		}
		if _, err := os.Stat(s.Config.Server.TLS.KeyFile); os.IsNotExist(err) {
			s.Echo.Logger.Warn("TLS key file not found, falling back to HTTP")
			return s.Echo.Start(serverURL)
		}
		return s.Echo.StartTLS(serverURL, s.Config.Server.TLS.CertFile, s.Config.Server.TLS.KeyFile)
	}

	return s.Echo.Start(serverURL)
}
