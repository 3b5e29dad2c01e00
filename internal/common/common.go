package common

import (
	"net/http"

	"peerpulse-backend/internal/aggregate"
	"peerpulse-backend/internal/config"
	"peerpulse-backend/internal/email"
	"peerpulse-backend/internal/insight"
	"peerpulse-backend/internal/lifecycle"
	"peerpulse-backend/internal/realtime"
	"peerpulse-backend/internal/store"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/markbates/goth"
	"github.com/redis/go-redis/v9"
	"github.com/wader/gormstore/v2"
	"gorm.io/gorm"
)

type JwtCustomClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type JWTIssuer interface {
	GenerateToken(email string) (string, error)
	Middleware() echo.MiddlewareFunc
	GetUserEmail(c echo.Context) (string, error)
}

type SocialAuthProvider interface {
	CompleteUserAuth(res http.ResponseWriter, req *http.Request) (goth.User, error)
}

type ServerState struct {
	Echo   *echo.Echo
	Config *config.Config
	DB     *gorm.DB
	// Store holds users, departments, requests and feedback
	Store        *store.Store
	SessionStore *gormstore.Store
	JwtIssuer    JWTIssuer
	Redis        *redis.Client
	EmailClient  email.EmailClient
	Notifier     *email.Notifier

	Gateway     *insight.Gateway
	Lifecycle   *lifecycle.Controller
	ToneChecker *lifecycle.ToneChecker
	Engine      *aggregate.Engine
	// Hub fans server events out to websocket clients
	Hub         *realtime.Hub
}
