package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"peerpulse-backend/internal/common"
	"peerpulse-backend/internal/models"
	"peerpulse-backend/internal/store"
	"peerpulse-backend/internal/utils"

	"github.com/labstack/echo/v4"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/tidwall/gjson"
)

// Department given to users who sign in through a provider for the first time
const unassignedDepartment = "Unassigned"

type AuthHandler struct {
	common.ServerState
	SocialAuth common.SocialAuthProvider
}

type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type SignUpRequest struct {
	Name       string `json:"name" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=8"`
	Department string `json:"department" validate:"required"`
}

type SettingsRequest struct {
	Name                 string                      `json:"name" validate:"required"`
	Department           string                      `json:"department" validate:"required"`
	AvatarURL            string                      `json:"avatar_url" validate:"omitempty,url"`
	Profile              models.Profile              `json:"profile"`
	Preferences          models.FeedbackPreferences  `json:"preferences"`
	NotificationSettings models.NotificationSettings `json:"notification_settings"`
}

func NewAuthHandler(state common.ServerState, socialAuth common.SocialAuthProvider) *AuthHandler {
	return &AuthHandler{
		ServerState: state,
		SocialAuth:  socialAuth,
	}
}

type RealGothicProvider struct{}

func (r *RealGothicProvider) CompleteUserAuth(res http.ResponseWriter, req *http.Request) (goth.User, error) {
	return gothic.CompleteUserAuth(res, req)
}

// socialProfile fills a new user's profile from the provider's raw payload
func socialProfile(provider string, user goth.User) models.Profile {
	var profile models.Profile
	if provider != "github" || user.RawData == nil {
		return profile
	}
	raw, err := json.Marshal(user.RawData)
	if err != nil {
		return profile
	}
	profile.GitHub = gjson.GetBytes(raw, "html_url").String()
	profile.Bio = gjson.GetBytes(raw, "bio").String()
	if blog := gjson.GetBytes(raw, "blog"); blog.Exists() {
		profile.Website = blog.String()
	}
	return profile
}

func (h *AuthHandler) SocialLoginCallback(c echo.Context) error {
	user, err := h.SocialAuth.CompleteUserAuth(c.Response(), c.Request())
	if err != nil {
		return err
	}

	if user.Email == "" {
		c.Logger().Error("User email is empty from provider")
		return echo.NewHTTPError(http.StatusBadRequest, "Email is required but not provided by the authentication provider")
	}

	ctx := c.Request().Context()
	provider := c.Param("provider")
	isNewUser := false

	u, err := h.Store.GetUserByEmail(ctx, user.Email)
	if errors.Is(err, store.ErrNotFound) {
		if err := utils.ValidateEmailAddressWithConfig(user.Email, h.signupEmailConfig()); err != nil {
			c.Logger().Warnf("Rejected %s sign-up: %v", provider, err)
			return c.Redirect(http.StatusFound, "/login?error="+url.QueryEscape(err.Error()))
		}
		isNewUser = true
		name := strings.TrimSpace(user.Name)
		if name == "" {
			name = strings.TrimSpace(user.FirstName + " " + user.LastName)
		}
		if name == "" {
			name = strings.Split(user.Email, "@")[0]
		}
		u = &models.User{
			Name:       name,
			Email:      user.Email,
			AvatarURL:  user.AvatarURL,
			Department: unassignedDepartment,
			Profile:    socialProfile(provider, user),
			NotificationSettings: models.NotificationSettings{
				NewRequestEmail:        true,
				FeedbackSubmittedEmail: true,
			},
		}
		c.Logger().Infof("Creating user from %s sign-in", provider)
		err = h.Store.CreateUser(ctx, u)
	}
	if err != nil {
		c.Logger().Errorf("Social login failed: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to sign in")
	}

	if isNewUser && h.EmailClient != nil {
		h.EmailClient.SendWelcomeEmail(u)
	}

	token, err := h.JwtIssuer.GenerateToken(u.Email)
	if err != nil {
		return c.String(http.StatusInternalServerError, "Failed to generate token")
	}

	return c.Redirect(http.StatusFound, fmt.Sprintf("/login?token=%s", token))
}

// signupEmailConfig applies the configured domain allow-list to new accounts
func (h *AuthHandler) signupEmailConfig() *utils.EmailValidationConfig {
	return &utils.EmailValidationConfig{
		BlockDisposableEmails: true,
		AllowedDomains:        h.Config.Auth.SignupAllowedDomains,
	}
}

func (h *AuthHandler) SocialLogin(c echo.Context) error {
	provider := c.Param("provider")

	req := c.Request()
	// Set the provider in the query parameters for gothic to work
	q := req.URL.Query()
	q.Set("provider", provider)
	req.URL.RawQuery = q.Encode()

	gothic.BeginAuthHandler(c.Response(), req)
	return nil
}

func (h *AuthHandler) ManualSignUp(c echo.Context) error {
	c.Logger().Info("Received manual sign-up request")

	req := new(SignUpRequest)
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := utils.ValidateEmailAddressWithConfig(req.Email, h.signupEmailConfig()); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	u := &models.User{
		Name:       req.Name,
		Email:      req.Email,
		Password:   req.Password,
		Department: req.Department,
		NotificationSettings: models.NotificationSettings{
			NewRequestEmail:        true,
			FeedbackSubmittedEmail: true,
		},
	}
	if err := h.Store.CreateUser(c.Request().Context(), u); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return echo.NewHTTPError(http.StatusConflict, "user with this email already exists")
		}
		return errorResponse(c, err)
	}

	if h.EmailClient != nil {
		h.EmailClient.SendWelcomeEmail(u)
	}

	token, err := h.JwtIssuer.GenerateToken(u.Email)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate token")
	}

	return c.JSON(http.StatusCreated, map[string]string{"token": token})
}

func (h *AuthHandler) ManualSignIn(c echo.Context) error {
	c.Logger().Info("Received manual sign-in request")
	req := &SignInRequest{}

	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	u, err := h.Store.GetUserByEmail(c.Request().Context(), req.Email)
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid email or password")
	}
	if err != nil {
		return errorResponse(c, err)
	}

	if !u.CheckPassword(req.Password) {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid email or password")
	}

	token, err := h.JwtIssuer.GenerateToken(u.Email)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate token")
	}

	return c.JSON(http.StatusOK, map[string]string{"token": token})
}

func (h *AuthHandler) User(c echo.Context) error {
	user, isAuthenticated := getAuthenticatedUser(c, &h.ServerState)
	if !isAuthenticated {
		return c.String(http.StatusUnauthorized, "Unauthorized request")
	}
	return c.JSON(http.StatusOK, user)
}

// Users lists everyone in the organisation, e.g. to pick peers from
func (h *AuthHandler) Users(c echo.Context) error {
	if _, isAuthenticated := getAuthenticatedUser(c, &h.ServerState); !isAuthenticated {
		return c.String(http.StatusUnauthorized, "Unauthorized request")
	}
	users, err := h.Store.ListUsers(c.Request().Context())
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, users)
}

func (h *AuthHandler) UpdateSettings(c echo.Context) error {
	user, isAuthenticated := getAuthenticatedUser(c, &h.ServerState)
	if !isAuthenticated {
		return c.String(http.StatusUnauthorized, "Unauthorized request")
	}

	req := new(SettingsRequest)
	if err := c.Bind(req); err != nil {
		c.Logger().Error("Failed to bind request:", err)
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	user.Name = strings.TrimSpace(req.Name)
	user.Department = req.Department
	user.AvatarURL = req.AvatarURL
	user.Profile = req.Profile
	user.Preferences = req.Preferences
	user.NotificationSettings = req.NotificationSettings

	if err := h.Store.UpdateUser(c.Request().Context(), user); err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, user)
}

// UnsubscribeUser handles both GET and POST requests for unsubscribing users.
// Follows instructions from:
// https://resend.com/docs/dashboard/emails/add-unsubscribe-to-transactional-emails
func (h *AuthHandler) UnsubscribeUser(c echo.Context) error {
	token := c.Param("token")
	if token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Token is required")
	}

	ctx := c.Request().Context()
	user, err := h.Store.GetUserByUnsubscribeID(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "User not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to retrieve user details, cannot unsubscribe")
	}

	// One-click unsubscribe
	if c.Request().Method == http.MethodPost {
		user.UnsubscribeFromAllEmails()
		if err := h.Store.UpdateUser(ctx, user); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to unsubscribe")
		}
		return c.String(http.StatusOK, "You are now unsubscribed from all PeerPulse emails")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"email":        user.Email,
		"unsubscribed": user.NotificationSettings == models.NotificationSettings{},
	})
}
