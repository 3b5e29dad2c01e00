package handlers

import (
	"errors"
	"net/http"

	"peerpulse-backend/internal/common"
	"peerpulse-backend/internal/insight"
	"peerpulse-backend/internal/lifecycle"
	"peerpulse-backend/internal/models"
	"peerpulse-backend/internal/store"

	"github.com/labstack/echo/v4"
)

type FeedbackHandler struct {
	common.ServerState
}

func NewFeedbackHandler(state common.ServerState) *FeedbackHandler {
	return &FeedbackHandler{ServerState: state}
}

type ToneCheckRequest struct {
	// Field names the text box being edited, e.g. "strengths.behavior"
	Field string `json:"field" validate:"required,max=64"`
	Text  string `json:"text"`
}

type CoachRequest struct {
	Messages []insight.ChatMessage `json:"messages" validate:"required,min=1,dive"`
}

type RequestDetails struct {
	Request  *models.FeedbackRequest `json:"request"`
	Feedback *models.Feedback        `json:"feedback"`
}

func (h *FeedbackHandler) CreateRequests(c echo.Context) error {
	user, isAuthenticated := getAuthenticatedUser(c, &h.ServerState)
	if !isAuthenticated {
		return c.String(http.StatusUnauthorized, "Unauthorized request")
	}

	form := lifecycle.RequestForm{}
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	created, err := h.Lifecycle.RequestFeedback(c.Request().Context(), user, form)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

// ListRequests lists the caller's requests. ?role=requester lists the ones
// they made, anything else the ones waiting on them.
func (h *FeedbackHandler) ListRequests(c echo.Context) error {
	user, isAuthenticated := getAuthenticatedUser(c, &h.ServerState)
	if !isAuthenticated {
		return c.String(http.StatusUnauthorized, "Unauthorized request")
	}

	filter := store.RequestFilter{
		Status:  models.FeedbackStatus(c.QueryParam("status")),
		Quarter: c.QueryParam("quarter"),
	}
	if c.QueryParam("role") == "requester" {
		filter.RequesterID = user.ID
	} else {
		filter.RevieweeID = user.ID
	}

	requests, err := h.Store.ListRequests(c.Request().Context(), filter)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, requests)
}

// GetRequest returns a request and, once completed, its feedback. Only the
// two parties and admins may read it.
func (h *FeedbackHandler) GetRequest(c echo.Context) error {
	user, isAuthenticated := getAuthenticatedUser(c, &h.ServerState)
	if !isAuthenticated {
		return c.String(http.StatusUnauthorized, "Unauthorized request")
	}
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	req, err := h.Store.GetRequest(ctx, id)
	if err != nil {
		return errorResponse(c, err)
	}
	if !req.Involves(user.ID) && !user.IsAdmin() {
		return echo.NewHTTPError(http.StatusForbidden, "You are not part of this feedback request")
	}

	details := RequestDetails{Request: req}
	if req.Status == models.StatusCompleted {
		feedback, err := h.Store.GetFeedbackByRequest(ctx, req.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return errorResponse(c, err)
		}
		details.Feedback = feedback
	}
	return c.JSON(http.StatusOK, details)
}

func (h *FeedbackHandler) SubmitFeedback(c echo.Context) error {
	user, isAuthenticated := getAuthenticatedUser(c, &h.ServerState)
	if !isAuthenticated {
		return c.String(http.StatusUnauthorized, "Unauthorized request")
	}
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}

	form := lifecycle.SubmissionForm{}
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	feedback, err := h.Lifecycle.SubmitFeedback(c.Request().Context(), user, id, form)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, feedback)
}

// ToneCheck suggests a kinder wording for a text box. Calls for the same box
// are debounced; a call overtaken by newer text answers superseded.
func (h *FeedbackHandler) ToneCheck(c echo.Context) error {
	user, isAuthenticated := getAuthenticatedUser(c, &h.ServerState)
	if !isAuthenticated {
		return c.String(http.StatusUnauthorized, "Unauthorized request")
	}

	req := new(ToneCheckRequest)
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	key := toneKey(user.ID, req.Field)
	suggestion, err := h.ToneChecker.Check(c.Request().Context(), key, req.Text)
	if errors.Is(err, lifecycle.ErrSuperseded) {
		return c.JSON(http.StatusOK, map[string]interface{}{"suggestion": "", "superseded": true})
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusRequestTimeout, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"suggestion": suggestion, "superseded": false})
}

func (h *FeedbackHandler) Coach(c echo.Context) error {
	if _, isAuthenticated := getAuthenticatedUser(c, &h.ServerState); !isAuthenticated {
		return c.String(http.StatusUnauthorized, "Unauthorized request")
	}

	req := new(CoachRequest)
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	reply := h.Gateway.CoachReply(c.Request().Context(), req.Messages)
	return c.JSON(http.StatusOK, map[string]string{"reply": reply})
}

// PeerSuggestions proposes up to three colleagues to ask for feedback
func (h *FeedbackHandler) PeerSuggestions(c echo.Context) error {
	user, isAuthenticated := getAuthenticatedUser(c, &h.ServerState)
	if !isAuthenticated {
		return c.String(http.StatusUnauthorized, "Unauthorized request")
	}

	users, err := h.Store.ListUsers(c.Request().Context())
	if err != nil {
		return errorResponse(c, err)
	}

	names := h.Gateway.SuggestPeers(c.Request().Context(), *user, users)
	suggested := []models.User{}
	for _, name := range names {
		for _, u := range users {
			if u.Name == name && u.ID != user.ID {
				suggested = append(suggested, u)
				break
			}
		}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"names": names, "users": suggested})
}

func (h *FeedbackHandler) Dashboard(c echo.Context) error {
	user, isAuthenticated := getAuthenticatedUser(c, &h.ServerState)
	if !isAuthenticated {
		return c.String(http.StatusUnauthorized, "Unauthorized request")
	}

	d, err := h.Engine.UserDashboard(c.Request().Context(), user, quarterParam(c, &h.ServerState))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

// Summary shows what a user received in a quarter. Users see their own,
// admins see anyone's.
func (h *FeedbackHandler) Summary(c echo.Context) error {
	user, isAuthenticated := getAuthenticatedUser(c, &h.ServerState)
	if !isAuthenticated {
		return c.String(http.StatusUnauthorized, "Unauthorized request")
	}
	userID, err := idParam(c, "userId")
	if err != nil {
		return err
	}
	if userID != user.ID && !user.IsAdmin() {
		return echo.NewHTTPError(http.StatusForbidden, "You can only view your own summary")
	}

	summary, err := h.Engine.Summary(c.Request().Context(), userID, quarterParam(c, &h.ServerState))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}
