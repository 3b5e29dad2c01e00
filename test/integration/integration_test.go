//go:build integration
// +build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/gommon/log"
	"github.com/markbates/goth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerpulse-backend/internal/config"
	"peerpulse-backend/internal/models"
	"peerpulse-backend/internal/server"
	"peerpulse-backend/internal/store"
)

const demoPassword = "demo-password-123"

// setupTestServerFast creates a test server on its own in-memory SQLite
// database, loaded with the demo organisation. Redis, email, Slack and the AI
// gateway are left unconfigured so every external call falls back locally.
func setupTestServerFast(t *testing.T, social ...goth.User) (*server.Server, func()) {
	cfg := &config.Config{}
	cfg.Server.Port = "8080"
	cfg.Server.Host = "localhost"
	cfg.Server.DeployDomain = "localhost:8080"
	cfg.Server.Debug = false
	cfg.Database.DSN = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	cfg.Database.RedisURI = ""
	cfg.Database.SeedDemo = true
	cfg.Database.SeedPassword = demoPassword
	cfg.Auth.SessionSecret = "test-secret-key-for-testing-only"
	cfg.Resend.DefaultSender = "test@example.com"
	cfg.CurrentQuarter = "Q4 2024"

	srv := server.New(cfg)
	srv.Echo.Logger.SetLevel(log.ERROR)
	if len(social) > 0 {
		srv.SocialAuth = &MockSocialAuthProvider{User: social[0]}
	}

	err := srv.Initialize()
	require.NoError(t, err)

	cleanup := func() {
		if srv.DB != nil {
			sqlDB, _ := srv.DB.DB()
			if sqlDB != nil {
				sqlDB.Close()
			}
		}
	}

	return srv, cleanup
}

func getJWTToken(t *testing.T, srv *server.Server, email string) string {
	token, err := srv.JwtIssuer.GenerateToken(email)
	require.NoError(t, err)
	return token
}

// do sends a request as the user with the given email, or anonymously when
// email is empty
func do(t *testing.T, srv *server.Server, method, path, email string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if email != "" {
		req.Header.Set("Authorization", "Bearer "+getJWTToken(t, srv, email))
	}
	rec := httptest.NewRecorder()
	srv.Echo.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
}

func sbi(prefix string) map[string]string {
	return map[string]string{
		"situation": prefix + " situation",
		"behavior":  prefix + " behavior",
		"impact":    prefix + " impact",
	}
}

func TestManualSignUp_NewUser(t *testing.T) {
	srv, cleanup := setupTestServerFast(t)
	defer cleanup()

	rec := do(t, srv, http.MethodPost, "/api/sign-up", "", map[string]interface{}{
		"name":       "Fiona Green",
		"email":      "Fiona.Green@gmail.com",
		"password":   "securepassword123",
		"department": "Marketing",
	})

	if rec.Code != http.StatusCreated {
		t.Logf("Response body: %s", rec.Body.String())
	}
	assert.Equal(t, http.StatusCreated, rec.Code)

	var response map[string]string
	decode(t, rec, &response)
	assert.NotEmpty(t, response["token"])

	user, err := srv.Store.GetUserByEmail(t.Context(), "fiona.green@gmail.com")
	require.NoError(t, err)
	assert.Equal(t, "Fiona Green", user.Name)
	assert.Equal(t, models.RoleEmployee, user.Role)
	assert.True(t, user.CheckPassword("securepassword123"))

	departments, err := srv.Store.ListDepartments(t.Context())
	require.NoError(t, err)
	names := []string{}
	for _, d := range departments {
		names = append(names, d.Name)
	}
	assert.Contains(t, names, "Marketing")
}

func TestManualSignUp_Rejections(t *testing.T) {
	srv, cleanup := setupTestServerFast(t)
	defer cleanup()

	tests := []struct {
		name   string
		email  string
		status int
	}{
		{"Disposable email", "someone@mailinator.com", http.StatusBadRequest},
		{"Existing email", "brenda.smith@acme.com", http.StatusConflict},
		{"Malformed email", "not-an-email", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/api/sign-up", "", map[string]interface{}{
				"name":       "Someone",
				"email":      tt.email,
				"password":   "securepassword123",
				"department": "Engineering",
			})
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestSignUp_AllowedDomains(t *testing.T) {
	srv, cleanup := setupTestServerFast(t, goth.User{Email: "outsider@gmail.com", Name: "Out Sider"})
	defer cleanup()
	srv.Config.Auth.SignupAllowedDomains = []string{"acme.com"}

	signUp := func(email string) *httptest.ResponseRecorder {
		return do(t, srv, http.MethodPost, "/api/sign-up", "", map[string]interface{}{
			"name":       "Someone",
			"email":      email,
			"password":   "securepassword123",
			"department": "Engineering",
		})
	}

	rec := signUp("someone@gmail.com")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "company email")

	rec = signUp("Fiona.Green@ACME.com")
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Provider sign-ins create accounts under the same rule
	rec = do(t, srv, http.MethodGet, "/api/auth/social/google/callback", "", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "/login?error=")
	_, err := srv.Store.GetUserByEmail(t.Context(), "outsider@gmail.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestManualSignIn(t *testing.T) {
	srv, cleanup := setupTestServerFast(t)
	defer cleanup()

	rec := do(t, srv, http.MethodPost, "/api/sign-in", "", map[string]string{
		"email":    "brenda.smith@acme.com",
		"password": demoPassword,
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	var response map[string]string
	decode(t, rec, &response)
	assert.NotEmpty(t, response["token"])

	rec = do(t, srv, http.MethodPost, "/api/sign-in", "", map[string]string{
		"email":    "brenda.smith@acme.com",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/sign-in", "", map[string]string{
		"email":    "nobody@acme.com",
		"password": demoPassword,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv, cleanup := setupTestServerFast(t)
	defer cleanup()

	rec := do(t, srv, http.MethodGet, "/api/auth/user", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/auth/user", "brenda.smith@acme.com", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var user models.User
	decode(t, rec, &user)
	assert.Equal(t, "Brenda Smith", user.Name)
	assert.NotContains(t, rec.Body.String(), "hashed_password")
}

func TestAnonymousFeedbackFlow(t *testing.T) {
	srv, cleanup := setupTestServerFast(t)
	defer cleanup()

	ethan := "ethan.wilson@acme.com"
	charles := "charles.davis@acme.com"
	brendaUser, err := srv.Store.GetUserByEmail(t.Context(), "brenda.smith@acme.com")
	require.NoError(t, err)
	ethanUser, err := srv.Store.GetUserByEmail(t.Context(), ethan)
	require.NoError(t, err)

	// Charles asks Brenda and Ethan for anonymous feedback
	rec := do(t, srv, http.MethodPost, "/api/auth/feedback-requests", charles, map[string]interface{}{
		"peer_ids":     []uint{brendaUser.ID, ethanUser.ID},
		"context":      "How did the Phoenix launch go?",
		"is_anonymous": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created []models.FeedbackRequest
	decode(t, rec, &created)
	require.Len(t, created, 2)
	for _, r := range created {
		assert.Equal(t, models.StatusPending, r.Status)
		assert.Equal(t, "Q4 2024", r.Quarter)
		assert.True(t, r.IsAnonymous)
	}

	var forEthan models.FeedbackRequest
	for _, r := range created {
		if r.RevieweeID == ethanUser.ID {
			forEthan = r
		}
	}

	// Ethan sees it waiting for him
	rec = do(t, srv, http.MethodGet, "/api/auth/feedback-requests?status=Pending", ethan, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var waiting []models.FeedbackRequest
	decode(t, rec, &waiting)
	ids := []uint{}
	for _, r := range waiting {
		ids = append(ids, r.ID)
	}
	assert.Contains(t, ids, forEthan.ID)

	path := fmt.Sprintf("/api/auth/feedback-requests/%d/feedback", forEthan.ID)
	rec = do(t, srv, http.MethodPost, path, ethan, map[string]interface{}{
		"strengths":            sbi("Launch day"),
		"growth_opportunities": sbi("Retro"),
		"vibe_rating":          4,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var submitted map[string]interface{}
	decode(t, rec, &submitted)
	assert.Nil(t, submitted["reviewer_id"])

	// Charles reads the completed request without learning the author
	rec = do(t, srv, http.MethodGet, fmt.Sprintf("/api/auth/feedback-requests/%d", forEthan.ID), charles, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var details struct {
		Request  models.FeedbackRequest `json:"request"`
		Feedback map[string]interface{} `json:"feedback"`
	}
	decode(t, rec, &details)
	assert.Equal(t, models.StatusCompleted, details.Request.Status)
	require.NotNil(t, details.Feedback)
	assert.Nil(t, details.Feedback["reviewer_id"])
	assert.Equal(t, float64(4), details.Feedback["vibe_rating"])

	// A second answer is refused
	rec = do(t, srv, http.MethodPost, path, ethan, map[string]interface{}{
		"strengths":            sbi("Again"),
		"growth_opportunities": sbi("Again"),
		"vibe_rating":          5,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSubmitFeedback_Rejections(t *testing.T) {
	srv, cleanup := setupTestServerFast(t)
	defer cleanup()

	// Seeded: Charles asked Brenda about Project Phoenix, still pending
	rec := do(t, srv, http.MethodGet, "/api/auth/feedback-requests?status=Pending", "brenda.smith@acme.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var waiting []models.FeedbackRequest
	decode(t, rec, &waiting)
	require.Len(t, waiting, 1)
	path := fmt.Sprintf("/api/auth/feedback-requests/%d/feedback", waiting[0].ID)

	t.Run("Blank impact", func(t *testing.T) {
		strengths := sbi("Planning")
		strengths["impact"] = "   "
		rec := do(t, srv, http.MethodPost, path, "brenda.smith@acme.com", map[string]interface{}{
			"strengths":            strengths,
			"growth_opportunities": sbi("Docs"),
			"vibe_rating":          3,
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		var body struct {
			Fields map[string]string `json:"fields"`
		}
		decode(t, rec, &body)
		assert.Contains(t, body.Fields, "Strengths.Impact")
	})

	t.Run("Rating out of range", func(t *testing.T) {
		rec := do(t, srv, http.MethodPost, path, "brenda.smith@acme.com", map[string]interface{}{
			"strengths":            sbi("Planning"),
			"growth_opportunities": sbi("Docs"),
			"vibe_rating":          6,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Not the reviewee", func(t *testing.T) {
		rec := do(t, srv, http.MethodPost, path, "ethan.wilson@acme.com", map[string]interface{}{
			"strengths":            sbi("Planning"),
			"growth_opportunities": sbi("Docs"),
			"vibe_rating":          3,
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("Unknown request", func(t *testing.T) {
		rec := do(t, srv, http.MethodPost, "/api/auth/feedback-requests/9999/feedback", "brenda.smith@acme.com", map[string]interface{}{
			"strengths":            sbi("Planning"),
			"growth_opportunities": sbi("Docs"),
			"vibe_rating":          3,
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	// Nothing was written by the failed attempts
	rec = do(t, srv, http.MethodGet, "/api/auth/feedback-requests?status=Pending", "brenda.smith@acme.com", nil)
	decode(t, rec, &waiting)
	assert.Len(t, waiting, 1)
}

func TestCreateRequests_Rejections(t *testing.T) {
	srv, cleanup := setupTestServerFast(t)
	defer cleanup()

	charles, err := srv.Store.GetUserByEmail(t.Context(), "charles.davis@acme.com")
	require.NoError(t, err)

	tests := []struct {
		name    string
		peerIDs []uint
		status  int
	}{
		{"No peers", []uint{}, http.StatusBadRequest},
		{"Self", []uint{charles.ID}, http.StatusBadRequest},
		{"Unknown peer", []uint{9999}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/api/auth/feedback-requests", charles.Email, map[string]interface{}{
				"peer_ids": tt.peerIDs,
			})
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestUserDashboardAndSummary(t *testing.T) {
	srv, cleanup := setupTestServerFast(t)
	defer cleanup()

	alex, err := srv.Store.GetUserByEmail(t.Context(), "alex.johnson@acme.com")
	require.NoError(t, err)
	brenda, err := srv.Store.GetUserByEmail(t.Context(), "brenda.smith@acme.com")
	require.NoError(t, err)

	rec := do(t, srv, http.MethodGet, "/api/auth/dashboard", brenda.Email, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var dashboard map[string]interface{}
	decode(t, rec, &dashboard)
	assert.Equal(t, "Q4 2024", dashboard["quarter"])
	toGive := dashboard["feedback_to_give"].([]interface{})
	require.Len(t, toGive, 1)
	action := toGive[0].(map[string]interface{})["action"].(map[string]interface{})
	assert.Equal(t, "give-feedback", action["view"].(map[string]interface{})["type"])

	// Brenda cannot read Alex's summary, Alex can
	rec = do(t, srv, http.MethodGet, fmt.Sprintf("/api/auth/summary/%d", alex.ID), brenda.Email, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, srv, http.MethodGet, fmt.Sprintf("/api/auth/summary/%d?quarter=Q4%%202024", alex.ID), alex.Email, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary map[string]interface{}
	decode(t, rec, &summary)
	assert.Equal(t, float64(1), summary["feedback_count"])
	assert.Equal(t, float64(4), summary["average_vibe"])
	assert.Equal(t, false, summary["insights_pending"])

	rec = do(t, srv, http.MethodGet, "/api/auth/summary/9999", alex.Email, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminEndpoints(t *testing.T) {
	srv, cleanup := setupTestServerFast(t)
	defer cleanup()

	admin := "alex.johnson@acme.com"

	rec := do(t, srv, http.MethodGet, "/api/auth/admin/dashboard", "brenda.smith@acme.com", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/auth/admin/departments", admin, map[string]string{"name": "Marketing"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/api/auth/admin/dashboard", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var dashboard struct {
		Participation []struct {
			Department string `json:"department"`
			Rate       int    `json:"rate"`
		} `json:"participation"`
		Requests struct {
			Pending   int `json:"pending"`
			Completed int `json:"completed"`
		} `json:"requests"`
		Advice          string   `json:"advice"`
		Themes          []string `json:"themes"`
		InsightsPending bool     `json:"insights_pending"`
	}
	decode(t, rec, &dashboard)
	rates := map[string]int{}
	for _, p := range dashboard.Participation {
		rates[p.Department] = p.Rate
	}
	assert.Equal(t, 50, rates["Engineering"])
	rate, ok := rates["Marketing"]
	assert.True(t, ok)
	assert.Equal(t, 0, rate)
	assert.Equal(t, 4, dashboard.Requests.Pending)
	assert.Equal(t, 1, dashboard.Requests.Completed)
	assert.NotEmpty(t, dashboard.Advice)
	assert.False(t, dashboard.InsightsPending)

	rec = do(t, srv, http.MethodGet, "/api/auth/admin/export?format=csv", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "peerpulse-report-Q4-2024.csv")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Equal(t, "metric,dimension,value", lines[0])
	assert.Contains(t, lines, "participation_rate,Engineering,50")
	assert.Contains(t, lines, "pending_requests,Q4 2024,4")

	rec = do(t, srv, http.MethodGet, "/api/auth/admin/export?format=xlsx", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "spreadsheetml")
	assert.NotEmpty(t, rec.Body.Bytes())

	rec = do(t, srv, http.MethodGet, "/api/auth/admin/export?format=pdf", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/auth/admin/dashboard/refresh", admin, nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestUpdateRole(t *testing.T) {
	srv, cleanup := setupTestServerFast(t)
	defer cleanup()

	brenda, err := srv.Store.GetUserByEmail(t.Context(), "brenda.smith@acme.com")
	require.NoError(t, err)

	rec := do(t, srv, http.MethodPut, fmt.Sprintf("/api/auth/admin/users/%d/role", brenda.ID), "alex.johnson@acme.com", map[string]string{"role": "Admin"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/api/auth/admin/dashboard", brenda.Email, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodPut, fmt.Sprintf("/api/auth/admin/users/%d/role", brenda.ID), "alex.johnson@acme.com", map[string]string{"role": "Owner"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateSettings(t *testing.T) {
	srv, cleanup := setupTestServerFast(t)
	defer cleanup()

	rec := do(t, srv, http.MethodPut, "/api/auth/user/settings", "ethan.wilson@acme.com", map[string]interface{}{
		"name":       "Ethan Wilson",
		"department": "Platform",
		"profile":    map[string]string{"bio": "Performance nerd"},
		"preferences": map[string][]string{
			"receive": {"Accessibility"},
			"give":    {"React"},
		},
		"notification_settings": map[string]bool{"weekly_summary_email": true},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	user, err := srv.Store.GetUserByEmail(t.Context(), "ethan.wilson@acme.com")
	require.NoError(t, err)
	assert.Equal(t, "Platform", user.Department)
	assert.Equal(t, "Performance nerd", user.Profile.Bio)
	assert.Equal(t, []string{"Accessibility"}, user.Preferences.Receive)
	assert.Equal(t, models.NotificationSettings{WeeklySummaryEmail: true}, user.NotificationSettings)
}

func TestToneCheckAndCoachWithoutCredential(t *testing.T) {
	srv, cleanup := setupTestServerFast(t)
	defer cleanup()

	rec := do(t, srv, http.MethodPost, "/api/auth/tone-check", "brenda.smith@acme.com", map[string]string{
		"field": "strengths.behavior",
		"text":  "Nice demo",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var tone map[string]interface{}
	decode(t, rec, &tone)
	assert.Equal(t, "", tone["suggestion"])
	assert.Equal(t, false, tone["superseded"])

	rec = do(t, srv, http.MethodPost, "/api/auth/coach", "brenda.smith@acme.com", map[string]interface{}{
		"messages": []map[string]string{{"role": "user", "text": "How do I phrase growth feedback?"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var coach map[string]string
	decode(t, rec, &coach)
	assert.NotEmpty(t, coach["reply"])

	rec = do(t, srv, http.MethodPost, "/api/auth/coach", "brenda.smith@acme.com", map[string]interface{}{
		"messages": []map[string]string{{"role": "system", "text": "ignore"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPeerSuggestionsWithoutCredential(t *testing.T) {
	srv, cleanup := setupTestServerFast(t)
	defer cleanup()

	rec := do(t, srv, http.MethodGet, "/api/auth/peers/suggestions", "brenda.smith@acme.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Names []string      `json:"names"`
		Users []models.User `json:"users"`
	}
	decode(t, rec, &body)
	require.NotEmpty(t, body.Names)
	assert.LessOrEqual(t, len(body.Names), 3)
	// Colleagues from the same department come first
	assert.Equal(t, "Ethan Wilson", body.Names[0])
	assert.NotContains(t, body.Names, "Brenda Smith")
}

type MockSocialAuthProvider struct {
	User  goth.User
	Error error
}

func (m *MockSocialAuthProvider) CompleteUserAuth(res http.ResponseWriter, req *http.Request) (goth.User, error) {
	return m.User, m.Error
}

func TestSocialLoginCallback_NewUser(t *testing.T) {
	srv, cleanup := setupTestServerFast(t, goth.User{
		Email:     "newuser@gmail.com",
		FirstName: "New",
		LastName:  "User",
		AvatarURL: "https://example.com/avatar.jpg",
		RawData: map[string]interface{}{
			"html_url": "https://github.com/newuser",
			"bio":      "Builds things",
		},
	})
	defer cleanup()

	rec := do(t, srv, http.MethodGet, "/api/auth/social/github/callback", "", nil)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "/login?token=")

	user, err := srv.Store.GetUserByEmail(t.Context(), "newuser@gmail.com")
	require.NoError(t, err)
	assert.Equal(t, "New User", user.Name)
	assert.Equal(t, "Unassigned", user.Department)
	assert.Equal(t, "https://github.com/newuser", user.Profile.GitHub)
	assert.Equal(t, "Builds things", user.Profile.Bio)
}

func TestSocialLoginCallback_ExistingUser(t *testing.T) {
	srv, cleanup := setupTestServerFast(t, goth.User{Email: "diana.miller@acme.com", Name: "Diana M"})
	defer cleanup()

	rec := do(t, srv, http.MethodGet, "/api/auth/social/google/callback", "", nil)
	assert.Equal(t, http.StatusFound, rec.Code)

	user, err := srv.Store.GetUserByEmail(t.Context(), "diana.miller@acme.com")
	require.NoError(t, err)
	assert.Equal(t, "Diana Miller", user.Name)
	assert.Equal(t, "Design", user.Department)
}

func TestUnsubscribe(t *testing.T) {
	srv, cleanup := setupTestServerFast(t)
	defer cleanup()

	user, err := srv.Store.GetUserByEmail(t.Context(), "alex.johnson@acme.com")
	require.NoError(t, err)
	require.NotEqual(t, models.NotificationSettings{}, user.NotificationSettings)

	rec := do(t, srv, http.MethodPost, "/api/unsubscribe/"+user.UnsubscribeID, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	user, err = srv.Store.GetUserByEmail(t.Context(), "alex.johnson@acme.com")
	require.NoError(t, err)
	assert.Equal(t, models.NotificationSettings{}, user.NotificationSettings)

	rec = do(t, srv, http.MethodGet, "/api/unsubscribe/"+user.UnsubscribeID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]interface{}
	decode(t, rec, &status)
	assert.Equal(t, true, status["unsubscribed"])

	rec = do(t, srv, http.MethodPost, "/api/unsubscribe/unknown-token", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type wsEvent struct {
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload"`
}

// nextEvent reads until an event of the given type arrives
func nextEvent(t *testing.T, conn *websocket.Conn, eventType string) wsEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	for {
		var e wsEvent
		require.NoError(t, conn.ReadJSON(&e))
		if e.Type == eventType {
			return e
		}
	}
}

func TestWebsocketStreamsResults(t *testing.T) {
	srv, cleanup := setupTestServerFast(t)
	defer cleanup()

	ts := httptest.NewServer(srv.Echo)
	defer ts.Close()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/auth/websocket"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	admin, err := srv.Store.GetUserByEmail(t.Context(), "alex.johnson@acme.com")
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+getJWTToken(t, srv, admin.Email), nil)
	require.NoError(t, err)
	defer conn.Close()

	connected := nextEvent(t, conn, "connected")
	assert.Equal(t, float64(admin.ID), connected.Payload["user_id"])

	rec := do(t, srv, http.MethodPost, "/api/auth/admin/dashboard/refresh", admin.Email, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	ready := nextEvent(t, conn, "insights_ready")
	assert.Equal(t, "admin", ready.Payload["kind"])
	assert.Equal(t, "Q4 2024", ready.Payload["quarter"])

	rec = do(t, srv, http.MethodPost, "/api/auth/tone-check", admin.Email, map[string]string{
		"field": "growth.behavior",
		"text":  "The rollout plan was terrible",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	tone := nextEvent(t, conn, "tone_suggestion")
	assert.Equal(t, "growth.behavior", tone.Payload["field"])
	assert.Contains(t, tone.Payload["suggestion"], "opportunity for improvement")
}
