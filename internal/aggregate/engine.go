package aggregate

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"

	"peerpulse-backend/internal/insight"
	"peerpulse-backend/internal/models"
	"peerpulse-backend/internal/store"
)

// Advisor is the part of the insight gateway the engine uses
type Advisor interface {
	SummarizeFeedback(ctx context.Context, feedback []models.Feedback, userName string) insight.Summary
	FeedbackThemes(ctx context.Context, feedback []models.Feedback) []string
	AdminAdvice(ctx context.Context, metrics any) string
}

type AdminDashboard struct {
	Quarter         string           `json:"quarter"`
	Version         uint64           `json:"version"`
	Quarters        []string         `json:"quarters"`
	Participation   []DepartmentRate `json:"participation"`
	VibeTrend       []TrendPoint     `json:"vibe_trend"`
	Requests        StatusCounts     `json:"requests"`
	Themes          []string         `json:"themes"`
	Advice          string           `json:"advice"`
	InsightsPending bool             `json:"insights_pending"`
}

type Summary struct {
	UserID          uint         `json:"user_id"`
	UserName        string       `json:"user_name"`
	Quarter         string       `json:"quarter"`
	Version         uint64       `json:"version"`
	FeedbackCount   int          `json:"feedback_count"`
	AverageVibe     Average      `json:"average_vibe"`
	Sentiment       Sentiment    `json:"sentiment"`
	VibeTrend       []TrendPoint `json:"vibe_trend"`
	Strengths       string       `json:"strengths"`
	Growth          string       `json:"growth"`
	Themes          []string     `json:"themes"`
	InsightsPending bool         `json:"insights_pending"`
}

// RequestItem is a request as listed on a dashboard, with the name of the
// other party and, when there is something to do, where to do it
type RequestItem struct {
	models.FeedbackRequest
	CounterpartName string                   `json:"counterpart_name"`
	Action          *models.NavigationTarget `json:"action,omitempty"`
}

type UserDashboard struct {
	Quarter        string                    `json:"quarter"`
	Version        uint64                    `json:"version"`
	FeedbackToGive []RequestItem             `json:"feedback_to_give"`
	MyRequests     []RequestItem             `json:"my_requests"`
	Requests       StatusCounts              `json:"requests"`
	AverageVibe    Average                   `json:"average_vibe"`
	VibeTrend      []TrendPoint              `json:"vibe_trend"`
	Summaries      []models.NavigationTarget `json:"summaries"`
	Navigation     []models.NavigationTarget `json:"navigation"`
}

const (
	InsightsAdmin   = "admin"
	InsightsSummary = "summary"
)

// InsightsReady announces gateway insights that finished in the background.
// UserID is set for summaries only.
type InsightsReady struct {
	Kind    string `json:"kind"`
	Quarter string `json:"quarter"`
	UserID  uint   `json:"user_id,omitempty"`
}

// Engine serves aggregated views of the store. Results are memoised per
// (quarter, store version); gateway insights are refreshed in the background.
type Engine struct {
	store   *store.Store
	advisor Advisor
	logger  echo.Logger

	admin     *memo[AdminDashboard]
	summaries *memo[Summary]

	listenersMu sync.Mutex
	listeners   []func(InsightsReady)
}

// NewEngine creates an engine. cache may be nil.
func NewEngine(s *store.Store, advisor Advisor, cache Cache, logger echo.Logger) *Engine {
	e := &Engine{
		store:     s,
		advisor:   advisor,
		logger:    logger,
		admin:     newMemo[AdminDashboard](cache, logger),
		summaries: newMemo[Summary](cache, logger),
	}
	e.admin.onReady = func(key string, _ Insights) {
		e.announce(InsightsReady{Kind: InsightsAdmin, Quarter: strings.TrimPrefix(key, "admin:")})
	}
	e.summaries.onReady = func(key string, _ Insights) {
		if userID, quarter, ok := parseSummaryKey(key); ok {
			e.announce(InsightsReady{Kind: InsightsSummary, Quarter: quarter, UserID: userID})
		}
	}
	s.OnChange(e.storeChanged)
	return e
}

// OnInsightsReady registers fn to run after each background insight run
func (e *Engine) OnInsightsReady(fn func(InsightsReady)) {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()
	e.listeners = append(e.listeners, fn)
}

func (e *Engine) announce(r InsightsReady) {
	e.listenersMu.Lock()
	listeners := append([]func(InsightsReady){}, e.listeners...)
	e.listenersMu.Unlock()
	for _, fn := range listeners {
		fn(r)
	}
}

// storeChanged recomputes every admin dashboard already being watched
func (e *Engine) storeChanged(version uint64) {
	for _, key := range e.admin.keys() {
		quarter := strings.TrimPrefix(key, "admin:")
		go func() {
			if _, err := e.resolveAdmin(context.Background(), quarter, false); err != nil {
				e.logger.Warnf("Failed to recompute admin dashboard for %s: %v", quarter, err)
			}
		}()
	}
}

func adminKey(quarter string) string {
	return "admin:" + quarter
}

func summaryKey(userID uint, quarter string) string {
	return fmt.Sprintf("summary:%d:%s", userID, quarter)
}

func parseSummaryKey(key string) (uint, string, bool) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 || parts[0] != "summary" {
		return 0, "", false
	}
	id, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, "", false
	}
	return uint(id), parts[2], true
}

func (e *Engine) resolveAdmin(ctx context.Context, quarter string, force bool) (resolved[AdminDashboard], error) {
	snap, err := e.store.Snapshot(ctx)
	if err != nil {
		return resolved[AdminDashboard]{}, err
	}

	inQuarter := FeedbackInQuarter(quarter, snap.Requests, snap.Feedback)

	numbers := func() (AdminDashboard, any) {
		d := AdminDashboard{
			Quarter:       quarter,
			Version:       snap.Version,
			Quarters:      Quarters(snap.Requests),
			Participation: ParticipationRate(quarter, snap.DepartmentNames(), snap.Users, snap.Feedback, snap.Requests),
			VibeTrend:     VibeTrend(snap.Requests, snap.Feedback, AllRequests()),
			Requests:      CountStatuses(quarter, snap.Requests, AllRequests()),
		}
		feedbackIDs := make([]uint, 0, len(inQuarter))
		for _, f := range inQuarter {
			feedbackIDs = append(feedbackIDs, f.ID)
		}
		return d, struct {
			Participation []DepartmentRate
			VibeTrend     []TrendPoint
			Feedback      []uint
		}{d.Participation, d.VibeTrend, feedbackIDs}
	}

	insights := func(ctx context.Context) Insights {
		d, _ := numbers()
		themes := e.advisor.FeedbackThemes(ctx, inQuarter)
		advice := e.advisor.AdminAdvice(ctx, map[string]any{
			"quarter":       quarter,
			"participation": d.Participation,
			"vibeScores":    d.VibeTrend,
			"themes":        themes,
			"requests":      d.Requests,
		})
		return Insights{Themes: themes, Advice: advice}
	}

	return e.admin.resolve(ctx, job[AdminDashboard]{
		key:      adminKey(quarter),
		version:  snap.Version,
		force:    force,
		numbers:  numbers,
		insights: insights,
	}), nil
}

func assembleAdmin(r resolved[AdminDashboard]) *AdminDashboard {
	d := r.numbers
	d.Themes = r.insights.Themes
	if d.Themes == nil {
		d.Themes = []string{}
	}
	d.Advice = r.insights.Advice
	d.InsightsPending = r.pending
	return &d
}

// AdminDashboard returns organisation metrics for quarter. The first request
// for a quarter waits for its insights; later ones return the previous
// insights while new ones are produced.
func (e *Engine) AdminDashboard(ctx context.Context, quarter string) (*AdminDashboard, error) {
	r, err := e.resolveAdmin(ctx, quarter, false)
	if err != nil {
		return nil, err
	}
	if r.empty {
		r = e.admin.wait(ctx, adminKey(quarter), r)
	}
	return assembleAdmin(r), nil
}

// Refresh recomputes the admin dashboard of quarter, gateway calls included.
// The returned channel is closed once the new insights are in place.
func (e *Engine) Refresh(ctx context.Context, quarter string) <-chan struct{} {
	r, err := e.resolveAdmin(ctx, quarter, true)
	if err != nil {
		e.logger.Errorf("Failed to refresh admin dashboard for %s: %v", quarter, err)
		done := make(chan struct{})
		close(done)
		return done
	}
	return r.ready
}

// Summary returns what userID received in quarter: numbers right away and a
// narrative from the gateway
func (e *Engine) Summary(ctx context.Context, userID uint, quarter string) (*Summary, error) {
	snap, err := e.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	user, ok := snap.User(userID)
	if !ok {
		return nil, fmt.Errorf("user: %w", store.ErrNotFound)
	}

	received := ReceivedBy(userID, quarter, snap.Requests, snap.Feedback)

	numbers := func() (Summary, any) {
		s := Summary{
			UserID:        user.ID,
			UserName:      user.Name,
			Quarter:       quarter,
			Version:       snap.Version,
			FeedbackCount: len(received),
			AverageVibe:   AverageVibe(received),
			Sentiment:     SentimentOf(received),
			VibeTrend:     VibeTrend(snap.Requests, snap.Feedback, InvolvingUser(userID)),
		}
		ids := make([]uint, 0, len(received))
		for _, f := range received {
			ids = append(ids, f.ID)
		}
		return s, struct {
			Name     string
			Feedback []uint
		}{user.Name, ids}
	}

	insights := func(ctx context.Context) Insights {
		summary := e.advisor.SummarizeFeedback(ctx, received, user.Name)
		return Insights{Strengths: summary.Strengths, Growth: summary.Growth, Themes: summary.Themes}
	}

	key := summaryKey(userID, quarter)
	r := e.summaries.resolve(ctx, job[Summary]{
		key:      key,
		version:  snap.Version,
		numbers:  numbers,
		insights: insights,
	})
	if r.empty {
		r = e.summaries.wait(ctx, key, r)
	}

	s := r.numbers
	s.Strengths = r.insights.Strengths
	s.Growth = r.insights.Growth
	s.Themes = r.insights.Themes
	if s.Themes == nil {
		s.Themes = []string{}
	}
	s.InsightsPending = r.pending
	return &s, nil
}

// UserDashboard lists what user has to do and what they asked for in quarter
func (e *Engine) UserDashboard(ctx context.Context, user *models.User, quarter string) (*UserDashboard, error) {
	snap, err := e.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	nameOf := func(id uint) string {
		if u, ok := snap.User(id); ok {
			return u.Name
		}
		return "Unknown user"
	}

	d := &UserDashboard{
		Quarter:        quarter,
		Version:        snap.Version,
		FeedbackToGive: []RequestItem{},
		MyRequests:     []RequestItem{},
		Summaries:      []models.NavigationTarget{},
		Requests:       CountStatuses(quarter, snap.Requests, InvolvingUser(user.ID)),
		AverageVibe:    AverageVibe(ReceivedBy(user.ID, quarter, snap.Requests, snap.Feedback)),
		VibeTrend:      VibeTrend(snap.Requests, snap.Feedback, InvolvingUser(user.ID)),
		Navigation: []models.NavigationTarget{
			{Label: "Request feedback", View: models.RequestFeedbackView{}},
			{Label: "Settings", View: models.SettingsView{}},
		},
	}

	var myQuarters []models.FeedbackRequest
	for _, r := range snap.Requests {
		switch {
		case r.RevieweeID == user.ID && r.Status == models.StatusPending:
			d.FeedbackToGive = append(d.FeedbackToGive, RequestItem{
				FeedbackRequest: r,
				CounterpartName: nameOf(r.RequesterID),
				Action:          &models.NavigationTarget{Label: "Give", View: models.GiveFeedbackView{RequestID: r.ID}},
			})
		case r.RequesterID == user.ID:
			d.MyRequests = append(d.MyRequests, RequestItem{
				FeedbackRequest: r,
				CounterpartName: nameOf(r.RevieweeID),
			})
			myQuarters = append(myQuarters, r)
		}
	}

	for _, q := range Quarters(myQuarters) {
		d.Summaries = append(d.Summaries, models.NavigationTarget{
			Label: q + " Summary",
			View:  models.ViewSummaryView{UserID: user.ID, Quarter: q},
		})
	}
	return d, nil
}
