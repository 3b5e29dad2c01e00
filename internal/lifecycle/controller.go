// Package lifecycle governs feedback requests from creation to completion
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"peerpulse-backend/internal/models"
	"peerpulse-backend/internal/store"
	"peerpulse-backend/internal/telemetry"
	"peerpulse-backend/internal/utils"
)

// ErrNotReviewee is returned when someone other than the reviewee answers a request
var ErrNotReviewee = errors.New("only the reviewee can answer this feedback request")

// ValidationError lists the form fields that failed validation. Nothing was
// written when it is returned.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name, rule := range e.Fields {
		names = append(names, name+" ("+rule+")")
	}
	sort.Strings(names)
	return "invalid form: " + strings.Join(names, ", ")
}

func (e *ValidationError) Unwrap() error {
	return store.ErrInvalid
}

func newValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", store.ErrInvalid, err)
	}
	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		// Namespace is e.g. "SubmissionForm.Strengths.Impact"
		name := fe.Namespace()
		if i := strings.Index(name, "."); i >= 0 {
			name = name[i+1:]
		}
		fields[name] = fe.Tag()
	}
	return &ValidationError{Fields: fields}
}

// Notifier hears about lifecycle events after they were stored
type Notifier interface {
	FeedbackRequested(requester *models.User, reviewees []models.User, requests []models.FeedbackRequest)
	FeedbackSubmitted(requester, reviewer *models.User, req *models.FeedbackRequest)
	WeeklyDigest(user *models.User, digest models.Digest)
}

type Controller struct {
	store    *store.Store
	notifier Notifier
	validate *validator.Validate
	logger   echo.Logger

	// quarter overrides the label derived from now
	quarter string
	now     func() time.Time
}

// NewController creates a controller. notifier may be nil.
// currentQuarter, when set, replaces the quarter derived from the clock.
func NewController(s *store.Store, notifier Notifier, currentQuarter string, logger echo.Logger) *Controller {
	return &Controller{
		store:    s,
		notifier: notifier,
		validate: utils.NewValidator(),
		logger:   logger,
		quarter:  currentQuarter,
		now:      time.Now,
	}
}

// CurrentQuarter is the label new requests are filed under
func (c *Controller) CurrentQuarter() string {
	if c.quarter != "" {
		return c.quarter
	}
	return models.QuarterOf(c.now())
}

type RequestForm struct {
	PeerIDs     []uint             `json:"peer_ids" validate:"required,min=1,dive,required"`
	Context     string             `json:"context" validate:"max=2000"`
	IsAnonymous bool               `json:"is_anonymous"`
	Type        models.RequestType `json:"type" validate:"omitempty,oneof=Requested Suggested Mandated"`
	// Quarter defaults to the current quarter
	Quarter string `json:"quarter" validate:"max=32"`
}

// RequestFeedback asks every selected peer for feedback on requester
func (c *Controller) RequestFeedback(ctx context.Context, requester *models.User, form RequestForm) ([]models.FeedbackRequest, error) {
	if err := c.validate.Struct(form); err != nil {
		return nil, newValidationError(err)
	}

	quarter := strings.TrimSpace(form.Quarter)
	if quarter == "" {
		quarter = c.CurrentQuarter()
	}

	created, err := c.store.CreateFeedbackRequests(ctx, store.NewRequests{
		RequesterID: requester.ID,
		PeerIDs:     form.PeerIDs,
		Context:     strings.TrimSpace(form.Context),
		IsAnonymous: form.IsAnonymous,
		Type:        form.Type,
		Quarter:     quarter,
		CreatedAt:   c.now(),
	})
	if err != nil {
		return nil, err
	}

	telemetry.FeedbackRequestsCreated.WithLabelValues(string(created[0].Type)).Add(float64(len(created)))
	c.logger.Infof("User %d requested feedback from %d peers for %s", requester.ID, len(created), quarter)

	if c.notifier != nil {
		reviewees := make([]models.User, 0, len(created))
		for _, req := range created {
			reviewee, err := c.store.GetUser(ctx, req.RevieweeID)
			if err != nil {
				c.logger.Warnf("Could not load reviewee %d for notification: %v", req.RevieweeID, err)
				continue
			}
			reviewees = append(reviewees, *reviewee)
		}
		c.notifier.FeedbackRequested(requester, reviewees, created)
	}

	return created, nil
}

type SubmissionForm struct {
	Strengths   models.SBI `json:"strengths"`
	Growth      models.SBI `json:"growth_opportunities"`
	VibeRating  int        `json:"vibe_rating" validate:"required,min=1,max=5"`
	VibeComment string     `json:"vibe_comment" validate:"max=1000"`
}

func trimSBI(s models.SBI) models.SBI {
	return models.SBI{
		Situation: strings.TrimSpace(s.Situation),
		Behavior:  strings.TrimSpace(s.Behavior),
		Impact:    strings.TrimSpace(s.Impact),
	}
}

// SubmitFeedback answers request requestID on behalf of current, who must be
// its reviewee. The feedback is stored and the request completed together.
func (c *Controller) SubmitFeedback(ctx context.Context, current *models.User, requestID uint, form SubmissionForm) (*models.Feedback, error) {
	if err := c.validate.Struct(form); err != nil {
		return nil, newValidationError(err)
	}

	req, err := c.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.RevieweeID != current.ID {
		return nil, ErrNotReviewee
	}

	feedback := &models.Feedback{
		RequestID:   req.ID,
		ReviewerID:  models.ReviewedBy(current.ID),
		Strengths:   trimSBI(form.Strengths),
		Growth:      trimSBI(form.Growth),
		VibeRating:  form.VibeRating,
		VibeComment: strings.TrimSpace(form.VibeComment),
		SubmittedAt: c.now(),
	}
	if req.IsAnonymous {
		feedback.ReviewerID = models.AnonymousReviewer()
	}

	if err := c.store.SubmitFeedback(ctx, feedback); err != nil {
		return nil, err
	}

	telemetry.FeedbackSubmitted.Inc()
	c.logger.Infof("Feedback %d submitted for request %d", feedback.ID, req.ID)

	if c.notifier != nil {
		requester, err := c.store.GetUser(ctx, req.RequesterID)
		if err != nil {
			c.logger.Warnf("Could not load requester %d for notification: %v", req.RequesterID, err)
			return feedback, nil
		}
		req.Status = models.StatusCompleted
		var reviewer *models.User
		if !req.IsAnonymous {
			reviewer = current
		}
		c.notifier.FeedbackSubmitted(requester, reviewer, req)
	}

	return feedback, nil
}
