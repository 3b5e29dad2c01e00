package email

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/slack-go/slack"

	"peerpulse-backend/internal/models"
)

// SlackNotifier posts organisation-level activity to an incoming webhook.
// Messages never name reviewers.
type SlackNotifier struct {
	webhookURL string
	httpClient *http.Client
	logger     echo.Logger
}

func NewSlackNotifier(webhookURL string, logger echo.Logger) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		// Keep webhook calls from hanging forever
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// Post sends text to the webhook. Errors are returned to the caller.
func (s *SlackNotifier) Post(ctx context.Context, text string) error {
	if s == nil || s.webhookURL == "" {
		return nil
	}
	return slack.PostWebhookCustomHTTPContext(ctx, s.webhookURL, s.httpClient, &slack.WebhookMessage{Text: text})
}

func (s *SlackNotifier) postAsync(text string) {
	if s == nil || s.webhookURL == "" {
		return
	}
	go func() {
		if err := s.Post(context.Background(), text); err != nil {
			s.logger.Errorf("Failed to post Slack notification: %v", err)
		}
	}()
}

func requestsCreatedText(requester *models.User, count int, quarter string) string {
	noun := "peers"
	if count == 1 {
		noun = "peer"
	}
	return fmt.Sprintf(":mailbox_with_mail: %s asked %d %s for feedback (%s)", requester.Name, count, noun, quarter)
}

func feedbackSubmittedText(req *models.FeedbackRequest) string {
	return fmt.Sprintf(":white_check_mark: Feedback request #%d for %s was completed", req.ID, req.Quarter)
}
