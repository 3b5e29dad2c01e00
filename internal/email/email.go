package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/labstack/echo/v4"
	resend "github.com/resend/resend-go/v2"

	"peerpulse-backend/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// EmailClient is an interface for sending emails
type EmailClient interface {
	SendAsync(toEmail, subject, htmlBody string)
	SendWelcomeEmail(user *models.User)
	SendFeedbackRequestedEmail(requester, reviewee *models.User, req *models.FeedbackRequest)
	SendFeedbackSubmittedEmail(requester, reviewer *models.User, req *models.FeedbackRequest)
	SendWeeklyDigestEmail(user *models.User, digest models.Digest)
}

// ResendEmailClient implements EmailClient using the Resend service
type ResendEmailClient struct {
	client        *resend.Client
	defaultSender string
	// appURL prefixes the links put in emails, e.g. "https://peerpulse.app"
	appURL string
	logger echo.Logger
}

// NewResendEmailClient creates a new ResendEmailClient
func NewResendEmailClient(client *resend.Client, defaultSender, appURL string, logger echo.Logger) *ResendEmailClient {
	return &ResendEmailClient{
		client:        client,
		defaultSender: defaultSender,
		appURL:        appURL,
		logger:        logger,
	}
}

// SendAsync sends an email asynchronously
func (c *ResendEmailClient) SendAsync(toEmail, subject, htmlBody string) {
	if c == nil || c.client == nil {
		return
	}

	if c.defaultSender == "" {
		c.logger.Errorf("Resend default sender not configured, skipping email.")
		return
	}

	go func() {
		params := &resend.SendEmailRequest{
			From:    c.defaultSender,
			To:      []string{toEmail},
			Subject: subject,
			Html:    htmlBody,
		}

		_, err := c.client.Emails.Send(params)
		if err != nil {
			c.logger.Errorf("Failed to send email to %s (Subject: %s): %v", toEmail, subject, err)
		} else {
			c.logger.Infof("Email sent successfully to %s (Subject: %s)", toEmail, subject)
		}
	}()
}

func (c *ResendEmailClient) unsubscribeURL(user *models.User) string {
	return fmt.Sprintf("%s/api/unsubscribe/%s", c.appURL, user.UnsubscribeID)
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// SendWelcomeEmail sends a welcome email to a new user
func (c *ResendEmailClient) SendWelcomeEmail(user *models.User) {
	if user == nil {
		c.logger.Error("Cannot send welcome email to nil user")
		return
	}

	htmlBody, err := render("welcome.html", map[string]string{
		"FirstName":      user.FirstName(),
		"AppURL":         c.appURL,
		"UnsubscribeURL": c.unsubscribeURL(user),
	})
	if err != nil {
		c.logger.Errorf("Failed to render welcome email: %v", err)
		return
	}

	c.SendAsync(user.Email, "Welcome to PeerPulse "+user.FirstName(), htmlBody)
}

// SendFeedbackRequestedEmail tells the reviewee someone is waiting on their
// feedback. Reviewees who opted out of request emails are skipped.
func (c *ResendEmailClient) SendFeedbackRequestedEmail(requester, reviewee *models.User, req *models.FeedbackRequest) {
	if requester == nil || reviewee == nil || req == nil {
		c.logger.Error("Cannot send feedback request email without requester, reviewee and request")
		return
	}
	if !reviewee.NotificationSettings.NewRequestEmail {
		return
	}

	htmlBody, err := render("feedback-requested.html", map[string]any{
		"FirstName":      reviewee.FirstName(),
		"RequesterName":  requester.Name,
		"Quarter":        req.Quarter,
		"Context":        req.Context,
		"Anonymous":      req.IsAnonymous,
		"ActionURL":      fmt.Sprintf("%s/give-feedback/%d", c.appURL, req.ID),
		"UnsubscribeURL": c.unsubscribeURL(reviewee),
	})
	if err != nil {
		c.logger.Errorf("Failed to render feedback request email: %v", err)
		return
	}

	subject := fmt.Sprintf("%s asked for your feedback", requester.Name)
	c.SendAsync(reviewee.Email, subject, htmlBody)
}

// SendFeedbackSubmittedEmail tells the requester their request was answered.
// reviewer is nil for anonymous feedback and the email does not name anyone.
func (c *ResendEmailClient) SendFeedbackSubmittedEmail(requester, reviewer *models.User, req *models.FeedbackRequest) {
	if requester == nil || req == nil {
		c.logger.Error("Cannot send feedback submitted email without requester and request")
		return
	}
	if !requester.NotificationSettings.FeedbackSubmittedEmail {
		return
	}

	reviewerName := ""
	if reviewer != nil && !req.IsAnonymous {
		reviewerName = reviewer.Name
	}

	htmlBody, err := render("feedback-submitted.html", map[string]any{
		"FirstName":      requester.FirstName(),
		"ReviewerName":   reviewerName,
		"Quarter":        req.Quarter,
		"ActionURL":      fmt.Sprintf("%s/summary/%d?quarter=%s", c.appURL, requester.ID, template.URLQueryEscaper(req.Quarter)),
		"UnsubscribeURL": c.unsubscribeURL(requester),
	})
	if err != nil {
		c.logger.Errorf("Failed to render feedback submitted email: %v", err)
		return
	}

	c.SendAsync(requester.Email, "You received new feedback", htmlBody)
}

// SendWeeklyDigestEmail sends the weekly activity roundup to users who turned
// the weekly summary on
func (c *ResendEmailClient) SendWeeklyDigestEmail(user *models.User, digest models.Digest) {
	if user == nil {
		c.logger.Error("Cannot send weekly digest to nil user")
		return
	}
	if !user.NotificationSettings.WeeklySummaryEmail {
		return
	}

	htmlBody, err := render("weekly-digest.html", map[string]any{
		"FirstName":       user.FirstName(),
		"Quarter":         digest.Quarter,
		"ToGive":          digest.ToGive,
		"AwaitingReplies": digest.AwaitingReplies,
		"Received":        digest.Received,
		"ActionURL":       c.appURL + "/dashboard",
		"UnsubscribeURL":  c.unsubscribeURL(user),
	})
	if err != nil {
		c.logger.Errorf("Failed to render weekly digest: %v", err)
		return
	}

	c.SendAsync(user.Email, "Your PeerPulse week", htmlBody)
}
