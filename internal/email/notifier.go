package email

import (
	"peerpulse-backend/internal/models"
)

// Notifier fans feedback lifecycle events out to email and Slack. Either
// channel may be nil.
type Notifier struct {
	Email EmailClient
	Slack *SlackNotifier
}

func NewNotifier(emailClient EmailClient, slackNotifier *SlackNotifier) *Notifier {
	return &Notifier{Email: emailClient, Slack: slackNotifier}
}

// FeedbackRequested is called once per fan-out with all created requests
func (n *Notifier) FeedbackRequested(requester *models.User, reviewees []models.User, requests []models.FeedbackRequest) {
	if n == nil || len(requests) == 0 {
		return
	}
	if n.Email != nil {
		for i := range requests {
			for j := range reviewees {
				if reviewees[j].ID == requests[i].RevieweeID {
					n.Email.SendFeedbackRequestedEmail(requester, &reviewees[j], &requests[i])
				}
			}
		}
	}
	n.Slack.postAsync(requestsCreatedText(requester, len(requests), requests[0].Quarter))
}

// FeedbackSubmitted is called after a request was completed. reviewer is nil
// when the request was anonymous.
func (n *Notifier) FeedbackSubmitted(requester, reviewer *models.User, req *models.FeedbackRequest) {
	if n == nil {
		return
	}
	if n.Email != nil {
		n.Email.SendFeedbackSubmittedEmail(requester, reviewer, req)
	}
	n.Slack.postAsync(feedbackSubmittedText(req))
}

// WeeklyDigest goes out by email only
func (n *Notifier) WeeklyDigest(user *models.User, digest models.Digest) {
	if n == nil || n.Email == nil {
		return
	}
	n.Email.SendWeeklyDigestEmail(user, digest)
}
