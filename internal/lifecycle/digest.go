package lifecycle

import (
	"context"
	"time"

	"peerpulse-backend/internal/models"
)

// DigestInterval is how often weekly digests go out
const DigestInterval = 7 * 24 * time.Hour

// SendWeeklyDigests sends each user who enabled the weekly summary an overview
// of the last DigestInterval. Users with nothing to report are skipped.
// It returns how many digests were sent.
func (c *Controller) SendWeeklyDigests(ctx context.Context) (int, error) {
	if c.notifier == nil {
		return 0, nil
	}

	snap, err := c.store.Snapshot(ctx)
	if err != nil {
		return 0, err
	}

	since := c.now().Add(-DigestInterval)
	requests := snap.RequestByID()
	digests := make(map[uint]*models.Digest)
	digestFor := func(userID uint) *models.Digest {
		d, ok := digests[userID]
		if !ok {
			d = &models.Digest{Quarter: c.CurrentQuarter()}
			digests[userID] = d
		}
		return d
	}

	for _, r := range snap.Requests {
		if r.Status != models.StatusPending {
			continue
		}
		digestFor(r.RevieweeID).ToGive++
		digestFor(r.RequesterID).AwaitingReplies++
	}
	for _, f := range snap.Feedback {
		r, ok := requests[f.RequestID]
		if !ok || f.SubmittedAt.Before(since) {
			continue
		}
		digestFor(r.RequesterID).Received++
	}

	sent := 0
	for i := range snap.Users {
		u := &snap.Users[i]
		d, ok := digests[u.ID]
		if !ok || d.Empty() || !u.NotificationSettings.WeeklySummaryEmail {
			continue
		}
		c.notifier.WeeklyDigest(u, *d)
		sent++
	}
	return sent, nil
}

// RunWeeklyDigests sends digests every interval until ctx is done
func (c *Controller) RunWeeklyDigests(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sent, err := c.SendWeeklyDigests(ctx)
			if err != nil {
				c.logger.Errorf("Failed to send weekly digests: %v", err)
				continue
			}
			c.logger.Infof("Sent %d weekly digests", sent)
		}
	}
}
