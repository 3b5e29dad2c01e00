// Package aggregate derives dashboard metrics from store snapshots
package aggregate

import (
	"encoding/json"
	"fmt"
	"math"

	"peerpulse-backend/internal/models"
)

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

type DepartmentRate struct {
	Department string `json:"department"`
	Rate       int    `json:"rate"`
}

// ParticipationRate returns, per department, the share of its users who gave
// feedback on a request of quarter. Anonymous feedback has no known author and
// does not count. A department without users has rate 0.
func ParticipationRate(quarter string, departments []string, users []models.User, feedback []models.Feedback, requests []models.FeedbackRequest) []DepartmentRate {
	quarterOf := make(map[uint]string, len(requests))
	for _, r := range requests {
		quarterOf[r.ID] = r.Quarter
	}
	departmentOf := make(map[uint]string, len(users))
	headcount := make(map[string]int)
	for _, u := range users {
		departmentOf[u.ID] = u.Department
		headcount[u.Department]++
	}

	reviewers := make(map[string]map[uint]bool)
	for _, f := range feedback {
		reviewer, ok := f.Reviewer()
		if !ok || quarterOf[f.RequestID] != quarter {
			continue
		}
		dept, known := departmentOf[reviewer]
		if !known {
			continue
		}
		if reviewers[dept] == nil {
			reviewers[dept] = make(map[uint]bool)
		}
		reviewers[dept][reviewer] = true
	}

	rates := make([]DepartmentRate, 0, len(departments))
	for _, dept := range departments {
		rate := 0
		if n := headcount[dept]; n > 0 {
			rate = int(math.Round(float64(len(reviewers[dept])) / float64(n) * 100))
		}
		rates = append(rates, DepartmentRate{Department: dept, Rate: rate})
	}
	return rates
}

// Quarters lists the distinct quarter labels of requests in chronological order
func Quarters(requests []models.FeedbackRequest) []string {
	seen := make(map[string]bool)
	var quarters []string
	for _, r := range requests {
		if !seen[r.Quarter] {
			seen[r.Quarter] = true
			quarters = append(quarters, r.Quarter)
		}
	}
	models.SortQuarters(quarters)
	return quarters
}

// SubjectFilter selects the requests a trend is computed over
type SubjectFilter func(r *models.FeedbackRequest) bool

// AllRequests is the organisation-wide filter
func AllRequests() SubjectFilter {
	return func(*models.FeedbackRequest) bool { return true }
}

// InvolvingUser keeps requests where the user is requester or reviewee
func InvolvingUser(userID uint) SubjectFilter {
	return func(r *models.FeedbackRequest) bool { return r.Involves(userID) }
}

type TrendPoint struct {
	Quarter string  `json:"quarter"`
	Score   float64 `json:"score"`
}

// VibeTrend averages the vibe rating per quarter over feedback on requests
// accepted by filter. A quarter without matching feedback scores 0.
func VibeTrend(requests []models.FeedbackRequest, feedback []models.Feedback, filter SubjectFilter) []TrendPoint {
	byID := make(map[uint]*models.FeedbackRequest, len(requests))
	for i := range requests {
		byID[requests[i].ID] = &requests[i]
	}

	sums := make(map[string]int)
	counts := make(map[string]int)
	for _, f := range feedback {
		r, ok := byID[f.RequestID]
		if !ok || !filter(r) {
			continue
		}
		sums[r.Quarter] += f.VibeRating
		counts[r.Quarter]++
	}

	quarters := Quarters(requests)
	trend := make([]TrendPoint, 0, len(quarters))
	for _, q := range quarters {
		score := 0.0
		if counts[q] > 0 {
			score = round2(float64(sums[q]) / float64(counts[q]))
		}
		trend = append(trend, TrendPoint{Quarter: q, Score: score})
	}
	return trend
}

// Average is a mean that may not exist. It renders as "N/A" when empty.
type Average struct {
	Value float64
	Valid bool
}

func (a Average) String() string {
	if !a.Valid {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", a.Value)
}

func (a Average) MarshalJSON() ([]byte, error) {
	if !a.Valid {
		return json.Marshal("N/A")
	}
	return json.Marshal(a.Value)
}

func (a *Average) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "N/A" {
			return fmt.Errorf("invalid average %q", s)
		}
		*a = Average{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*a = Average{Value: v, Valid: true}
	return nil
}

// AverageVibe is the mean vibe rating of feedback, rounded to 2 decimals
func AverageVibe(feedback []models.Feedback) Average {
	if len(feedback) == 0 {
		return Average{}
	}
	sum := 0
	for _, f := range feedback {
		sum += f.VibeRating
	}
	return Average{Value: round2(float64(sum) / float64(len(feedback))), Valid: true}
}

// ReceivedBy selects the feedback on the user's own requests in quarter,
// leaving out anything the user wrote. An empty quarter matches every quarter.
func ReceivedBy(userID uint, quarter string, requests []models.FeedbackRequest, feedback []models.Feedback) []models.Feedback {
	byID := make(map[uint]*models.FeedbackRequest, len(requests))
	for i := range requests {
		byID[requests[i].ID] = &requests[i]
	}

	var received []models.Feedback
	for _, f := range feedback {
		r, ok := byID[f.RequestID]
		if !ok || r.RequesterID != userID || f.WrittenBy(userID) {
			continue
		}
		if quarter != "" && r.Quarter != quarter {
			continue
		}
		received = append(received, f)
	}
	return received
}

// Sentiment splits ratings into percentages: 4-5 positive, 3 neutral, 1-2 negative
type Sentiment struct {
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
}

func SentimentOf(feedback []models.Feedback) Sentiment {
	if len(feedback) == 0 {
		return Sentiment{}
	}
	var positive, neutral, negative int
	for _, f := range feedback {
		switch {
		case f.VibeRating >= 4:
			positive++
		case f.VibeRating == 3:
			neutral++
		default:
			negative++
		}
	}
	pct := func(n int) int {
		return int(math.Round(float64(n) / float64(len(feedback)) * 100))
	}
	return Sentiment{Positive: pct(positive), Neutral: pct(neutral), Negative: pct(negative)}
}

type StatusCounts struct {
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
	Declined  int `json:"declined"`
}

// CountStatuses tallies request statuses in quarter, or in every quarter when
// quarter is empty
func CountStatuses(quarter string, requests []models.FeedbackRequest, filter SubjectFilter) StatusCounts {
	var counts StatusCounts
	for i := range requests {
		r := &requests[i]
		if (quarter != "" && r.Quarter != quarter) || !filter(r) {
			continue
		}
		switch r.Status {
		case models.StatusPending:
			counts.Pending++
		case models.StatusCompleted:
			counts.Completed++
		case models.StatusDeclined:
			counts.Declined++
		}
	}
	return counts
}

// FeedbackInQuarter selects feedback whose request is filed under quarter
func FeedbackInQuarter(quarter string, requests []models.FeedbackRequest, feedback []models.Feedback) []models.Feedback {
	quarterOf := make(map[uint]string, len(requests))
	for _, r := range requests {
		quarterOf[r.ID] = r.Quarter
	}
	var selected []models.Feedback
	for _, f := range feedback {
		if quarterOf[f.RequestID] == quarter {
			selected = append(selected, f)
		}
	}
	return selected
}
