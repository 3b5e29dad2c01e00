package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

type FeedbackStatus string

const (
	StatusPending   FeedbackStatus = "Pending"
	StatusCompleted FeedbackStatus = "Completed"
	// Declined is a terminal state nothing produces yet
	StatusDeclined FeedbackStatus = "Declined"
)

// CanTransition reports whether a request may move from s to next.
// Pending is the only non-terminal state.
func (s FeedbackStatus) CanTransition(next FeedbackStatus) bool {
	if s != StatusPending {
		return false
	}
	return next == StatusCompleted || next == StatusDeclined
}

// RequestType describes how a feedback request originated
type RequestType string

const (
	RequestTypeRequested RequestType = "Requested"
	RequestTypeSuggested RequestType = "Suggested"
	RequestTypeMandated  RequestType = "Mandated"
)

// FeedbackRequest asks the reviewee to give feedback about the requester
type FeedbackRequest struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	RequesterID uint           `json:"requester_id" gorm:"not null;index"`
	RevieweeID  uint           `json:"reviewee_id" gorm:"not null;index"`
	Status      FeedbackStatus `json:"status" gorm:"type:varchar(20);not null;default:Pending;index"`
	IsAnonymous bool           `json:"is_anonymous"`
	Context     string         `json:"context"`
	Quarter     string         `json:"quarter" gorm:"not null;index"`
	Type        RequestType    `json:"type" gorm:"type:varchar(20);not null"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Involves reports whether the user is the requester or the reviewee
func (r *FeedbackRequest) Involves(userID uint) bool {
	return r.RequesterID == userID || r.RevieweeID == userID
}

// SBI is a Situation-Behavior-Impact block
type SBI struct {
	Situation string `json:"situation" validate:"notblank"`
	Behavior  string `json:"behavior" validate:"notblank"`
	Impact    string `json:"impact" validate:"notblank"`
}

// Feedback is the content submitted against exactly one FeedbackRequest.
// It is immutable once stored.
type Feedback struct {
	ID        uint `json:"id" gorm:"primaryKey"`
	RequestID uint `json:"request_id" gorm:"not null;uniqueIndex"`
	// Unset iff the originating request was anonymous
	ReviewerID  sql.Null[uint] `json:"-" gorm:"type:integer;index"`
	Strengths   SBI            `json:"strengths" gorm:"embedded;embeddedPrefix:strengths_"`
	Growth      SBI            `json:"growth_opportunities" gorm:"embedded;embeddedPrefix:growth_"`
	VibeRating  int            `json:"vibe_rating" gorm:"not null" validate:"required,min=1,max=5"`
	VibeComment string         `json:"vibe_comment"`
	SubmittedAt time.Time      `json:"submitted_at"`
}

// AnonymousReviewer is the reviewer of feedback on an anonymous request
func AnonymousReviewer() sql.Null[uint] {
	return sql.Null[uint]{}
}

// ReviewedBy is the reviewer of feedback on a named request
func ReviewedBy(userID uint) sql.Null[uint] {
	return sql.Null[uint]{V: userID, Valid: true}
}

// Reviewer returns the author and true, or false for anonymous feedback
func (f *Feedback) Reviewer() (uint, bool) {
	return f.ReviewerID.V, f.ReviewerID.Valid
}

// WrittenBy reports whether userID is the known author
func (f *Feedback) WrittenBy(userID uint) bool {
	return f.ReviewerID.Valid && f.ReviewerID.V == userID
}

func (f Feedback) MarshalJSON() ([]byte, error) {
	type alias Feedback
	var reviewer *uint
	if id, ok := f.Reviewer(); ok {
		reviewer = &id
	}
	return json.Marshal(struct {
		alias
		ReviewerID *uint `json:"reviewer_id"`
	}{alias(f), reviewer})
}
