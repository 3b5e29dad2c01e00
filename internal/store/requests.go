package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"peerpulse-backend/internal/models"
)

// NewRequests describes a fan-out: one request per peer, all sharing the
// same context, anonymity, type, quarter and creation time
type NewRequests struct {
	RequesterID uint
	PeerIDs     []uint
	Context     string
	IsAnonymous bool
	Type        models.RequestType
	Quarter     string
	CreatedAt   time.Time
}

// CreateFeedbackRequests creates one Pending request per peer. Nothing is
// created when any peer is invalid.
func (s *Store) CreateFeedbackRequests(ctx context.Context, in NewRequests) ([]models.FeedbackRequest, error) {
	if len(in.PeerIDs) == 0 {
		return nil, ErrNoPeers
	}
	seen := make(map[uint]bool, len(in.PeerIDs))
	for _, id := range in.PeerIDs {
		if id == in.RequesterID {
			return nil, ErrSelfRequest
		}
		if seen[id] {
			return nil, ErrDuplicatePeer
		}
		seen[id] = true
	}
	if in.Quarter == "" {
		return nil, fmt.Errorf("%w: quarter is required", ErrInvalid)
	}
	if in.Type == "" {
		in.Type = models.RequestTypeRequested
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now()
	}

	var created []models.FeedbackRequest
	err := s.write(ctx, func(tx *gorm.DB) error {
		var requester models.User
		if err := tx.First(&requester, in.RequesterID).Error; err != nil {
			return notFound(err, "requester")
		}

		var count int64
		if err := tx.Model(&models.User{}).Where("id IN ?", in.PeerIDs).Count(&count).Error; err != nil {
			return err
		}
		if int(count) != len(in.PeerIDs) {
			return fmt.Errorf("peer: %w", ErrNotFound)
		}

		created = make([]models.FeedbackRequest, 0, len(in.PeerIDs))
		for _, peerID := range in.PeerIDs {
			created = append(created, models.FeedbackRequest{
				RequesterID: in.RequesterID,
				RevieweeID:  peerID,
				Status:      models.StatusPending,
				IsAnonymous: in.IsAnonymous,
				Context:     in.Context,
				Quarter:     in.Quarter,
				Type:        in.Type,
				CreatedAt:   in.CreatedAt,
			})
		}
		return tx.Create(&created).Error
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// SubmitFeedback stores f and completes its request in the same transaction.
// The request must be Pending and f's reviewer must be unset exactly when the
// request is anonymous.
func (s *Store) SubmitFeedback(ctx context.Context, f *models.Feedback) error {
	if err := s.validateStruct(f); err != nil {
		return err
	}
	if f.SubmittedAt.IsZero() {
		f.SubmittedAt = time.Now()
	}

	return s.write(ctx, func(tx *gorm.DB) error {
		var req models.FeedbackRequest
		if err := tx.First(&req, f.RequestID).Error; err != nil {
			return notFound(err, "feedback request")
		}
		if !req.Status.CanTransition(models.StatusCompleted) {
			return ErrRequestNotPending
		}
		if req.IsAnonymous == f.ReviewerID.Valid {
			return ErrReviewerMismatch
		}

		if err := tx.Create(f).Error; err != nil {
			return err
		}

		result := tx.Model(&models.FeedbackRequest{}).
			Where("id = ? AND status = ?", req.ID, models.StatusPending).
			Update("status", models.StatusCompleted)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 1 {
			return ErrRequestNotPending
		}
		return nil
	})
}

// RequestFilter narrows ListRequests. Zero fields are ignored.
type RequestFilter struct {
	RequesterID uint
	RevieweeID  uint
	Status      models.FeedbackStatus
	Quarter     string
}

func (s *Store) ListRequests(ctx context.Context, filter RequestFilter) ([]models.FeedbackRequest, error) {
	q := s.db.WithContext(ctx).Model(&models.FeedbackRequest{})
	if filter.RequesterID != 0 {
		q = q.Where("requester_id = ?", filter.RequesterID)
	}
	if filter.RevieweeID != 0 {
		q = q.Where("reviewee_id = ?", filter.RevieweeID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Quarter != "" {
		q = q.Where("quarter = ?", filter.Quarter)
	}

	var requests []models.FeedbackRequest
	err := q.Order("id").Find(&requests).Error
	return requests, err
}

func (s *Store) GetRequest(ctx context.Context, id uint) (*models.FeedbackRequest, error) {
	var req models.FeedbackRequest
	if err := s.db.WithContext(ctx).First(&req, id).Error; err != nil {
		return nil, notFound(err, "feedback request")
	}
	return &req, nil
}

func (s *Store) GetFeedbackByRequest(ctx context.Context, requestID uint) (*models.Feedback, error) {
	var f models.Feedback
	if err := s.db.WithContext(ctx).Where("request_id = ?", requestID).First(&f).Error; err != nil {
		return nil, notFound(err, "feedback")
	}
	return &f, nil
}

func (s *Store) ListFeedback(ctx context.Context) ([]models.Feedback, error) {
	var feedback []models.Feedback
	err := s.db.WithContext(ctx).Order("id").Find(&feedback).Error
	return feedback, err
}
