package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"peerpulse-backend/internal/models"
)

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func uintPtr(v uint) *uint {
	return &v
}

// Seed loads the Acme demo organisation into an empty store. Every demo user
// gets the given password. Seeding a store that already has users does nothing.
func (s *Store) Seed(ctx context.Context, password string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	users := []models.User{
		{
			Name: "Alex Johnson", Email: "alex.johnson@acme.com", Role: models.RoleAdmin, Department: "Leadership",
			Profile:              models.Profile{Bio: "Visionary leader driving innovation at Acme Inc.", LinkedIn: "https://linkedin.com/in/alexjohnson", Website: "https://acme.com"},
			Preferences:          models.FeedbackPreferences{Receive: []string{"Strategic Planning", "Team Motivation"}, Give: []string{"Leadership", "Public Speaking"}},
			NotificationSettings: models.NotificationSettings{NewRequestEmail: true, FeedbackSubmittedEmail: true, WeeklySummaryEmail: true},
		},
		{
			Name: "Brenda Smith", Email: "brenda.smith@acme.com", Department: "Engineering", ManagerID: uintPtr(1),
			Profile:              models.Profile{Bio: "Senior Software Engineer specializing in backend systems.", LinkedIn: "https://linkedin.com/in/brendasmith", GitHub: "https://github.com/brendasmith"},
			Preferences:          models.FeedbackPreferences{Receive: []string{"Code Quality", "System Design"}, Give: []string{"Mentorship", "Java"}},
			NotificationSettings: models.NotificationSettings{NewRequestEmail: true, FeedbackSubmittedEmail: true},
		},
		{
			Name: "Charles Davis", Email: "charles.davis@acme.com", Department: "Product", ManagerID: uintPtr(1),
			Profile:              models.Profile{Bio: "Product Manager focused on user-centric design.", LinkedIn: "https://linkedin.com/in/charlesdavis"},
			Preferences:          models.FeedbackPreferences{Receive: []string{"Roadmap Prioritization", "User Research"}, Give: []string{"Product Strategy", "Agile Methodologies"}},
			NotificationSettings: models.NotificationSettings{NewRequestEmail: true},
		},
		{
			Name: "Diana Miller", Email: "diana.miller@acme.com", Department: "Design", ManagerID: uintPtr(1),
			Profile:              models.Profile{Bio: "Lead UX/UI Designer creating intuitive experiences.", LinkedIn: "https://linkedin.com/in/dianamiller", Website: "https://dianamiller.design"},
			Preferences:          models.FeedbackPreferences{Receive: []string{"Visual Design", "Interaction Design"}, Give: []string{"Figma", "User Testing"}},
			NotificationSettings: models.NotificationSettings{NewRequestEmail: true, FeedbackSubmittedEmail: true},
		},
		{
			Name: "Ethan Wilson", Email: "ethan.wilson@acme.com", Department: "Engineering", ManagerID: uintPtr(2),
			Profile:              models.Profile{Bio: "Frontend developer passionate about React and performance.", LinkedIn: "https://linkedin.com/in/ethanwilson", GitHub: "https://github.com/ethanwilson"},
			Preferences:          models.FeedbackPreferences{Receive: []string{"JavaScript", "CSS architecture"}, Give: []string{"React", "Web Performance"}},
			NotificationSettings: models.NotificationSettings{NewRequestEmail: true, FeedbackSubmittedEmail: true},
		},
	}

	return s.write(ctx, func(tx *gorm.DB) error {
		for i := range users {
			users[i].Password = password
			if err := ensureDepartment(tx, users[i].Department); err != nil {
				return err
			}
			if err := tx.Create(&users[i]).Error; err != nil {
				return err
			}
		}
		alex, brenda, charles, diana, ethan := users[0].ID, users[1].ID, users[2].ID, users[3].ID, users[4].ID

		requests := []models.FeedbackRequest{
			{RequesterID: charles, RevieweeID: brenda, IsAnonymous: false, Context: "Feedback on the Q4 product spec for Project Phoenix.", CreatedAt: day("2024-10-05"), Quarter: "Q4 2024", Type: models.RequestTypeRequested},
			{RequesterID: diana, RevieweeID: ethan, IsAnonymous: true, Context: "How can I improve my design handoffs to engineering?", CreatedAt: day("2024-10-11"), Quarter: "Q4 2024", Type: models.RequestTypeSuggested},
			{RequesterID: alex, RevieweeID: brenda, IsAnonymous: false, Context: "General feedback on leadership during the last quarter.", CreatedAt: day("2024-10-02"), Quarter: "Q4 2024", Type: models.RequestTypeSuggested},
			{RequesterID: charles, RevieweeID: alex, IsAnonymous: false, Context: "Feedback on my contributions to the marketing campaign.", CreatedAt: day("2024-07-15"), Quarter: "Q3 2024", Type: models.RequestTypeRequested},
			{RequesterID: brenda, RevieweeID: charles, IsAnonymous: true, Context: "Feedback on the Q4 project leadership for Project Phoenix.", CreatedAt: day("2024-10-05"), Quarter: "Q4 2024", Type: models.RequestTypeRequested},
			{RequesterID: ethan, RevieweeID: diana, IsAnonymous: false, Context: "Would love your thoughts on my sales pitch.", CreatedAt: day("2024-10-12"), Quarter: "Q4 2024", Type: models.RequestTypeSuggested},
		}
		for i := range requests {
			requests[i].Status = models.StatusPending
		}
		if err := tx.Create(&requests).Error; err != nil {
			return err
		}

		feedback := []models.Feedback{
			{
				RequestID:  requests[2].ID,
				ReviewerID: models.ReviewedBy(brenda),
				Strengths: models.SBI{
					Situation: "During the Q4 planning",
					Behavior:  "Alex has a great strategic mind. He proposed a novel A/B testing strategy",
					Impact:    "that ultimately increased our lead conversion by 15%.",
				},
				Growth: models.SBI{
					Situation: "When preparing documentation for new strategies",
					Behavior:  "the initial documentation was a bit sparse.",
					Impact:    "Providing a more detailed brief earlier on could help the team execute even faster.",
				},
				VibeRating:  4,
				VibeComment: "Great working with Alex, very insightful.",
				SubmittedAt: day("2024-10-04"),
			},
			{
				RequestID:  requests[3].ID,
				ReviewerID: models.ReviewedBy(alex),
				Strengths: models.SBI{
					Situation: "During the project planning for the recent campaign",
					Behavior:  "Charles is an exceptional collaborator. His roadmap was clear and he actively listened to all stakeholders",
					Impact:    "which resulted in a more inclusive vision and smoother execution.",
				},
				Growth: models.SBI{
					Situation: "In the final stages of a project, when deadlines are tight",
					Behavior:  "smaller details in tickets can sometimes be overlooked in the rush to deliver.",
					Impact:    "Taking an extra day for QA on tickets could be beneficial to catch these before launch.",
				},
				VibeRating:  5,
				VibeComment: "Always a pleasure to work with Charles!",
				SubmittedAt: day("2024-07-20"),
			},
		}
		for i := range feedback {
			if err := tx.Create(&feedback[i]).Error; err != nil {
				return err
			}
			err := tx.Model(&models.FeedbackRequest{}).
				Where("id = ?", feedback[i].RequestID).
				Update("status", models.StatusCompleted).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}
