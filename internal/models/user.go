package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type Role string

const (
	RoleEmployee Role = "Employee"
	RoleAdmin    Role = "Admin"
)

// Profile is the public part of a user's page
type Profile struct {
	Bio      string `json:"bio"`
	LinkedIn string `json:"linkedin"`
	GitHub   string `json:"github"`
	Website  string `json:"website"`
}

// FeedbackPreferences lists the free-text topics a user wants to receive
// feedback on and the topics they are happy to give feedback on
type FeedbackPreferences struct {
	Receive []string `json:"receive"`
	Give    []string `json:"give"`
}

// NotificationSettings tracks which emails the user has opted into
type NotificationSettings struct {
	NewRequestEmail        bool `json:"new_request_email"`
	FeedbackSubmittedEmail bool `json:"feedback_submitted_email"`
	WeeklySummaryEmail     bool `json:"weekly_summary_email"`
}

type User struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	Name       string `gorm:"not null" json:"name" validate:"required"`
	Email      string `gorm:"not null;unique" json:"email" validate:"required,email"`
	Role       Role   `gorm:"type:varchar(20);not null;default:Employee" json:"role" validate:"omitempty,oneof=Employee Admin"`
	Department string `gorm:"not null;index" json:"department" validate:"required"`
	// Weak reference, the manager may not exist in the store
	ManagerID *uint  `json:"manager_id" gorm:"default:null"`
	AvatarURL string `json:"avatar_url"`

	Profile              Profile              `gorm:"serializer:json" json:"profile"`
	Preferences          FeedbackPreferences  `gorm:"serializer:json" json:"preferences"`
	NotificationSettings NotificationSettings `gorm:"serializer:json" json:"notification_settings"`

	Password       string `gorm:"-" json:"password,omitempty" validate:"omitempty,min=8"`
	HashedPassword string `json:"-"`
	// Email unsubscribe token - Different from user ID to avoid bad actors unsubscribing others by their public ID
	UnsubscribeID string `json:"-" gorm:"unique;not null"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	unsubUUID, err := uuid.NewRandom()
	if err != nil {
		return err
	}
	u.UnsubscribeID = unsubUUID.String()

	if u.Role == "" {
		u.Role = RoleEmployee
	}

	// Hash password if it's set
	if u.Password != "" {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		u.HashedPassword = string(hashedPassword)
		// Clear the plain text password
		u.Password = ""
	}

	return
}

func (u *User) CheckPassword(password string) bool {
	if u.HashedPassword == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(u.HashedPassword), []byte(password))
	return err == nil
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// FirstName returns the first word of the user's name, used in email greetings
func (u *User) FirstName() string {
	fields := strings.Fields(u.Name)
	if len(fields) == 0 {
		return u.Name
	}
	return fields[0]
}

// UnsubscribeFromAllEmails turns every notification flag off
func (u *User) UnsubscribeFromAllEmails() {
	u.NotificationSettings = NotificationSettings{}
}

// Department groups users for participation metrics. A department can exist
// without members, e.g. right after an admin creates it.
type Department struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"not null;unique" validate:"required"`
	CreatedAt time.Time `json:"created_at"`
}
