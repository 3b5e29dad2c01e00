package store

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"peerpulse-backend/internal/models"
)

func ensureDepartment(tx *gorm.DB, name string) error {
	dept := models.Department{Name: name}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&dept).Error
}

// CreateUser validates and inserts u. The user's department is created when
// it does not exist yet.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	u.Name = strings.TrimSpace(u.Name)
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.Department = strings.TrimSpace(u.Department)
	if err := s.validateStruct(u); err != nil {
		return err
	}

	return s.write(ctx, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("email = ?", u.Email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateEmail
		}
		if err := ensureDepartment(tx, u.Department); err != nil {
			return err
		}
		err := tx.Create(u).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateEmail
		}
		return err
	})
}

// UpdateUser saves the mutable attributes of u: name, role, department,
// manager, avatar, profile, preferences and notification settings.
// Email and credentials are left untouched.
func (s *Store) UpdateUser(ctx context.Context, u *models.User) error {
	u.Department = strings.TrimSpace(u.Department)
	if err := s.validateStruct(u); err != nil {
		return err
	}

	return s.write(ctx, func(tx *gorm.DB) error {
		var existing models.User
		if err := tx.First(&existing, u.ID).Error; err != nil {
			return notFound(err, "user")
		}
		if err := ensureDepartment(tx, u.Department); err != nil {
			return err
		}
		return tx.Model(&existing).
			Select("name", "role", "department", "manager_id", "avatar_url", "profile", "preferences", "notification_settings").
			Updates(u).Error
	})
}

func (s *Store) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, notFound(err, "user")
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	email = strings.ToLower(strings.TrimSpace(email))
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, notFound(err, "user")
	}
	return &u, nil
}

func (s *Store) GetUserByUnsubscribeID(ctx context.Context, token string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("unsubscribe_id = ?", token).First(&u).Error; err != nil {
		return nil, notFound(err, "user")
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).Order("id").Find(&users).Error
	return users, err
}

// CreateDepartment adds a department. Creating an existing one is a no-op.
func (s *Store) CreateDepartment(ctx context.Context, name string) (*models.Department, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalid
	}

	var dept models.Department
	err := s.write(ctx, func(tx *gorm.DB) error {
		if err := ensureDepartment(tx, name); err != nil {
			return err
		}
		return tx.Where("name = ?", name).First(&dept).Error
	})
	if err != nil {
		return nil, err
	}
	return &dept, nil
}

func (s *Store) ListDepartments(ctx context.Context) ([]models.Department, error) {
	var departments []models.Department
	err := s.db.WithContext(ctx).Order("name").Find(&departments).Error
	return departments, err
}
