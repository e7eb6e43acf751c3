package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/capitalize-ai/localchat/internal/model"
)

// CreateUser inserts a user. The first user ever created becomes an approved
// admin; later users start unapproved.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (*model.User, error) {
	user := &model.User{
		ID:           uuid.Must(uuid.NewV7()).String(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    s.timestamp(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&model.User{}).Where("username = ?", username).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return model.Conflict("username already exists")
		}

		var total int64
		if err := tx.Model(&model.User{}).Count(&total).Error; err != nil {
			return err
		}
		if total == 0 {
			user.IsAdmin = true
			user.IsApproved = true
		}

		return tx.Create(user).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, model.Conflict("username already exists")
		}
		var typed *model.Error
		if errors.As(err, &typed) {
			return nil, err
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// GetUserByID returns the user with id.
func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "user not found")
	}
	return &user, nil
}

// GetUserByUsername returns the user with the exact (case-sensitive) username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, "username = ?", username).Error; err != nil {
		return nil, notFound(err, "user not found")
	}
	return &user, nil
}

// ListUsers returns all users, oldest first.
func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	users := []model.User{}
	if err := s.db.WithContext(ctx).Order("created_at asc, id asc").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// CountUsers returns the number of registered users.
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// ApproveUser marks a user approved.
func (s *Store) ApproveUser(ctx context.Context, id string) (*model.User, error) {
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(user).Update("is_approved", true).Error; err != nil {
		return nil, fmt.Errorf("approve user: %w", err)
	}
	user.IsApproved = true
	return user, nil
}

// DeleteUser hard-deletes a user together with all of their conversations and
// messages in one transaction.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user model.User
		if err := tx.First(&user, "id = ?", id).Error; err != nil {
			return notFound(err, "user not found")
		}

		owned := tx.Model(&model.Conversation{}).Select("id").Where("user_id = ?", id)
		if err := tx.Where("conversation_id IN (?)", owned).Delete(&model.Message{}).Error; err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		if err := tx.Where("user_id = ?", id).Delete(&model.Conversation{}).Error; err != nil {
			return fmt.Errorf("delete conversations: %w", err)
		}
		if err := tx.Delete(&user).Error; err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
}

// BootstrapAdmin makes the oldest user an approved admin and approves every
// other existing user. It returns the promoted user (nil when there are no
// users) and how many other users were approved. Running it again is harmless.
func (s *Store) BootstrapAdmin(ctx context.Context) (*model.User, int64, error) {
	var first model.User
	var approved int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Order("created_at asc, id asc").First(&first).Error; err != nil {
			return err
		}
		if err := tx.Model(&first).Updates(map[string]any{"is_admin": true, "is_approved": true}).Error; err != nil {
			return err
		}
		res := tx.Model(&model.User{}).Where("id <> ? AND is_approved = ?", first.ID, false).Update("is_approved", true)
		if res.Error != nil {
			return res.Error
		}
		approved = res.RowsAffected
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("bootstrap admin: %w", err)
	}

	first.IsAdmin = true
	first.IsApproved = true
	return &first, approved, nil
}
