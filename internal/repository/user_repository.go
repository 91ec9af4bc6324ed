package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/autolead/internal/models"
)

// Identity is the contact data captured by the buyer or seller info step.
type Identity struct {
	Name        string
	Email       string
	Phone       string
	CountryCode string
	Role        string
}

// UserRepository persists users keyed by (phone, country_code).
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository constructs a UserRepository.
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByPhone returns the user owning phone under countryCode.
func (r *UserRepository) FindByPhone(ctx context.Context, phone, countryCode string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("phone = ? AND country_code = ?", phone, countryCode).
		First(&user).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// FindByID returns a user by primary key.
func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// LastVerified returns when the phone last passed an OTP check, or nil when it never did.
func (r *UserRepository) LastVerified(ctx context.Context, phone, countryCode string) (*time.Time, error) {
	user, err := r.FindByPhone(ctx, phone, countryCode)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user.LastVerified, nil
}

// UpsertVerified records a successful verification at `at`. Unknown phones create a user;
// known phones get last_verified moved forward with a check-and-set so an older, slower
// verification never overwrites a newer one.
func (r *UserRepository) UpsertVerified(ctx context.Context, id Identity, at time.Time) (*models.User, error) {
	db := r.db.WithContext(ctx)

	user, err := r.FindByPhone(ctx, id.Phone, id.CountryCode)
	if errors.Is(err, ErrNotFound) {
		created := models.User{
			Name:         id.Name,
			Email:        id.Email,
			Phone:        id.Phone,
			CountryCode:  id.CountryCode,
			Role:         id.Role,
			LastVerified: &at,
		}
		createErr := db.Create(&created).Error
		if createErr == nil {
			return &created, nil
		}
		// Lost a race against a concurrent verification of the same phone.
		user, err = r.FindByPhone(ctx, id.Phone, id.CountryCode)
		if err != nil {
			return nil, fmt.Errorf("create user: %w", createErr)
		}
	} else if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"last_verified": at,
		"role":          models.MergeRole(user.Role, id.Role),
	}
	if id.Name != "" {
		updates["name"] = id.Name
	}
	if id.Email != "" {
		updates["email"] = id.Email
	}

	if err := db.Model(&models.User{}).
		Where("id = ? AND (last_verified IS NULL OR last_verified < ?)", user.ID, at).
		Updates(updates).Error; err != nil {
		return nil, err
	}

	return r.FindByID(ctx, user.ID)
}

// SetPasswordHash stores the bcrypt hash chosen on the password setup step.
func (r *UserRepository) SetPasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("password_hash", hash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Create inserts a user as-is.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// Update applies the non-zero fields of patch to the user.
func (r *UserRepository) Update(ctx context.Context, id uuid.UUID, patch models.User) (*models.User, error) {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(patch)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.FindByID(ctx, id)
}

// Delete removes a user. Only the admin API calls it.
func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.User{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns a page of users, newest first, plus the total count.
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]models.User, int64, error) {
	var (
		users []models.User
		total int64
	)
	db := r.db.WithContext(ctx)
	if err := db.Model(&models.User{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Order("created_at desc").Limit(limit).Offset(offset).Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// Count returns the number of users.
func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Count(&total).Error
	return total, err
}
