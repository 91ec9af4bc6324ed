package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/autolead/internal/models"
)

// ListingRepository persists vehicle listings.
type ListingRepository struct {
	db *gorm.DB
}

// NewListingRepository constructs a ListingRepository.
func NewListingRepository(db *gorm.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

// Create inserts a listing, defaulting the status to draft.
func (r *ListingRepository) Create(ctx context.Context, l *models.VehicleListing) error {
	if l.Status == "" {
		l.Status = models.ListingDraft
	}
	return r.db.WithContext(ctx).Create(l).Error
}

// FindByID returns a listing by primary key.
func (r *ListingRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.VehicleListing, error) {
	var l models.VehicleListing
	if err := r.db.WithContext(ctx).First(&l, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &l, nil
}

// LatestDraftForUser returns the user's most recently created draft listing.
func (r *ListingRepository) LatestDraftForUser(ctx context.Context, userID uuid.UUID) (*models.VehicleListing, error) {
	var l models.VehicleListing
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.ListingDraft).
		Order("created_at desc").
		First(&l).Error
	if err != nil {
		return nil, translate(err)
	}
	return &l, nil
}

// ListForUser returns a page of the user's listings, newest first, plus the total count.
func (r *ListingRepository) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.VehicleListing, int64, error) {
	var (
		listings []models.VehicleListing
		total    int64
	)
	q := r.db.WithContext(ctx).Model(&models.VehicleListing{}).Where("user_id = ?", userID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := q.Order("created_at desc").Limit(limit).Offset(offset).Find(&listings).Error; err != nil {
		return nil, 0, err
	}
	return listings, total, nil
}

// SelectPriceType records the chosen tier and publishes the listing. Draft and published
// listings accept it; sold listings do not.
func (r *ListingRepository) SelectPriceType(ctx context.Context, id uuid.UUID, tier string) error {
	res := r.db.WithContext(ctx).Model(&models.VehicleListing{}).
		Where("id = ? AND status IN ?", id, []string{models.ListingDraft, models.ListingPublished}).
		Updates(map[string]interface{}{
			"selected_price_type": tier,
			"status":              models.ListingPublished,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	if _, err := r.FindByID(ctx, id); err != nil {
		return err
	}
	return ErrStatusConflict
}

// AppendPhotos adds photo URLs to the listing and returns the updated row.
func (r *ListingRepository) AppendPhotos(ctx context.Context, id uuid.UUID, urls []string) (*models.VehicleListing, error) {
	l, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	l.Photos = append(l.Photos, urls...)
	if err := r.db.WithContext(ctx).Save(l).Error; err != nil {
		return nil, err
	}
	return l, nil
}

// CountByStatus groups listings by lifecycle status.
func (r *ListingRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type statusCount struct {
		Status string
		Count  int64
	}
	var rows []statusCount
	if err := r.db.WithContext(ctx).Model(&models.VehicleListing{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}
