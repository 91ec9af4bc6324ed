package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/autolead/internal/models"
)

// CarFilter narrows catalog listings.
type CarFilter struct {
	Brand    string
	Year     int
	MaxPrice int64
}

// CarRepository reads and syncs the car catalog.
type CarRepository struct {
	db *gorm.DB
}

// NewCarRepository constructs a CarRepository.
func NewCarRepository(db *gorm.DB) *CarRepository {
	return &CarRepository{db: db}
}

func (r *CarRepository) filtered(ctx context.Context, f CarFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.Car{})
	if b := strings.TrimSpace(f.Brand); b != "" {
		q = q.Where("LOWER(brand) = ?", strings.ToLower(b))
	}
	if f.Year > 0 {
		q = q.Where("year = ?", f.Year)
	}
	if f.MaxPrice > 0 {
		q = q.Where("price <= ?", f.MaxPrice)
	}
	return q
}

// List returns a filtered page of cars ordered by brand, model and year.
func (r *CarRepository) List(ctx context.Context, f CarFilter, limit, offset int) ([]models.Car, int64, error) {
	var (
		cars  []models.Car
		total int64
	)
	if err := r.filtered(ctx, f).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := r.filtered(ctx, f).Order("brand, model, year desc").Limit(limit).Offset(offset).Find(&cars).Error; err != nil {
		return nil, 0, err
	}
	return cars, total, nil
}

// FindByID returns a car by primary key.
func (r *CarRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Car, error) {
	var car models.Car
	if err := r.db.WithContext(ctx).First(&car, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &car, nil
}

// Upsert inserts the car or refreshes the row sharing its external id.
func (r *CarRepository) Upsert(ctx context.Context, car *models.Car) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"brand", "model", "version", "year", "price", "image_url",
			"title", "registration_type", "url", "last_checked", "updated_at",
		}),
	}).Create(car).Error
}

// DeleteUncheckedSince removes cars the last sync did not see.
func (r *CarRepository) DeleteUncheckedSince(ctx context.Context, since time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("last_checked < ?", since).Delete(&models.Car{})
	return res.RowsAffected, res.Error
}

// Count returns the catalog size.
func (r *CarRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.Car{}).Count(&total).Error
	return total, err
}
