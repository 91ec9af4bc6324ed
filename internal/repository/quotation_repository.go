package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/autolead/internal/models"
)

// QuotationRepository persists verified loan quotes.
type QuotationRepository struct {
	db *gorm.DB
}

// NewQuotationRepository constructs a QuotationRepository.
func NewQuotationRepository(db *gorm.DB) *QuotationRepository {
	return &QuotationRepository{db: db}
}

// Create inserts q.
func (r *QuotationRepository) Create(ctx context.Context, q *models.Quotation) error {
	return r.db.WithContext(ctx).Create(q).Error
}

// FindByID returns a quotation by primary key.
func (r *QuotationRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Quotation, error) {
	var q models.Quotation
	if err := r.db.WithContext(ctx).First(&q, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &q, nil
}

// UpdateSelectedTerm changes the only mutable column of a quotation, along with the
// payment derived from it.
func (r *QuotationRepository) UpdateSelectedTerm(ctx context.Context, id uuid.UUID, term int, monthlyPayment int64) error {
	res := r.db.WithContext(ctx).Model(&models.Quotation{}).Where("id = ?", id).
		Updates(map[string]interface{}{"selected_term": term, "monthly_payment": monthlyPayment})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountVerified returns total and verified quotation counts.
func (r *QuotationRepository) CountVerified(ctx context.Context) (total, verified int64, err error) {
	db := r.db.WithContext(ctx)
	if err = db.Model(&models.Quotation{}).Count(&total).Error; err != nil {
		return
	}
	err = db.Model(&models.Quotation{}).Where("is_verified = ?", true).Count(&verified).Error
	return
}
