package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"groupbuy-backend/internal/model"
)

type PaymentIntentRepository interface {
	Create(ctx context.Context, tx *gorm.DB, intent *model.PaymentIntent) error
	FindByAuthority(ctx context.Context, authority string) (*model.PaymentIntent, error)
	MarkConsumed(ctx context.Context, tx *gorm.DB, authority string) error
}

type paymentIntentRepoImpl struct {
	db *gorm.DB
}

func NewPaymentIntentRepository(db *gorm.DB) PaymentIntentRepository {
	return &paymentIntentRepoImpl{
		db: db,
	}
}

func (r *paymentIntentRepoImpl) Create(ctx context.Context, tx *gorm.DB, intent *model.PaymentIntent) error {
	return tx.WithContext(ctx).Create(intent).Error
}

func (r *paymentIntentRepoImpl) FindByAuthority(ctx context.Context, authority string) (*model.PaymentIntent, error) {
	var intent model.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("authority = ?", authority).
		First(&intent).Error

	if err != nil {
		return nil, err
	}

	return &intent, nil
}

func (r *paymentIntentRepoImpl) MarkConsumed(ctx context.Context, tx *gorm.DB, authority string) error {
	return tx.WithContext(ctx).Model(&model.PaymentIntent{}).
		Where("authority = ?", authority).
		Where("consumed_at IS NULL").
		Updates(map[string]interface{}{
			"consumed_at": time.Now(),
		}).Error
}
