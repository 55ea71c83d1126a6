package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"groupbuy-backend/internal/model"
)

type OrderRepository interface {
	Create(ctx context.Context, tx *gorm.DB, order *model.Order) error
	CreateOrderItems(ctx context.Context, tx *gorm.DB, items []*model.OrderItem) error
	FindByOrderNo(ctx context.Context, orderNo string) (*model.Order, error)
	FindByID(ctx context.Context, tx *gorm.DB, id uint) (*model.Order, error)
	// ListByGroup returns every order of a group (settlement payments
	// included) with items preloaded, oldest first. Callers filter.
	ListByGroup(ctx context.Context, tx *gorm.DB, groupID uint) ([]*model.Order, error)
	Update(ctx context.Context, tx *gorm.DB, order *model.Order) error
	// UpdateState moves a single order between states, guarded by the
	// expected source states so stale writers lose.
	UpdateState(ctx context.Context, tx *gorm.DB, orderID uint, from []model.OrderState, to model.OrderState) error
	// TransitionGroupOrders bulk-moves a group's non-settlement orders
	// from one state to another, excluding one order id (the leader's).
	TransitionGroupOrders(ctx context.Context, tx *gorm.DB, groupID uint, exceptOrderID uint, from, to model.OrderState) error
	MarkPaid(ctx context.Context, tx *gorm.DB, orderID uint, refID string, paidAmount int64, paidAt time.Time) error
}

type orderRepoImpl struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepoImpl{
		db: db,
	}
}

func (r *orderRepoImpl) Create(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	return tx.WithContext(ctx).Create(order).Error
}

func (r *orderRepoImpl) CreateOrderItems(ctx context.Context, tx *gorm.DB, items []*model.OrderItem) error {
	return tx.WithContext(ctx).Create(&items).Error
}

func (r *orderRepoImpl) FindByOrderNo(ctx context.Context, orderNo string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("order_no = ?", orderNo).
		First(&order).Error

	if err != nil {
		return nil, err
	}

	return &order, nil
}

func (r *orderRepoImpl) FindByID(ctx context.Context, tx *gorm.DB, id uint) (*model.Order, error) {
	var order model.Order
	err := tx.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&order).Error

	if err != nil {
		return nil, err
	}

	return &order, nil
}

func (r *orderRepoImpl) ListByGroup(ctx context.Context, tx *gorm.DB, groupID uint) ([]*model.Order, error) {
	var orders []*model.Order
	err := tx.WithContext(ctx).
		Preload("Items").
		Where("group_id = ?", groupID).
		Order("created_at asc, id asc").
		Find(&orders).Error

	if err != nil {
		return nil, err
	}

	return orders, nil
}

func (r *orderRepoImpl) Update(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	return tx.WithContext(ctx).Save(order).Error
}

func (r *orderRepoImpl) UpdateState(ctx context.Context, tx *gorm.DB, orderID uint, from []model.OrderState, to model.OrderState) error {
	return tx.WithContext(ctx).Model(&model.Order{}).
		Where("id = ?", orderID).
		Where("state IN ?", from).
		Updates(map[string]interface{}{
			"state":      to,
			"updated_at": time.Now(),
		}).Error
}

func (r *orderRepoImpl) TransitionGroupOrders(ctx context.Context, tx *gorm.DB, groupID uint, exceptOrderID uint, from, to model.OrderState) error {
	return tx.WithContext(ctx).Model(&model.Order{}).
		Where("group_id = ?", groupID).
		Where("id <> ?", exceptOrderID).
		Where("is_settlement_payment = ?", false).
		Where("state = ?", from).
		Updates(map[string]interface{}{
			"state":      to,
			"updated_at": time.Now(),
		}).Error
}

func (r *orderRepoImpl) MarkPaid(ctx context.Context, tx *gorm.DB, orderID uint, refID string, paidAmount int64, paidAt time.Time) error {
	result := tx.WithContext(ctx).Model(&model.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"payment_ref_id": refID,
			"paid_amount":    paidAmount,
			"paid_at":        paidAt,
			"updated_at":     time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}
