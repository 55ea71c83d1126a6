package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"groupbuy-backend/internal/model"
)

type ProductRepository interface {
	Seed(ctx context.Context) error
	FindByID(ctx context.Context, productID string) (*model.Product, error)
	FindMany(ctx context.Context, productIDs []string) ([]*model.Product, error)
	// FindManyMap is FindMany keyed by product id, the shape the pricing
	// helpers expect.
	FindManyMap(ctx context.Context, productIDs []string) (map[string]*model.Product, error)
}

type productRepoImpl struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepoImpl{
		db: db,
	}
}

func price(v int64) *int64 { return &v }

func (r *productRepoImpl) Seed(ctx context.Context) error {
	products := []model.Product{
		{ID: "tea_500g", Name: "Tea 500g", MarketPrice: 250000, SoloPrice: 220000, Friend1Price: price(180000), Friend2Price: price(150000), Friend3Price: price(120000)},
		{ID: "rice_10kg", Name: "Rice 10kg", MarketPrice: 900000, SoloPrice: 850000, Friend1Price: price(780000), Friend2Price: price(720000), Friend3Price: price(0)},
		{ID: "saffron_1g", Name: "Saffron 1g", MarketPrice: 120000, SoloPrice: 110000, Friend1Price: price(95000), Friend2Price: price(85000), Friend3Price: price(70000)},
	}

	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&products).Error
}

func (r *productRepoImpl) FindByID(ctx context.Context, productID string) (*model.Product, error) {
	var product model.Product
	err := r.db.WithContext(ctx).
		Where("id = ?", productID).
		First(&product).Error

	if err != nil {
		return nil, err
	}

	return &product, nil
}

func (r *productRepoImpl) FindMany(ctx context.Context, productIDs []string) ([]*model.Product, error) {
	var products []*model.Product
	err := r.db.WithContext(ctx).
		Where("id IN ?", productIDs).
		Find(&products).
		Error

	if err != nil {
		return nil, err
	}

	return products, nil
}

func (r *productRepoImpl) FindManyMap(ctx context.Context, productIDs []string) (map[string]*model.Product, error) {
	products, err := r.FindMany(ctx, productIDs)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	return byID, nil
}
