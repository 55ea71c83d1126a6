package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"groupbuy-backend/internal/model"
)

type GroupRepository interface {
	Create(ctx context.Context, tx *gorm.DB, group *model.Group) error
	FindByID(ctx context.Context, id uint) (*model.Group, error)
	FindByInviteCode(ctx context.Context, code string) (*model.Group, error)
	// LockByID loads the group with a row-level write lock so concurrent
	// settlement checks for the same group serialize.
	LockByID(ctx context.Context, tx *gorm.DB, id uint) (*model.Group, error)
	Update(ctx context.Context, tx *gorm.DB, group *model.Group) error
	FindExpiredForming(ctx context.Context, now time.Time, limit int) ([]*model.Group, error)
}

type groupRepoImpl struct {
	db *gorm.DB
}

func NewGroupRepository(db *gorm.DB) GroupRepository {
	return &groupRepoImpl{
		db: db,
	}
}

func (r *groupRepoImpl) Create(ctx context.Context, tx *gorm.DB, group *model.Group) error {
	return tx.WithContext(ctx).Create(group).Error
}

func (r *groupRepoImpl) FindByID(ctx context.Context, id uint) (*model.Group, error) {
	var group model.Group
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&group).Error

	if err != nil {
		return nil, err
	}

	return &group, nil
}

func (r *groupRepoImpl) FindByInviteCode(ctx context.Context, code string) (*model.Group, error) {
	var group model.Group
	err := r.db.WithContext(ctx).
		Where("invite_code = ?", code).
		First(&group).Error

	if err != nil {
		return nil, err
	}

	return &group, nil
}

func (r *groupRepoImpl) LockByID(ctx context.Context, tx *gorm.DB, id uint) (*model.Group, error) {
	query := tx.WithContext(ctx)
	// SQLite has no FOR UPDATE; its writer lock covers the transaction.
	if tx.Dialector.Name() != "sqlite" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var group model.Group
	err := query.
		Where("id = ?", id).
		First(&group).Error

	if err != nil {
		return nil, err
	}

	return &group, nil
}

func (r *groupRepoImpl) Update(ctx context.Context, tx *gorm.DB, group *model.Group) error {
	return tx.WithContext(ctx).Save(group).Error
}

func (r *groupRepoImpl) FindExpiredForming(ctx context.Context, now time.Time, limit int) ([]*model.Group, error) {
	var groups []*model.Group
	err := r.db.WithContext(ctx).
		Where("status = ?", model.GroupStatusForming).
		Where("expires_at <= ?", now).
		Order("expires_at asc").
		Limit(limit).
		Find(&groups).Error

	if err != nil {
		return nil, err
	}

	return groups, nil
}
