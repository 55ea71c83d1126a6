package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"groupbuy-backend/internal/dto"
	"groupbuy-backend/internal/metrics"
	"groupbuy-backend/internal/model"
)

func (s *settlementServiceImpl) ProcessPayment(ctx context.Context, groupID uint, authority, refID string) (*dto.SettlementPaymentResult, error) {
	var result *dto.SettlementPaymentResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		group, err := s.groupRepo.LockByID(ctx, tx, groupID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrGroupNotFound
			}
			return fmt.Errorf("lock group %d: %w", groupID, err)
		}

		// Re-payment of an already settled debt is a no-op, not an error.
		if group.SettlementPaidAt != nil {
			result = &dto.SettlementPaymentResult{Success: true, AlreadyPaid: true}
			return nil
		}

		// Debts can be discovered asynchronously; re-derive once before
		// rejecting the payment.
		if !group.SettlementRequired || group.SettlementAmount <= 0 {
			if _, err := s.checkLocked(ctx, tx, group); err != nil {
				return err
			}
			if !group.SettlementRequired || group.SettlementAmount <= 0 {
				return ErrNoSettlementRequired
			}
		}

		now := time.Now()
		settlementOrder := &model.Order{
			OrderNo:             settlementOrderNo(),
			GroupID:             &group.ID,
			UserID:              group.LeaderID,
			State:               model.OrderStateCompleted,
			Amount:              group.SettlementAmount,
			PaidAmount:          group.SettlementAmount,
			Authority:           authority,
			PaymentRefID:        refID,
			PaidAt:              &now,
			IsSettlementPayment: true,
		}
		if err := s.orderRepo.Create(ctx, tx, settlementOrder); err != nil {
			return fmt.Errorf("create settlement order: %w", err)
		}

		group.SettlementPaidAt = &now
		group.SettlementRequired = false
		group.SettlementAmount = 0
		if err := s.groupRepo.Update(ctx, tx, group); err != nil {
			return fmt.Errorf("mark settlement paid: %w", err)
		}

		orders, err := s.orderRepo.ListByGroup(ctx, tx, group.ID)
		if err != nil {
			return fmt.Errorf("list group orders: %w", err)
		}
		if leader := leaderOrder(group, orders); leader != nil {
			if err := s.restoreLeaderOrder(ctx, tx, leader.ID); err != nil {
				return err
			}
			if err := s.orderRepo.TransitionGroupOrders(ctx, tx, group.ID, leader.ID,
				model.OrderStateAwaitingConsolidation, model.OrderStateWaiting); err != nil {
				return fmt.Errorf("unblock followers: %w", err)
			}
		}

		result = &dto.SettlementPaymentResult{Success: true, OrderNo: settlementOrder.OrderNo}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNoSettlementRequired) {
			return &dto.SettlementPaymentResult{Success: false, Error: ErrNoSettlementRequired.Error()}, nil
		}
		return nil, err
	}

	s.InvalidateResult(ctx, groupID)
	if !result.AlreadyPaid {
		metrics.SettlementPayments.Inc()
	}

	return result, nil
}

func settlementOrderNo() string {
	return "SET-" + uuid.New().String()
}
