package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"groupbuy-backend/internal/dto"
	"groupbuy-backend/internal/model"
)

// secondaryMemberCap caps how many joining members earn referral credit.
const secondaryMemberCap = 4

// checkSecondaryLocked handles secondary (referral) groups. These have no
// expected-friends semantics and never carry leader debt: the refund is a
// flat fraction of basket value per joining member, capped at four members
// and clamped to the basket value.
func (s *settlementServiceImpl) checkSecondaryLocked(ctx context.Context, tx *gorm.DB, group *model.Group, snapshot *model.BasketSnapshot) (*dto.SettlementCheckResult, error) {
	orders, err := s.orderRepo.ListByGroup(ctx, tx, group.ID)
	if err != nil {
		return nil, fmt.Errorf("list group orders: %w", err)
	}

	leader := leaderOrder(group, orders)
	var leaderOrderID uint
	if leader != nil {
		leaderOrderID = leader.ID
	}
	members := countPaidFollowers(group, orders, leaderOrderID)

	var basket int64
	if leader != nil && len(leader.Items) > 0 {
		products, err := s.productsFor(ctx, leader.Items)
		if err != nil {
			return nil, err
		}
		basket = basketValue(leader.Items, products)
	}
	if basket == 0 {
		basket = snapshot.TotalValue()
	}

	// Secondary groups never owe the platform; a pending-settlement block
	// on the leader order can only be a leftover mistake.
	group.SettlementRequired = false
	group.SettlementAmount = 0
	if leader != nil {
		if err := s.restoreLeaderOrder(ctx, tx, leader.ID); err != nil {
			return nil, err
		}
	}

	result := &dto.SettlementCheckResult{
		GroupID:       group.ID,
		ActualFriends: members,
	}

	if members == 0 && basket == 0 {
		group.RefundDueAmount = 0
		result.Outcome = OutcomeNotStarted
		result.Message = "leader has not effectively started this group"
	} else {
		refund := secondaryRefund(basket, members)
		group.RefundDueAmount = refund
		if refund > 0 {
			result.Outcome = OutcomeRefundDue
			result.RefundDue = true
			result.RefundAmount = refund
			result.Message = "referral refund due to the leader"
		} else {
			result.Outcome = OutcomeSettledNoDebt
			result.Message = "no referral refund earned yet"
		}
	}

	if err := s.groupRepo.Update(ctx, tx, group); err != nil {
		return nil, fmt.Errorf("persist referral refund: %w", err)
	}

	return result, nil
}

// secondaryRefund computes basket/4 per member, capped at four members and
// never exceeding the basket value. Rounds half away from zero.
func secondaryRefund(basket int64, members int) int64 {
	if members > secondaryMemberCap {
		members = secondaryMemberCap
	}
	if members <= 0 || basket <= 0 {
		return 0
	}

	refund := decimal.NewFromInt(basket).
		Div(decimal.NewFromInt(secondaryMemberCap)).
		Mul(decimal.NewFromInt(int64(members))).
		Round(0).
		IntPart()

	if refund > basket {
		refund = basket
	}
	return refund
}

// basketValue sums market (or solo) price times quantity over the leader's
// original order items. Items whose product vanished fall back to the
// checkout-time unit price snapshot.
func basketValue(items []model.OrderItem, products map[string]*model.Product) int64 {
	var total int64
	for _, item := range items {
		p, ok := products[item.ProductID]
		if !ok {
			total += item.UnitPrice * int64(item.Quantity)
			continue
		}
		price := p.MarketPrice
		if price == 0 {
			price = p.SoloPrice
		}
		total += price * int64(item.Quantity)
	}
	return total
}
