package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupbuy-backend/internal/model"
)

func TestSecondaryRefund(t *testing.T) {
	tests := []struct {
		name    string
		basket  int64
		members int
		want    int64
	}{
		{"no members", 250000, 0, 0},
		{"one member is a quarter", 250000, 1, 62500},
		{"two members is half", 250000, 2, 125000},
		{"four members is the full basket", 250000, 4, 250000},
		{"members above the cap do not grow the refund", 250000, 9, 250000},
		{"empty basket", 0, 3, 0},
		{"indivisible basket rounds half away from zero", 10, 1, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, secondaryRefund(tt.basket, tt.members))
		})
	}
}

func TestSecondaryCheckRefundDue(t *testing.T) {
	env := newTestEnv(t)
	env.seedTea(t)
	ctx := context.Background()

	group := env.createGroup(t, nil, model.GroupKindSecondary)
	env.createOrder(t, group, "leader-1", paid(), withPaidAmount(220000))
	env.createOrder(t, group, "friend-1", paid())
	env.createOrder(t, group, "friend-2", paid())

	result, err := env.settlement.CheckAndMark(ctx, group.ID)
	require.NoError(t, err)

	// basket = market price 250000, two members = half
	assert.Equal(t, OutcomeRefundDue, result.Outcome)
	assert.True(t, result.RefundDue)
	assert.Equal(t, int64(125000), result.RefundAmount)
	assert.Equal(t, 2, result.ActualFriends)

	stored := env.reloadGroup(t, group.ID)
	assert.Equal(t, int64(125000), stored.RefundDueAmount)
	assert.False(t, stored.SettlementRequired, "secondary groups never owe")
}

func TestSecondaryCheckNotStarted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	group := env.createGroup(t, nil, model.GroupKindSecondary)

	result, err := env.settlement.CheckAndMark(ctx, group.ID)
	require.NoError(t, err)

	assert.Equal(t, OutcomeNotStarted, result.Outcome)
	assert.False(t, result.RefundDue)
	assert.False(t, result.SettlementRequired)
}

func TestSecondaryCheckNoMembersYet(t *testing.T) {
	env := newTestEnv(t)
	env.seedTea(t)
	ctx := context.Background()

	group := env.createGroup(t, nil, model.GroupKindSecondary)
	env.createOrder(t, group, "leader-1", paid(), withPaidAmount(220000))

	result, err := env.settlement.CheckAndMark(ctx, group.ID)
	require.NoError(t, err)

	assert.Equal(t, OutcomeSettledNoDebt, result.Outcome)
	assert.Equal(t, int64(0), env.reloadGroup(t, group.ID).RefundDueAmount)
}

func TestSecondaryCheckClearsLeaderDebt(t *testing.T) {
	env := newTestEnv(t)
	env.seedTea(t)
	ctx := context.Background()

	group := env.createGroup(t, nil, model.GroupKindSecondary)
	leader := env.createOrder(t, group, "leader-1", paid(), withPaidAmount(220000))
	env.createOrder(t, group, "friend-1", paid())

	// leftover primary-style debt from a past misclassification
	require.NoError(t, env.db.Model(&model.Group{}).
		Where("id = ?", group.ID).
		Updates(map[string]interface{}{
			"settlement_required": true,
			"settlement_amount":   50000,
		}).Error)
	require.NoError(t, env.db.Model(&model.Order{}).
		Where("id = ?", leader.ID).
		Update("state", model.OrderStatePendingSettlement).Error)

	_, err := env.settlement.CheckAndMark(ctx, group.ID)
	require.NoError(t, err)

	stored := env.reloadGroup(t, group.ID)
	assert.False(t, stored.SettlementRequired)
	assert.Equal(t, int64(0), stored.SettlementAmount)
	assert.Equal(t, model.OrderStatePending, env.reloadOrder(t, leader.ID).State)
}

func TestSecondaryKindFromSnapshot(t *testing.T) {
	env := newTestEnv(t)
	env.seedTea(t)
	ctx := context.Background()

	// column says primary, snapshot says secondary; snapshot wins
	group := env.createGroup(t, nil, model.GroupKindPrimary)
	snapshot := &model.BasketSnapshot{
		Kind: model.GroupKindSecondary,
		Items: []model.SnapshotItem{
			{ProductID: "tea_500g", Quantity: 1, MarketPrice: 250000, SoloPrice: 220000},
		},
	}
	encoded, err := snapshot.Encode()
	require.NoError(t, err)
	require.NoError(t, env.db.Model(&model.Group{}).
		Where("id = ?", group.ID).
		Update("basket_snapshot", encoded).Error)

	env.createOrder(t, group, "leader-1", paid(), withPaidAmount(220000))
	env.createOrder(t, group, "friend-1", paid())

	result, err := env.settlement.CheckAndMark(ctx, group.ID)
	require.NoError(t, err)

	assert.Equal(t, OutcomeRefundDue, result.Outcome)
	assert.Equal(t, int64(62500), result.RefundAmount)
}
