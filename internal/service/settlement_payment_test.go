package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupbuy-backend/internal/model"
)

func TestProcessPaymentSettlesDebt(t *testing.T) {
	env := newTestEnv(t)
	env.seedTea(t)
	ctx := context.Background()

	group := env.createGroup(t, expectedFriends(3), model.GroupKindPrimary)
	leader := env.createOrder(t, group, "leader-1", paid(), withPaidAmount(120000))
	follower := env.createOrder(t, group, "friend-1", paid())

	_, err := env.settlement.CheckAndMark(ctx, group.ID)
	require.NoError(t, err)
	require.True(t, env.reloadGroup(t, group.ID).SettlementRequired)

	// follower got blocked while the debt was pending
	require.NoError(t, env.db.Model(&model.Order{}).
		Where("id = ?", follower.ID).
		Update("state", model.OrderStateAwaitingConsolidation).Error)

	result, err := env.settlement.ProcessPayment(ctx, group.ID, "auth-1", "ref-1")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.False(t, result.AlreadyPaid)
	assert.True(t, strings.HasPrefix(result.OrderNo, "SET-"))

	stored := env.reloadGroup(t, group.ID)
	assert.NotNil(t, stored.SettlementPaidAt)
	assert.False(t, stored.SettlementRequired)
	assert.Equal(t, int64(0), stored.SettlementAmount)

	assert.Equal(t, model.OrderStatePending, env.reloadOrder(t, leader.ID).State)
	assert.Equal(t, model.OrderStateWaiting, env.reloadOrder(t, follower.ID).State)

	settlementOrder, err := env.orderRepo.FindByOrderNo(ctx, result.OrderNo)
	require.NoError(t, err)
	assert.True(t, settlementOrder.IsSettlementPayment)
	assert.Equal(t, int64(60000), settlementOrder.Amount)
	assert.Equal(t, "ref-1", settlementOrder.PaymentRefID)
	assert.Equal(t, model.OrderStateCompleted, settlementOrder.State)
}

func TestProcessPaymentIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.seedTea(t)
	ctx := context.Background()

	group := env.createGroup(t, expectedFriends(3), model.GroupKindPrimary)
	env.createOrder(t, group, "leader-1", paid(), withPaidAmount(120000))
	env.createOrder(t, group, "friend-1", paid())

	_, err := env.settlement.CheckAndMark(ctx, group.ID)
	require.NoError(t, err)

	first, err := env.settlement.ProcessPayment(ctx, group.ID, "auth-1", "ref-1")
	require.NoError(t, err)
	require.True(t, first.Success)

	second, err := env.settlement.ProcessPayment(ctx, group.ID, "auth-2", "ref-2")
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.True(t, second.AlreadyPaid)
	assert.Empty(t, second.OrderNo, "no second settlement order is created")

	var count int64
	require.NoError(t, env.db.Model(&model.Order{}).
		Where("group_id = ? AND is_settlement_payment = ?", group.ID, true).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestProcessPaymentNoDebt(t *testing.T) {
	env := newTestEnv(t)
	env.seedTea(t)
	ctx := context.Background()

	group := env.createGroup(t, expectedFriends(2), model.GroupKindPrimary)
	env.createOrder(t, group, "leader-1", paid(), withPaidAmount(150000))
	env.createOrder(t, group, "friend-1", paid())
	env.createOrder(t, group, "friend-2", paid())

	result, err := env.settlement.ProcessPayment(ctx, group.ID, "auth-1", "ref-1")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, ErrNoSettlementRequired.Error(), result.Error)
	assert.Nil(t, env.reloadGroup(t, group.ID).SettlementPaidAt)
}

func TestProcessPaymentDerivesDebtOnDemand(t *testing.T) {
	env := newTestEnv(t)
	env.seedTea(t)
	ctx := context.Background()

	// debt never derived before the payment lands
	group := env.createGroup(t, expectedFriends(3), model.GroupKindPrimary)
	env.createOrder(t, group, "leader-1", paid(), withPaidAmount(120000))
	env.createOrder(t, group, "friend-1", paid())

	result, err := env.settlement.ProcessPayment(ctx, group.ID, "auth-1", "ref-1")
	require.NoError(t, err)

	assert.True(t, result.Success)
	stored := env.reloadGroup(t, group.ID)
	assert.NotNil(t, stored.SettlementPaidAt)
}

func TestProcessPaymentGroupNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.settlement.ProcessPayment(context.Background(), 404, "auth", "ref")
	assert.ErrorIs(t, err, ErrGroupNotFound)
}
