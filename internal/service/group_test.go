package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"groupbuy-backend/internal/dto"
	"groupbuy-backend/internal/model"
	"groupbuy-backend/internal/repository"
)

type sentNotification struct {
	phone   string
	outcome dto.GroupOutcome
	amount  int64
}

type fakeNotifier struct {
	sent []sentNotification
}

func (n *fakeNotifier) SendGroupOutcome(ctx context.Context, phone string, outcome dto.GroupOutcome, amount int64) error {
	n.sent = append(n.sent, sentNotification{phone: phone, outcome: outcome, amount: amount})
	return nil
}

func newGroupService(env *testEnv, notifier *fakeNotifier) GroupService {
	return NewGroupService(
		env.db,
		env.groupRepo,
		env.orderRepo,
		repository.NewProductRepository(env.db),
		env.settlement,
		notifier,
	)
}

func TestCreateForLeader(t *testing.T) {
	env := newTestEnv(t)
	env.seedTea(t)
	ctx := context.Background()
	svc := newGroupService(env, &fakeNotifier{})

	leader := &model.Order{
		OrderNo: "ord-new-leader",
		UserID:  "leader-1",
		State:   model.OrderStatePending,
		Items:   []model.OrderItem{{ProductID: "tea_500g", Quantity: 2, UnitPrice: 150000}},
	}
	require.NoError(t, env.db.Create(leader).Error)

	var group *model.Group
	err := env.db.Transaction(func(tx *gorm.DB) error {
		var err error
		group, err = svc.CreateForLeader(ctx, tx, leader, expectedFriends(2), false)
		return err
	})
	require.NoError(t, err)

	assert.NotEmpty(t, group.InviteCode)
	assert.Equal(t, model.GroupKindPrimary, group.Kind)
	assert.Equal(t, model.GroupStatusForming, group.Status)
	assert.WithinDuration(t, time.Now().Add(GroupWindow), group.ExpiresAt, time.Minute)

	snapshot, err := model.ParseBasketSnapshot(group.BasketSnapshot)
	require.NoError(t, err)
	require.Len(t, snapshot.Items, 1)
	assert.Equal(t, int64(250000), snapshot.Items[0].MarketPrice)
	if assert.NotNil(t, snapshot.Items[0].Friend3Price) {
		assert.Equal(t, int64(120000), *snapshot.Items[0].Friend3Price)
	}

	stored := env.reloadOrder(t, leader.ID)
	require.NotNil(t, stored.GroupID)
	assert.Equal(t, group.ID, *stored.GroupID)
}

func TestCreateForLeaderSecondary(t *testing.T) {
	env := newTestEnv(t)
	env.seedTea(t)
	svc := newGroupService(env, &fakeNotifier{})

	leader := &model.Order{
		OrderNo: "ord-sec-leader",
		UserID:  "leader-1",
		State:   model.OrderStatePending,
		Items:   []model.OrderItem{{ProductID: "tea_500g", Quantity: 1, UnitPrice: 220000}},
	}
	require.NoError(t, env.db.Create(leader).Error)

	var group *model.Group
	err := env.db.Transaction(func(tx *gorm.DB) error {
		var err error
		group, err = svc.CreateForLeader(context.Background(), tx, leader, nil, true)
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, model.GroupKindSecondary, group.Kind)
	snapshot, err := model.ParseBasketSnapshot(group.BasketSnapshot)
	require.NoError(t, err)
	assert.Equal(t, model.GroupKindSecondary, snapshot.Kind)
}

func TestFinalizeExpired(t *testing.T) {
	env := newTestEnv(t)
	env.seedTea(t)
	ctx := context.Background()
	notifier := &fakeNotifier{}
	svc := newGroupService(env, notifier)

	group := env.createGroup(t, expectedFriends(3), model.GroupKindPrimary)
	leader := env.createOrder(t, group, "leader-1", paid(), withPaidAmount(120000))
	require.NoError(t, env.db.Model(&model.Order{}).
		Where("id = ?", leader.ID).
		Update("phone", "09120000000").Error)
	env.createOrder(t, group, "friend-1", paid())

	require.NoError(t, env.db.Model(&model.Group{}).
		Where("id = ?", group.ID).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	processed, err := svc.FinalizeExpired(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	stored := env.reloadGroup(t, group.ID)
	assert.Equal(t, model.GroupStatusFinalized, stored.Status)
	assert.True(t, stored.SettlementRequired, "short group owes after finalization")

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "09120000000", notifier.sent[0].phone)
	assert.Equal(t, dto.GroupOutcomeNeedsPayment, notifier.sent[0].outcome)
	assert.Equal(t, int64(60000), notifier.sent[0].amount)
}

func TestFinalizeExpiredFailsEmptyGroup(t *testing.T) {
	env := newTestEnv(t)
	env.seedTea(t)
	ctx := context.Background()
	notifier := &fakeNotifier{}
	svc := newGroupService(env, notifier)

	group := env.createGroup(t, expectedFriends(2), model.GroupKindPrimary)
	leader := env.createOrder(t, group, "leader-1", paid(), withPaidAmount(150000))
	require.NoError(t, env.db.Model(&model.Order{}).
		Where("id = ?", leader.ID).
		Update("phone", "09120000000").Error)

	require.NoError(t, env.db.Model(&model.Group{}).
		Where("id = ?", group.ID).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	processed, err := svc.FinalizeExpired(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	stored := env.reloadGroup(t, group.ID)
	assert.Equal(t, model.GroupStatusFailed, stored.Status)
	assert.False(t, stored.SettlementRequired, "failed groups never owe")
	assert.Equal(t, int64(150000), stored.RefundDueAmount, "leader's payment comes back")
	assert.Equal(t, model.OrderStateCancelled, env.reloadOrder(t, leader.ID).State)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, dto.GroupOutcomeFailedWithPayment, notifier.sent[0].outcome)
	assert.Equal(t, int64(150000), notifier.sent[0].amount)
}

func TestFinalizeExpiredSkipsLiveGroups(t *testing.T) {
	env := newTestEnv(t)
	env.seedTea(t)
	svc := newGroupService(env, &fakeNotifier{})

	group := env.createGroup(t, expectedFriends(2), model.GroupKindPrimary)
	env.createOrder(t, group, "leader-1", paid(), withPaidAmount(150000))

	processed, err := svc.FinalizeExpired(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, processed)
	assert.Equal(t, model.GroupStatusForming, env.reloadGroup(t, group.ID).Status)
}

func TestSummary(t *testing.T) {
	env := newTestEnv(t)
	env.seedTea(t)
	ctx := context.Background()
	svc := newGroupService(env, &fakeNotifier{})

	group := env.createGroup(t, expectedFriends(2), model.GroupKindPrimary)
	env.createOrder(t, group, "leader-1", paid(), withPaidAmount(150000))
	env.createOrder(t, group, "friend-1", paid())

	summary, err := svc.Summary(ctx, group.ID)
	require.NoError(t, err)

	assert.Equal(t, group.InviteCode, summary.InviteCode)
	assert.Equal(t, 2, summary.ExpectedFriends)
	assert.Equal(t, 1, summary.PaidFollowers)
	assert.Nil(t, summary.Settlement, "no check ran yet")

	_, err = env.settlement.CheckAndMark(ctx, group.ID)
	require.NoError(t, err)

	summary, err = svc.Summary(ctx, group.ID)
	require.NoError(t, err)
	require.NotNil(t, summary.Settlement)
	assert.Equal(t, OutcomeSettlementRequired, summary.Settlement.Outcome)

	_, err = svc.Summary(ctx, 9999)
	assert.ErrorIs(t, err, ErrGroupNotFound)
}
