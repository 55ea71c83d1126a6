package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupbuy-backend/internal/client"
	"groupbuy-backend/internal/dto"
	"groupbuy-backend/internal/model"
	"groupbuy-backend/internal/repository"
)

type fakeGateway struct {
	requests  []*client.PaymentRequest
	failNext  bool
	verifyErr error
	nextRef   string
}

func (g *fakeGateway) RequestPayment(ctx context.Context, req *client.PaymentRequest) (*client.PaymentRequestResult, error) {
	if g.failNext {
		return nil, fmt.Errorf("gateway down")
	}
	g.requests = append(g.requests, req)
	authority := fmt.Sprintf("auth-%d", len(g.requests))
	return &client.PaymentRequestResult{
		Authority: authority,
		PayURL:    "https://gateway.example/pay/" + authority,
	}, nil
}

func (g *fakeGateway) VerifyPayment(ctx context.Context, authority string, amount int64) (string, error) {
	if g.verifyErr != nil {
		return "", g.verifyErr
	}
	if g.nextRef != "" {
		return g.nextRef, nil
	}
	return "ref-" + authority, nil
}

type paymentEnv struct {
	*testEnv
	gateway  *fakeGateway
	payments PaymentService
	groups   GroupService
}

func newPaymentEnv(t *testing.T) *paymentEnv {
	env := newTestEnv(t)
	env.seedTea(t)

	gateway := &fakeGateway{}
	productRepo := repository.NewProductRepository(env.db)
	intentRepo := repository.NewPaymentIntentRepository(env.db)
	groups := newGroupService(env, &fakeNotifier{})

	payments := NewPaymentService(
		env.db, gateway, "http://localhost:8080",
		env.orderRepo, env.groupRepo, productRepo, intentRepo,
		groups, env.settlement,
	)

	return &paymentEnv{
		testEnv:  env,
		gateway:  gateway,
		payments: payments,
		groups:   groups,
	}
}

func checkoutItems() []*dto.Item {
	return []*dto.Item{{Sku: "tea_500g", Quantity: 1}}
}

func TestCheckoutSolo(t *testing.T) {
	env := newPaymentEnv(t)
	ctx := context.Background()

	resp, err := env.payments.Checkout(ctx, "user-1", &dto.CheckoutRequest{
		Items: checkoutItems(),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.OrderNo)
	assert.Contains(t, resp.PayURL, resp.Authority)

	require.Len(t, env.gateway.requests, 1)
	assert.Equal(t, int64(220000), env.gateway.requests[0].Amount, "solo checkout charges the solo price")

	order, err := env.orderRepo.FindByOrderNo(ctx, resp.OrderNo)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatePending, order.State)
	assert.Nil(t, order.GroupID)
	require.Len(t, order.Items, 1)
	assert.Equal(t, int64(220000), order.Items[0].UnitPrice)
}

func TestCheckoutLeaderTierPricing(t *testing.T) {
	env := newPaymentEnv(t)

	_, err := env.payments.Checkout(context.Background(), "leader-1", &dto.CheckoutRequest{
		Items:           checkoutItems(),
		ExpectedFriends: expectedFriends(3),
	})
	require.NoError(t, err)

	require.Len(t, env.gateway.requests, 1)
	assert.Equal(t, int64(120000), env.gateway.requests[0].Amount, "leader pays the promised tier up front")
}

func TestCheckoutValidation(t *testing.T) {
	env := newPaymentEnv(t)
	ctx := context.Background()

	_, err := env.payments.Checkout(ctx, "user-1", &dto.CheckoutRequest{})
	assert.Error(t, err)

	_, err = env.payments.Checkout(ctx, "user-1", &dto.CheckoutRequest{
		Items: []*dto.Item{{Sku: "tea_500g", Quantity: 0}},
	})
	assert.Error(t, err)

	_, err = env.payments.Checkout(ctx, "user-1", &dto.CheckoutRequest{
		Items: []*dto.Item{{Sku: "no_such_sku", Quantity: 1}},
	})
	assert.Error(t, err)

	_, err = env.payments.Checkout(ctx, "user-1", &dto.CheckoutRequest{
		Items:      checkoutItems(),
		InviteCode: "no-such-code",
	})
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestCallbackCreatesGroupForLeader(t *testing.T) {
	env := newPaymentEnv(t)
	ctx := context.Background()

	resp, err := env.payments.Checkout(ctx, "leader-1", &dto.CheckoutRequest{
		Items:           checkoutItems(),
		ExpectedFriends: expectedFriends(2),
	})
	require.NoError(t, err)

	result, err := env.payments.HandleCallback(ctx, resp.Authority, true)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, string(model.PaymentIntentOrder), result.Kind)
	require.NotZero(t, result.GroupID)

	group := env.reloadGroup(t, result.GroupID)
	assert.Equal(t, model.GroupKindPrimary, group.Kind)
	if assert.NotNil(t, group.ExpectedFriends) {
		assert.Equal(t, 2, *group.ExpectedFriends)
	}

	order, err := env.orderRepo.FindByOrderNo(ctx, resp.OrderNo)
	require.NoError(t, err)
	assert.True(t, order.HasPaymentEvidence())
	require.NotNil(t, order.GroupID)
	assert.Equal(t, group.ID, *order.GroupID)
}

func TestCallbackFollowerJoinTriggersCheck(t *testing.T) {
	env := newPaymentEnv(t)
	ctx := context.Background()

	leaderResp, err := env.payments.Checkout(ctx, "leader-1", &dto.CheckoutRequest{
		Items:           checkoutItems(),
		ExpectedFriends: expectedFriends(1),
	})
	require.NoError(t, err)
	leaderResult, err := env.payments.HandleCallback(ctx, leaderResp.Authority, true)
	require.NoError(t, err)
	group := env.reloadGroup(t, leaderResult.GroupID)

	followerResp, err := env.payments.Checkout(ctx, "friend-1", &dto.CheckoutRequest{
		Items:      checkoutItems(),
		InviteCode: group.InviteCode,
	})
	require.NoError(t, err)

	result, err := env.payments.HandleCallback(ctx, followerResp.Authority, true)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, group.ID, result.GroupID)

	// promise met: the follower is released immediately by the triggered check
	follower, err := env.orderRepo.FindByOrderNo(ctx, followerResp.OrderNo)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStateWaiting, follower.State)

	assert.Equal(t, model.GroupStatusForming, env.reloadGroup(t, group.ID).Status)
	stored := env.reloadGroup(t, group.ID)
	assert.False(t, stored.SettlementRequired)
}

func TestCallbackSoloPurchase(t *testing.T) {
	env := newPaymentEnv(t)
	ctx := context.Background()

	resp, err := env.payments.Checkout(ctx, "user-1", &dto.CheckoutRequest{
		Items: checkoutItems(),
	})
	require.NoError(t, err)

	result, err := env.payments.HandleCallback(ctx, resp.Authority, true)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Zero(t, result.GroupID)

	order, err := env.orderRepo.FindByOrderNo(ctx, resp.OrderNo)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStateWaiting, order.State)
}

func TestCallbackRejectedPayment(t *testing.T) {
	env := newPaymentEnv(t)
	ctx := context.Background()

	resp, err := env.payments.Checkout(ctx, "user-1", &dto.CheckoutRequest{
		Items: checkoutItems(),
	})
	require.NoError(t, err)

	result, err := env.payments.HandleCallback(ctx, resp.Authority, false)
	require.NoError(t, err)
	assert.False(t, result.Success)

	order, err := env.orderRepo.FindByOrderNo(ctx, resp.OrderNo)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStateCancelled, order.State)
	assert.False(t, order.HasPaymentEvidence())
}

func TestCallbackIdempotent(t *testing.T) {
	env := newPaymentEnv(t)
	ctx := context.Background()

	resp, err := env.payments.Checkout(ctx, "user-1", &dto.CheckoutRequest{
		Items: checkoutItems(),
	})
	require.NoError(t, err)

	first, err := env.payments.HandleCallback(ctx, resp.Authority, true)
	require.NoError(t, err)
	require.True(t, first.Success)

	// gateway redirect replayed
	second, err := env.payments.HandleCallback(ctx, resp.Authority, true)
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Empty(t, second.RefID, "consumed intents short-circuit")
}

func TestCallbackUnknownAuthority(t *testing.T) {
	env := newPaymentEnv(t)

	_, err := env.payments.HandleCallback(context.Background(), "never-issued", true)
	assert.ErrorIs(t, err, ErrIntentNotFound)
}

func TestSettlementPaymentEndToEnd(t *testing.T) {
	env := newPaymentEnv(t)
	ctx := context.Background()

	group := env.createGroup(t, expectedFriends(3), model.GroupKindPrimary)
	env.createOrder(t, group, "leader-1", paid(), withPaidAmount(120000))
	env.createOrder(t, group, "friend-1", paid())

	_, err := env.settlement.CheckAndMark(ctx, group.ID)
	require.NoError(t, err)

	resp, err := env.payments.StartSettlementPayment(ctx, group.ID)
	require.NoError(t, err)
	require.Len(t, env.gateway.requests, 1)
	assert.Equal(t, int64(60000), env.gateway.requests[0].Amount)

	result, err := env.payments.HandleCallback(ctx, resp.Authority, true)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, string(model.PaymentIntentSettlement), result.Kind)

	stored := env.reloadGroup(t, group.ID)
	assert.NotNil(t, stored.SettlementPaidAt)
	assert.False(t, stored.SettlementRequired)
}

func TestStartSettlementPaymentNoDebt(t *testing.T) {
	env := newPaymentEnv(t)
	ctx := context.Background()

	group := env.createGroup(t, expectedFriends(2), model.GroupKindPrimary)
	env.createOrder(t, group, "leader-1", paid(), withPaidAmount(150000))
	env.createOrder(t, group, "friend-1", paid())
	env.createOrder(t, group, "friend-2", paid())

	_, err := env.payments.StartSettlementPayment(ctx, group.ID)
	assert.ErrorIs(t, err, ErrNoSettlementRequired)

	_, err = env.payments.StartSettlementPayment(ctx, 9999)
	assert.ErrorIs(t, err, ErrGroupNotFound)
}
