package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"groupbuy-backend/internal/client"
	"groupbuy-backend/internal/dto"
	"groupbuy-backend/internal/model"
	"groupbuy-backend/internal/pricing"
	"groupbuy-backend/internal/repository"
)

type PaymentService interface {
	// Checkout creates a pending order (solo, new group, or group join)
	// and returns the gateway redirect for paying it.
	Checkout(ctx context.Context, userID string, req *dto.CheckoutRequest) (*dto.CheckoutResponse, error)

	// StartSettlementPayment returns a gateway redirect for paying the
	// group's current settlement debt.
	StartSettlementPayment(ctx context.Context, groupID uint) (*dto.CheckoutResponse, error)

	// HandleCallback verifies a gateway callback and dispatches it to the
	// order or settlement flow the authority was issued for.
	HandleCallback(ctx context.Context, authority string, approved bool) (*dto.CallbackResult, error)
}

type paymentServiceImpl struct {
	db          *gorm.DB
	gateway     client.PaymentGateway
	baseURL     string
	orderRepo   repository.OrderRepository
	groupRepo   repository.GroupRepository
	productRepo repository.ProductRepository
	intentRepo  repository.PaymentIntentRepository
	groups      GroupService
	settlement  SettlementService
}

func NewPaymentService(
	db *gorm.DB,
	gateway client.PaymentGateway,
	baseURL string,
	orderRepo repository.OrderRepository,
	groupRepo repository.GroupRepository,
	productRepo repository.ProductRepository,
	intentRepo repository.PaymentIntentRepository,
	groups GroupService,
	settlement SettlementService,
) PaymentService {
	return &paymentServiceImpl{
		db:          db,
		gateway:     gateway,
		baseURL:     baseURL,
		orderRepo:   orderRepo,
		groupRepo:   groupRepo,
		productRepo: productRepo,
		intentRepo:  intentRepo,
		groups:      groups,
		settlement:  settlement,
	}
}

func (s *paymentServiceImpl) Checkout(ctx context.Context, userID string, req *dto.CheckoutRequest) (*dto.CheckoutResponse, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("order must have at least one item")
	}

	productIDs := make([]string, len(req.Items))
	quantities := make(map[string]int, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("item quantity must be positive")
		}
		productIDs[i] = item.Sku
		quantities[item.Sku] = item.Quantity
	}

	products, err := s.productRepo.FindMany(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	if len(products) != len(req.Items) {
		return nil, fmt.Errorf("some products not found")
	}

	var group *model.Group
	if req.InviteCode != "" {
		group, err = s.groupRepo.FindByInviteCode(ctx, req.InviteCode)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrGroupNotFound
			}
			return nil, fmt.Errorf("load group by invite code: %w", err)
		}
		if group.Status != model.GroupStatusForming || time.Now().After(group.ExpiresAt) {
			return nil, ErrGroupClosed
		}
	}

	// Checkout charges the tier price for the promised friend count; for
	// joins that is the group's promise, for new groups the request's.
	tier := 0
	if req.ExpectedFriends != nil {
		tier = *req.ExpectedFriends
	}
	if group != nil && group.ExpectedFriends != nil {
		tier = *group.ExpectedFriends
	}

	total := int64(0)
	orderItems := make([]*model.OrderItem, len(products))
	for i, product := range products {
		quantity := quantities[product.ID]
		unitPrice := pricing.ForTierOrSolo(product, tier)
		total += unitPrice * int64(quantity)

		orderItems[i] = &model.OrderItem{
			ProductID: product.ID,
			Quantity:  quantity,
			UnitPrice: unitPrice,
		}
	}

	gw, err := s.gateway.RequestPayment(ctx, &client.PaymentRequest{
		Amount:      total,
		Description: fmt.Sprintf("group-buy order for %s", userID),
		CallbackURL: s.callbackURL(),
	})
	if err != nil {
		return nil, fmt.Errorf("gateway request payment: %w", err)
	}

	fullPayment := 100
	meta := &model.OrderMetadata{
		Friends:        req.ExpectedFriends,
		PaymentPercent: &fullPayment,
		Secondary:      req.Secondary,
	}

	order := &model.Order{
		OrderNo:      "ORD-" + uuid.New().String(),
		UserID:       userID,
		Phone:        req.Phone,
		State:        model.OrderStatePending,
		Amount:       total,
		Authority:    gw.Authority,
		ShipToLeader: req.ShipToLeader,
		Metadata:     meta.Encode(),
	}
	if group != nil {
		order.GroupID = &group.ID
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.Create(ctx, tx, order); err != nil {
			return fmt.Errorf("store order: %w", err)
		}

		for _, item := range orderItems {
			item.OrderID = order.ID
		}
		if err := s.orderRepo.CreateOrderItems(ctx, tx, orderItems); err != nil {
			return fmt.Errorf("store order items: %w", err)
		}

		intent := &model.PaymentIntent{
			Authority: gw.Authority,
			Kind:      model.PaymentIntentOrder,
			OrderID:   &order.ID,
			GroupID:   order.GroupID,
			Amount:    total,
		}
		if err := s.intentRepo.Create(ctx, tx, intent); err != nil {
			return fmt.Errorf("store payment intent: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &dto.CheckoutResponse{
		OrderNo:   order.OrderNo,
		Authority: gw.Authority,
		PayURL:    gw.PayURL,
	}, nil
}

func (s *paymentServiceImpl) StartSettlementPayment(ctx context.Context, groupID uint) (*dto.CheckoutResponse, error) {
	group, err := s.groupRepo.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("load group %d: %w", groupID, err)
	}

	if !group.SettlementRequired || group.SettlementAmount <= 0 {
		// The debt may simply never have been derived yet.
		if _, err := s.settlement.CheckAndMark(ctx, groupID); err != nil {
			return nil, err
		}
		group, err = s.groupRepo.FindByID(ctx, groupID)
		if err != nil {
			return nil, fmt.Errorf("reload group %d: %w", groupID, err)
		}
		if !group.SettlementRequired || group.SettlementAmount <= 0 {
			return nil, ErrNoSettlementRequired
		}
	}

	gw, err := s.gateway.RequestPayment(ctx, &client.PaymentRequest{
		Amount:      group.SettlementAmount,
		Description: fmt.Sprintf("settlement payment for group %d", group.ID),
		CallbackURL: s.callbackURL(),
	})
	if err != nil {
		return nil, fmt.Errorf("gateway request payment: %w", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		intent := &model.PaymentIntent{
			Authority: gw.Authority,
			Kind:      model.PaymentIntentSettlement,
			GroupID:   &group.ID,
			Amount:    group.SettlementAmount,
		}
		return s.intentRepo.Create(ctx, tx, intent)
	})
	if err != nil {
		return nil, fmt.Errorf("store payment intent: %w", err)
	}

	return &dto.CheckoutResponse{
		Authority: gw.Authority,
		PayURL:    gw.PayURL,
	}, nil
}

func (s *paymentServiceImpl) HandleCallback(ctx context.Context, authority string, approved bool) (*dto.CallbackResult, error) {
	intent, err := s.intentRepo.FindByAuthority(ctx, authority)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIntentNotFound
		}
		return nil, fmt.Errorf("load payment intent: %w", err)
	}

	if intent.ConsumedAt != nil {
		return &dto.CallbackResult{Success: true, Kind: string(intent.Kind)}, nil
	}

	if !approved {
		return s.handleRejected(ctx, intent)
	}

	refID, err := s.gateway.VerifyPayment(ctx, authority, intent.Amount)
	if err != nil {
		slog.Warn("payment verification failed", "authority", authority, "error", err)
		return &dto.CallbackResult{
			Success: false,
			Kind:    string(intent.Kind),
			Error:   ErrPaymentNotVerified.Error(),
		}, nil
	}

	switch intent.Kind {
	case model.PaymentIntentSettlement:
		return s.handleSettlementPaid(ctx, intent, refID)
	default:
		return s.handleOrderPaid(ctx, intent, refID)
	}
}

func (s *paymentServiceImpl) handleRejected(ctx context.Context, intent *model.PaymentIntent) (*dto.CallbackResult, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if intent.Kind == model.PaymentIntentOrder && intent.OrderID != nil {
			if err := s.orderRepo.UpdateState(ctx, tx, *intent.OrderID,
				[]model.OrderState{model.OrderStatePending},
				model.OrderStateCancelled); err != nil {
				return fmt.Errorf("cancel unpaid order: %w", err)
			}
		}
		return s.intentRepo.MarkConsumed(ctx, tx, intent.Authority)
	})
	if err != nil {
		return nil, err
	}

	return &dto.CallbackResult{
		Success: false,
		Kind:    string(intent.Kind),
		Error:   "payment cancelled by payer",
	}, nil
}

func (s *paymentServiceImpl) handleSettlementPaid(ctx context.Context, intent *model.PaymentIntent, refID string) (*dto.CallbackResult, error) {
	if intent.GroupID == nil {
		return nil, fmt.Errorf("settlement intent %s has no group", intent.Authority)
	}

	result, err := s.settlement.ProcessPayment(ctx, *intent.GroupID, intent.Authority, refID)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.intentRepo.MarkConsumed(ctx, tx, intent.Authority)
	})
	if err != nil {
		return nil, err
	}

	return &dto.CallbackResult{
		Success: result.Success,
		Kind:    string(model.PaymentIntentSettlement),
		OrderNo: result.OrderNo,
		GroupID: *intent.GroupID,
		RefID:   refID,
		Error:   result.Error,
	}, nil
}

func (s *paymentServiceImpl) handleOrderPaid(ctx context.Context, intent *model.PaymentIntent, refID string) (*dto.CallbackResult, error) {
	if intent.OrderID == nil {
		return nil, fmt.Errorf("order intent %s has no order", intent.Authority)
	}

	var (
		orderNo       string
		groupID       uint
		followerEvent bool
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.FindByID(ctx, tx, *intent.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("load order: %w", err)
		}
		orderNo = order.OrderNo

		if order.HasPaymentEvidence() {
			// callback replay; nothing left to do
			return s.intentRepo.MarkConsumed(ctx, tx, intent.Authority)
		}

		now := time.Now()
		if err := s.orderRepo.MarkPaid(ctx, tx, order.ID, refID, intent.Amount, now); err != nil {
			return fmt.Errorf("mark order paid: %w", err)
		}
		order.PaymentRefID = refID
		order.PaidAmount = intent.Amount
		order.PaidAt = &now

		meta := model.ParseOrderMetadata(order.Metadata)

		switch {
		case order.GroupID == nil:
			if hint, ok := meta.ExpectedFriendsHint(); (ok && hint > 0) || meta.Secondary {
				// leader's confirmed payment opens the group
				var expected *int
				if ok {
					expected = &hint
				}
				group, err := s.groups.CreateForLeader(ctx, tx, order, expected, meta.Secondary)
				if err != nil {
					return err
				}
				groupID = group.ID
			} else {
				// plain solo purchase
				if err := s.orderRepo.UpdateState(ctx, tx, order.ID,
					[]model.OrderState{model.OrderStatePending},
					model.OrderStateWaiting); err != nil {
					return fmt.Errorf("advance solo order: %w", err)
				}
			}

		default:
			// follower join; blocked until the group's fate is known
			groupID = *order.GroupID
			followerEvent = true
			if err := s.orderRepo.UpdateState(ctx, tx, order.ID,
				[]model.OrderState{model.OrderStatePending},
				model.OrderStateAwaitingConsolidation); err != nil {
				return fmt.Errorf("hold follower order: %w", err)
			}
		}

		return s.intentRepo.MarkConsumed(ctx, tx, intent.Authority)
	})
	if err != nil {
		return nil, err
	}

	// Every follower payment re-derives the group's settlement state.
	if followerEvent {
		s.settlement.InvalidateResult(ctx, groupID)
		if _, err := s.settlement.CheckAndMark(ctx, groupID); err != nil {
			slog.Error("settlement re-check after follower payment", "group_id", groupID, "error", err)
		}
	}

	return &dto.CallbackResult{
		Success: true,
		Kind:    string(model.PaymentIntentOrder),
		OrderNo: orderNo,
		GroupID: groupID,
		RefID:   refID,
	}, nil
}

func (s *paymentServiceImpl) callbackURL() string {
	return s.baseURL + "/api/payment/callback"
}
