package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"groupbuy-backend/internal/cache"
	"groupbuy-backend/internal/dto"
	"groupbuy-backend/internal/metrics"
	"groupbuy-backend/internal/model"
	"groupbuy-backend/internal/pricing"
	"groupbuy-backend/internal/repository"
)

// AggregationBonusPerFollower is the flat credit the platform owes the
// leader for every paid follower who ships to the leader's address.
const AggregationBonusPerFollower int64 = 10000

// Settlement outcomes. The union of these is the group's derived
// settlement state; it is never stored as a column.
const (
	OutcomeSettledNoDebt      = "settled_no_debt"
	OutcomeSettlementRequired = "settlement_required"
	OutcomeRefundDue          = "refund_due"
	OutcomeAlreadyPaid        = "already_paid"
	OutcomeNotStarted         = "not_started"
)

const settlementResultTTL = 2 * time.Minute

type SettlementService interface {
	// CheckAndMark re-derives the group's settlement state from payment
	// evidence and persists the flags plus dependent order states in one
	// transaction.
	CheckAndMark(ctx context.Context, groupID uint) (*dto.SettlementCheckResult, error)

	// ProcessPayment records a verified settlement payment. Idempotent:
	// a group whose settlement is already paid returns success without a
	// second settlement order.
	ProcessPayment(ctx context.Context, groupID uint, authority, refID string) (*dto.SettlementPaymentResult, error)

	// CachedResult returns the last computed check result, if still fresh.
	CachedResult(ctx context.Context, groupID uint) (*dto.SettlementCheckResult, bool)

	// InvalidateResult drops the cached check result after a payment event.
	InvalidateResult(ctx context.Context, groupID uint)
}

type settlementServiceImpl struct {
	db          *gorm.DB
	groupRepo   repository.GroupRepository
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	cache       cache.Cache
}

func NewSettlementService(
	db *gorm.DB,
	groupRepo repository.GroupRepository,
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	resultCache cache.Cache,
) SettlementService {
	return &settlementServiceImpl{
		db:          db,
		groupRepo:   groupRepo,
		orderRepo:   orderRepo,
		productRepo: productRepo,
		cache:       resultCache,
	}
}

func (s *settlementServiceImpl) CheckAndMark(ctx context.Context, groupID uint) (*dto.SettlementCheckResult, error) {
	var result *dto.SettlementCheckResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		group, err := s.groupRepo.LockByID(ctx, tx, groupID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrGroupNotFound
			}
			return fmt.Errorf("lock group %d: %w", groupID, err)
		}

		result, err = s.checkLocked(ctx, tx, group)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.cacheResult(ctx, result)
	metrics.SettlementChecks.WithLabelValues(result.Outcome).Inc()

	return result, nil
}

// checkLocked is the decision engine proper. The caller holds the group's
// row lock; all mutations land in the caller's transaction so flags and
// order states commit together.
func (s *settlementServiceImpl) checkLocked(ctx context.Context, tx *gorm.DB, group *model.Group) (*dto.SettlementCheckResult, error) {
	snapshot, err := model.ParseBasketSnapshot(group.BasketSnapshot)
	if err != nil {
		// historical snapshots can be malformed; fall back to the column
		slog.Warn("unreadable basket snapshot", "group_id", group.ID, "error", err)
		snapshot = nil
	}

	kind := group.Kind
	if snapshot != nil && snapshot.Kind != "" {
		kind = snapshot.Kind
	}
	if kind == model.GroupKindSecondary {
		return s.checkSecondaryLocked(ctx, tx, group, snapshot)
	}

	// Paid is terminal: never recompute a debt after the leader settled.
	if group.SettlementPaidAt != nil {
		if err := s.clearDebtLocked(ctx, tx, group); err != nil {
			return nil, err
		}
		return &dto.SettlementCheckResult{
			GroupID:         group.ID,
			Outcome:         OutcomeAlreadyPaid,
			ExpectedFriends: derefInt(group.ExpectedFriends),
			Message:         "settlement already paid",
		}, nil
	}

	orders, err := s.orderRepo.ListByGroup(ctx, tx, group.ID)
	if err != nil {
		return nil, fmt.Errorf("list group orders: %w", err)
	}

	leader := leaderOrder(group, orders)
	if leader == nil {
		return nil, ErrLeaderOrderNotFound
	}

	products, err := s.productsFor(ctx, leader.Items)
	if err != nil {
		return nil, err
	}

	expected := s.resolveExpectedFriends(group, leader, products)
	actual := countPaidFollowers(group, orders, leader.ID)

	rawDiff := pricing.PriceDifference(leader.Items, products, expected, actual)
	bonus := AggregationBonusPerFollower * int64(countConsolidatedFollowers(group, orders, leader.ID))
	net := rawDiff - bonus

	result := &dto.SettlementCheckResult{
		GroupID:          group.ID,
		ExpectedFriends:  expected,
		ActualFriends:    actual,
		AggregationBonus: bonus,
	}

	switch {
	case net > 0:
		group.SettlementRequired = true
		group.SettlementAmount = net
		group.RefundDueAmount = 0
		if err := s.orderRepo.UpdateState(ctx, tx, leader.ID,
			[]model.OrderState{model.OrderStatePending, model.OrderStateWaiting},
			model.OrderStatePendingSettlement); err != nil {
			return nil, fmt.Errorf("block leader order: %w", err)
		}
		result.Outcome = OutcomeSettlementRequired
		result.SettlementRequired = true
		result.SettlementAmount = net
		result.Message = "leader owes a settlement payment"

	case net < 0:
		group.SettlementRequired = false
		group.SettlementAmount = 0
		group.RefundDueAmount = -net
		if err := s.restoreLeaderOrder(ctx, tx, leader.ID); err != nil {
			return nil, err
		}
		// Followers blocked on the leader's debt can move on now.
		if err := s.orderRepo.TransitionGroupOrders(ctx, tx, group.ID, leader.ID,
			model.OrderStateAwaitingConsolidation, model.OrderStateWaiting); err != nil {
			return nil, fmt.Errorf("unblock followers: %w", err)
		}
		result.Outcome = OutcomeRefundDue
		result.RefundDue = true
		result.RefundAmount = -net
		result.Message = "platform owes the leader a refund"

	default:
		group.SettlementRequired = false
		group.SettlementAmount = 0
		group.RefundDueAmount = 0
		if err := s.restoreLeaderOrder(ctx, tx, leader.ID); err != nil {
			return nil, err
		}
		if err := s.orderRepo.TransitionGroupOrders(ctx, tx, group.ID, leader.ID,
			model.OrderStateAwaitingConsolidation, model.OrderStateWaiting); err != nil {
			return nil, fmt.Errorf("unblock followers: %w", err)
		}
		result.Outcome = OutcomeSettledNoDebt
		result.Message = "group is settled, nothing owed"
	}

	if err := s.groupRepo.Update(ctx, tx, group); err != nil {
		return nil, fmt.Errorf("persist settlement flags: %w", err)
	}

	return result, nil
}

// clearDebtLocked zeroes stale debt flags and unblocks the leader order.
// Used on the already-paid path, where flags may linger from before the
// payment landed.
func (s *settlementServiceImpl) clearDebtLocked(ctx context.Context, tx *gorm.DB, group *model.Group) error {
	orders, err := s.orderRepo.ListByGroup(ctx, tx, group.ID)
	if err != nil {
		return fmt.Errorf("list group orders: %w", err)
	}
	if leader := leaderOrder(group, orders); leader != nil {
		if err := s.restoreLeaderOrder(ctx, tx, leader.ID); err != nil {
			return err
		}
	}

	if !group.SettlementRequired && group.SettlementAmount == 0 && group.RefundDueAmount == 0 {
		return nil
	}
	group.SettlementRequired = false
	group.SettlementAmount = 0
	group.RefundDueAmount = 0

	if err := s.groupRepo.Update(ctx, tx, group); err != nil {
		return fmt.Errorf("clear stale debt flags: %w", err)
	}
	return nil
}

func (s *settlementServiceImpl) restoreLeaderOrder(ctx context.Context, tx *gorm.DB, leaderOrderID uint) error {
	err := s.orderRepo.UpdateState(ctx, tx, leaderOrderID,
		[]model.OrderState{model.OrderStatePendingSettlement},
		model.OrderStatePending)
	if err != nil {
		return fmt.Errorf("restore leader order: %w", err)
	}
	return nil
}

func (s *settlementServiceImpl) productsFor(ctx context.Context, items []model.OrderItem) (map[string]*model.Product, error) {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.productRepo.FindManyMap(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	return products, nil
}

// leaderOrder picks the group's leader order: the earliest non-settlement
// order paid for by the leader identity, falling back to the earliest
// order in the group when identities don't align (guest or duplicate
// accounts). Orders arrive oldest first.
func leaderOrder(group *model.Group, orders []*model.Order) *model.Order {
	var fallback *model.Order
	for _, o := range orders {
		if o.IsSettlementPayment {
			continue
		}
		if fallback == nil {
			fallback = o
		}
		if o.UserID == group.LeaderID {
			return o
		}
	}
	return fallback
}

// countPaidFollowers counts group members with payment evidence, excluding
// the leader (by order and by identity) and settlement-payment records.
// Status strings are never trusted here.
func countPaidFollowers(group *model.Group, orders []*model.Order, leaderOrderID uint) int {
	count := 0
	for _, o := range orders {
		if o.IsSettlementPayment || o.ID == leaderOrderID || o.UserID == group.LeaderID {
			continue
		}
		if o.HasPaymentEvidence() {
			count++
		}
	}
	return count
}

// countConsolidatedFollowers counts paid followers who opted into shipping
// to the leader's address.
func countConsolidatedFollowers(group *model.Group, orders []*model.Order, leaderOrderID uint) int {
	count := 0
	for _, o := range orders {
		if o.IsSettlementPayment || o.ID == leaderOrderID || o.UserID == group.LeaderID {
			continue
		}
		if o.ShipToLeader && o.HasPaymentEvidence() {
			count++
		}
	}
	return count
}

func (s *settlementServiceImpl) CachedResult(ctx context.Context, groupID uint) (*dto.SettlementCheckResult, bool) {
	raw, ok, err := s.cache.Get(ctx, settlementResultKey(groupID))
	if err != nil || !ok {
		return nil, false
	}
	var result dto.SettlementCheckResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, false
	}
	return &result, true
}

func (s *settlementServiceImpl) InvalidateResult(ctx context.Context, groupID uint) {
	if err := s.cache.Delete(ctx, settlementResultKey(groupID)); err != nil {
		slog.Warn("invalidate settlement result cache", "group_id", groupID, "error", err)
	}
}

func (s *settlementServiceImpl) cacheResult(ctx context.Context, result *dto.SettlementCheckResult) {
	body, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, settlementResultKey(result.GroupID), string(body), settlementResultTTL); err != nil {
		slog.Warn("cache settlement result", "group_id", result.GroupID, "error", err)
	}
}

func settlementResultKey(groupID uint) string {
	return fmt.Sprintf("settlement:result:%d", groupID)
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
