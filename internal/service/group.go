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
	"groupbuy-backend/internal/metrics"
	"groupbuy-backend/internal/model"
	"groupbuy-backend/internal/repository"
)

// GroupWindow is how long a leader has to recruit friends.
const GroupWindow = 24 * time.Hour

type GroupService interface {
	// CreateForLeader opens a group around a leader order whose payment
	// was just confirmed. Runs inside the caller's transaction.
	CreateForLeader(ctx context.Context, tx *gorm.DB, leader *model.Order, expectedFriends *int, secondary bool) (*model.Group, error)

	Summary(ctx context.Context, groupID uint) (*dto.GroupSummary, error)

	// FinalizeExpired closes groups whose recruiting window has passed,
	// runs the settlement check on each and triggers the outcome
	// notification. Returns how many groups were processed.
	FinalizeExpired(ctx context.Context, limit int) (int, error)
}

type groupServiceImpl struct {
	db          *gorm.DB
	groupRepo   repository.GroupRepository
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	settlement  SettlementService
	notifier    client.Notifier
}

func NewGroupService(
	db *gorm.DB,
	groupRepo repository.GroupRepository,
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	settlement SettlementService,
	notifier client.Notifier,
) GroupService {
	return &groupServiceImpl{
		db:          db,
		groupRepo:   groupRepo,
		orderRepo:   orderRepo,
		productRepo: productRepo,
		settlement:  settlement,
		notifier:    notifier,
	}
}

func (s *groupServiceImpl) CreateForLeader(ctx context.Context, tx *gorm.DB, leader *model.Order, expectedFriends *int, secondary bool) (*model.Group, error) {
	kind := model.GroupKindPrimary
	if secondary {
		kind = model.GroupKindSecondary
	}

	snapshot, err := s.snapshotFor(ctx, leader.Items, kind)
	if err != nil {
		return nil, err
	}
	encoded, err := snapshot.Encode()
	if err != nil {
		return nil, err
	}

	group := &model.Group{
		InviteCode:      uuid.New().String(),
		LeaderID:        leader.UserID,
		Kind:            kind,
		Status:          model.GroupStatusForming,
		ExpectedFriends: expectedFriends,
		BasketSnapshot:  encoded,
		ExpiresAt:       time.Now().Add(GroupWindow),
	}
	if err := s.groupRepo.Create(ctx, tx, group); err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}

	leader.GroupID = &group.ID
	if err := s.orderRepo.Update(ctx, tx, leader); err != nil {
		return nil, fmt.Errorf("attach leader order: %w", err)
	}

	return group, nil
}

// snapshotFor freezes the basket's per-tier prices at group creation time.
func (s *groupServiceImpl) snapshotFor(ctx context.Context, items []model.OrderItem, kind model.GroupKind) (*model.BasketSnapshot, error) {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.productRepo.FindManyMap(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load products for snapshot: %w", err)
	}

	snapshot := &model.BasketSnapshot{Kind: kind}
	for _, item := range items {
		si := model.SnapshotItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			SoloPrice: item.UnitPrice,
		}
		if p, ok := products[item.ProductID]; ok {
			si.Name = p.Name
			si.MarketPrice = p.MarketPrice
			si.SoloPrice = p.SoloPrice
			si.Friend1Price = p.Friend1Price
			si.Friend2Price = p.Friend2Price
			si.Friend3Price = p.Friend3Price
		}
		snapshot.Items = append(snapshot.Items, si)
	}

	return snapshot, nil
}

func (s *groupServiceImpl) Summary(ctx context.Context, groupID uint) (*dto.GroupSummary, error) {
	group, err := s.groupRepo.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("load group %d: %w", groupID, err)
	}

	orders, err := s.orderRepo.ListByGroup(ctx, s.db, group.ID)
	if err != nil {
		return nil, fmt.Errorf("list group orders: %w", err)
	}

	var leaderOrderID uint
	if leader := leaderOrder(group, orders); leader != nil {
		leaderOrderID = leader.ID
	}

	summary := &dto.GroupSummary{
		GroupID:         group.ID,
		InviteCode:      group.InviteCode,
		Kind:            string(group.Kind),
		Status:          string(group.Status),
		LeaderID:        group.LeaderID,
		ExpectedFriends: derefInt(group.ExpectedFriends),
		PaidFollowers:   countPaidFollowers(group, orders, leaderOrderID),
		ExpiresAt:       group.ExpiresAt.Unix(),
	}

	if cached, ok := s.settlement.CachedResult(ctx, group.ID); ok {
		summary.Settlement = cached
	}

	return summary, nil
}

func (s *groupServiceImpl) FinalizeExpired(ctx context.Context, limit int) (int, error) {
	groups, err := s.groupRepo.FindExpiredForming(ctx, time.Now(), limit)
	if err != nil {
		return 0, fmt.Errorf("find expired groups: %w", err)
	}

	processed := 0
	for _, g := range groups {
		if err := s.finalizeGroup(ctx, g.ID); err != nil {
			slog.Error("finalize group", "group_id", g.ID, "error", err)
			continue
		}
		processed++
	}

	return processed, nil
}

func (s *groupServiceImpl) finalizeGroup(ctx context.Context, groupID uint) error {
	var (
		leaderPhone  string
		leaderPaid   bool
		leaderRefund int64
		failed       bool
		status       model.GroupStatus
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		group, err := s.groupRepo.LockByID(ctx, tx, groupID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrGroupNotFound
			}
			return fmt.Errorf("lock group %d: %w", groupID, err)
		}
		if group.Status != model.GroupStatusForming {
			// another writer finalized it first
			status = group.Status
			return nil
		}

		orders, err := s.orderRepo.ListByGroup(ctx, tx, group.ID)
		if err != nil {
			return fmt.Errorf("list group orders: %w", err)
		}

		leader := leaderOrder(group, orders)
		if leader != nil {
			leaderPhone = leader.Phone
			leaderPaid = leader.HasPaymentEvidence()
		}

		var leaderOrderID uint
		if leader != nil {
			leaderOrderID = leader.ID
		}
		if countPaidFollowers(group, orders, leaderOrderID) == 0 {
			group.Status = model.GroupStatusFailed
			failed = true
			if err := s.failGroupLocked(ctx, tx, group, leader); err != nil {
				return err
			}
			leaderRefund = group.RefundDueAmount
		} else {
			group.Status = model.GroupStatusFinalized
		}
		status = group.Status

		return s.groupRepo.Update(ctx, tx, group)
	})
	if err != nil {
		return err
	}
	metrics.GroupsFinalized.WithLabelValues(string(status)).Inc()

	if failed {
		if leaderPhone != "" && leaderPaid {
			err := s.notifier.SendGroupOutcome(ctx, leaderPhone, dto.GroupOutcomeFailedWithPayment, leaderRefund)
			if err != nil {
				slog.Warn("send group outcome notification", "group_id", groupID, "error", err)
			}
		}
		return nil
	}

	// Settlement check takes its own lock; the status write above is
	// already committed.
	result, err := s.settlement.CheckAndMark(ctx, groupID)
	if err != nil {
		return err
	}

	if leaderPhone != "" {
		outcome := outcomeFor(result)
		if err := s.notifier.SendGroupOutcome(ctx, leaderPhone, outcome, outcomeAmount(result)); err != nil {
			slog.Warn("send group outcome notification", "group_id", groupID, "error", err)
		}
	}

	return nil
}

// failGroupLocked handles a group that expired with zero paid followers:
// the leader's order is cancelled and any payment on it becomes a refund
// due. The leader never owes anything on a failed group.
func (s *groupServiceImpl) failGroupLocked(ctx context.Context, tx *gorm.DB, group *model.Group, leader *model.Order) error {
	group.SettlementRequired = false
	group.SettlementAmount = 0

	if leader == nil {
		return nil
	}
	if err := s.orderRepo.UpdateState(ctx, tx, leader.ID,
		[]model.OrderState{model.OrderStatePending, model.OrderStatePendingSettlement, model.OrderStateWaiting},
		model.OrderStateCancelled); err != nil {
		return fmt.Errorf("cancel leader order: %w", err)
	}
	if leader.HasPaymentEvidence() {
		group.RefundDueAmount = leader.PaidAmount
	}
	return nil
}

func outcomeFor(result *dto.SettlementCheckResult) dto.GroupOutcome {
	switch {
	case result.SettlementRequired:
		return dto.GroupOutcomeNeedsPayment
	case result.RefundDue:
		return dto.GroupOutcomeRefundDue
	default:
		return dto.GroupOutcomeNoDebt
	}
}

func outcomeAmount(result *dto.SettlementCheckResult) int64 {
	if result.SettlementRequired {
		return result.SettlementAmount
	}
	return result.RefundAmount
}
