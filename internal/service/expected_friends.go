package service

import (
	"groupbuy-backend/internal/model"
	"groupbuy-backend/internal/pricing"
)

// defaultExpectedFriends is the safe fallback when neither structured
// metadata nor the paid-total heuristic can resolve the promised count.
const defaultExpectedFriends = 1

// resolveExpectedFriends returns the group's promised friend count,
// resolving it from the leader order when the group record lacks one.
// The resolved value is written onto the group so future checks are
// stable; the caller persists the group.
func (s *settlementServiceImpl) resolveExpectedFriends(group *model.Group, leader *model.Order, products map[string]*model.Product) int {
	if group.ExpectedFriends != nil {
		return *group.ExpectedFriends
	}

	n := inferExpectedFriends(leader, products)
	group.ExpectedFriends = &n
	return n
}

// inferExpectedFriends is the fallback chain over lossy historical data:
// metadata hint first, then the closest-tier-total match against the
// leader's paid amount, then the default. The paid-total heuristic is
// skipped for partial/hybrid payments, where it produces wrong answers.
func inferExpectedFriends(leader *model.Order, products map[string]*model.Product) int {
	meta := model.ParseOrderMetadata(leader.Metadata)
	if hint, ok := meta.ExpectedFriendsHint(); ok {
		return hint
	}

	if !meta.IsPartialPayment() && leader.PaidAmount > 0 {
		return closestTier(leader.PaidAmount, leader.Items, products)
	}

	return defaultExpectedFriends
}

// closestTier picks the friend count whose basket total is closest to the
// observed payment. Ties go to the smaller friend count (counts are
// scanned ascending and only a strictly better match wins).
func closestTier(paid int64, items []model.OrderItem, products map[string]*model.Product) int {
	best := 0
	bestDiff := abs64(paid - pricing.TierTotal(items, products, 0))
	for t := 1; t <= 3; t++ {
		diff := abs64(paid - pricing.TierTotal(items, products, t))
		if diff < bestDiff {
			best = t
			bestDiff = diff
		}
	}
	return best
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
