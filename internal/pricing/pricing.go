// Package pricing holds the pure tier-price math used by the settlement
// engine. Nothing here touches storage; callers pass loaded products in.
package pricing

import (
	"groupbuy-backend/internal/model"
)

// ForTier returns the unit price of a product for the given friend count.
// Friend counts of 3 or more share the 3-friends tier. A nil tier price is
// returned as 0; callers on strict paths must treat that as "free or
// unpriced" and decide, callers on heuristic paths should use
// ForTierOrSolo instead.
func ForTier(p *model.Product, friends int) int64 {
	switch {
	case friends >= 3:
		return deref(p.Friend3Price)
	case friends == 2:
		return deref(p.Friend2Price)
	case friends == 1:
		return deref(p.Friend1Price)
	default:
		return p.SoloPrice
	}
}

// ForTierOrSolo is the heuristic-path variant of ForTier: an absent tier
// price falls back to the solo price instead of zero. Only the
// expected-friends inference uses this.
func ForTierOrSolo(p *model.Product, friends int) int64 {
	switch {
	case friends >= 3:
		return derefOr(p.Friend3Price, p.SoloPrice)
	case friends == 2:
		return derefOr(p.Friend2Price, p.SoloPrice)
	case friends == 1:
		return derefOr(p.Friend1Price, p.SoloPrice)
	default:
		return p.SoloPrice
	}
}

// PriceDifference computes the signed amount the leader's order is off by
// when the actual paid-friend count diverges from the promised one.
// Positive means the leader underpaid (owes more), negative means the
// leader overpaid (refund due). Equal counts short-circuit to exactly 0.
func PriceDifference(items []model.OrderItem, products map[string]*model.Product, expected, actual int) int64 {
	if expected == actual {
		return 0
	}
	var diff int64
	for _, item := range items {
		p, ok := products[item.ProductID]
		if !ok {
			continue
		}
		perUnit := ForTier(p, actual) - ForTier(p, expected)
		diff += perUnit * int64(item.Quantity)
	}
	return diff
}

// TierTotal computes the basket total at a given friend count, with solo
// fallback for unset tiers. Used by the paid-total matching heuristic.
func TierTotal(items []model.OrderItem, products map[string]*model.Product, friends int) int64 {
	var total int64
	for _, item := range items {
		p, ok := products[item.ProductID]
		if !ok {
			continue
		}
		total += ForTierOrSolo(p, friends) * int64(item.Quantity)
	}
	return total
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefOr(v *int64, fallback int64) int64 {
	if v == nil {
		return fallback
	}
	return *v
}
