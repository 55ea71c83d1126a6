package model

import (
	"encoding/json"
	"fmt"
)

// BasketSnapshot is the serialized line-item list stored on a group at
// creation time. The kind discriminator inside the snapshot is the source
// of truth for primary vs secondary handling.
type BasketSnapshot struct {
	Kind  GroupKind      `json:"kind"`
	Items []SnapshotItem `json:"items"`
}

// SnapshotItem freezes a product's per-tier prices at group creation, so
// settlement math is stable even if the seller reprices later.
type SnapshotItem struct {
	ProductID   string `json:"product_id"`
	Name        string `json:"name,omitempty"`
	Quantity    int    `json:"quantity"`
	MarketPrice int64  `json:"market_price"`
	SoloPrice   int64  `json:"solo_price"`

	Friend1Price *int64 `json:"friend_1_price,omitempty"`
	Friend2Price *int64 `json:"friend_2_price,omitempty"`
	Friend3Price *int64 `json:"friend_3_price,omitempty"`
}

// TotalValue sums market (or solo, when no market price is set) price
// times quantity across the snapshot's items.
func (s *BasketSnapshot) TotalValue() int64 {
	if s == nil {
		return 0
	}
	var total int64
	for _, item := range s.Items {
		price := item.MarketPrice
		if price == 0 {
			price = item.SoloPrice
		}
		total += price * int64(item.Quantity)
	}
	return total
}

func ParseBasketSnapshot(raw string) (*BasketSnapshot, error) {
	if raw == "" {
		return nil, nil
	}
	var snapshot BasketSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return nil, fmt.Errorf("parse basket snapshot: %w", err)
	}
	return &snapshot, nil
}

func (s *BasketSnapshot) Encode() (string, error) {
	body, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode basket snapshot: %w", err)
	}
	return string(body), nil
}
