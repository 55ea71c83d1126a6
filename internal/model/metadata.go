package model

import (
	"encoding/json"
)

// OrderMetadata is the JSON blob stored on an order at checkout. Historical
// data is lossy: the expected-friends hint may live under any of three
// keys, and hybrid payments record the percentage actually charged.
type OrderMetadata struct {
	Friends         *int `json:"friends,omitempty"`
	ExpectedFriends *int `json:"expected_friends,omitempty"`
	MaxFriends      *int `json:"max_friends,omitempty"`

	// PaymentPercent below 100 means the order was a partial/hybrid
	// payment; the paid-total tier heuristic must be skipped for those.
	PaymentPercent *int `json:"payment_percent,omitempty"`

	// Secondary marks a checkout that starts a referral group.
	Secondary bool `json:"secondary,omitempty"`
}

// ParseOrderMetadata never fails hard: unparseable metadata is treated the
// same as absent metadata.
func ParseOrderMetadata(raw string) *OrderMetadata {
	if raw == "" {
		return &OrderMetadata{}
	}
	var meta OrderMetadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return &OrderMetadata{}
	}
	return &meta
}

// ExpectedFriendsHint returns the structured friend-count hint, checking
// the keys in their historical precedence order.
func (m *OrderMetadata) ExpectedFriendsHint() (int, bool) {
	for _, v := range []*int{m.Friends, m.ExpectedFriends, m.MaxFriends} {
		if v != nil && *v >= 0 {
			return *v, true
		}
	}
	return 0, false
}

// IsPartialPayment reports whether the order was paid below 100% of a tier
// total (hybrid payment).
func (m *OrderMetadata) IsPartialPayment() bool {
	return m.PaymentPercent != nil && *m.PaymentPercent < 100
}

func (m *OrderMetadata) Encode() string {
	body, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(body)
}
