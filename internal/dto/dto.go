package dto

type Item struct {
	Sku      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// CheckoutRequest starts a payment for a solo order, a new group-buy
// (ExpectedFriends set), or a join into an existing group (InviteCode set).
type CheckoutRequest struct {
	Items []*Item `json:"items"`

	// Promised friend count for a new group-buy. Nil means a solo order
	// unless InviteCode is set.
	ExpectedFriends *int `json:"expected_friends,omitempty"`

	// Secondary (referral) group flag for a new group-buy.
	Secondary bool `json:"secondary,omitempty"`

	// Invite code of the group being joined.
	InviteCode string `json:"invite_code,omitempty"`

	// Follower opted into consolidated shipping to the leader's address.
	ShipToLeader bool `json:"ship_to_leader,omitempty"`

	Phone string `json:"phone,omitempty"`
}

type CheckoutResponse struct {
	OrderNo   string `json:"order_no"`
	Authority string `json:"authority"`
	PayURL    string `json:"pay_url"`
}

// SettlementCheckResult is the engine's answer to "does this group owe or
// get money back right now".
type SettlementCheckResult struct {
	GroupID uint   `json:"group_id"`
	Outcome string `json:"outcome"`

	SettlementRequired bool  `json:"settlement_required"`
	SettlementAmount   int64 `json:"settlement_amount"`
	RefundDue          bool  `json:"refund_due"`
	RefundAmount       int64 `json:"refund_amount"`

	ExpectedFriends  int   `json:"expected_friends"`
	ActualFriends    int   `json:"actual_friends"`
	AggregationBonus int64 `json:"aggregation_bonus"`

	Message string `json:"message"`
}

type SettlementPaymentResult struct {
	Success     bool   `json:"success"`
	AlreadyPaid bool   `json:"already_paid,omitempty"`
	OrderNo     string `json:"order_no,omitempty"`
	Error       string `json:"error,omitempty"`
}

type CallbackResult struct {
	Success bool   `json:"success"`
	Kind    string `json:"kind"`
	OrderNo string `json:"order_no,omitempty"`
	GroupID uint   `json:"group_id,omitempty"`
	RefID   string `json:"ref_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

type GroupSummary struct {
	GroupID         uint   `json:"group_id"`
	InviteCode      string `json:"invite_code"`
	Kind            string `json:"kind"`
	Status          string `json:"status"`
	LeaderID        string `json:"leader_id"`
	ExpectedFriends int    `json:"expected_friends"`
	PaidFollowers   int    `json:"paid_followers"`
	ExpiresAt       int64  `json:"expires_at"`

	Settlement *SettlementCheckResult `json:"settlement,omitempty"`
}

// GroupOutcome drives notification message selection after a group's fate
// is decided.
type GroupOutcome string

const (
	GroupOutcomeNoDebt            GroupOutcome = "no_debt"
	GroupOutcomeNeedsPayment      GroupOutcome = "needs_payment"
	GroupOutcomeRefundDue         GroupOutcome = "refund_due"
	GroupOutcomeFailedWithPayment GroupOutcome = "failed_with_payment"
)
