package model

import "time"

type GroupKind string

const (
	GroupKindPrimary   GroupKind = "primary"
	GroupKindSecondary GroupKind = "secondary" // referral group, simplified refund rules
)

type GroupStatus string

const (
	GroupStatusForming   GroupStatus = "forming"
	GroupStatusFinalized GroupStatus = "finalized"
	GroupStatusFailed    GroupStatus = "failed"
)

// OrderState replaces the status-string side channel of the legacy system
// with a proper enum. pending_settlement blocks the leader order until the
// group's debt is paid or cleared; awaiting_consolidation blocks followers
// until the leader's debt is resolved.
type OrderState string

const (
	OrderStatePending               OrderState = "pending"
	OrderStatePendingSettlement     OrderState = "pending_settlement"
	OrderStateAwaitingConsolidation OrderState = "awaiting_consolidation"
	OrderStateWaiting               OrderState = "waiting"
	OrderStateCompleted             OrderState = "completed"
	OrderStateCancelled             OrderState = "cancelled"
)

type Product struct {
	ID          string `gorm:"primaryKey;size:64;not null"` // product sku
	Name        string `gorm:"size:255"`
	MarketPrice int64  `gorm:"not null"` // reference price, used for secondary basket value
	SoloPrice   int64  `gorm:"not null"` // price at 0 friends

	// Tier prices. Nil means the seller never set that tier; a stored zero
	// is a genuine "free at this tier" price.
	Friend1Price *int64
	Friend2Price *int64
	Friend3Price *int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Group struct {
	ID         uint        `gorm:"primaryKey"`
	InviteCode string      `gorm:"size:64;uniqueIndex;not null"`
	LeaderID   string      `gorm:"size:64;index;not null"`
	Kind       GroupKind   `gorm:"size:16;index;not null;default:primary"`
	Status     GroupStatus `gorm:"size:16;index;not null;default:forming"`

	// Promised friend count. Nil until resolved (explicitly at checkout or
	// via the fallback chain); once resolved it is persisted and stable.
	ExpectedFriends *int

	// Debt flags. settlement_required and refund_due_amount > 0 are
	// mutually exclusive; a group owes in at most one direction.
	SettlementRequired bool  `gorm:"not null;default:false"`
	SettlementAmount   int64 `gorm:"not null;default:0"`
	RefundDueAmount    int64 `gorm:"not null;default:0"`

	// Presence means paid. settlement_paid_at is terminal for the debt:
	// the engine never recomputes a nonzero settlement after it is set.
	SettlementPaidAt *time.Time
	RefundPaidAt     *time.Time

	// JSON basket snapshot captured at group creation, see BasketSnapshot.
	BasketSnapshot string `gorm:"type:text"`

	ExpiresAt time.Time `gorm:"index;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Order struct {
	ID      uint   `gorm:"primaryKey"`
	OrderNo string `gorm:"size:64;uniqueIndex;not null"`
	GroupID *uint  `gorm:"index"`
	UserID  string `gorm:"size:64;index;not null"`
	Phone   string `gorm:"size:32"`

	State  OrderState `gorm:"size:32;index;not null;default:pending"`
	Amount int64      `gorm:"not null"` // total at checkout

	// Payment evidence. Ref id and/or paid timestamp are the only trusted
	// signals that this order was paid; State is never used for counting.
	Authority    string `gorm:"size:128;index"` // gateway payment authority
	PaymentRefID string `gorm:"size:128"`
	PaidAt       *time.Time
	PaidAmount   int64 `gorm:"not null;default:0"`

	// Follower opted into consolidated shipping to the leader's address.
	ShipToLeader bool `gorm:"not null;default:false"`

	// Marks the synthetic order created when a leader pays a settlement
	// debt. Excluded from all follower/leader counting.
	IsSettlementPayment bool `gorm:"not null;default:false"`

	// JSON metadata blob (expected-friends hint, payment percentage).
	Metadata string `gorm:"type:text"`

	Items []OrderItem `gorm:"foreignKey:OrderID"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasPaymentEvidence reports whether the order carries trusted proof of
// payment (gateway ref id or paid timestamp).
func (o *Order) HasPaymentEvidence() bool {
	return o.PaymentRefID != "" || o.PaidAt != nil
}

type OrderItem struct {
	ID        uint   `gorm:"primaryKey"`
	OrderID   uint   `gorm:"index;not null"`
	ProductID string `gorm:"size:64;index;not null"`
	Quantity  int    `gorm:"not null"`
	UnitPrice int64  `gorm:"not null"` // unit price at checkout time

	CreatedAt time.Time
}

// PaymentIntentKind distinguishes what a gateway authority was issued for.
type PaymentIntentKind string

const (
	PaymentIntentOrder      PaymentIntentKind = "order"
	PaymentIntentSettlement PaymentIntentKind = "settlement"
)

// PaymentIntent maps a gateway authority back to the thing being paid for,
// so the payment callback can dispatch without trusting query params.
type PaymentIntent struct {
	Authority  string            `gorm:"primaryKey;size:128;not null"`
	Kind       PaymentIntentKind `gorm:"size:16;not null"`
	OrderID    *uint             `gorm:"index"`
	GroupID    *uint             `gorm:"index"`
	Amount     int64             `gorm:"not null"`
	ConsumedAt *time.Time

	CreatedAt time.Time
}
