package service

import "errors"

var (
	ErrGroupNotFound        = errors.New("group not found")
	ErrLeaderOrderNotFound  = errors.New("leader order not found")
	ErrOrderNotFound        = errors.New("order not found")
	ErrIntentNotFound       = errors.New("payment intent not found")
	ErrNoSettlementRequired = errors.New("no settlement required")
	ErrGroupClosed          = errors.New("group is no longer accepting members")
	ErrPaymentNotVerified   = errors.New("payment not verified by gateway")
)
