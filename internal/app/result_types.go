package app

import "gaslink/internal/core"

// DeliveryResult is returned by RecordDelivery.
type DeliveryResult struct {
	Balances []core.CustomerBalance `json:"balances"`
}

// OperatorSession is returned by AuthenticateOperator.
type OperatorSession struct {
	OperatorID int    `json:"operator_id"`
	Username   string `json:"username"`
	Role       string `json:"role"`
}
