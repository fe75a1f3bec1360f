package reconcile

import "errors"

var (
	ErrNoOrders = errors.New("no orders")
)
