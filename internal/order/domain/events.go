package domain

import "time"

// StatusChange is recorded on the aggregate for every successful transition
// and drained with PullChanges once the change is committed. The change that
// creates an order has a zero From.
type StatusChange struct {
	OrderID OrderID
	From    Status
	To      Status
	At      time.Time
}

func (c StatusChange) IsCreation() bool { return c.From == 0 }
