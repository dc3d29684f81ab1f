package splitter

import (
	"splitvault/core/events"
	"splitvault/crypto"
)

const (
	EventTypeDeposited    = "splitter.deposited"
	EventTypePaused       = "splitter.paused"
	EventTypeResumed      = "splitter.resumed"
	EventTypeAdminChanged = "splitter.admin_changed"
)

// NewDepositedEvent returns the canonical payload for a successful split.
func NewDepositedEvent(dep *Deposit) *events.Event {
	attrs := make(map[string]string)
	if dep == nil {
		return &events.Event{Type: EventTypeDeposited, Attributes: attrs}
	}
	attrs["initiator"] = crypto.EncodeSVT(dep.Initiator)
	attrs["amount"] = dep.Amount.String()
	attrs["remainder"] = dep.Remainder.String()
	return &events.Event{Type: EventTypeDeposited, Attributes: attrs}
}

// NewPausedEvent returns the payload emitted when the administrator suspends
// the service.
func NewPausedEvent(who [20]byte) *events.Event {
	return &events.Event{Type: EventTypePaused, Attributes: map[string]string{
		"who": crypto.EncodeSVT(who),
	}}
}

// NewResumedEvent returns the payload emitted when the administrator
// reactivates the service.
func NewResumedEvent(who [20]byte) *events.Event {
	return &events.Event{Type: EventTypeResumed, Attributes: map[string]string{
		"who": crypto.EncodeSVT(who),
	}}
}

// NewAdminChangedEvent returns the payload emitted on an administration
// transfer.
func NewAdminChangedEvent(previous, current [20]byte) *events.Event {
	return &events.Event{Type: EventTypeAdminChanged, Attributes: map[string]string{
		"previous": crypto.EncodeSVT(previous),
		"current":  crypto.EncodeSVT(current),
	}}
}
