package splitter

import "errors"

var (
	// ErrUnauthorized is returned when a caller invokes an admin-only
	// operation without being the current administrator.
	ErrUnauthorized = errors.New("splitter: caller is not the administrator")
	// ErrPaused gates every value-moving operation while suspended.
	ErrPaused = errors.New("splitter: service suspended")
	// ErrAlreadyPaused rejects a pause of an already suspended gate.
	ErrAlreadyPaused = errors.New("splitter: already suspended")
	// ErrNotPaused rejects a resume of an active gate.
	ErrNotPaused = errors.New("splitter: not suspended")
	// ErrInvalidAmount rejects non-positive deposit amounts.
	ErrInvalidAmount = errors.New("splitter: amount must be positive")
	// ErrInvalidRecipient rejects a zero recipient identity on either side
	// of a split.
	ErrInvalidRecipient = errors.New("splitter: recipient must not be the zero address")
	// ErrInvalidAdmin rejects a transfer of administration to the zero
	// identity.
	ErrInvalidAdmin = errors.New("splitter: new administrator must not be the zero address")
	// ErrNothingToWithdraw is returned when the caller has no pending
	// balance.
	ErrNothingToWithdraw = errors.New("splitter: no balance to withdraw")
	// ErrTransferFailed wraps a failure reported by the external value
	// transfer primitive. The triggering operation is rolled back in full.
	ErrTransferFailed = errors.New("splitter: value transfer failed")
)
