package splitter

// AccessControl owns the single administrator identity. There is exactly one
// valid administrator at all times; the slot is replaced atomically and never
// cleared.
type AccessControl struct {
	admin [20]byte
}

// NewAccessControl seeds the administrator slot. The zero identity is
// rejected so the invariant "exactly one valid administrator" holds from
// construction.
func NewAccessControl(initial [20]byte) (*AccessControl, error) {
	if initial == ([20]byte{}) {
		return nil, ErrInvalidAdmin
	}
	return &AccessControl{admin: initial}, nil
}

// Admin returns the current administrator identity. Callable by anyone.
func (a *AccessControl) Admin() [20]byte { return a.admin }

// Require returns ErrUnauthorized unless the caller is the current
// administrator.
func (a *AccessControl) Require(caller [20]byte) error {
	if caller != a.admin {
		return ErrUnauthorized
	}
	return nil
}

// Transfer replaces the administrator identity. Only the current
// administrator may transfer, and the zero identity is rejected rather than
// burning the admin slot. The previous identity is returned for event
// emission.
func (a *AccessControl) Transfer(caller, next [20]byte) ([20]byte, error) {
	if err := a.Require(caller); err != nil {
		return [20]byte{}, err
	}
	if next == ([20]byte{}) {
		return [20]byte{}, ErrInvalidAdmin
	}
	previous := a.admin
	a.admin = next
	return previous, nil
}
