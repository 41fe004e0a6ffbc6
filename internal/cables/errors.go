package cables

import "errors"

// Refusals returned by lifecycle operations. Batch callers log them and move
// on; interactive callers report them and exit non-zero.
var (
	ErrCableNotFound     = errors.New("cable not found")
	ErrIssueNotFound     = errors.New("issue not found")
	ErrPortNotFound      = errors.New("cable port not found")
	ErrAlreadyDisabled   = errors.New("cable already disabled")
	ErrBisection         = errors.New("disabling cable would bisect the fabric")
	ErrSelfReplace       = errors.New("cable cannot replace itself")
	ErrCableRemoved      = errors.New("cable is removed")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrNoTicket          = errors.New("cable has no ticket")
	ErrTooManyPorts      = errors.New("cable cannot have more than two ports")
	ErrNoPortDisabled    = errors.New("no cable port could be disabled")
)
