package errs

import "errors"

// Domain errors shared between service, handlers and jobs.
var (
	ErrTicketNotFound  = errors.New("ticket not found")
	ErrInvalidStatus   = errors.New("invalid ticket status")
	ErrInvalidCategory = errors.New("invalid ticket category")
)
