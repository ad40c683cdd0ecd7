package barcode

import "errors"

var (
	// ErrMalformedPattern is the cause of errors returned by ParsePattern for
	// strings that do not describe a read structure.
	ErrMalformedPattern = errors.New("malformed read pattern")
	// ErrBadWhitelist is the cause of errors for empty whitelists, entries of
	// unequal length, or entries with bases outside ACGTN.
	ErrBadWhitelist = errors.New("bad whitelist")
)
