package fragcache

import "errors"

var (
	ErrNilStore           = errors.New("fragcache: store is nil")
	ErrStoreUnavailable   = errors.New("fragcache: store unavailable")
	ErrPatternUnsupported = errors.New("fragcache: store cannot enumerate keys by prefix")
	ErrInvalidKey         = errors.New("fragcache: invalid logical key")
	ErrUnknownOption      = errors.New("fragcache: unknown option")
	ErrInvalidOption      = errors.New("fragcache: invalid option value")
	ErrNoPath             = errors.New("fragcache: fragment has no path")
	ErrNoContext          = errors.New("fragcache: fragment has no execution context")
	ErrNoResult           = errors.New("fragcache: request has no final result")
)
