package protocol

import "errors"

const (
	// Wire/codec.
	ErrBadEnvelope = "E_BAD_ENVELOPE"
	ErrUnknownKind = "E_UNKNOWN_KIND"

	// Handler layer.
	ErrNotFound = "E_NOT_FOUND"
	ErrNotOwner = "E_NOT_OWNER"
	ErrConflict = "E_CONFLICT"
	ErrStale    = "E_STALE"
	ErrNotReady = "E_NOT_READY"
	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrBadEnvelope: {},
	ErrUnknownKind: {},
	ErrNotFound:    {},
	ErrNotOwner:    {},
	ErrConflict:    {},
	ErrStale:       {},
	ErrNotReady:    {},
	ErrInternal:    {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// CodeError carries one of the codes above.
type CodeError struct {
	Code   string
	Detail string
}

func (e *CodeError) Error() string {
	if e.Detail == "" {
		return e.Code
	}
	return e.Code + ": " + e.Detail
}

// CodeOf extracts the code from err, or "" when err carries none.
func CodeOf(err error) string {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
