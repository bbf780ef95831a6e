package codec

import (
	"errors"
	"fmt"

	"hostbridge/value"
)

// ErrNotImplemented is the decode result of a zero-length reply envelope:
// the remote side has no implementation for the invoked method. It is a
// distinct condition, not an application error.
var ErrNotImplemented = errors.New("method not implemented")

// CodecError reports malformed bytes during a decode: unrecognized tag,
// truncated buffer, invalid UTF-8, size overrun, trailing garbage. A decode
// never returns a partial Value — on the first malformed byte the whole
// operation aborts with a *CodecError.
type CodecError struct {
	msg string
}

func (e *CodecError) Error() string { return e.msg }

func codecErrorf(format string, args ...any) *CodecError {
	return &CodecError{msg: fmt.Sprintf(format, args...)}
}

// PlatformError is an error reported by the remote handler through the
// error envelope. Code is a non-empty machine-readable identifier; Message
// is optional human-readable text (empty = absent); Details is an arbitrary
// Value payload, possibly Null. The bridge core never interprets any of the
// three — they are opaque to everything but the caller.
type PlatformError struct {
	Code    string
	Message string
	Details value.Value
}

func (e *PlatformError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("platform error %s", e.Code)
	}
	return fmt.Sprintf("platform error %s: %s", e.Code, e.Message)
}
