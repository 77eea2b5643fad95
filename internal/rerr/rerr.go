/* rik2drv - driver and markup stack for the ACR38/РИК-2 smart-card reader
 *
 * Error taxonomy shared by every layer of the driver
 */

// Package rerr defines the error taxonomy used across the reader
// transport, the reader facade, and the traversal engine.
package rerr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error by the layer and condition that produced it.
type Kind int

// Error kinds. See the component design for the exact condition each
// one is raised under.
const (
	TransportInit Kind = iota
	DeviceNotFound
	InterfaceBusy
	ProtocolShortFrame
	ProtocolIncompleteBody
	ProtocolBadMagic
	BackendRejected
	Timeout
	NotOpen
	LayoutInvalid
	FileIO
)

// String returns a human-readable name of the Kind.
func (k Kind) String() string {
	switch k {
	case TransportInit:
		return "TransportInit"
	case DeviceNotFound:
		return "DeviceNotFound"
	case InterfaceBusy:
		return "InterfaceBusy"
	case ProtocolShortFrame:
		return "ProtocolShortFrame"
	case ProtocolIncompleteBody:
		return "ProtocolIncompleteBody"
	case ProtocolBadMagic:
		return "ProtocolBadMagic"
	case BackendRejected:
		return "BackendRejected"
	case Timeout:
		return "Timeout"
	case NotOpen:
		return "NotOpen"
	case LayoutInvalid:
		return "LayoutInvalid"
	case FileIO:
		return "FileIO"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is the common error type returned across the driver. Op names
// the operation that failed (e.g. "reader.powerOn"); Err, if non-nil, is
// the underlying cause and is reachable via errors.Unwrap.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the same Kind as e, so callers can write
// errors.Is(err, rerr.ErrTimeout)-style checks against the sentinel
// values below.
func (e *Error) Is(target error) bool {
	k, ok := target.(kindSentinel)
	return ok && e.Kind == k.kind
}

// kindSentinel wraps a Kind so it can be used as an errors.Is() target,
// e.g. errors.Is(err, rerr.ErrTimeout).
type kindSentinel struct{ kind Kind }

func (k kindSentinel) Error() string { return k.kind.String() }

// New builds an *Error for the given operation, kind and optional cause.
func New(op string, kind Kind, cause error) error {
	return &Error{Op: op, Kind: kind, Err: cause}
}

// Sentinel Kind values usable directly with errors.Is, e.g.:
//
//	if errors.Is(err, rerr.ErrTimeout) { ... }
var (
	ErrTransportInit          error = kindSentinel{TransportInit}
	ErrDeviceNotFound         error = kindSentinel{DeviceNotFound}
	ErrInterfaceBusy          error = kindSentinel{InterfaceBusy}
	ErrProtocolShortFrame     error = kindSentinel{ProtocolShortFrame}
	ErrProtocolIncompleteBody error = kindSentinel{ProtocolIncompleteBody}
	ErrProtocolBadMagic       error = kindSentinel{ProtocolBadMagic}
	ErrBackendRejected        error = kindSentinel{BackendRejected}
	ErrTimeout                error = kindSentinel{Timeout}
	ErrNotOpen                error = kindSentinel{NotOpen}
	ErrLayoutInvalid          error = kindSentinel{LayoutInvalid}
	ErrFileIO                 error = kindSentinel{FileIO}
)

// Map from Kind to its sentinel, used by helpers below.
var sentinelOf = map[Kind]error{
	TransportInit:          ErrTransportInit,
	DeviceNotFound:         ErrDeviceNotFound,
	InterfaceBusy:          ErrInterfaceBusy,
	ProtocolShortFrame:     ErrProtocolShortFrame,
	ProtocolIncompleteBody: ErrProtocolIncompleteBody,
	ProtocolBadMagic:       ErrProtocolBadMagic,
	BackendRejected:        ErrBackendRejected,
	Timeout:                ErrTimeout,
	NotOpen:                ErrNotOpen,
	LayoutInvalid:          ErrLayoutInvalid,
	FileIO:                 ErrFileIO,
}

// Of reports the Kind of err, if err is (or wraps) an *Error produced by
// this package; ok is false otherwise.
func Of(err error) (kind Kind, ok bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Is reports whether err is of the given Kind, wrapped or not.
func Is(err error, kind Kind) bool {
	return errors.Is(err, sentinelOf[kind])
}
