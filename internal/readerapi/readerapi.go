/* rik2drv - driver and markup stack for the ACR38/РИК-2 smart-card reader
 *
 * Dynamic-module boundary: the reader contract a plugin exposes, and the
 * three well-known symbols the host looks up to use it
 */

// Package readerapi is the stable contract shared by the host process
// and a reader plugin built with -buildmode=plugin. Both sides import
// this package so the types crossing the plugin.Lookup boundary are
// identical, which Go's plugin package requires for a safe type
// assertion.
//
// A reader library exposes exactly three package-level symbols, looked
// up by name rather than linked against directly:
//
//	CreateReader          func() readerapi.Reader
//	DestroyReader         func(readerapi.Reader)
//	ReaderLibraryVersion  func() string
//
// This mirrors the three C-linkage entry points a native reader driver
// exposes (create_reader/destroy_reader/reader_library_version); Go's
// plugin package is the idiomatic replacement for dlopen/QLibrary here,
// since it needs no cgo and the host never touches raw function
// pointers.
package readerapi

// Symbol names a reader plugin must export.
const (
	SymbolCreateReader         = "CreateReader"
	SymbolDestroyReader        = "DestroyReader"
	SymbolReaderLibraryVersion = "ReaderLibraryVersion"
)

// IsoProtocol selects the ISO 7816 transmission protocol at open time.
// It is threaded through to the reader plugin unchanged; only T0 (and
// Auto, treated as T0) is implemented, per the design notes' resolution
// of that open question.
type IsoProtocol int

// IsoProtocol values.
const (
	Auto IsoProtocol = iota
	T0
	T1
)

// OpenParams describes which physical device to claim.
type OpenParams struct {
	VID, PID           uint16
	Iface              int
	DetachKernelDriver bool
	TimeoutMs          int
	Proto              IsoProtocol
}

// Presence is the backend-independent card presence enumeration,
// mirrored here (rather than imported from internal/reader) because a
// plugin built as a separate main package cannot depend on this host's
// internal/reader package across the plugin boundary — only the shared
// readerapi types may cross it.
type Presence int

// Presence values.
const (
	NotPresent Presence = iota
	PresentInactive
	PresentActive
	Unknown
)

func (p Presence) String() string {
	switch p {
	case NotPresent:
		return "not-present"
	case PresentInactive:
		return "present-inactive"
	case PresentActive:
		return "present-active"
	}
	return "unknown"
}

// Info describes an opened reader.
type Info struct {
	VID, PID     uint16
	Backend      string
	InAddr       int
	OutAddr      int
	HasIntr      bool
	Product      string
	Manufacturer string
}

// Reader is the capability contract a reader plugin implements. A
// freshly created Reader is closed; Open must succeed before any other
// method is meaningful.
type Reader interface {
	Open(p OpenParams) error
	Close()
	Info() Info
	CardStatus() (Presence, error)
	PowerOn() ([]byte, error)
	PowerOff() error
	Transmit(capdu []byte, timeoutMs int) ([]byte, error)
	WaitCardEvent(timeoutMs int) (bool, error)
	VendorControl(payload []byte) ([]byte, error)
}
