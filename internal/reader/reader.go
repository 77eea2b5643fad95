/* rik2drv - driver and markup stack for the ACR38/РИК-2 smart-card reader
 *
 * Reader facade: unifies the CCID and ACS backends behind one surface
 */

// Package reader implements the unified reader facade of the component
// design: open/close/info/cardStatus/powerOn/powerOff/transmit/
// waitCardEvent, dispatched internally as a tagged variant over the CCID
// and ACS backends decided once at open time.
package reader

import (
	"fmt"
	"time"

	"github.com/anatolyk/rik2drv/internal/acs"
	"github.com/anatolyk/rik2drv/internal/ccid"
	"github.com/anatolyk/rik2drv/internal/rerr"
	"github.com/anatolyk/rik2drv/internal/usbio"
)

// IsoProtocol selects the ISO 7816 transmission protocol at open time.
// Only T0 (and Auto, treated as T0) is implemented; T1 block chaining is
// rejected at open, per the design notes' resolution of that open
// question.
type IsoProtocol int

// IsoProtocol values.
const (
	Auto IsoProtocol = iota
	T0
	T1
)

// Presence is the backend-independent card presence enumeration.
type Presence int

// Presence values, canonical across CCID and ACS (component design §4.7).
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

// Selector describes which device to open, with which ISO protocol.
type Selector struct {
	VID, PID           uint16
	Iface              int
	DetachKernelDriver bool
	TimeoutMs          int
	Proto              IsoProtocol
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

// Reader is a single opened reader handle. It exclusively owns the
// underlying USB device; open is via Open, and every call is a
// synchronous, blocking exchange — at most one is ever in flight.
type Reader struct {
	dev     *usbio.Device
	backend usbio.Backend
	ccidF   *ccid.Framer
	acsF    *acs.Framer
	timeout time.Duration
}

// Open discovers and claims a matching device and returns a ready-to-use
// Reader. T1 is not implemented and is rejected here rather than
// silently ignored.
func Open(sel Selector) (*Reader, error) {
	if sel.Proto == T1 {
		return nil, rerr.New("reader.Open", rerr.TransportInit,
			fmt.Errorf("T=1 is not implemented"))
	}

	dev, err := usbio.Open(usbio.Selector{
		VID: sel.VID, PID: sel.PID, Iface: sel.Iface,
		DetachKernelDriver: sel.DetachKernelDriver, TimeoutMs: sel.TimeoutMs,
	})
	if err != nil {
		return nil, err
	}

	timeout := dev.Timeout()
	r := &Reader{dev: dev, backend: dev.Backend(), timeout: timeout}
	if r.backend == usbio.CCID {
		r.ccidF = ccid.New(dev, timeout)
	} else {
		r.acsF = acs.New(dev, timeout)
	}
	return r, nil
}

// Close releases the underlying device. It always succeeds at this
// level: transport errors during teardown are swallowed.
func (r *Reader) Close() {
	r.dev.Close()
}

// Info reports static information about the opened reader.
func (r *Reader) Info() Info {
	i := r.dev.Info()
	return Info{
		VID: i.VID, PID: i.PID, Backend: i.Backend.String(),
		InAddr: i.InAddr, OutAddr: i.OutAddr, HasIntr: i.HasIntr,
		Product: i.Product, Manufacturer: i.Manufacturer,
	}
}

// CardStatus reports the current card presence, mapping the backend's
// native status representation onto the common Presence enumeration.
func (r *Reader) CardStatus() (Presence, error) {
	if r.backend == usbio.CCID {
		resp, err := r.ccidF.Exchange(ccid.PCtoRDRGetSlotStatus, nil, 0, 0)
		if err != nil {
			return Unknown, err
		}
		return presenceFromCCID(resp.Presence()), nil
	}

	resp, err := r.acsF.Exchange(acs.InsGetAcrStat, nil, 0, false)
	if err != nil {
		return Unknown, err
	}
	if len(resp.Payload) == 0 {
		return Unknown, nil
	}
	cStat := resp.Payload[len(resp.Payload)-1]
	return presenceFromACS(acs.PresenceFromCStat(cStat)), nil
}

func presenceFromCCID(p ccid.Presence) Presence {
	switch p {
	case ccid.PresentActive:
		return PresentActive
	case ccid.PresentInactive:
		return PresentInactive
	case ccid.NotPresent:
		return NotPresent
	}
	return Unknown
}

func presenceFromACS(p acs.Presence) Presence {
	switch p {
	case acs.PresentActive:
		return PresentActive
	case acs.PresentInactive:
		return PresentInactive
	case acs.NotPresent:
		return NotPresent
	}
	return Unknown
}

// PowerOn powers up the card and returns its ATR. An empty ATR is a
// protocol error.
func (r *Reader) PowerOn() ([]byte, error) {
	var atr []byte

	if r.backend == usbio.CCID {
		resp, err := r.ccidF.Exchange(ccid.PCtoRDRIccPowerOn, nil, 0, 0)
		if err != nil {
			return nil, err
		}
		atr = resp.Payload
	} else {
		resp, err := r.acsF.Exchange(acs.InsResetDefault, nil, 0, true)
		if err != nil {
			return nil, err
		}
		atr = resp.Payload
	}

	if len(atr) == 0 {
		return nil, rerr.New("reader.PowerOn", rerr.ProtocolIncompleteBody,
			fmt.Errorf("empty ATR"))
	}
	return atr, nil
}

// PowerOff powers the card down. The CCID SlotStatus response is
// ignored (the reader may still report the card present); the ACS
// response must report StatusOK.
func (r *Reader) PowerOff() error {
	if r.backend == usbio.CCID {
		_, err := r.ccidF.Exchange(ccid.PCtoRDRIccPowerOff, nil, 0, 0)
		return err
	}
	_, err := r.acsF.Exchange(acs.InsPowerOff, nil, 0, true)
	return err
}

// Transmit exchanges one C-APDU with the card and returns the R-APDU
// bytes, unexamined (SW1/SW2 interpretation is the caller's job).
// timeoutMs, if non-zero, overrides the reader's configured default for
// this call only.
func (r *Reader) Transmit(capdu []byte, timeoutMs int) ([]byte, error) {
	timeout := r.timeout
	if timeoutMs > 0 {
		timeout = time.Duration(timeoutMs) * time.Millisecond
	}

	if r.backend == usbio.CCID {
		resp, err := r.ccidF.Exchange(ccid.PCtoRDRXfrBlock, capdu, 0, timeout)
		if err != nil {
			return nil, err
		}
		return resp.Payload, nil
	}

	resp, err := r.acsF.Exchange(acs.InsExchangeT0, capdu, timeout, true)
	if err != nil {
		return nil, err
	}
	return resp.Payload, nil
}

// WaitCardEvent blocks up to timeoutMs waiting for an interrupt-IN
// transfer, returning true if one arrived. It returns false (with no
// error) on timeout, or immediately if the device has no interrupt-IN
// endpoint.
func (r *Reader) WaitCardEvent(timeoutMs int) (bool, error) {
	return r.dev.WaitInterrupt(time.Duration(timeoutMs) * time.Millisecond)
}

// VendorControl is a reserved extension point with no defined semantics;
// it always returns an empty, nil result.
func (r *Reader) VendorControl(payload []byte) ([]byte, error) {
	return nil, nil
}
