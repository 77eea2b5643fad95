/* rik2drv - driver and markup stack for the ACR38/РИК-2 smart-card reader
 *
 * ACS legacy bulk message framing (vendor protocol, non-CCID interfaces)
 */

// Package acs builds and parses the vendor-legacy ACS frame
// (`01 INS LENhi LENlo data...`) used on interfaces that do not claim
// the CCID USB class.
package acs

import (
	"fmt"
	"time"

	"github.com/anatolyk/rik2drv/internal/rerr"
)

// Instructions, PC-to-reader direction.
const (
	InsGetAcrStat   byte = 0x01
	InsResetDefault byte = 0x80 // power on; returns ATR
	InsPowerOff     byte = 0x81
	InsExchangeT0   byte = 0xA0 // transmit APDU
)

// StatusOK is the one response status byte that indicates success.
const StatusOK byte = 0x00

const magic = 0x01
const headerLen = 4
const maxChunk = 256
const headerRetries = 5

// Transport is the bulk pipe a Framer sends requests over and reads
// responses from. internal/usbio.Device satisfies it.
type Transport interface {
	Write(data []byte) error
	Read(buf []byte, timeout time.Duration) (int, error)
}

// Response is a parsed ACS reply.
type Response struct {
	Status  byte
	Payload []byte
}

// Presence derives from the final byte of a GET_ACR_STAT response.
type Presence int

// Presence values, per the final payload byte of GET_ACR_STAT (C_STAT).
const (
	NotPresent Presence = iota
	PresentInactive
	PresentActive
	Unknown
)

// PresenceFromCStat maps the raw C_STAT byte to a Presence value.
func PresenceFromCStat(cStat byte) Presence {
	switch cStat {
	case 0x00:
		return NotPresent
	case 0x01:
		return PresentInactive
	case 0x03:
		return PresentActive
	default:
		return Unknown
	}
}

// Framer builds ACS requests and parses ACS responses over a Transport.
type Framer struct {
	t       Transport
	timeout time.Duration
}

// New returns a Framer using timeout as the default per-exchange
// deadline.
func New(t Transport, timeout time.Duration) *Framer {
	return &Framer{t: t, timeout: timeout}
}

// Exchange sends one ACS request of ins carrying payload and returns the
// parsed response. timeout, if non-zero, overrides the Framer's default
// for this call only. If requireOK, a non-zero response status aborts
// the call with rerr.BackendRejected.
func (f *Framer) Exchange(ins byte, payload []byte, timeout time.Duration, requireOK bool) (*Response, error) {
	if timeout <= 0 {
		timeout = f.timeout
	}

	req := make([]byte, headerLen+len(payload))
	req[0] = magic
	req[1] = ins
	req[2] = byte(len(payload) >> 8)
	req[3] = byte(len(payload))
	copy(req[headerLen:], payload)

	if err := f.t.Write(req); err != nil {
		return nil, err
	}

	resp, err := f.readResponse(timeout)
	if err != nil {
		return nil, err
	}

	if requireOK && resp.Status != StatusOK {
		return resp, rerr.New("acs.Exchange", rerr.BackendRejected,
			fmt.Errorf("status=%#02x", resp.Status))
	}

	return resp, nil
}

// readResponse mirrors ccid.Framer's reassembly discipline: accumulate
// at least the 4-byte header (tolerating up to headerRetries failed
// reads in total), validate the magic byte, parse LEN, then read until the
// full body is present, with one final extended-timeout attempt.
func (f *Framer) readResponse(timeout time.Duration) (*Response, error) {
	buf := make([]byte, 0, headerLen+256)
	chunk := make([]byte, maxChunk)

	retries := 0
	for len(buf) < headerLen {
		n, err := f.t.Read(chunk, timeout)
		if err != nil {
			retries++
			if retries > headerRetries {
				return nil, rerr.New("acs.readResponse", rerr.ProtocolShortFrame, err)
			}
			continue
		}
		buf = append(buf, chunk[:n]...)
	}

	if buf[0] != magic {
		return nil, rerr.New("acs.readResponse", rerr.ProtocolBadMagic,
			fmt.Errorf("got %#02x, want %#02x", buf[0], magic))
	}

	declared := int(buf[2])<<8 | int(buf[3])
	want := headerLen + declared

	for len(buf) < want {
		n, err := f.t.Read(chunk, timeout)
		if err != nil {
			n2, err2 := f.t.Read(chunk, 2*timeout)
			if err2 != nil {
				return nil, rerr.New("acs.readResponse", rerr.ProtocolIncompleteBody, err2)
			}
			buf = append(buf, chunk[:n2]...)
			continue
		}
		buf = append(buf, chunk[:n]...)
	}

	buf = buf[:want]

	return &Response{Status: buf[1], Payload: buf[headerLen:want]}, nil
}
