/* rik2drv - driver and markup stack for the ACR38/РИК-2 smart-card reader
 *
 * CCID bulk message framing (USB device class 0x0B)
 */

// Package ccid builds PC_to_RDR messages and parses RDR_to_PC replies
// over a bulk IN/OUT endpoint pair, reassembling responses that arrive
// split across multiple USB packets.
package ccid

import (
	"encoding/binary"
	"time"

	"github.com/anatolyk/rik2drv/internal/rerr"
)

// Message types, PC_to_RDR direction.
const (
	PCtoRDRIccPowerOn     byte = 0x62
	PCtoRDRIccPowerOff    byte = 0x63
	PCtoRDRGetSlotStatus  byte = 0x65
	PCtoRDRXfrBlock       byte = 0x6F
)

// Message types, RDR_to_PC direction.
const (
	RDRtoPCDataBlock  byte = 0x80
	RDRtoPCSlotStatus byte = 0x81
)

const headerLen = 10

// maxChunk bounds a single bulk-IN read, per the component design.
const maxChunk = 256

// headerRetries is how many failed reads in total are tolerated while
// still waiting for the first 10 header bytes.
const headerRetries = 5

// Transport is the bulk pipe a Framer sends requests over and reads
// responses from. internal/usbio.Device satisfies it.
type Transport interface {
	Write(data []byte) error
	Read(buf []byte, timeout time.Duration) (int, error)
}

// Response is a parsed RDR_to_PC message.
type Response struct {
	MsgType byte
	Slot    byte
	Status  byte // bStatus
	Error   byte // bError, preserved but not interpreted here
	Param   byte // message-type-specific byte 9
	Payload []byte
}

// Presence derives from bStatus & 0x03.
type Presence int

// Presence values, per the low two bits of bStatus.
const (
	PresentActive Presence = iota
	PresentInactive
	NotPresent
	Unknown
)

// Presence reports the card presence encoded in the response's bStatus.
func (r *Response) Presence() Presence {
	switch r.Status & 0x03 {
	case 0:
		return PresentActive
	case 1:
		return PresentInactive
	case 2:
		return NotPresent
	default:
		return Unknown
	}
}

// Framer builds CCID requests and parses CCID responses over a
// Transport, owning the host-side sequence counter.
type Framer struct {
	t       Transport
	seq     byte
	timeout time.Duration
}

// New returns a Framer with an initial sequence counter of 1, matching
// the reference reader driver.
func New(t Transport, timeout time.Duration) *Framer {
	return &Framer{t: t, seq: 1, timeout: timeout}
}

// Exchange sends one PC_to_RDR message of msgType carrying payload on
// slot, stamping the next sequence number, and returns the parsed
// RDR_to_PC reply. timeout, if non-zero, overrides the Framer's default
// for this call only.
func (f *Framer) Exchange(msgType byte, payload []byte, slot byte, timeout time.Duration) (*Response, error) {
	if timeout <= 0 {
		timeout = f.timeout
	}

	seq := f.seq
	f.seq++ // 8-bit wraparound is implicit in byte arithmetic

	req := make([]byte, headerLen+len(payload))
	req[0] = msgType
	binary.LittleEndian.PutUint32(req[1:5], uint32(len(payload)))
	req[5] = slot
	req[6] = seq
	// req[7..9] reserved, left zero
	copy(req[headerLen:], payload)

	if err := f.t.Write(req); err != nil {
		return nil, err
	}

	return f.readResponse(timeout)
}

// readResponse implements the reassembly discipline of the component
// design: accumulate at least the 10-byte header (tolerating up to
// headerRetries failed reads in total), parse dwLength, then keep reading
// until the full body is present, with one final extended-timeout
// attempt before giving up.
func (f *Framer) readResponse(timeout time.Duration) (*Response, error) {
	buf := make([]byte, 0, headerLen+256)
	chunk := make([]byte, maxChunk)

	// Phase 1: accumulate the header.
	retries := 0
	for len(buf) < headerLen {
		n, err := f.t.Read(chunk, timeout)
		if err != nil {
			retries++
			if retries > headerRetries {
				return nil, rerr.New("ccid.readResponse", rerr.ProtocolShortFrame, err)
			}
			continue
		}
		buf = append(buf, chunk[:n]...)
	}

	declared := int(binary.LittleEndian.Uint32(buf[1:5]))
	want := headerLen + declared

	// Phase 2: accumulate the body.
	for len(buf) < want {
		n, err := f.t.Read(chunk, timeout)
		if err != nil {
			// One extended-timeout attempt to tolerate a delayed trailer.
			n2, err2 := f.t.Read(chunk, 2*timeout)
			if err2 != nil {
				return nil, rerr.New("ccid.readResponse", rerr.ProtocolIncompleteBody, err2)
			}
			buf = append(buf, chunk[:n2]...)
			continue
		}
		buf = append(buf, chunk[:n]...)
	}

	buf = buf[:want]

	return &Response{
		MsgType: buf[0],
		Slot:    buf[5],
		Status:  buf[7],
		Error:   buf[8],
		Param:   buf[9],
		Payload: buf[headerLen:want],
	}, nil
}
