/* rik2drv - driver and markup stack for the ACR38/РИК-2 smart-card reader
 *
 * USB device discovery and bulk/interrupt transport, backed by gousb
 */

// Package usbio discovers an ACR38-family reader by VID/PID, claims the
// interface exposing a bulk IN+OUT pair, and performs the raw bulk and
// interrupt transfers the CCID and ACS framers build on. It never
// interprets the bytes it carries.
package usbio

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"

	"github.com/anatolyk/rik2drv/internal/rerr"
)

// Backend is the wire protocol spoken on the claimed interface.
type Backend int

// Backend values. CCID is USB class 0x0B; anything else is treated as
// the vendor-legacy ACS framing.
const (
	CCID Backend = iota
	ACS
)

func (b Backend) String() string {
	if b == CCID {
		return "CCID"
	}
	return "ACS"
}

// ccidClass is the USB interface class code reserved for CCID devices.
const ccidClass = 0x0B

// Selector describes which device to open and how.
type Selector struct {
	VID, PID          uint16
	Iface             int // interface number hint, -1 = no preference
	DetachKernelDriver bool
	TimeoutMs         int
}

// Device is an opened, interface-claimed USB device ready for bulk and
// (optionally) interrupt transfers. The zero value is not usable; obtain
// one via Open.
type Device struct {
	ctx     *gousb.Context
	dev     *gousb.Device
	cfg     *gousb.Config
	intf    *gousb.Interface
	in      *gousb.InEndpoint
	out     *gousb.OutEndpoint
	intr    *gousb.InEndpoint // nil if no interrupt-IN endpoint is present
	backend Backend
	ifNum   int
	timeout time.Duration
}

// Info summarizes an opened Device for the reader facade's info() call.
type Info struct {
	VID, PID   uint16
	Bus, Addr  int
	Backend    Backend
	IfNum      int
	InAddr     int
	OutAddr    int
	HasIntr    bool
	Product    string
	Manufacturer string
}

// candidate describes one interface/alt-setting offering a bulk IN+OUT
// pair, found while walking a device's configuration descriptors.
type candidate struct {
	cfgNum, ifNum, alt int
	class              int
	inAddr, outAddr    int
	intrAddr           int
	hasIntr            bool
}

// Open enumerates USB devices, finds one matching sel.VID/sel.PID with a
// bulk IN+OUT endpoint pair (honoring sel.Iface if >= 0), claims it, and
// returns a ready-to-use Device.
func Open(sel Selector) (*Device, error) {
	ctx := gousb.NewContext()

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return uint16(desc.Vendor) == sel.VID && uint16(desc.Product) == sel.PID
	})
	if err != nil && len(devs) == 0 {
		ctx.Close()
		return nil, rerr.New("usbio.Open", rerr.TransportInit, err)
	}
	if len(devs) == 0 {
		ctx.Close()
		return nil, rerr.New("usbio.Open", rerr.DeviceNotFound,
			fmt.Errorf("no device matches VID=%#04x PID=%#04x", sel.VID, sel.PID))
	}

	// Several attached devices may share VID/PID; picking the lowest
	// bus/address keeps the choice deterministic across runs rather than
	// depending on OpenDevices' enumeration order.
	dev := lowestAddr(devs)
	for _, d := range devs {
		if d != dev {
			d.Close()
		}
	}

	cand, ok := findBulkPair(dev.Desc.Configs, sel.Iface)
	if !ok {
		dev.Close()
		ctx.Close()
		return nil, rerr.New("usbio.Open", rerr.DeviceNotFound,
			fmt.Errorf("no interface with a bulk IN+OUT pair (iface hint=%d)", sel.Iface))
	}

	if sel.DetachKernelDriver {
		if err := dev.SetAutoDetach(true); err != nil {
			dev.Close()
			ctx.Close()
			return nil, rerr.New("usbio.Open", rerr.InterfaceBusy, err)
		}
	}

	cfg, err := dev.Config(cand.cfgNum)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, rerr.New("usbio.Open", rerr.InterfaceBusy, err)
	}

	intf, err := cfg.Interface(cand.ifNum, cand.alt)
	if err != nil {
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, rerr.New("usbio.Open", rerr.InterfaceBusy, err)
	}

	in, err := intf.InEndpoint(cand.inAddr)
	if err != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, rerr.New("usbio.Open", rerr.TransportInit, err)
	}

	out, err := intf.OutEndpoint(cand.outAddr)
	if err != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, rerr.New("usbio.Open", rerr.TransportInit, err)
	}

	var intr *gousb.InEndpoint
	if cand.hasIntr {
		intr, _ = intf.InEndpoint(cand.intrAddr) // optional; ignore failure
	}

	backend := CCID
	if cand.class != ccidClass {
		backend = ACS
	}

	return &Device{
		ctx: ctx, dev: dev, cfg: cfg, intf: intf,
		in: in, out: out, intr: intr,
		backend: backend, ifNum: cand.ifNum,
		timeout: time.Duration(sel.TimeoutMs) * time.Millisecond,
	}, nil
}

// lowestAddr returns the device in devs whose (bus, address) sorts first,
// using AddrList to do the sorted bookkeeping rather than an ad hoc
// comparison.
func lowestAddr(devs []*gousb.Device) *gousb.Device {
	var addrs AddrList
	byAddr := make(map[Addr]*gousb.Device, len(devs))

	for _, d := range devs {
		a := Addr{Bus: d.Desc.Bus, Address: d.Desc.Address}
		addrs.Add(a)
		byAddr[a] = d
	}

	return byAddr[addrs[0]]
}

// findBulkPair walks a device's configuration descriptors looking for
// the first interface/alt-setting exposing a bulk IN+OUT endpoint pair,
// honoring ifaceHint if >= 0.
func findBulkPair(configs map[int]gousb.ConfigDesc, ifaceHint int) (candidate, bool) {
	for _, cfgDesc := range configs {
		for _, ifDesc := range cfgDesc.Interfaces {
			if ifaceHint >= 0 && ifDesc.Number != ifaceHint {
				continue
			}

			for _, alt := range ifDesc.AltSettings {
				c := candidate{cfgNum: cfgDesc.Number, ifNum: ifDesc.Number, alt: alt.Alternate, class: int(alt.Class)}
				haveIn, haveOut := false, false

				for _, ep := range alt.Endpoints {
					num := ep.Number
					in := ep.Direction == gousb.EndpointDirectionIn

					switch ep.TransferType {
					case gousb.TransferTypeBulk:
						if in {
							c.inAddr, haveIn = num, true
						} else {
							c.outAddr, haveOut = num, true
						}
					case gousb.TransferTypeInterrupt:
						if in {
							c.intrAddr, c.hasIntr = num, true
						}
					}
				}

				if haveIn && haveOut {
					return c, true
				}
			}
		}
	}

	return candidate{}, false
}

// Backend reports the wire protocol decided at Open time.
func (d *Device) Backend() Backend { return d.backend }

// Timeout returns the device's configured default I/O timeout.
func (d *Device) Timeout() time.Duration { return d.timeout }

// Info reports descriptive information about the opened device.
func (d *Device) Info() Info {
	mfg, _ := d.dev.Manufacturer()
	product, _ := d.dev.Product()

	return Info{
		VID: uint16(d.dev.Desc.Vendor), PID: uint16(d.dev.Desc.Product),
		Bus: d.dev.Desc.Bus, Addr: d.dev.Desc.Address,
		Backend: d.backend, IfNum: d.ifNum,
		InAddr: d.in.Desc.Number, OutAddr: d.out.Desc.Number,
		HasIntr: d.intr != nil, Product: product, Manufacturer: mfg,
	}
}

// Write performs one bulk-OUT transfer. A short write (fewer bytes
// written than len(data)) is reported as a protocol error.
func (d *Device) Write(data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	n, err := d.out.WriteContext(ctx, data)
	if err != nil {
		return rerr.New("usbio.Write", rerr.Timeout, err)
	}
	if n != len(data) {
		return rerr.New("usbio.Write", rerr.ProtocolShortFrame,
			fmt.Errorf("wrote %d of %d bytes", n, len(data)))
	}
	return nil
}

// Read performs one bounded bulk-IN transfer into buf, using the given
// timeout, and returns the number of bytes actually read. A timeout with
// zero bytes read is reported as rerr.Timeout.
func (d *Device) Read(buf []byte, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	n, err := d.in.ReadContext(ctx, buf)
	if err != nil && n == 0 {
		return 0, rerr.New("usbio.Read", rerr.Timeout, err)
	}
	return n, nil
}

// WaitInterrupt blocks up to timeout waiting for an interrupt-IN
// transfer. It reports ok=false (no error) on timeout or if the device
// has no interrupt-IN endpoint, matching the reference implementation's
// treatment of "no card event" as a non-error condition.
func (d *Device) WaitInterrupt(timeout time.Duration) (ok bool, err error) {
	if d.intr == nil {
		return false, nil
	}

	buf := make([]byte, 64)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	n, err := d.intr.ReadContext(ctx, buf)
	if err != nil {
		if ctx.Err() != nil {
			return false, nil
		}
		return false, rerr.New("usbio.WaitInterrupt", rerr.TransportInit, err)
	}
	return n > 0, nil
}

// Close releases the interface and closes the device and context, in
// reverse-acquisition order. It never fails at this level: any
// underlying teardown error is discarded, matching the facade's
// close()-never-fails contract.
func (d *Device) Close() {
	if d.intf != nil {
		d.intf.Close()
	}
	if d.cfg != nil {
		d.cfg.Close()
	}
	if d.dev != nil {
		d.dev.Close()
	}
	if d.ctx != nil {
		d.ctx.Close()
	}
}
