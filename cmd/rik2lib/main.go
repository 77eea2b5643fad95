/* rik2drv - driver and markup stack for the ACR38/РИК-2 smart-card reader
 *
 * Reader plugin: -buildmode=plugin target implementing the readerapi contract
 */

// Command rik2lib builds as a Go plugin (-buildmode=plugin) exposing
// the three symbols internal/readerapi.Load looks up: CreateReader,
// DestroyReader, ReaderLibraryVersion. It is the Go analogue of the
// reference driver's exports.cpp — a thin adapter from the shared
// readerapi.Reader contract onto internal/reader.Reader.
package main

import (
	"github.com/anatolyk/rik2drv/internal/reader"
	"github.com/anatolyk/rik2drv/internal/readerapi"
)

// libraryVersion is bumped whenever the readerapi.Reader contract this
// plugin implements changes in an observable way.
const libraryVersion = "1.0.0"

// pluginReader adapts internal/reader.Reader to readerapi.Reader. It
// exists because internal/reader.Open is a package function returning a
// *Reader, while readerapi.Reader.Open is an instance method on an
// already-constructed, not-yet-open value.
type pluginReader struct {
	r *reader.Reader
}

func (p *pluginReader) Open(params readerapi.OpenParams) error {
	r, err := reader.Open(reader.Selector{
		VID:                params.VID,
		PID:                params.PID,
		Iface:              params.Iface,
		DetachKernelDriver: params.DetachKernelDriver,
		TimeoutMs:          params.TimeoutMs,
		Proto:              protoIn(params.Proto),
	})
	if err != nil {
		return err
	}
	p.r = r
	return nil
}

func protoIn(p readerapi.IsoProtocol) reader.IsoProtocol {
	switch p {
	case readerapi.T0:
		return reader.T0
	case readerapi.T1:
		return reader.T1
	}
	return reader.Auto
}

func (p *pluginReader) Close() {
	if p.r != nil {
		p.r.Close()
		p.r = nil
	}
}

func (p *pluginReader) Info() readerapi.Info {
	i := p.r.Info()
	return readerapi.Info{
		VID: i.VID, PID: i.PID, Backend: i.Backend,
		InAddr: i.InAddr, OutAddr: i.OutAddr, HasIntr: i.HasIntr,
		Product: i.Product, Manufacturer: i.Manufacturer,
	}
}

func (p *pluginReader) CardStatus() (readerapi.Presence, error) {
	pr, err := p.r.CardStatus()
	if err != nil {
		return readerapi.Unknown, err
	}
	return presenceOut(pr), nil
}

func (p *pluginReader) PowerOn() ([]byte, error) {
	return p.r.PowerOn()
}

func (p *pluginReader) PowerOff() error {
	return p.r.PowerOff()
}

func (p *pluginReader) Transmit(capdu []byte, timeoutMs int) ([]byte, error) {
	return p.r.Transmit(capdu, timeoutMs)
}

func (p *pluginReader) WaitCardEvent(timeoutMs int) (bool, error) {
	return p.r.WaitCardEvent(timeoutMs)
}

func (p *pluginReader) VendorControl(payload []byte) ([]byte, error) {
	return p.r.VendorControl(payload)
}

func presenceOut(p reader.Presence) readerapi.Presence {
	switch p {
	case reader.PresentActive:
		return readerapi.PresentActive
	case reader.PresentInactive:
		return readerapi.PresentInactive
	case reader.NotPresent:
		return readerapi.NotPresent
	}
	return readerapi.Unknown
}

// CreateReader is looked up by symbol name via plugin.Lookup.
func CreateReader() readerapi.Reader {
	return &pluginReader{}
}

// DestroyReader is looked up by symbol name via plugin.Lookup.
func DestroyReader(r readerapi.Reader) {
	r.Close()
}

// ReaderLibraryVersion is looked up by symbol name via plugin.Lookup.
func ReaderLibraryVersion() string {
	return libraryVersion
}

func main() {}
