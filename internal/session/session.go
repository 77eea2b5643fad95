/* rik2drv - driver and markup stack for the ACR38/РИК-2 smart-card reader
 *
 * Host-side session: load a reader plugin, open/close it, enforce the
 * one-reader-at-a-time state machine
 */

// Package session is the host side of the plugin boundary defined by
// internal/readerapi. It loads a reader library, creates and opens a
// Reader from it, and enforces that a new open always closes whatever
// was open before. A panic inside the plugin is recovered and reported
// as an error return rather than propagated, mirroring the
// exceptions-never-cross-the-boundary discipline of the reference
// session.
package session

import (
	"fmt"
	"sync"

	"github.com/anatolyk/rik2drv/internal/readerapi"
	"github.com/anatolyk/rik2drv/internal/rerr"
)

// State is the session's lifecycle stage.
type State int

// State values.
const (
	Unloaded State = iota
	Loaded
	Open
)

// library is the subset of *readerapi.Library a Session needs. It
// exists so tests can substitute a fake in place of a real loaded
// plugin.
type library interface {
	NewReader() readerapi.Reader
	Release(r readerapi.Reader)
}

// Session owns at most one loaded library and at most one open reader.
type Session struct {
	mu    sync.Mutex
	lib   library
	r     readerapi.Reader
	state State
}

// New returns an unloaded Session.
func New() *Session {
	return &Session{}
}

// State reports the session's current lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Load loads the reader plugin at path. If a library is already loaded,
// it is closed and unloaded first.
func (s *Session) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeLocked()
	s.lib = nil
	s.state = Unloaded

	lib, err := readerapi.Load(path)
	if err != nil {
		return err
	}
	s.lib = lib
	s.state = Loaded
	return nil
}

// Open creates a Reader from the loaded library and opens it with p. If
// a reader is already open, it is closed first — a new open always
// supersedes the last.
func (s *Session) Open(p readerapi.OpenParams) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lib == nil {
		return rerr.New("session.Open", rerr.NotOpen, fmt.Errorf("no reader library loaded"))
	}

	s.closeLocked()

	defer func() {
		if rec := recover(); rec != nil {
			err = rerr.New("session.Open", rerr.TransportInit,
				fmt.Errorf("reader plugin panicked: %v", rec))
		}
	}()

	r := s.lib.NewReader()
	if err := r.Open(p); err != nil {
		s.lib.Release(r)
		return err
	}
	s.r = r
	s.state = Open
	return nil
}

// Close closes and releases the current reader, if any. It is always
// safe to call, including when nothing is open.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Session) closeLocked() {
	if s.r == nil {
		return
	}

	func() {
		defer func() { recover() }()
		s.r.Close()
	}()

	if s.lib != nil {
		func() {
			defer func() { recover() }()
			s.lib.Release(s.r)
		}()
	}

	s.r = nil
	if s.state == Open {
		s.state = Loaded
	}
}

// Unload closes the current reader, if any, and drops the library
// reference. Go's plugin package cannot actually unmap a loaded
// library; this only releases the Session's references to it.
func (s *Session) Unload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	s.lib = nil
	s.state = Unloaded
}

func (s *Session) guard(op string) error {
	if s.state != Open || s.r == nil {
		return rerr.New(op, rerr.NotOpen, fmt.Errorf("no reader open"))
	}
	return nil
}

// Info reports static information about the open reader.
func (s *Session) Info() (info readerapi.Info, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err = s.guard("session.Info"); err != nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = rerr.New("session.Info", rerr.TransportInit, fmt.Errorf("%v", rec))
		}
	}()
	info = s.r.Info()
	return
}

// CardStatus reports the current card presence.
func (s *Session) CardStatus() (p readerapi.Presence, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err = s.guard("session.CardStatus"); err != nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = rerr.New("session.CardStatus", rerr.TransportInit, fmt.Errorf("%v", rec))
		}
	}()
	return s.r.CardStatus()
}

// PowerOn powers up the card and returns its ATR.
func (s *Session) PowerOn() (atr []byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err = s.guard("session.PowerOn"); err != nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = rerr.New("session.PowerOn", rerr.TransportInit, fmt.Errorf("%v", rec))
		}
	}()
	return s.r.PowerOn()
}

// PowerOff powers the card down.
func (s *Session) PowerOff() (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err = s.guard("session.PowerOff"); err != nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = rerr.New("session.PowerOff", rerr.TransportInit, fmt.Errorf("%v", rec))
		}
	}()
	return s.r.PowerOff()
}

// Transmit exchanges one C-APDU with the card.
func (s *Session) Transmit(capdu []byte, timeoutMs int) (rapdu []byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err = s.guard("session.Transmit"); err != nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = rerr.New("session.Transmit", rerr.TransportInit, fmt.Errorf("%v", rec))
		}
	}()
	return s.r.Transmit(capdu, timeoutMs)
}

// WaitCardEvent blocks up to timeoutMs waiting for a card-presence
// interrupt.
func (s *Session) WaitCardEvent(timeoutMs int) (ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err = s.guard("session.WaitCardEvent"); err != nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = rerr.New("session.WaitCardEvent", rerr.TransportInit, fmt.Errorf("%v", rec))
		}
	}()
	return s.r.WaitCardEvent(timeoutMs)
}

// VendorControl forwards a vendor-specific control payload.
func (s *Session) VendorControl(payload []byte) (resp []byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err = s.guard("session.VendorControl"); err != nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = rerr.New("session.VendorControl", rerr.TransportInit, fmt.Errorf("%v", rec))
		}
	}()
	return s.r.VendorControl(payload)
}
