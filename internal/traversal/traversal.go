/* rik2drv - driver and markup stack for the ACR38/РИК-2 smart-card reader
 *
 * ISO 7816 traversal engine: readAll, markup, serial and ATR retrieval
 */

// Package traversal walks a layout.Layout against an open reader,
// issuing SELECT/READ BINARY/READ RECORD/UPDATE BINARY and create-APDU
// sequences in the order the component design requires, and persists
// dumped EFs to a mirrored directory tree.
package traversal

import (
	"os"
	"path/filepath"

	"github.com/anatolyk/rik2drv/internal/layout"
	"github.com/anatolyk/rik2drv/internal/logx"
	"github.com/anatolyk/rik2drv/internal/rerr"
)

// readTimeoutMs and writeTimeoutMs are the per-chunk timeouts used by
// the read and write APDU loops, respectively.
const (
	readTimeoutMs  = 2000
	writeTimeoutMs = 5000
)

// maxApduChunk is the largest Le/Lc a short-form APDU can carry.
const maxApduChunk = 0xFF

// Facade is the subset of the reader facade the traversal engine needs.
// internal/reader.Reader satisfies it.
type Facade interface {
	PowerOn() ([]byte, error)
	Transmit(capdu []byte, timeoutMs int) ([]byte, error)
}

// Traversal drives a Facade against a layout.Layout.
type Traversal struct {
	f   Facade
	log *logx.Logger
}

// New returns a Traversal over f. log may be nil (a nil *logx.Logger
// discards everything).
func New(f Facade, log *logx.Logger) *Traversal {
	return &Traversal{f: f, log: log}
}

// ATR powers up the card and returns its ATR.
func (t *Traversal) ATR() ([]byte, error) {
	return t.f.PowerOn()
}

// Serial retrieves the card's serial number via whichever form l.Serial
// declares.
func (t *Traversal) Serial(l *layout.Layout) ([]byte, error) {
	if l.Serial.APDU != nil {
		return t.f.Transmit(l.Serial.APDU, readTimeoutMs)
	}

	if err := t.selectByPath(l.Serial.EFPath); err != nil {
		return nil, err
	}

	switch l.Serial.EFType {
	case layout.LinearFixed:
		return t.readLinearFixed(l.Serial.Size, 1)
	default:
		return t.readTransparent(l.Serial.Size)
	}
}

// selectFid issues SELECT for a single FID, P2=0x0C (no FCI requested).
// SW is not inspected; only a transport-level failure is reported.
func (t *Traversal) selectFid(fid uint16) error {
	apdu := []byte{0x00, 0xA4, 0x00, 0x0C, 0x02, byte(fid >> 8), byte(fid)}
	_, err := t.f.Transmit(apdu, readTimeoutMs)
	return err
}

// selectByPath issues SELECT for every FID in path, in order, always
// starting from the master file — the engine never relies on the card's
// implicit current-DF state.
func (t *Traversal) selectByPath(path []uint16) error {
	for _, fid := range path {
		if err := t.selectFid(fid); err != nil {
			return err
		}
	}
	return nil
}

// readTransparent reads size bytes from the currently selected EF via
// READ BINARY, chunked at maxApduChunk bytes per exchange.
func (t *Traversal) readTransparent(size int) ([]byte, error) {
	out := make([]byte, 0, size)
	off := 0

	for remaining := size; remaining > 0; {
		chunk := remaining
		if chunk > maxApduChunk {
			chunk = maxApduChunk
		}

		apdu := []byte{0x00, 0xB0, byte(off >> 8), byte(off), byte(chunk)}
		data, err := t.f.Transmit(apdu, readTimeoutMs)
		if err != nil {
			return nil, err
		}

		out = append(out, data...)
		off += chunk
		remaining -= chunk
	}

	return out, nil
}

// readLinearFixed reads recordCount fixed-width records via READ
// RECORD, zero-padding a short record to recordSize bytes.
func (t *Traversal) readLinearFixed(recordSize, recordCount int) ([]byte, error) {
	out := make([]byte, 0, recordSize*recordCount)

	for rec := 1; rec <= recordCount; rec++ {
		apdu := []byte{0x00, 0xB2, byte(rec), 0x04, byte(recordSize)}
		data, err := t.f.Transmit(apdu, readTimeoutMs)
		if err != nil {
			return nil, err
		}

		padded := make([]byte, recordSize)
		copy(padded, data)
		out = append(out, padded...)
	}

	return out, nil
}

// writeTransparent writes data to the currently selected EF via UPDATE
// BINARY, chunked at maxApduChunk bytes per exchange.
func (t *Traversal) writeTransparent(data []byte) error {
	off := 0

	for remaining := len(data); remaining > 0; {
		chunk := remaining
		if chunk > maxApduChunk {
			chunk = maxApduChunk
		}

		apdu := make([]byte, 5+chunk)
		apdu[0], apdu[1] = 0x00, 0xD6
		apdu[2], apdu[3] = byte(off>>8), byte(off)
		apdu[4] = byte(chunk)
		copy(apdu[5:], data[off:off+chunk])

		if _, err := t.f.Transmit(apdu, writeTimeoutMs); err != nil {
			return err
		}

		off += chunk
		remaining -= chunk
	}

	return nil
}

// WriteEF selects path and writes data to it via UPDATE BINARY.
func (t *Traversal) WriteEF(path []uint16, data []byte) error {
	if err := t.selectByPath(path); err != nil {
		return err
	}
	return t.writeTransparent(data)
}

// appendFID returns a new path slice with fid appended, never sharing
// the backing array of path — callers recurse into siblings that must
// not observe each other's appended FID.
func appendFID(path []uint16, fid uint16) []uint16 {
	out := make([]uint16, len(path)+1)
	copy(out, path)
	out[len(path)] = fid
	return out
}

// ReadAll powers up the card, then walks the layout depth-first,
// reading every Transparent and LinearFixed node and persisting those
// with a non-empty SaveAs under outDir. Cyclic nodes are selected but
// not read; one with a SaveAs is persisted as an empty file. It returns
// the ATR obtained at power-on.
func (t *Traversal) ReadAll(l *layout.Layout, outDir string) ([]byte, error) {
	atr, err := t.ATR()
	if err != nil {
		return nil, err
	}

	path := []uint16{l.Root.FID}
	for _, child := range l.Root.Children {
		if err := t.traverseRead(child, path, outDir); err != nil {
			return atr, err
		}
	}

	return atr, nil
}

func (t *Traversal) traverseRead(n *layout.Node, path []uint16, outDir string) error {
	if n.Type == layout.DF {
		next := appendFID(path, n.FID)
		for _, child := range n.Children {
			if err := t.traverseRead(child, next, outDir); err != nil {
				return err
			}
		}
		return nil
	}

	sel := appendFID(path, n.FID)
	if err := t.selectByPath(sel); err != nil {
		return err
	}

	var data []byte
	var err error
	switch n.Type {
	case layout.Transparent:
		data, err = t.readTransparent(n.Size)
	case layout.LinearFixed:
		data, err = t.readLinearFixed(n.RecordSize, n.RecordCount)
	default:
		// Cyclic EFs are not read by this engine.
	}
	if err != nil {
		return err
	}

	if n.SaveAs != "" {
		if perr := t.persist(outDir, n.SaveAs, data); perr != nil {
			t.log.Error("writing %s: %s", n.SaveAs, perr)
		}
	}

	return nil
}

// persist writes data to <outDir>/<rel>, creating intermediate
// directories as needed.
func (t *Traversal) persist(outDir, rel string, data []byte) error {
	full := filepath.Join(outDir, filepath.FromSlash(rel))

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return rerr.New("traversal.persist", rerr.FileIO, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return rerr.New("traversal.persist", rerr.FileIO, err)
	}
	return nil
}

// Markup provisions the card's file system by walking the layout
// depth-first and executing each node's CreateApdus in the context of
// its parent DF. The root has no parent DF, so its own CreateApdus run
// first, before the root is selected. A failing APDU aborts the whole
// markup; no rollback is attempted.
func (t *Traversal) Markup(l *layout.Layout) error {
	for _, capdu := range l.Root.CreateApdus {
		if _, err := t.f.Transmit(capdu, writeTimeoutMs); err != nil {
			return err
		}
	}
	if err := t.selectFid(l.Root.FID); err != nil {
		return err
	}

	path := []uint16{l.Root.FID}
	for _, child := range l.Root.Children {
		if err := t.walkMarkup(child, path); err != nil {
			return err
		}
	}
	return nil
}

func (t *Traversal) walkMarkup(n *layout.Node, path []uint16) error {
	// Re-select the parent DF path, then run this node's own creation
	// APDUs in that context — a createApdus list may be present on any
	// node, DF included.
	if err := t.selectByPath(path); err != nil {
		return err
	}
	for _, capdu := range n.CreateApdus {
		if _, err := t.f.Transmit(capdu, writeTimeoutMs); err != nil {
			return err
		}
	}

	// Select the just-created node so creation of its children (or, for
	// a leaf, any further markup) proceeds in the right context.
	if err := t.selectFid(n.FID); err != nil {
		return err
	}

	if n.Type != layout.DF {
		return nil
	}

	next := appendFID(path, n.FID)
	for _, child := range n.Children {
		if err := t.walkMarkup(child, next); err != nil {
			return err
		}
	}
	return nil
}
