package readerapi

import (
	"fmt"
	"plugin"

	"github.com/anatolyk/rik2drv/internal/rerr"
)

// Library is a reader plugin loaded from disk, with its three entry
// points resolved and type-asserted.
type Library struct {
	path    string
	create  func() Reader
	destroy func(Reader)
	version func() string
}

// Load opens the plugin at path and resolves its three well-known
// symbols. It fails if any symbol is missing or has the wrong type,
// rather than deferring that discovery to first use.
func Load(path string) (*Library, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, rerr.New("readerapi.Load", rerr.TransportInit, err)
	}

	createSym, err := p.Lookup(SymbolCreateReader)
	if err != nil {
		return nil, rerr.New("readerapi.Load", rerr.TransportInit, err)
	}
	create, ok := createSym.(func() Reader)
	if !ok {
		return nil, rerr.New("readerapi.Load", rerr.TransportInit,
			fmt.Errorf("%s: wrong type for symbol %s", path, SymbolCreateReader))
	}

	destroySym, err := p.Lookup(SymbolDestroyReader)
	if err != nil {
		return nil, rerr.New("readerapi.Load", rerr.TransportInit, err)
	}
	destroy, ok := destroySym.(func(Reader))
	if !ok {
		return nil, rerr.New("readerapi.Load", rerr.TransportInit,
			fmt.Errorf("%s: wrong type for symbol %s", path, SymbolDestroyReader))
	}

	versionSym, err := p.Lookup(SymbolReaderLibraryVersion)
	if err != nil {
		return nil, rerr.New("readerapi.Load", rerr.TransportInit, err)
	}
	version, ok := versionSym.(func() string)
	if !ok {
		return nil, rerr.New("readerapi.Load", rerr.TransportInit,
			fmt.Errorf("%s: wrong type for symbol %s", path, SymbolReaderLibraryVersion))
	}

	return &Library{path: path, create: create, destroy: destroy, version: version}, nil
}

// Version reports the loaded library's version string.
func (l *Library) Version() string {
	return l.version()
}

// NewReader creates a fresh, unopened Reader from the library.
func (l *Library) NewReader() Reader {
	return l.create()
}

// Release destroys a Reader previously obtained from NewReader. The
// caller must have closed it first.
func (l *Library) Release(r Reader) {
	l.destroy(r)
}

// Path returns the filesystem path the library was loaded from.
func (l *Library) Path() string {
	return l.path
}
