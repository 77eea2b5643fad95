/* rik2drv - driver and markup stack for the ACR38/РИК-2 smart-card reader
 *
 * Layout document model: DF/EF tree, validation, JSON loading
 */

// Package layout holds the in-memory card file-system description the
// traversal engine walks, together with its JSON decoder and the
// structural validation the component design requires to run before any
// USB traffic is attempted.
package layout

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/anatolyk/rik2drv/internal/hexutil"
	"github.com/anatolyk/rik2drv/internal/rerr"
)

// EfType distinguishes a directory node from the three leaf EF shapes.
type EfType int

// EfType values.
const (
	DF EfType = iota
	Transparent
	LinearFixed
	Cyclic
)

func (t EfType) String() string {
	switch t {
	case DF:
		return "df"
	case Transparent:
		return "transparent"
	case LinearFixed:
		return "linear-fixed"
	case Cyclic:
		return "cyclic"
	}
	return "unknown"
}

// Node is one entry in the layout tree.
type Node struct {
	Name        string
	FID         uint16
	Type        EfType
	Size        int      // Transparent only
	RecordSize  int      // LinearFixed only
	RecordCount int      // LinearFixed only
	SaveAs      string   // empty = do not persist
	CreateApdus [][]byte // executed in order during markup
	Children    []*Node  // DF only
}

// SerialSpec describes how to retrieve the card's serial number: either
// by a single APDU, or by reading an EF at a given path.
type SerialSpec struct {
	APDU   []byte   // non-nil selects the APDU form
	EFPath []uint16 // non-empty selects the EF form
	EFType EfType   // Transparent or LinearFixed
	Size   int
}

// Layout is the root of a parsed card description.
type Layout struct {
	Schema      string
	CardName    string
	AtrExpected []byte // nil if not specified
	Serial      SerialSpec
	Root        *Node
}

// --- JSON wire shapes -------------------------------------------------

type rawNode struct {
	Name        string    `json:"name"`
	FID         string    `json:"fid"`
	Type        string    `json:"type"`
	Size        int       `json:"size"`
	RecordSize  int       `json:"recordSize"`
	RecordCount int       `json:"recordCount"`
	SaveAs      string    `json:"saveAs"`
	CreateApdus []string  `json:"createApdus"`
	Children    []rawNode `json:"children"`
}

type rawSerial struct {
	APDU   string   `json:"apdu"`
	EFPath []string `json:"efPath"`
	Type   string   `json:"type"`
	Size   int      `json:"size"`
}

type rawCard struct {
	Name        string    `json:"name"`
	AtrExpected string    `json:"atrExpected"`
	Serial      rawSerial `json:"serial"`
}

type rawLayout struct {
	Schema string  `json:"schema"`
	Card   rawCard `json:"card"`
	Root   rawNode `json:"root"`
}

// ParseFile reads and parses path as a layout document.
func ParseFile(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, rerr.New("layout.ParseFile", rerr.FileIO, err)
	}
	return Parse(data)
}

// Parse decodes and validates data as a layout document, returning
// rerr.LayoutInvalid before any USB traffic could occur if it violates
// one of the structural invariants.
func Parse(data []byte) (*Layout, error) {
	var raw rawLayout
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, rerr.New("layout.Parse", rerr.LayoutInvalid, err)
	}

	l := &Layout{Schema: raw.Schema, CardName: raw.Card.Name}
	if l.CardName == "" {
		l.CardName = "РИК-2"
	}

	if raw.Card.AtrExpected != "" {
		atr, err := hexutil.Decode(raw.Card.AtrExpected)
		if err != nil {
			return nil, rerr.New("layout.Parse", rerr.LayoutInvalid, err)
		}
		l.AtrExpected = atr
	}

	serial, err := convertSerial(raw.Card.Serial)
	if err != nil {
		return nil, err
	}
	l.Serial = serial

	root, err := convertNode(raw.Root)
	if err != nil {
		return nil, err
	}
	if root.Type != DF {
		return nil, rerr.New("layout.Parse", rerr.LayoutInvalid,
			fmt.Errorf("root node must be a DF (directory)"))
	}
	l.Root = root

	return l, nil
}

func convertSerial(raw rawSerial) (SerialSpec, error) {
	if raw.APDU != "" {
		b, err := hexutil.Decode(raw.APDU)
		if err != nil {
			return SerialSpec{}, rerr.New("layout.convertSerial", rerr.LayoutInvalid, err)
		}
		return SerialSpec{APDU: b}, nil
	}

	if len(raw.EFPath) > 0 {
		path := make([]uint16, 0, len(raw.EFPath))
		for _, h := range raw.EFPath {
			fid, err := hexutil.ParseFID(h)
			if err != nil {
				return SerialSpec{}, rerr.New("layout.convertSerial", rerr.LayoutInvalid, err)
			}
			path = append(path, fid)
		}

		efType := Transparent
		if raw.Type == "linear-fixed" {
			efType = LinearFixed
		}

		return SerialSpec{EFPath: path, EFType: efType, Size: raw.Size}, nil
	}

	return SerialSpec{}, rerr.New("layout.convertSerial", rerr.LayoutInvalid,
		fmt.Errorf("card.serial must specify either \"apdu\" or \"efPath\""))
}

func parseType(s string) (EfType, bool) {
	switch s {
	case "df":
		return DF, true
	case "transparent":
		return Transparent, true
	case "linear-fixed":
		return LinearFixed, true
	case "cyclic":
		return Cyclic, true
	}
	return 0, false
}

func convertNode(raw rawNode) (*Node, error) {
	name := raw.Name
	if name == "" {
		name = "?"
	}

	fid, err := hexutil.ParseFID(raw.FID)
	if err != nil {
		return nil, rerr.New("layout.convertNode", rerr.LayoutInvalid, err)
	}

	typ, ok := parseType(raw.Type)
	if !ok {
		return nil, rerr.New("layout.convertNode", rerr.LayoutInvalid,
			fmt.Errorf("%q: unknown node type", raw.Type))
	}

	node := &Node{Name: name, FID: fid, Type: typ, SaveAs: raw.SaveAs}

	switch typ {
	case DF:
		if raw.Size != 0 || raw.RecordSize != 0 || raw.RecordCount != 0 {
			return nil, rerr.New("layout.convertNode", rerr.LayoutInvalid,
				fmt.Errorf("%q: a DF node may not have 'size', 'recordSize' or 'recordCount'", name))
		}
	case Transparent:
		if raw.Size <= 0 {
			return nil, rerr.New("layout.convertNode", rerr.LayoutInvalid,
				fmt.Errorf("transparent EF requires a positive 'size'"))
		}
		node.Size = raw.Size
	case LinearFixed:
		if raw.RecordSize <= 0 || raw.RecordCount <= 0 {
			return nil, rerr.New("layout.convertNode", rerr.LayoutInvalid,
				fmt.Errorf("linear-fixed EF requires positive 'recordSize' and 'recordCount'"))
		}
		node.RecordSize = raw.RecordSize
		node.RecordCount = raw.RecordCount
	}

	for _, h := range raw.CreateApdus {
		b, err := hexutil.Decode(h)
		if err != nil {
			return nil, rerr.New("layout.convertNode", rerr.LayoutInvalid, err)
		}
		node.CreateApdus = append(node.CreateApdus, b)
	}

	if typ == DF {
		for _, rc := range raw.Children {
			child, err := convertNode(rc)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, child)
		}
	} else if len(raw.Children) > 0 {
		return nil, rerr.New("layout.convertNode", rerr.LayoutInvalid,
			fmt.Errorf("%q: only a DF node may have children", name))
	}

	return node, nil
}
