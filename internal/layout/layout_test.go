package layout

import (
	"errors"
	"testing"

	"github.com/anatolyk/rik2drv/internal/rerr"
)

const validDoc = `{
	"schema": "rik2/v1",
	"card": {
		"name": "РИК-2",
		"atrExpected": "3B BE 11 00",
		"serial": {"efPath": ["3F00", "0011"], "type": "transparent", "size": 8}
	},
	"root": {
		"name": "MF",
		"fid": "3F00",
		"type": "df",
		"children": [
			{
				"name": "EF.Data",
				"fid": "0011",
				"type": "transparent",
				"size": 600,
				"saveAs": "ef_data.bin"
			},
			{
				"name": "EF.Log",
				"fid": "0012",
				"type": "linear-fixed",
				"recordSize": 16,
				"recordCount": 3
			}
		]
	}
}`

func TestParseValidDocument(t *testing.T) {
	l, err := Parse([]byte(validDoc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if l.Root.FID != 0x3F00 {
		t.Errorf("root FID = %#x, want 0x3f00", l.Root.FID)
	}
	if len(l.Root.Children) != 2 {
		t.Fatalf("root has %d children, want 2", len(l.Root.Children))
	}
	if l.Root.Children[0].Size != 600 {
		t.Errorf("EF.Data size = %d, want 600", l.Root.Children[0].Size)
	}
	if l.Root.Children[1].RecordSize != 16 || l.Root.Children[1].RecordCount != 3 {
		t.Errorf("EF.Log record shape = %d/%d, want 16/3",
			l.Root.Children[1].RecordSize, l.Root.Children[1].RecordCount)
	}
	if len(l.Serial.EFPath) != 2 || l.Serial.EFPath[1] != 0x0011 {
		t.Errorf("serial efPath = %v", l.Serial.EFPath)
	}
}

func TestParseRootMustBeDF(t *testing.T) {
	doc := `{"card":{"serial":{"apdu":"00CA9F7F00"}},
		"root":{"fid":"3F00","type":"transparent","size":1}}`

	_, err := Parse([]byte(doc))
	if !errors.Is(err, rerr.ErrLayoutInvalid) {
		t.Fatalf("expected LayoutInvalid, got %v", err)
	}
}

func TestParseTransparentRequiresPositiveSize(t *testing.T) {
	doc := `{"card":{"serial":{"apdu":"00"}},
		"root":{"fid":"3F00","type":"df","children":[
			{"fid":"0011","type":"transparent"}
		]}}`

	_, err := Parse([]byte(doc))
	if !errors.Is(err, rerr.ErrLayoutInvalid) {
		t.Fatalf("expected LayoutInvalid for missing size, got %v", err)
	}
}

func TestParseLinearFixedRequiresPositiveFields(t *testing.T) {
	doc := `{"card":{"serial":{"apdu":"00"}},
		"root":{"fid":"3F00","type":"df","children":[
			{"fid":"0011","type":"linear-fixed","recordSize":0,"recordCount":3}
		]}}`

	_, err := Parse([]byte(doc))
	if !errors.Is(err, rerr.ErrLayoutInvalid) {
		t.Fatalf("expected LayoutInvalid for zero recordSize, got %v", err)
	}
}

func TestParseNonDFCannotHaveChildren(t *testing.T) {
	doc := `{"card":{"serial":{"apdu":"00"}},
		"root":{"fid":"3F00","type":"df","children":[
			{"fid":"0011","type":"transparent","size":1,"children":[
				{"fid":"0012","type":"transparent","size":1}
			]}
		]}}`

	_, err := Parse([]byte(doc))
	if !errors.Is(err, rerr.ErrLayoutInvalid) {
		t.Fatalf("expected LayoutInvalid for children on a non-DF node, got %v", err)
	}
}

func TestParseSerialRequiresOneForm(t *testing.T) {
	doc := `{"root":{"fid":"3F00","type":"df"}}`
	_, err := Parse([]byte(doc))
	if !errors.Is(err, rerr.ErrLayoutInvalid) {
		t.Fatalf("expected LayoutInvalid when neither serial form is given, got %v", err)
	}
}

func TestParseCreateApdusDecoded(t *testing.T) {
	doc := `{"card":{"serial":{"apdu":"00"}},
		"root":{"fid":"3F00","type":"df","createApdus":["00 E0 00 00 02 3F 00"]}}`

	l, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(l.Root.CreateApdus) != 1 || len(l.Root.CreateApdus[0]) != 7 {
		t.Fatalf("createApdus = %v", l.Root.CreateApdus)
	}
}
