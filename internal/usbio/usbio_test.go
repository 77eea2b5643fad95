package usbio

import (
	"testing"

	"github.com/google/gousb"
)

func ccidConfigs() map[int]gousb.ConfigDesc {
	return map[int]gousb.ConfigDesc{
		1: {
			Number: 1,
			Interfaces: []gousb.InterfaceDesc{
				{
					Number: 0,
					AltSettings: []gousb.InterfaceSetting{
						{
							Number:    0,
							Alternate: 0,
							Class:     ccidClass,
							Endpoints: map[gousb.EndpointAddress]gousb.EndpointDesc{
								0x81: {Address: 0x81, Number: 1, Direction: gousb.EndpointDirectionIn, TransferType: gousb.TransferTypeBulk},
								0x01: {Address: 0x01, Number: 1, Direction: gousb.EndpointDirectionOut, TransferType: gousb.TransferTypeBulk},
								0x82: {Address: 0x82, Number: 2, Direction: gousb.EndpointDirectionIn, TransferType: gousb.TransferTypeInterrupt},
							},
						},
					},
				},
			},
		},
	}
}

func vendorConfigsNoBulkOnAltZero() map[int]gousb.ConfigDesc {
	return map[int]gousb.ConfigDesc{
		1: {
			Number: 1,
			Interfaces: []gousb.InterfaceDesc{
				{
					Number: 0,
					AltSettings: []gousb.InterfaceSetting{
						{Number: 0, Alternate: 0, Class: 0xFF}, // no endpoints at all
						{
							Number: 0, Alternate: 1, Class: 0xFF,
							Endpoints: map[gousb.EndpointAddress]gousb.EndpointDesc{
								0x83: {Address: 0x83, Number: 3, Direction: gousb.EndpointDirectionIn, TransferType: gousb.TransferTypeBulk},
								0x03: {Address: 0x03, Number: 3, Direction: gousb.EndpointDirectionOut, TransferType: gousb.TransferTypeBulk},
							},
						},
					},
				},
			},
		},
	}
}

func TestFindBulkPairCcid(t *testing.T) {
	cand, ok := findBulkPair(ccidConfigs(), -1)
	if !ok {
		t.Fatal("expected a bulk pair to be found")
	}
	if cand.class != ccidClass {
		t.Errorf("class = %#x, want %#x", cand.class, ccidClass)
	}
	if cand.inAddr != 1 || cand.outAddr != 1 {
		t.Errorf("inAddr/outAddr = %d/%d, want 1/1 (endpoint numbers, not addresses)", cand.inAddr, cand.outAddr)
	}
	if !cand.hasIntr {
		t.Errorf("expected interrupt endpoint to be recorded")
	}
}

func TestFindBulkPairPicksNonZeroAltSetting(t *testing.T) {
	cand, ok := findBulkPair(vendorConfigsNoBulkOnAltZero(), -1)
	if !ok {
		t.Fatal("expected a bulk pair to be found on alt setting 1")
	}
	if cand.alt != 1 {
		t.Errorf("alt = %d, want 1", cand.alt)
	}
	if cand.class == ccidClass {
		t.Errorf("class should not be classified as CCID")
	}
}

func TestFindBulkPairHonorsInterfaceHint(t *testing.T) {
	configs := ccidConfigs()
	if _, ok := findBulkPair(configs, 5); ok {
		t.Errorf("expected no match when interface hint doesn't exist")
	}
	if _, ok := findBulkPair(configs, 0); !ok {
		t.Errorf("expected a match when interface hint matches the only interface")
	}
}
