package reader

import (
	"testing"

	"github.com/anatolyk/rik2drv/internal/acs"
	"github.com/anatolyk/rik2drv/internal/ccid"
)

func TestOpenRejectsT1(t *testing.T) {
	_, err := Open(Selector{VID: 0x072F, PID: 0x9000, Proto: T1})
	if err == nil {
		t.Fatal("expected Open to reject IsoProtocol T1")
	}
}

func TestVendorControlIsAlwaysEmpty(t *testing.T) {
	r := &Reader{}
	data, err := r.VendorControl([]byte{0x01, 0x02})
	if data != nil || err != nil {
		t.Errorf("VendorControl() = (%v, %v), want (nil, nil)", data, err)
	}
}

func TestPresenceFromCCID(t *testing.T) {
	cases := map[ccid.Presence]Presence{
		ccid.PresentActive:   PresentActive,
		ccid.PresentInactive: PresentInactive,
		ccid.NotPresent:      NotPresent,
		ccid.Unknown:         Unknown,
	}
	for in, want := range cases {
		if got := presenceFromCCID(in); got != want {
			t.Errorf("presenceFromCCID(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestPresenceFromACS(t *testing.T) {
	cases := map[acs.Presence]Presence{
		acs.PresentActive:   PresentActive,
		acs.PresentInactive: PresentInactive,
		acs.NotPresent:      NotPresent,
		acs.Unknown:         Unknown,
	}
	for in, want := range cases {
		if got := presenceFromACS(in); got != want {
			t.Errorf("presenceFromACS(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestPresenceString(t *testing.T) {
	if PresentActive.String() != "present-active" {
		t.Errorf("String() = %q", PresentActive.String())
	}
	if Unknown.String() != "unknown" {
		t.Errorf("String() = %q", Unknown.String())
	}
}
