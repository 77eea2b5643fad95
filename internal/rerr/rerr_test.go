package rerr

import (
	"errors"
	"testing"
)

func TestIsMatchesKind(t *testing.T) {
	err := New("reader.powerOn", Timeout, errors.New("deadline exceeded"))

	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected errors.Is(err, ErrTimeout) to be true")
	}
	if errors.Is(err, ErrNotOpen) {
		t.Errorf("expected errors.Is(err, ErrNotOpen) to be false")
	}
	if !Is(err, Timeout) {
		t.Errorf("expected Is(err, Timeout) to be true")
	}
}

func TestOf(t *testing.T) {
	err := New("usbio.open", DeviceNotFound, nil)

	kind, ok := Of(err)
	if !ok || kind != DeviceNotFound {
		t.Errorf("Of() = (%v, %v), want (DeviceNotFound, true)", kind, ok)
	}

	_, ok = Of(errors.New("plain error"))
	if ok {
		t.Errorf("Of() on a plain error should report ok=false")
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	cause := errors.New("short write")
	err := New("ccid.send", ProtocolShortFrame, cause)

	got := err.Error()
	want := "ccid.send: ProtocolShortFrame: short write"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := New("x", Timeout, cause)

	if errors.Unwrap(err) != cause {
		t.Errorf("Unwrap() did not return the wrapped cause")
	}
}
