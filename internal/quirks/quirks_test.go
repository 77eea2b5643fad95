package quirks

import "testing"

func TestParse(t *testing.T) {
	p := Parse("072F:9000")
	if p == nil {
		t.Fatal("Parse failed")
	}
	if w := p.Match(0x072F, 0x9000); w != 1000 {
		t.Errorf("exact match weight = %d, want 1000", w)
	}
	if w := p.Match(0x072F, 0x1234); w != -1 {
		t.Errorf("mismatched PID weight = %d, want -1", w)
	}
}

func TestParseWildcard(t *testing.T) {
	p := Parse("072F:*")
	if p == nil {
		t.Fatal("Parse failed")
	}
	if w := p.Match(0x072F, 0xBEEF); w != 1 {
		t.Errorf("wildcard match weight = %d, want 1", w)
	}
	if w := p.Match(0x0001, 0xBEEF); w != -1 {
		t.Errorf("non-matching VID weight = %d, want -1", w)
	}
}

func TestParseInvalid(t *testing.T) {
	for _, s := range []string{"", "072F", "072F:", "GGGG:0000", "072F-0000"} {
		if Parse(s) != nil {
			t.Errorf("Parse(%q) should fail", s)
		}
	}
}

func TestSetApplyMostSpecificWins(t *testing.T) {
	detachFalse := false
	s := Set{
		{Pattern: Parse("072F:*"), TimeoutMs: 3000},
		{Pattern: Parse("072F:9000"), TimeoutMs: 9000, DetachKernelDriver: &detachFalse},
	}

	timeout, detach := s.Apply(0x072F, 0x9000, 2000, true)
	if timeout != 9000 {
		t.Errorf("timeout = %d, want 9000 (most specific match)", timeout)
	}
	if detach {
		t.Errorf("detach = true, want false (most specific match)")
	}

	timeout, detach = s.Apply(0x072F, 0x1111, 2000, true)
	if timeout != 3000 {
		t.Errorf("timeout = %d, want 3000 (wildcard match)", timeout)
	}
	if !detach {
		t.Errorf("detach = false, want true (unset by wildcard quirk)")
	}
}

func TestSetApplyNoMatchKeepsDefaults(t *testing.T) {
	s := Set{{Pattern: Parse("0001:0001"), TimeoutMs: 1}}
	timeout, detach := s.Apply(0x072F, 0x9000, 2000, true)
	if timeout != 2000 || !detach {
		t.Errorf("Apply() with no match = (%d, %v), want (2000, true)", timeout, detach)
	}
}
