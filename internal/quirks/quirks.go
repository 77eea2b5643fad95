/* rik2drv - driver and markup stack for the ACR38/РИК-2 smart-card reader
 *
 * Device-specific quirks, matched by VID/PID
 */

// Package quirks lets a specific reader (matched by VID:PID or VID:*)
// override the default I/O timeout and kernel-driver-detach policy.
package quirks

import "strconv"

// Pattern matches USB devices by vendor and, optionally, product ID.
type Pattern struct {
	vid, pid uint16
	anyPID   bool
}

// Parse parses pattern in "VVVV:DDDD" or "VVVV:*" form (four hex digits
// per field). It returns nil if pattern doesn't match that syntax.
func Parse(pattern string) *Pattern {
	if len(pattern) != 6 && len(pattern) != 9 {
		return nil
	}
	if pattern[4] != ':' {
		return nil
	}

	vid, err := strconv.ParseUint(pattern[:4], 16, 16)
	if err != nil {
		return nil
	}

	strPID := pattern[5:]
	if strPID == "*" {
		return &Pattern{vid: uint16(vid), anyPID: true}
	}

	pid, err := strconv.ParseUint(strPID, 16, 16)
	if err != nil {
		return nil
	}

	return &Pattern{vid: uint16(vid), pid: uint16(pid)}
}

// Match reports the matching weight for (vid, pid): -1 if no match, 1 for
// a VID-only wildcard match, 1000 for an exact VID+PID match. Higher
// weight wins when more than one quirk's pattern matches.
func (p *Pattern) Match(vid, pid uint16) int {
	switch {
	case vid != p.vid:
		return -1
	case p.anyPID:
		return 1
	case pid != p.pid:
		return -1
	default:
		return 1000
	}
}

// Quirk overrides the default timeout and/or detach-kernel-driver policy
// for readers matched by Pattern.
type Quirk struct {
	Pattern            *Pattern
	TimeoutMs          int  // 0 = no override
	DetachKernelDriver *bool // nil = no override
}

// Set is an ordered collection of Quirks, most specific match wins.
type Set []Quirk

// Apply returns the effective timeout and detach-kernel-driver setting
// for (vid, pid), starting from (defaultTimeoutMs, defaultDetach) and
// overlaying the highest-weight matching Quirk in the set, if any.
func (s Set) Apply(vid, pid uint16, defaultTimeoutMs int, defaultDetach bool) (timeoutMs int, detach bool) {
	timeoutMs, detach = defaultTimeoutMs, defaultDetach

	bestWeight := -1
	var best *Quirk

	for i := range s {
		w := s[i].Pattern.Match(vid, pid)
		if w > bestWeight {
			bestWeight = w
			best = &s[i]
		}
	}

	if best == nil {
		return
	}

	if best.TimeoutMs > 0 {
		timeoutMs = best.TimeoutMs
	}
	if best.DetachKernelDriver != nil {
		detach = *best.DetachKernelDriver
	}

	return
}
