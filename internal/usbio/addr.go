/* rik2drv - driver and markup stack for the ACR38/РИК-2 smart-card reader
 *
 * USB bus/device address bookkeeping
 */

package usbio

import (
	"fmt"
	"sort"
)

// Addr identifies a USB device by bus and device address.
type Addr struct {
	Bus     int
	Address int
}

// String returns a human-readable representation of Addr.
func (a Addr) String() string {
	return fmt.Sprintf("Bus %.3d Device %.3d", a.Bus, a.Address)
}

// Less reports whether a sorts before a2.
func (a Addr) Less(a2 Addr) bool {
	return a.Bus < a2.Bus || (a.Bus == a2.Bus && a.Address < a2.Address)
}

// AddrList is a list of Addr, always kept sorted in ascending order by
// the (*AddrList).Add method.
type AddrList []Addr

// Add inserts addr into the list, keeping it sorted; a duplicate is a
// no-op.
func (list *AddrList) Add(addr Addr) {
	i := sort.Search(len(*list), func(n int) bool {
		return !(*list)[n].Less(addr)
	})

	if i < len(*list) && (*list)[i] == addr {
		return
	}

	if i == len(*list) {
		*list = append(*list, addr)
		return
	}

	*list = append(*list, Addr{})
	copy((*list)[i+1:], (*list)[i:])
	(*list)[i] = addr
}

