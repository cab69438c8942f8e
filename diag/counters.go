// File: diag/counters.go
// Package diag provides the observability surfaces of the engines.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Counters are always available and resettable. The per-function-code
// histogram has one slot per possible code; the status histogram follows
// the dense Slot mapping of the taxonomy.

package diag

import (
	"code.hybscloud.com/atomix"

	"github.com/momentics/hioload-modbus/api"
)

// Counters is the per-engine histogram pair.
type Counters struct {
	fc     [256]atomix.Uint64
	status [api.NumStatusSlots]atomix.Uint64
}

// CountFC increments the function-code slot.
func (c *Counters) CountFC(fc uint8) {
	c.fc[fc].AddAcqRel(1)
}

// CountStatus increments the status slot.
func (c *Counters) CountStatus(s api.Status) {
	c.status[s.Slot()].AddAcqRel(1)
}

// FC returns the count for one function code.
func (c *Counters) FC(fc uint8) uint64 { return c.fc[fc].LoadAcquire() }

// Status returns the count for one dense status slot.
func (c *Counters) Status(slot int) uint64 {
	if slot < 0 || slot >= api.NumStatusSlots {
		return 0
	}
	return c.status[slot].LoadAcquire()
}

// Reset zeroes both histograms.
func (c *Counters) Reset() {
	for i := range c.fc {
		c.fc[i].StoreRelease(0)
	}
	for i := range c.status {
		c.status[i].StoreRelease(0)
	}
}
