// Copyright (c) 2024, The Popnet Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pop

import (
	"fmt"
	"sync"
)

// Registry owns the process-wide counters behind global cell identifier
// allocation and default labels.  Populations created through the same
// registry receive disjoint, contiguous identifier blocks in creation
// order.  The zero value is ready to use.
//
// Lifecycle: a registry is typically created once per process (StdRegistry
// covers the common case) and lives for the whole run.  Reset returns the
// counters to zero and is intended for test isolation only: populations
// created before and after a Reset may share identifiers.
type Registry struct {
	mu      sync.Mutex
	nextGID int
	nPops   int
	nAsms   int
}

// StdRegistry is the default process-wide registry.
var StdRegistry = &Registry{}

// AllocIDs reserves a contiguous identifier block of the given size and
// returns its first and last identifiers.  A zero size reserves nothing
// and returns an empty range (first > last).
func (rg *Registry) AllocIDs(size int) (first, last int) {
	rg.mu.Lock()
	defer rg.mu.Unlock()
	first = rg.nextGID
	rg.nextGID += size
	last = rg.nextGID - 1
	return
}

// PopLabel returns the next auto-generated population label.
func (rg *Registry) PopLabel() string {
	rg.mu.Lock()
	defer rg.mu.Unlock()
	lbl := fmt.Sprintf("population%d", rg.nPops)
	rg.nPops++
	return lbl
}

// AsmLabel returns the next auto-generated assembly label.
func (rg *Registry) AsmLabel() string {
	rg.mu.Lock()
	defer rg.mu.Unlock()
	lbl := fmt.Sprintf("assembly%d", rg.nAsms)
	rg.nAsms++
	return lbl
}

// Reset returns all counters to zero.  See the type comment for when this
// is safe.
func (rg *Registry) Reset() {
	rg.mu.Lock()
	defer rg.mu.Unlock()
	rg.nextGID = 0
	rg.nPops = 0
	rg.nAsms = 0
}
