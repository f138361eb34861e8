// Copyright 2016 Gregory Trubetskoy. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package balancer provides a minimal migrator.Balancer: it tracks the
// subtree counts moved off and onto each MDS so that an external rebalance
// decision, which this package deliberately does not make, has something
// to read. The Migrator decides to move a subtree; this package just keeps
// the score.
package balancer

import (
	"sync"

	"github.com/tgres-mds/migrator/ids"
)

// Counters is a reference Balancer that counts exports subtracted and
// imports added per MDS, without making any placement decisions of its
// own.
type Counters struct {
	self ids.MDSID

	mu       sync.Mutex
	exported map[ids.InodeID]struct{}
	imported map[ids.InodeID]struct{}
}

// New returns a Counters scoped to self, the local MDS id.
func New(self ids.MDSID) *Counters {
	return &Counters{
		self:     self,
		exported: map[ids.InodeID]struct{}{},
		imported: map[ids.InodeID]struct{}{},
	}
}

// SubtractExport implements migrator.Balancer: record that root's load has
// left this MDS.
func (c *Counters) SubtractExport(root ids.InodeID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exported[root] = struct{}{}
}

// AddImport implements migrator.Balancer: record that root's load has
// landed on this MDS.
func (c *Counters) AddImport(root ids.InodeID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.imported[root] = struct{}{}
}

// Exported returns the count of subtrees this MDS has exported away.
func (c *Counters) Exported() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.exported)
}

// Imported returns the count of subtrees this MDS has taken on.
func (c *Counters) Imported() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.imported)
}

// Net returns Imported minus Exported, a rough load delta a future
// rebalancer could use as input.
func (c *Counters) Net() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.imported) - len(c.exported)
}
