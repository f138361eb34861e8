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

package cache

import (
	"sync"

	"github.com/tgres-mds/migrator/ids"
)

// MemCache is an in-memory reference implementation of Cache. It has no
// concurrent auth-pinned operations of its own to drain, so Freeze
// completes on the next tick of the caller's event loop rather than after a
// real quiescence wait; callers that need to exercise genuine suspension
// should wrap MemCache or substitute a fake that defers completion.
type MemCache struct {
	mu sync.Mutex

	dirs        map[ids.InodeID]*Dir
	inodes      map[ids.InodeID]*Inode
	authorities map[ids.InodeID]Authority
	hashed      map[ids.InodeID]bool
	root        ids.InodeID

	pathPins      map[ids.InodeID]int
	boundPins     map[ids.InodeID]int
	importingPins map[ids.InodeID]int
	authPins      map[ids.InodeID]int

	bounds           map[ids.InodeID][]ids.InodeID
	ambiguousImports map[ids.InodeID][]ids.InodeID
	delayedExpire    map[ids.InodeID]bool
	parents          map[ids.InodeID]ids.InodeID

	// post, if set, is used to invoke continuations so they land back
	// on the caller's single-threaded loop instead of running inline
	// on whatever goroutine triggered them.
	post func(func())
}

// NewMemCache builds an empty cache whose filesystem root is rootIno.
func NewMemCache(rootIno ids.InodeID, post func(func())) *MemCache {
	if post == nil {
		post = func(f func()) { f() }
	}
	return &MemCache{
		dirs:             make(map[ids.InodeID]*Dir),
		inodes:           make(map[ids.InodeID]*Inode),
		authorities:      make(map[ids.InodeID]Authority),
		hashed:           make(map[ids.InodeID]bool),
		root:             rootIno,
		pathPins:         make(map[ids.InodeID]int),
		boundPins:        make(map[ids.InodeID]int),
		importingPins:    make(map[ids.InodeID]int),
		authPins:         make(map[ids.InodeID]int),
		bounds:           make(map[ids.InodeID][]ids.InodeID),
		ambiguousImports: make(map[ids.InodeID][]ids.InodeID),
		delayedExpire:    make(map[ids.InodeID]bool),
		parents:          make(map[ids.InodeID]ids.InodeID),
		post:             post,
	}
}

// PutDir seeds the cache with a directory, for tests and local wiring.
func (c *MemCache) PutDir(d *Dir) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirs[d.ID] = d
}

// SetParent records ino's parent directory inode, for ParentOf and the
// empty-re-export check: whether the resulting directory is empty and we
// are not authoritative for its parent inode.
func (c *MemCache) SetParent(ino, parent ids.InodeID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.parents[ino] = parent
}

func (c *MemCache) ParentOf(ino ids.InodeID) (ids.InodeID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.parents[ino]
	return p, ok
}

// InstallSubtree stores a decoded directory tree (and everything nested
// beneath it) into the cache, recursing through primary dentries exactly
// as DecodeDir built them.
func (c *MemCache) InstallSubtree(root ids.InodeID, dir *Dir) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.installLocked(dir)
}

func (c *MemCache) installLocked(dir *Dir) {
	if dir == nil {
		return
	}
	c.dirs[dir.ID] = dir
	for _, d := range dir.Dentries {
		if d.Kind != DentryPrimary || d.Inode == nil {
			continue
		}
		c.inodes[d.Inode.ID] = d.Inode
		if d.Inode.Dir != nil {
			c.parents[d.Inode.Dir.ID] = dir.ID
			c.installLocked(d.Inode.Dir)
		}
	}
}

// PutInode seeds the cache with an inode.
func (c *MemCache) PutInode(i *Inode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inodes[i.ID] = i
}

// SetHashed marks ino as an already-hashed directory: migration of a hashed
// directory must be rejected at ExportSubtree.
func (c *MemCache) SetHashed(ino ids.InodeID, hashed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hashed[ino] = hashed
}

func (c *MemCache) SetBounds(root ids.InodeID, bounds []ids.InodeID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bounds[root] = append([]ids.InodeID(nil), bounds...)
}

func (c *MemCache) PathPin(root ids.InodeID)   { c.incr(&c.pathPins, root) }
func (c *MemCache) PathUnpin(root ids.InodeID) { c.decr(&c.pathPins, root) }

func (c *MemCache) BoundPin(ino ids.InodeID)   { c.incr(&c.boundPins, ino) }
func (c *MemCache) BoundUnpin(ino ids.InodeID) { c.decr(&c.boundPins, ino) }

func (c *MemCache) ImportingPin(root ids.InodeID)   { c.incr(&c.importingPins, root) }
func (c *MemCache) ImportingUnpin(root ids.InodeID) { c.decr(&c.importingPins, root) }

func (c *MemCache) AuthPin(root ids.InodeID)   { c.incr(&c.authPins, root) }
func (c *MemCache) AuthUnpin(root ids.InodeID) { c.decr(&c.authPins, root) }

func (c *MemCache) incr(m *map[ids.InodeID]int, ino ids.InodeID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	(*m)[ino]++
}

func (c *MemCache) decr(m *map[ids.InodeID]int, ino ids.InodeID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if (*m)[ino] > 0 {
		(*m)[ino]--
	}
	if (*m)[ino] == 0 {
		delete(*m, ino)
	}
}

// PinCounts returns a snapshot of all pin counters for a given inode,
// used by invariant checks in tests.
func (c *MemCache) PinCounts(ino ids.InodeID) (path, bound, importing, auth int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pathPins[ino], c.boundPins[ino], c.importingPins[ino], c.authPins[ino]
}

func (c *MemCache) AdjustSubtreeAuth(root ids.InodeID, a ids.MDSID, b ...ids.MDSID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	auth := Single(a)
	if len(b) > 0 {
		auth = Ambiguous(a, b[0])
	}
	c.authorities[root] = auth
}

func (c *MemCache) GetAuthority(root ids.InodeID) Authority {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authorities[root]
}

func (c *MemCache) TrySubtreeMerge(root ids.InodeID) {
	// A real cache would check whether root's authority now matches an
	// adjacent sibling's and splice the two subtree records together.
	// MemCache has no sibling bookkeeping to merge, so this is a no-op
	// that callers can still safely invoke unconditionally.
}

func (c *MemCache) VerifySubtreeBounds(root ids.InodeID, bounds []ids.InodeID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	want := c.bounds[root]
	if len(want) != len(bounds) {
		return false
	}
	seen := make(map[ids.InodeID]bool, len(want))
	for _, w := range want {
		seen[w] = true
	}
	for _, b := range bounds {
		if !seen[b] {
			return false
		}
	}
	return true
}

func (c *MemCache) GetSubtreeBounds(root ids.InodeID) []ids.InodeID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ids.InodeID(nil), c.bounds[root]...)
}

func (c *MemCache) AddAmbiguousImport(root ids.InodeID, bounds []ids.InodeID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ambiguousImports[root] = append([]ids.InodeID(nil), bounds...)
	c.bounds[root] = append([]ids.InodeID(nil), bounds...)
}

// AmbiguousImports exposes the registry for tests.
func (c *MemCache) AmbiguousImports() map[ids.InodeID][]ids.InodeID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[ids.InodeID][]ids.InodeID, len(c.ambiguousImports))
	for k, v := range c.ambiguousImports {
		out[k] = v
	}
	return out
}

func (c *MemCache) GetDir(ino ids.InodeID) (*Dir, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.dirs[ino]
	return d, ok
}

func (c *MemCache) GetInode(ino ids.InodeID) (*Inode, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.inodes[ino]
	return i, ok
}

func (c *MemCache) IsRoot(ino ids.InodeID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ino == c.root
}

func (c *MemCache) IsHashed(ino ids.InodeID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hashed[ino]
}

func (c *MemCache) MakeTrace(root ids.InodeID) []TraceElem {
	// A real cache walks parent pointers from root to the filesystem
	// root. MemCache does not walk its parent records here and always
	// returns an empty trace.
	return nil
}

func (c *MemCache) PathTraverse(root ids.InodeID, onFinish func(*Dir, error)) {
	d, ok := c.GetDir(root)
	c.post(func() {
		if !ok {
			onFinish(nil, errNotFound(root))
			return
		}
		onFinish(d, nil)
	})
}

func (c *MemCache) OpenRemoteDir(ino ids.InodeID, onFinish func(*Dir, error)) {
	d, ok := c.GetDir(ino)
	c.post(func() {
		if !ok {
			onFinish(nil, errNotFound(ino))
			return
		}
		onFinish(d, nil)
	})
}

func (c *MemCache) Freeze(root ids.InodeID, onComplete func()) {
	d, ok := c.GetDir(root)
	if ok {
		c.mu.Lock()
		d.freezing = true
		c.mu.Unlock()
	}
	c.post(func() {
		if d != nil {
			c.mu.Lock()
			d.freezing, d.frozen = false, true
			c.mu.Unlock()
		}
		onComplete()
	})
}

func (c *MemCache) CancelFreeze(root ids.InodeID) {
	if d, ok := c.GetDir(root); ok {
		c.mu.Lock()
		d.freezing, d.frozen = false, false
		c.mu.Unlock()
	}
}

func (c *MemCache) Unfreeze(root ids.InodeID) {
	if d, ok := c.GetDir(root); ok {
		c.mu.Lock()
		d.freezing, d.frozen = false, false
		c.mu.Unlock()
	}
}

func (c *MemCache) ProcessDelayedExpire(root ids.InodeID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.delayedExpire, root)
}

func (c *MemCache) DiscardDelayedExpire(root ids.InodeID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.delayedExpire, root)
}

func (c *MemCache) SendPendingImportMaps() {
	// No gossip transport is wired to MemCache, so this is a no-op.
}

type notFoundError struct{ ino ids.InodeID }

func (e *notFoundError) Error() string { return "cache: no such inode: " + e.ino.String() }

func errNotFound(ino ids.InodeID) error { return &notFoundError{ino} }
