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
	"github.com/tgres-mds/migrator/ids"
	"github.com/tgres-mds/migrator/locks"
)

// Cap is a client capability issued against an inode: the right for a
// client to cache/buffer reads or writes locally until revoked.
type Cap struct {
	ClientID ids.MDSID // client ids share the MDS id space in this model
	Issued   uint32
}

// DentryKind tags the three shapes a dentry can take in the bulk
// encoding: a null dentry, a remote link (inode id only, the inode's
// primary copy lives elsewhere), or a primary inode embedded in full.
type DentryKind int

const (
	DentryNull DentryKind = iota
	DentryLink
	DentryPrimary
)

// Dentry is one named entry of a Dir.
type Dentry struct {
	Name         string
	ReplicaNonce locks.ReplicaNonce
	Kind         DentryKind
	LinkIno      ids.InodeID // valid when Kind == DentryLink
	Inode        *Inode      // valid when Kind == DentryPrimary
}

// Inode is the in-memory representation of one file or directory's
// metadata, including the per-inode lock and capability state the codec
// carries across the wire during a migration.
type Inode struct {
	ID ids.InodeID

	Auth     bool
	HardLock locks.LockState
	FileLock locks.LockState

	// Replicas maps an MDS holding a cached copy to the nonce of that
	// copy, so stale references are detectable.
	Replicas map[ids.MDSID]locks.ReplicaNonce

	CachedBy map[ids.MDSID]bool
	Dirty    bool

	Caps map[ids.MDSID]Cap

	// Dir is non-nil when this inode backs a directory; a leaf file
	// inode has Dir == nil.
	Dir *Dir
}

func NewInode(id ids.InodeID) *Inode {
	return &Inode{
		ID:       id,
		HardLock: locks.LockSync,
		FileLock: locks.LockSync,
		Replicas: make(map[ids.MDSID]locks.ReplicaNonce),
		CachedBy: make(map[ids.MDSID]bool),
		Caps:     make(map[ids.MDSID]Cap),
	}
}

// Dir is a directory fragment: its dentries plus freeze/pin state used
// while it sits at or inside a subtree boundary.
type Dir struct {
	ID       ids.InodeID
	Dentries []*Dentry

	freezing bool
	frozen   bool
	authPins int
}

func NewDir(id ids.InodeID) *Dir {
	return &Dir{ID: id}
}

func (d *Dir) IsFreezing() bool { return d.freezing }
func (d *Dir) IsFrozen() bool   { return d.frozen }
