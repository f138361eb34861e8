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

import "github.com/tgres-mds/migrator/ids"

// TraceElem is one link of the inode-trace from a bound directory back up
// to the subtree root, used to reconstitute spanning context on the
// importer before bulk data arrives.
type TraceElem struct {
	DirIno   ids.InodeID
	DentName string
}

// Cache is the narrow contract the Migrator consumes from the metadata
// cache. This interface is the seam the Migrator is written against, with
// MemCache below as a reference implementation used by tests and local
// wiring.
type Cache interface {
	// Pinning.
	PathPin(root ids.InodeID)
	PathUnpin(root ids.InodeID)
	BoundPin(ino ids.InodeID)
	BoundUnpin(ino ids.InodeID)
	ImportingPin(root ids.InodeID)
	ImportingUnpin(root ids.InodeID)
	AuthPin(root ids.InodeID)
	AuthUnpin(root ids.InodeID)

	// Authority and subtree bookkeeping.
	AdjustSubtreeAuth(root ids.InodeID, a ids.MDSID, b ...ids.MDSID)
	GetAuthority(root ids.InodeID) Authority
	TrySubtreeMerge(root ids.InodeID)
	VerifySubtreeBounds(root ids.InodeID, bounds []ids.InodeID) bool
	GetSubtreeBounds(root ids.InodeID) []ids.InodeID
	AddAmbiguousImport(root ids.InodeID, bounds []ids.InodeID)

	// Lookup.
	GetDir(ino ids.InodeID) (*Dir, bool)
	GetInode(ino ids.InodeID) (*Inode, bool)
	IsRoot(ino ids.InodeID) bool
	IsHashed(ino ids.InodeID) bool
	MakeTrace(root ids.InodeID) []TraceElem
	ParentOf(ino ids.InodeID) (ids.InodeID, bool)

	// InstallSubtree links a decoded directory tree into the cache
	// under root's inode id, for the importer to adopt a just-decoded
	// bulk payload.
	InstallSubtree(root ids.InodeID, dir *Dir)

	// Async suspension points: each takes a continuation and returns
	// immediately; the continuation is invoked once the operation
	// settles, carrying an error for discover/open failures.
	PathTraverse(root ids.InodeID, onFinish func(*Dir, error))
	OpenRemoteDir(ino ids.InodeID, onFinish func(*Dir, error))
	Freeze(root ids.InodeID, onComplete func())
	CancelFreeze(root ids.InodeID)
	Unfreeze(root ids.InodeID)

	// Bystander gossip / delayed work cleanup.
	ProcessDelayedExpire(root ids.InodeID)
	DiscardDelayedExpire(root ids.InodeID)
	SendPendingImportMaps()
}
