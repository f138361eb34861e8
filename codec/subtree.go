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

package codec

import (
	"github.com/tgres-mds/migrator/cache"
	"github.com/tgres-mds/migrator/ids"
	"github.com/tgres-mds/migrator/locks"
)

// EncodedCap mirrors cache.Cap on the wire.
type EncodedCap struct {
	ClientID ids.MDSID
	Issued   uint32
}

// EncodedInode is the wire form of a primary inode embedded in a bulk
// payload: its lock state after the export transition, and the client caps
// the importer must reap.
type EncodedInode struct {
	ID       ids.InodeID
	HardLock locks.LockState
	FileLock locks.LockState
	Nonce    locks.ReplicaNonce
	Caps     []EncodedCap
}

// EncodedDentry is one of the three payload markers: Null, Link (remote
// link, inode id only), or Primary (full inode encoding, optionally
// followed by its own directory contents if it is itself a non-bound
// directory within the subtree).
type EncodedDentry struct {
	Name         string
	ReplicaNonce locks.ReplicaNonce
	Kind         cache.DentryKind
	LinkIno      ids.InodeID    // valid when Kind == DentryLink
	Inode        *EncodedInode  // valid when Kind == DentryPrimary
	SubDir       *EncodedDir    // non-nil when the primary inode is an unbound directory
}

// EncodedDir is the encoded header-plus-dentries of one directory not
// crossing a subtree bound.
type EncodedDir struct {
	ID       ids.InodeID
	Dentries []*EncodedDentry
}

// DirLookup resolves an inode id to the Dir it backs. EncodeDir accepts
// one but does not call it: it recurses into unbound child directories
// through each primary inode's Dir field.
type DirLookup func(ids.InodeID) (*cache.Dir, bool)

// StaleNotifier is called once per client capability found on an exported
// inode, so the client can be told to reissue against the new authority.
type StaleNotifier func(client ids.MDSID, ino ids.InodeID)

func isBound(ino ids.InodeID, bounds []ids.InodeID) bool {
	for _, b := range bounds {
		if b == ino {
			return true
		}
	}
	return false
}

// EncodeDir walks dir and everything beneath it that doesn't cross a
// bound, applying the exporter's lock transitions and cap-staling to every
// primary inode it encodes.
func EncodeDir(dir *cache.Dir, bounds []ids.InodeID, lookup DirLookup, onStale StaleNotifier) *EncodedDir {
	out := &EncodedDir{ID: dir.ID}
	for _, d := range dir.Dentries {
		ed := &EncodedDentry{Name: d.Name, ReplicaNonce: d.ReplicaNonce, Kind: d.Kind}
		switch d.Kind {
		case cache.DentryNull:
			// nothing further
		case cache.DentryLink:
			ed.LinkIno = d.LinkIno
		case cache.DentryPrimary:
			ed.Inode = exportInode(d.Inode, onStale)
			if d.Inode.Dir != nil && !isBound(d.Inode.ID, bounds) {
				ed.SubDir = EncodeDir(d.Inode.Dir, bounds, lookup, onStale)
			}
		}
		out.Dentries = append(out.Dentries, ed)
	}
	return out
}

// exportInode applies the exporter's lock transition on export and embeds
// the inode's client caps for the importer to reap, then clears the
// exporter-local auth/dirty/cached-by state that doesn't travel.
func exportInode(in *cache.Inode, onStale StaleNotifier) *EncodedInode {
	out := &EncodedInode{
		ID:       in.ID,
		HardLock: locks.ExportHardLock(in.HardLock),
		FileLock: locks.ExportFileLock(in.FileLock),
		Nonce:    locks.ExportNonce,
	}
	for client, cp := range in.Caps {
		out.Caps = append(out.Caps, EncodedCap{ClientID: cp.ClientID, Issued: cp.Issued})
		if onStale != nil {
			onStale(client, in.ID)
		}
	}
	// Exporter-local state cleared by the transition: it no longer
	// authors this inode, its cache entry is no longer dirty, and its
	// cached-by set is meaningless once authority moves.
	in.Auth = false
	in.Dirty = false
	for k := range in.CachedBy {
		delete(in.CachedBy, k)
	}
	in.HardLock = out.HardLock
	in.FileLock = out.FileLock
	return out
}

// ReapNotifier is called once per client capability found in a decoded
// inode, naming oldauth as the prior issuer.
type ReapNotifier func(client ids.MDSID, ino ids.InodeID, oldauth ids.MDSID)

// DecodeDir is the strict inverse of EncodeDir. existing looks up an
// already-cached inode by id so decode can update it in place instead of
// replacing it; it may return (nil, false) for inodes the importer has
// never seen before, in which case DecodeDir constructs a fresh one.
func DecodeDir(ed *EncodedDir, oldauth, self ids.MDSID, existing func(ids.InodeID) (*cache.Inode, bool), onReap ReapNotifier) *cache.Dir {
	dir := cache.NewDir(ed.ID)
	for _, ed := range ed.Dentries {
		d := &cache.Dentry{Name: ed.Name, ReplicaNonce: ed.ReplicaNonce, Kind: ed.Kind}
		switch ed.Kind {
		case cache.DentryNull:
		case cache.DentryLink:
			d.LinkIno = ed.LinkIno
		case cache.DentryPrimary:
			in, ok := existing(ed.Inode.ID)
			if !ok || in == nil {
				in = cache.NewInode(ed.Inode.ID)
			}
			importInode(in, ed.Inode, oldauth, self, onReap)
			if ed.SubDir != nil {
				in.Dir = DecodeDir(ed.SubDir, oldauth, self, existing, onReap)
			}
			d.Inode = in
		}
		dir.Dentries = append(dir.Dentries, d)
	}
	return dir
}

// importInode applies the decode-side inode update: authority flips to
// self, oldauth joins the replica set at the export nonce, self is removed
// from the replica set, any gather state left over from the encoded
// (already-settled) lock is re-evaluated, and every embedded cap triggers a
// reap notification.
func importInode(in *cache.Inode, ei *EncodedInode, oldauth, self ids.MDSID, onReap ReapNotifier) {
	in.Auth = true
	if in.Replicas == nil {
		in.Replicas = make(map[ids.MDSID]locks.ReplicaNonce)
	}
	in.Replicas[oldauth] = ei.Nonce
	delete(in.Replicas, self)

	// ExportFileLock never emits a gathering state, but ExportHardLock
	// passes every gather state other than gather-read through unchanged;
	// any gathering state that arrives here settles to LOCK.
	in.HardLock = settleGather(ei.HardLock)
	in.FileLock = settleGather(ei.FileLock)

	for _, c := range ei.Caps {
		if in.Caps == nil {
			in.Caps = make(map[ids.MDSID]cache.Cap)
		}
		in.Caps[c.ClientID] = cache.Cap{ClientID: c.ClientID, Issued: c.Issued}
		if onReap != nil {
			onReap(c.ClientID, in.ID, oldauth)
		}
	}
}

func settleGather(s locks.LockState) locks.LockState {
	if s.IsGathering() {
		return locks.LockLock
	}
	return s
}
