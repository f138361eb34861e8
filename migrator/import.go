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

package migrator

import (
	"go.uber.org/zap"

	"github.com/tgres-mds/migrator/cache"
	"github.com/tgres-mds/migrator/codec"
	"github.com/tgres-mds/migrator/ids"
	"github.com/tgres-mds/migrator/journal"
)

// handleExportDiscover creates the importer-side record the moment this
// side first observes the migration and pins the root inode while the
// path is resolved.
func (m *Migrator) handleExportDiscover(env Envelope) {
	if m.getImportRecord(env.Root) != nil {
		return
	}
	rec := newImportRecord(env.Root, env.Src)
	m.setImportRecord(rec)
	m.cache.ImportingPin(env.Root)

	root := env.Root
	m.cache.PathTraverse(root, func(dir *cache.Dir, err error) {
		m.post(func() { m.onImportDiscoverComplete(root, err) })
	})
}

// onImportDiscoverComplete either acks DISCOVER or treats an unresolved
// path as fatal. A production system might prefer to downgrade this to a
// negative ack instead of aborting the MDS, but this keeps parity with the
// reference behavior.
func (m *Migrator) onImportDiscoverComplete(root ids.InodeID, err error) {
	rec := m.getImportRecord(root)
	if rec == nil || rec.phase != ImportDiscovered {
		return
	}
	if err != nil {
		m.fatal(fatalf("import discover failed for %s: %w", root, err))
		return
	}
	m.send(rec.peer, MsgExportDiscoverAck, root, ackPayload{})
}

// handleExportPrep moves DISCOVERED -> PREPPING -> PREPPED: the spanning
// context is assembled, possibly suspending to open remote bound
// directories, then the subtree is frozen and PREP-ack sent.
func (m *Migrator) handleExportPrep(env Envelope) {
	rec := m.getImportRecord(env.Root)
	if rec == nil || rec.peer != env.Src || rec.phase != ImportDiscovered {
		m.log.Info("discard EXPORT-PREP: no matching import in DISCOVERED",
			zap.Stringer("root", env.Root))
		return
	}
	payload, ok := env.Body.(ExportPrepPayload)
	if !ok {
		m.log.Error("EXPORT-PREP: malformed body", zap.Stringer("root", env.Root))
		return
	}
	if known := m.cache.GetSubtreeBounds(env.Root); len(known) > 0 {
		if !m.cache.VerifySubtreeBounds(env.Root, payload.BoundInos) {
			m.log.Error("EXPORT-PREP: announced bounds do not match previously recorded bounds",
				zap.Stringer("root", env.Root))
			return
		}
	}
	rec.phase = ImportPrepping
	rec.boundInos = payload.BoundInos
	rec.bystanders = toSet(payload.Bystanders)

	if len(payload.BoundInos) == 0 {
		m.onImportSpanningContext(env.Root, nil, nil)
		return
	}

	root := env.Root
	resolved := make([]ids.InodeID, 0, len(payload.BoundInos))
	remaining := len(payload.BoundInos)
	for _, b := range payload.BoundInos {
		bound := b
		m.cache.OpenRemoteDir(bound, func(d *cache.Dir, err error) {
			m.post(func() {
				r := m.getImportRecord(root)
				if r == nil || r.phase != ImportPrepping {
					return
				}
				remaining--
				if err != nil {
					m.onImportSpanningContext(root, nil, err)
					return
				}
				resolved = append(resolved, bound)
				if remaining == 0 {
					m.onImportSpanningContext(root, resolved, nil)
				}
			})
		})
	}
}

// onImportSpanningContext completes PREPPING: the subtree is frozen,
// ambiguous authority (oldauth, self) is asserted, and PREP-ack is sent,
// moving to PREPPED.
func (m *Migrator) onImportSpanningContext(root ids.InodeID, resolvedBounds []ids.InodeID, err error) {
	rec := m.getImportRecord(root)
	if rec == nil || rec.phase != ImportPrepping {
		return
	}
	if err != nil {
		m.fatal(fatalf("import prep: failed to open remote bound directory for %s: %w", root, err))
		return
	}
	rec.bounds = resolvedBounds
	for _, b := range rec.bounds {
		m.cache.BoundPin(b)
	}

	m.cache.Freeze(root, func() {
		m.post(func() { m.onImportFreezeComplete(root) })
	})
}

func (m *Migrator) onImportFreezeComplete(root ids.InodeID) {
	rec := m.getImportRecord(root)
	if rec == nil || rec.phase != ImportPrepping {
		return
	}
	rec.phase = ImportPrepped
	m.cache.AdjustSubtreeAuth(root, rec.peer, m.self)
	m.send(rec.peer, MsgExportPrepAck, root, ackPayload{})
}

// handleExport moves PREPPED -> LOGGING_START: the bulk payload is decoded
// and integrated, then import-start is journaled.
func (m *Migrator) handleExport(env Envelope) {
	rec := m.getImportRecord(env.Root)
	if rec == nil || rec.peer != env.Src || rec.phase != ImportPrepped {
		m.log.Info("discard EXPORT: no matching import in PREPPED",
			zap.Stringer("root", env.Root))
		return
	}
	payload, ok := env.Body.(ExportPayload)
	if !ok {
		m.log.Error("EXPORT: malformed body", zap.Stringer("root", env.Root))
		return
	}

	existing := func(ino ids.InodeID) (*cache.Inode, bool) { return m.cache.GetInode(ino) }
	onReap := func(client ids.MDSID, ino ids.InodeID, oldauth ids.MDSID) {
		m.capability.NotifyReap(client, ino, oldauth)
	}
	decoded := codec.DecodeDir(payload.Encoded, rec.peer, m.self, existing, onReap)
	m.cache.InstallSubtree(env.Root, decoded)

	rec.phase = ImportLoggingStart
	root := env.Root
	m.journal.SubmitEntry(journal.Event{Kind: journal.EImportStart, Root: root, Bounds: rec.bounds, Peer: rec.peer}, func() {
		m.post(func() { m.onImportStartFlush(root) })
	})
}

// onImportStartFlush moves LOGGING_START -> ACKING: the journal is
// durable, so EXPORT-ACK is sent.
func (m *Migrator) onImportStartFlush(root ids.InodeID) {
	rec := m.getImportRecord(root)
	if rec == nil || rec.phase != ImportLoggingStart {
		return
	}
	rec.phase = ImportAcking
	m.send(rec.peer, MsgExportAck, root, ackPayload{})
}

// handleExportFinish reaches the terminal state via importFinish.
func (m *Migrator) handleExportFinish(env Envelope) {
	rec := m.getImportRecord(env.Root)
	if rec == nil || rec.peer != env.Src || rec.phase != ImportAcking {
		m.log.Info("discard EXPORT-FINISH: no matching import in ACKING",
			zap.Stringer("root", env.Root))
		return
	}
	root := env.Root
	peer := rec.peer
	bounds := rec.bounds
	m.journal.SubmitEntry(journal.Event{Kind: journal.EImportFinish, Root: root, Bounds: bounds, Peer: peer, Committed: true}, func() {
		m.post(func() { m.importFinish(root) })
	})
}

// importFinish commits the migration: authority becomes (self), the
// subtree unfreezes, pins release, and an empty result whose parent we are
// not authoritative for is immediately scheduled for re-export.
func (m *Migrator) importFinish(root ids.InodeID) {
	rec := m.dropImportRecord(root)
	if rec == nil {
		return
	}
	m.cache.AdjustSubtreeAuth(root, m.self)
	for _, b := range rec.bounds {
		m.cache.BoundUnpin(b)
	}
	m.cache.ImportingUnpin(root)
	m.cache.Unfreeze(root)
	m.cache.TrySubtreeMerge(root)
	m.balancer.AddImport(root)

	m.log.Info("import complete", zap.Stringer("root", root), zap.Stringer("peer", rec.peer))
	m.scheduleEmptyReExport(root)
}

// scheduleEmptyReExport handles the case where the just-imported
// directory is empty and we are not authoritative for its parent: hand it
// straight back to the parent's authority rather than hold an empty
// subtree no one asked for.
func (m *Migrator) scheduleEmptyReExport(root ids.InodeID) {
	dir, ok := m.cache.GetDir(root)
	if !ok || dir == nil || len(dir.Dentries) > 0 {
		return
	}
	parent, ok := m.cache.ParentOf(root)
	if !ok {
		return
	}
	parentAuth := m.cache.GetAuthority(parent)
	if parentAuth.Primary == m.self {
		return
	}
	m.log.Info("empty import, re-exporting to parent's authority",
		zap.Stringer("root", root), zap.Stringer("parent_auth", parentAuth.Primary))
	m.exportSubtree(root, parentAuth.Primary)
}

// reverseImport unwinds a pre-ack import after the exporter fails: every
// primary inode in the imported region has its auth bit and dirty state
// cleared (directories and dentries carry no such state here), stopping at
// bound directories, then import-finish(committed=false) is journaled.
func (m *Migrator) reverseImport(rec *importRecord) {
	if dir, ok := m.cache.GetDir(rec.root); ok {
		clearImportedRegion(dir, rec.bounds)
	}
	root := rec.root
	bounds := rec.bounds
	peer := rec.peer
	m.journal.SubmitEntry(journal.Event{Kind: journal.EImportFinish, Root: root, Bounds: bounds, Peer: peer, Committed: false}, func() {
		m.post(func() { m.onImportReverseLogged(root) })
	})
}

func clearImportedRegion(dir *cache.Dir, bounds []ids.InodeID) {
	if dir == nil {
		return
	}
	for _, d := range dir.Dentries {
		if d.Kind != cache.DentryPrimary || d.Inode == nil {
			continue
		}
		in := d.Inode
		in.Auth = false
		in.Dirty = false
		if in.Dir != nil {
			isBound := false
			for _, b := range bounds {
				if b == in.ID {
					isBound = true
					break
				}
			}
			if !isBound {
				clearImportedRegion(in.Dir, bounds)
			}
		}
	}
}

// onImportReverseLogged either finishes immediately (no bystanders) or
// notifies bystanders of the abort and waits in ABORTING.
func (m *Migrator) onImportReverseLogged(root ids.InodeID) {
	rec := m.getImportRecord(root)
	if rec == nil {
		return
	}
	if len(rec.bystanders) == 0 {
		m.finishAbortedImport(rec)
		return
	}
	rec.phase = ImportAborting
	rec.abortAcksPending = make(map[ids.MDSID]bool, len(rec.bystanders))
	for b := range rec.bystanders {
		rec.abortAcksPending[b] = true
		m.send(b, MsgExportNotify, root, ExportNotifyPayload{
			Was:    cache.Ambiguous(rec.peer, m.self),
			Will:   cache.Single(rec.peer),
			Bounds: rec.bounds,
		})
	}
}

func (m *Migrator) finishAbortedImport(rec *importRecord) {
	for _, b := range rec.bounds {
		m.cache.BoundUnpin(b)
	}
	m.cache.ImportingUnpin(rec.root)
	m.cache.Unfreeze(rec.root)
	m.cache.DiscardDelayedExpire(rec.root)
	m.dropImportRecord(rec.root)
	m.log.Info("import aborted", zap.Stringer("root", rec.root), zap.Stringer("peer", rec.peer))
}
