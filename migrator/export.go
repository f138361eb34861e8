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

// ExportSubtree is the Migrator's sole local entry point: the load
// balancer calls it to begin migrating root to dest. Violations of the
// entry preconditions are silent no-ops; the balancer is expected to
// retry.
func (m *Migrator) ExportSubtree(root ids.InodeID, dest ids.MDSID) {
	m.post(func() { m.exportSubtree(root, dest) })
}

func (m *Migrator) exportSubtree(root ids.InodeID, dest ids.MDSID) {
	if dest == m.self {
		return
	}
	if m.getExportRecord(root) != nil {
		// Already exporting: a concurrent export attempt on an
		// already-frozen subtree is a silent no-op.
		return
	}
	if m.membership.IsDegraded() {
		return
	}
	if m.cache.IsHashed(root) {
		return
	}
	if m.cache.IsRoot(root) {
		return
	}
	auth := m.cache.GetAuthority(root)
	if auth.Primary != m.self || auth.IsAmbiguous() {
		return
	}
	dir, ok := m.cache.GetDir(root)
	if !ok {
		return
	}
	if dir.IsFreezing() || dir.IsFrozen() {
		return
	}

	m.cache.PathPin(root)
	m.cache.AuthPin(root)
	m.balancer.SubtractExport(root)

	rec := newExportRecord(root, dest)
	m.setExportRecord(rec)

	m.log.Info("export_subtree: discovering",
		zap.Stringer("root", root), zap.Stringer("dest", dest))
	m.send(dest, MsgExportDiscover, root, ackPayload{})
}

// handleExportDiscoverAck moves DISCOVERING -> FREEZING: the peer accepted
// the request, so the auth-pin that prevented a premature freeze is
// released and freezing of the subtree begins.
func (m *Migrator) handleExportDiscoverAck(env Envelope) {
	rec := m.getExportRecord(env.Root)
	if rec == nil || rec.peer != env.Src || rec.phase != ExportDiscovering {
		m.log.Info("discard EXPORT-DISCOVER-ACK: no matching export in DISCOVERING",
			zap.Stringer("root", env.Root))
		return
	}
	rec.phase = ExportFreezing
	m.cache.AuthUnpin(rec.root)

	root := rec.root
	m.cache.Freeze(root, func() {
		m.post(func() { m.onExportFreezeComplete(root) })
	})
}

// onExportFreezeComplete moves FREEZING -> PREPPING: bounds are pinned and
// the PREP message is assembled and sent.
func (m *Migrator) onExportFreezeComplete(root ids.InodeID) {
	rec := m.getExportRecord(root)
	if rec == nil || rec.phase != ExportFreezing {
		// The failure handler already cleaned this up.
		return
	}
	rec.phase = ExportPrepping

	bounds := m.cache.GetSubtreeBounds(root)
	rec.bounds = bounds
	for _, b := range bounds {
		m.cache.BoundPin(b)
	}

	dir, ok := m.cache.GetDir(root)
	if !ok {
		m.log.Error("onExportFreezeComplete: root directory vanished",
			zap.Stringer("root", root))
		return
	}

	lookup := func(ino ids.InodeID) (*cache.Dir, bool) { return m.cache.GetDir(ino) }
	onStale := func(client ids.MDSID, ino ids.InodeID) { m.capability.NotifyStale(client, ino) }
	rootDiscover := codec.EncodeDir(dir, bounds, lookup, onStale)

	trace := m.cache.MakeTrace(root)
	var spanning []*codec.EncodedDir
	for _, b := range bounds {
		if bd, ok := m.cache.GetDir(b); ok {
			spanning = append(spanning, codec.EncodeDir(bd, bounds, lookup, onStale))
		}
	}

	bystanders := m.activeBystanders(root, rec.peer)

	m.send(rec.peer, MsgExportPrep, root, ExportPrepPayload{
		RootDiscover: rootDiscover,
		BoundInos:    bounds,
		Trace:        trace,
		SpanningDirs: spanning,
		Bystanders:   bystanders,
	})
}

// activeBystanders returns every MDS other than dest and self that holds a
// replica of an inode directly under root and is currently active or
// stopping. The root directory itself carries no replica set in this cache
// model, so deeper inodes and the directory's own replicas are not consulted.
func (m *Migrator) activeBystanders(root ids.InodeID, dest ids.MDSID) []ids.MDSID {
	dir, ok := m.cache.GetDir(root)
	if !ok || dir == nil {
		return nil
	}
	seen := make(map[ids.MDSID]bool)
	var out []ids.MDSID
	for _, d := range dir.Dentries {
		if d.Inode == nil {
			continue
		}
		for mds := range d.Inode.Replicas {
			if mds == dest || mds == m.self || seen[mds] {
				continue
			}
			if m.membership.IsActiveOrStopping(mds) {
				seen[mds] = true
				out = append(out, mds)
			}
		}
	}
	return out
}

// handleExportPrepAck moves PREPPING -> WARNING: the first bystander
// notify round begins. This Migrator's two-notify scheme substitutes for a
// dedicated WARNING message.
func (m *Migrator) handleExportPrepAck(env Envelope) {
	rec := m.getExportRecord(env.Root)
	if rec == nil || rec.peer != env.Src || rec.phase != ExportPrepping {
		m.log.Info("discard EXPORT-PREP-ACK: no matching export in PREPPING",
			zap.Stringer("root", env.Root))
		return
	}
	rec.phase = ExportWarning
	bystanders := m.activeBystanders(rec.root, rec.peer)
	rec.warningAcksPending = toSet(bystanders)

	if len(bystanders) == 0 {
		m.beginExporting(rec)
		return
	}
	for _, b := range bystanders {
		m.send(b, MsgExportNotify, rec.root, ExportNotifyPayload{
			Was:    cache.Single(m.self),
			Will:   cache.Ambiguous(m.self, rec.peer),
			Bounds: rec.bounds,
		})
	}
}

// handleExportNotifyAck advances whichever ack-wait is outstanding for the
// sender: the exporter's WARNING or NOTIFYING round, or (if this side is
// instead the importer of an aborted migration) the ABORTING round.
func (m *Migrator) handleExportNotifyAck(env Envelope) {
	if rec := m.getExportRecord(env.Root); rec != nil {
		m.deliverExportSideAck(rec, env.Src)
		return
	}
	if rec := m.getImportRecord(env.Root); rec != nil && rec.phase == ImportAborting {
		m.deliverAbortAck(rec, env.Src)
		return
	}
	m.log.Info("discard EXPORT-NOTIFY-ACK: no matching migration",
		zap.Stringer("root", env.Root))
}

// deliverExportSideAck applies one bystander ack to whichever ack-wait the
// export record is currently in. It is shared between live message
// delivery and the failure handler's ack synthesis: when a bystander dies
// while we are in WARNING or NOTIFYING with an outstanding ack from it,
// its ack is synthesized and the record advances as if it had arrived.
func (m *Migrator) deliverExportSideAck(rec *exportRecord, src ids.MDSID) {
	switch rec.phase {
	case ExportWarning:
		if !rec.warningAcksPending[src] {
			return
		}
		delete(rec.warningAcksPending, src)
		if len(rec.warningAcksPending) == 0 {
			m.beginExporting(rec)
		}
	case ExportNotifying:
		if !rec.notifyAcksPending[src] {
			return
		}
		delete(rec.notifyAcksPending, src)
		if len(rec.notifyAcksPending) == 0 {
			m.finishExport(rec)
		}
	default:
		m.log.Info("discard EXPORT-NOTIFY-ACK: export not awaiting acks in this phase",
			zap.Stringer("root", rec.root), zap.Stringer("phase", zapPhaseStringer(rec.phase)))
	}
}

// deliverAbortAck applies one bystander ack to an importer's ABORTING
// round, finishing the unwind once the last one is in.
func (m *Migrator) deliverAbortAck(rec *importRecord, src ids.MDSID) {
	if !rec.abortAcksPending[src] {
		return
	}
	delete(rec.abortAcksPending, src)
	if len(rec.abortAcksPending) == 0 {
		m.finishAbortedImport(rec)
	}
}

// beginExporting moves WARNING -> EXPORTING: every warning ack is in, so
// the bulk payload is sent and local authority goes ambiguous so in-flight
// reads still find the data.
func (m *Migrator) beginExporting(rec *exportRecord) {
	rec.phase = ExportExporting
	m.cache.AdjustSubtreeAuth(rec.root, m.self, rec.peer)

	dir, ok := m.cache.GetDir(rec.root)
	if !ok {
		m.log.Error("beginExporting: root directory vanished", zap.Stringer("root", rec.root))
		return
	}
	lookup := func(ino ids.InodeID) (*cache.Dir, bool) { return m.cache.GetDir(ino) }
	onStale := func(client ids.MDSID, ino ids.InodeID) { m.capability.NotifyStale(client, ino) }
	encoded := codec.EncodeDir(dir, rec.bounds, lookup, onStale)
	rec.encoded = encoded

	m.send(rec.peer, MsgExport, rec.root, ExportPayload{Bounds: rec.bounds, Encoded: encoded})
}

// handleExportAck moves EXPORTING -> LOGGING_FINISH: the importer has
// acked, so the EExport event is journaled.
func (m *Migrator) handleExportAck(env Envelope) {
	rec := m.getExportRecord(env.Root)
	if rec == nil || rec.peer != env.Src || rec.phase != ExportExporting {
		m.log.Info("discard EXPORT-ACK: no matching export in EXPORTING",
			zap.Stringer("root", env.Root))
		return
	}
	rec.phase = ExportLoggingFinish
	rec.encoded = nil

	root := rec.root
	m.journal.SubmitEntry(journal.Event{Kind: journal.EExport, Root: root, Bounds: rec.bounds, Peer: rec.peer}, func() {
		m.post(func() { m.onExportJournalFlush(root) })
	})
}

// onExportJournalFlush moves LOGGING_FINISH -> NOTIFYING: the second
// bystander notify round begins, announcing the new authority.
func (m *Migrator) onExportJournalFlush(root ids.InodeID) {
	rec := m.getExportRecord(root)
	if rec == nil || rec.phase != ExportLoggingFinish {
		return
	}
	rec.phase = ExportNotifying
	bystanders := m.activeBystanders(root, rec.peer)
	rec.notifyAcksPending = toSet(bystanders)

	if len(bystanders) == 0 {
		m.finishExport(rec)
		return
	}
	for _, b := range bystanders {
		m.send(b, MsgExportNotify, root, ExportNotifyPayload{
			Was:    cache.Ambiguous(m.self, rec.peer),
			Will:   cache.Single(rec.peer),
			Bounds: rec.bounds,
		})
	}
}

// finishExport reaches the terminal state: EXPORT-FINISH is sent, the
// subtree is unfrozen, pins are released, and waiters are signaled.
func (m *Migrator) finishExport(rec *exportRecord) {
	m.send(rec.peer, MsgExportFinish, rec.root, ackPayload{})
	m.cache.Unfreeze(rec.root)
	for _, b := range rec.bounds {
		m.cache.BoundUnpin(b)
	}
	m.cache.PathUnpin(rec.root)
	m.cache.TrySubtreeMerge(rec.root)

	rec.notifyFinishWaiters()
	m.dropExportRecord(rec.root)
	m.log.Info("export complete", zap.Stringer("root", rec.root), zap.Stringer("peer", rec.peer))
}

// reverseExport unwinds an EXPORTING-phase export after the importer has
// failed. It is idempotent: running it again on an already-reversed
// record (no buffered payload, no pins) is a no-op.
func (m *Migrator) reverseExport(rec *exportRecord) {
	m.cache.AdjustSubtreeAuth(rec.root, m.self)

	if rec.encoded != nil {
		onReap := func(ids.MDSID, ids.InodeID, ids.MDSID) {}
		existing := func(ino ids.InodeID) (*cache.Inode, bool) { return m.cache.GetInode(ino) }
		codec.DecodeDir(rec.encoded, m.self, m.self, existing, onReap)
		rec.encoded = nil
	}

	for _, b := range rec.bounds {
		m.cache.BoundUnpin(b)
	}
	m.cache.Unfreeze(rec.root)
	m.cache.ProcessDelayedExpire(rec.root)
}

func toSet(members []ids.MDSID) map[ids.MDSID]bool {
	s := make(map[ids.MDSID]bool, len(members))
	for _, id := range members {
		s[id] = true
	}
	return s
}

// zapPhaseStringer adapts an ExportPhase to zap.Stringer without pulling
// zap into phases.go.
type zapPhaseStringer ExportPhase

func (p zapPhaseStringer) String() string { return ExportPhase(p).String() }
