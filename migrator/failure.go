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

	"github.com/tgres-mds/migrator/ids"
)

// handleFailure is invoked with the id of a failed MDS. It unwinds or
// completes every export and import record affected by that failure, per
// the phase tables below, then wakes queued finish-waiters and asks the
// cache to flush pending import-map gossip.
func (m *Migrator) handleFailure(w ids.MDSID) {
	m.log.Info("handling peer failure", zap.Stringer("peer", w))

	for _, rec := range m.snapshotExports() {
		if rec.peer == w {
			m.failExportPeer(rec)
			continue
		}
		// w might be a bystander we're mid-ack-wait with.
		if (rec.phase == ExportWarning && rec.warningAcksPending[w]) ||
			(rec.phase == ExportNotifying && rec.notifyAcksPending[w]) {
			m.deliverExportSideAck(rec, w)
		}
	}

	for _, rec := range m.snapshotImports() {
		if rec.peer == w {
			m.failImportPeer(rec)
			continue
		}
		if rec.phase == ImportAborting && rec.abortAcksPending[w] {
			m.deliverAbortAck(rec, w)
		}
	}

	m.cache.SendPendingImportMaps()
}

func (m *Migrator) snapshotExports() []*exportRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*exportRecord, 0, len(m.exports))
	for _, r := range m.exports {
		out = append(out, r)
	}
	return out
}

func (m *Migrator) snapshotImports() []*importRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*importRecord, 0, len(m.imports))
	for _, r := range m.imports {
		out = append(out, r)
	}
	return out
}

// failExportPeer applies the export-side phase table to a record whose
// peer (the destination MDS) has just failed.
func (m *Migrator) failExportPeer(rec *exportRecord) {
	switch rec.phase {
	case ExportDiscovering:
		m.cache.Unfreeze(rec.root)
		m.cache.AuthUnpin(rec.root)
		m.cache.PathUnpin(rec.root)
		rec.notifyFinishWaiters()
		m.dropExportRecord(rec.root)

	case ExportFreezing:
		m.cache.CancelFreeze(rec.root)
		m.cache.AuthUnpin(rec.root)
		m.cache.PathUnpin(rec.root)
		rec.notifyFinishWaiters()
		m.dropExportRecord(rec.root)

	case ExportPrepping, ExportWarning:
		for _, b := range rec.bounds {
			m.cache.BoundUnpin(b)
		}
		m.cache.Unfreeze(rec.root)
		m.cache.AdjustSubtreeAuth(rec.root, m.self)
		m.cache.TrySubtreeMerge(rec.root)
		m.cache.PathUnpin(rec.root)
		rec.notifyFinishWaiters()
		m.dropExportRecord(rec.root)

	case ExportExporting:
		m.reverseExport(rec)
		m.cache.PathUnpin(rec.root)
		rec.notifyFinishWaiters()
		m.dropExportRecord(rec.root)

	case ExportLoggingFinish, ExportNotifying:
		// The migration already succeeded durably on the importer (or
		// will once its journal flush returns); leave the record in
		// place so any still-outstanding acks keep being processed.
		m.log.Info("peer failed after commit, leaving export record for ack drain",
			zap.Stringer("root", rec.root), zap.Stringer("phase", zapPhaseStringer(rec.phase)))
	}
}

// failImportPeer applies the import-side phase table to a record whose
// peer (the source MDS) has just failed.
func (m *Migrator) failImportPeer(rec *importRecord) {
	switch rec.phase {
	case ImportDiscovered:
		m.cache.ImportingUnpin(rec.root)
		m.dropImportRecord(rec.root)

	case ImportPrepping:
		for _, b := range rec.bounds {
			m.cache.BoundUnpin(b)
		}
		m.cache.ImportingUnpin(rec.root)
		m.dropImportRecord(rec.root)

	case ImportPrepped:
		for _, b := range rec.bounds {
			m.cache.BoundUnpin(b)
		}
		m.cache.AdjustSubtreeAuth(rec.root, rec.peer)
		m.cache.TrySubtreeMerge(rec.root)
		if len(rec.bystanders) > 0 {
			m.onImportReverseLogged(rec.root) // moves straight to ABORTING's notify round
		} else {
			m.cache.Unfreeze(rec.root)
			m.cache.ImportingUnpin(rec.root)
			m.dropImportRecord(rec.root)
		}

	case ImportLoggingStart:
		m.reverseImport(rec)

	case ImportAcking:
		// The exporter already committed locally before our ack was
		// processed: register an ambiguous import and wait for the
		// cluster's import-map exchange to disambiguate.
		m.cache.AddAmbiguousImport(rec.root, rec.bounds)

	case ImportAborting:
		// Already unwinding; nothing to do.
	}
}
