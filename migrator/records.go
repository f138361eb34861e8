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
	"github.com/tgres-mds/migrator/codec"
	"github.com/tgres-mds/migrator/ids"
)

// exportRecord is the exporter-side migration record keyed by the subtree
// root. Each field is populated only as the corresponding phase needs
// it — callers should not read fields outside the phase that defines
// them.
type exportRecord struct {
	root  ids.InodeID
	peer  ids.MDSID
	phase ExportPhase

	bounds []ids.InodeID

	// encoded is the buffered serialized subtree, present only during
	// ExportExporting and dropped once the importer acks or a reverse
	// runs.
	encoded *codec.EncodedDir

	warningAcksPending map[ids.MDSID]bool
	notifyAcksPending  map[ids.MDSID]bool

	finishWaiters []chan struct{}
}

func newExportRecord(root ids.InodeID, peer ids.MDSID) *exportRecord {
	return &exportRecord{root: root, peer: peer, phase: ExportDiscovering}
}

func (r *exportRecord) notifyFinishWaiters() {
	for _, ch := range r.finishWaiters {
		close(ch)
	}
	r.finishWaiters = nil
}

// importRecord is the importer-side migration record keyed by the root's
// inode id.
type importRecord struct {
	root  ids.InodeID
	peer  ids.MDSID
	phase ImportPhase

	boundInos []ids.InodeID
	bounds    []ids.InodeID

	bystanders map[ids.MDSID]bool

	abortAcksPending map[ids.MDSID]bool
}

func newImportRecord(root ids.InodeID, peer ids.MDSID) *importRecord {
	return &importRecord{root: root, peer: peer, phase: ImportDiscovered}
}
