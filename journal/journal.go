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

// Package journal implements the write-ahead journal contract the Migrator
// depends on for crash-safe replay.
package journal

import (
	"sync"

	"github.com/tgres-mds/migrator/ids"
)

// EventKind tags the three journal event shapes.
type EventKind int

const (
	EExport EventKind = iota
	EImportStart
	EImportFinish
)

func (k EventKind) String() string {
	switch k {
	case EExport:
		return "EExport"
	case EImportStart:
		return "EImportStart"
	case EImportFinish:
		return "EImportFinish"
	default:
		return "unknown"
	}
}

// Event is a single durable journal entry.
type Event struct {
	Kind      EventKind
	Root      ids.InodeID
	Bounds    []ids.InodeID
	Peer      ids.MDSID
	Committed bool // valid when Kind == EImportFinish
}

// Journal is the narrow contract the Migrator consumes: append an event
// and be told, via continuation, once it is durable.
type Journal interface {
	SubmitEntry(ev Event, onFinish func())
	// Events returns a snapshot of everything journaled so far, in
	// append order, for replay.
	Events() []Event
}

// MemJournal is an in-memory Journal. Entries are considered durable as
// soon as they're appended; onFinish is invoked on the caller's own
// goroutine via post so continuations land back on a single-threaded loop
// the way a real flush callback would.
type MemJournal struct {
	mu     sync.Mutex
	events []Event
	post   func(func())
}

func NewMemJournal(post func(func())) *MemJournal {
	if post == nil {
		post = func(f func()) { f() }
	}
	return &MemJournal{post: post}
}

func (j *MemJournal) SubmitEntry(ev Event, onFinish func()) {
	j.mu.Lock()
	j.events = append(j.events, ev)
	j.mu.Unlock()
	j.post(onFinish)
}

func (j *MemJournal) Events() []Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Event(nil), j.events...)
}

// ReplayAuthority reconstructs the authority map implied by a sequence of
// journal events: replaying any prefix of successful
// EExport/EImportStart/EImportFinish events yields the authority the
// protocol would reach had the crashed MDS completed its remaining steps.
//
// exporterEvents and importerEvents are the logs recovered from the two
// sides' journals (a real restart reads its own log only; tests that want
// to check both sides of a migration pass both logs here).
func ReplayAuthority(root ids.InodeID, self ids.MDSID, exporterEvents, importerEvents []Event) (primary ids.MDSID, ambiguous bool, secondary ids.MDSID) {
	primary, secondary = self, ids.Unknown

	exported := false
	for _, ev := range exporterEvents {
		if ev.Kind == EExport && ev.Root == root {
			exported = true
		}
	}

	var importStarted, importCommitted, importAborted bool
	var peer ids.MDSID = ids.Unknown
	for _, ev := range importerEvents {
		if ev.Root != root {
			continue
		}
		switch ev.Kind {
		case EImportStart:
			importStarted = true
			peer = ev.Peer
		case EImportFinish:
			if ev.Committed {
				importCommitted = true
			} else {
				importAborted = true
			}
		}
	}

	switch {
	case importCommitted:
		// The importer's EImportFinish(true) is only written once
		// EXPORT-FINISH arrived, which only happens after the
		// exporter's EExport was durable — so the importer is sole
		// authority regardless of whether the exporter's own journal
		// replay has caught up yet.
		return peer, false, ids.Unknown
	case importAborted:
		return self, false, ids.Unknown
	case importStarted && exported:
		// Exporter committed but importer never got its ack recorded:
		// ambiguous import awaiting cluster disambiguation.
		return self, true, peer
	case exported:
		return self, true, ids.Unknown
	default:
		return self, false, ids.Unknown
	}
}
