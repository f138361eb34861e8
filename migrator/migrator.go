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

// Package migrator implements the subtree migration protocol of an MDS
// cluster: the export/import handshake that moves ownership of a
// directory subtree between two MDSes while bystanders stay consistent and
// any participant's failure is recovered from.
package migrator

import (
	"sync"

	"go.uber.org/zap"

	"github.com/tgres-mds/migrator/cache"
	"github.com/tgres-mds/migrator/ids"
	"github.com/tgres-mds/migrator/journal"
)

// Migrator is a per-MDS object reachable only via message dispatch and the
// ExportSubtree entry point. All of its work — message dispatch,
// continuation callbacks, and ExportSubtree calls — is serialized onto a
// single logical task, implemented here as a work queue drained by one
// goroutine.
type Migrator struct {
	self ids.MDSID

	cache      cache.Cache
	journal    journal.Journal
	transport  Transport
	membership Membership
	balancer   Balancer
	capability CapabilityNotifier
	log        *zap.Logger
	onFatal    func(error)

	mu      sync.Mutex // guards exports/imports for read-only external queries only
	exports map[ids.InodeID]*exportRecord
	imports map[ids.InodeID]*importRecord

	actions chan func()
	done    chan struct{}
}

type nopCapability struct{}

func (nopCapability) NotifyStale(ids.MDSID, ids.InodeID)             {}
func (nopCapability) NotifyReap(ids.MDSID, ids.InodeID, ids.MDSID)   {}

// New constructs a Migrator from Options and wires it to its membership
// service's failure fan-out.
func New(opts Options) (*Migrator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	cap := opts.Capability()
	if cap == nil {
		cap = nopCapability{}
	}
	m := &Migrator{
		self:       opts.Self(),
		cache:      opts.Cache(),
		journal:    opts.Journal(),
		transport:  opts.TransportImpl(),
		membership: opts.MembershipImpl(),
		balancer:   opts.BalancerImpl(),
		capability: cap,
		log:        opts.Logger(),
		onFatal:    opts.OnFatal(),
		exports:    make(map[ids.InodeID]*exportRecord),
		imports:    make(map[ids.InodeID]*importRecord),
		actions:    make(chan func(), opts.ActionQueueSize()),
		done:       make(chan struct{}),
	}
	m.membership.RegisterFailureHandler(func(w ids.MDSID) {
		m.post(func() { m.handleFailure(w) })
	})
	return m, nil
}

// Start begins draining the action queue on a dedicated goroutine. It must
// be called before Dispatch, ExportSubtree, or any collaborator
// continuation is invoked.
func (m *Migrator) Start() {
	go func() {
		for {
			select {
			case f := <-m.actions:
				f()
			case <-m.done:
				return
			}
		}
	}()
}

// Stop ends the drain loop. Actions still queued when Stop is called may
// not run, and post enqueues nothing afterwards.
func (m *Migrator) Stop() {
	close(m.done)
}

// post schedules f to run on the Migrator's single logical task. Every
// entry point and every collaborator continuation goes through post so
// handlers never run concurrently with one another.
func (m *Migrator) post(f func()) {
	select {
	case m.actions <- f:
	case <-m.done:
	}
}

// Sync blocks until every action enqueued before this call has run. It
// exists for tests that need to wait for asynchronous continuations to
// settle before asserting on Migrator state.
func (m *Migrator) Sync() {
	wait := make(chan struct{})
	m.post(func() { close(wait) })
	<-wait
}

// Dispatch delivers one inbound message to the Migrator. It is safe to
// call concurrently; delivery onto the single logical task is serialized
// internally.
func (m *Migrator) Dispatch(env Envelope) {
	m.post(func() { m.dispatch(env) })
}

func (m *Migrator) dispatch(env Envelope) {
	switch env.Type {
	case MsgExportDiscover:
		m.handleExportDiscover(env)
	case MsgExportDiscoverAck:
		m.handleExportDiscoverAck(env)
	case MsgExportPrep:
		m.handleExportPrep(env)
	case MsgExportPrepAck:
		m.handleExportPrepAck(env)
	case MsgExport:
		m.handleExport(env)
	case MsgExportAck:
		m.handleExportAck(env)
	case MsgExportFinish:
		m.handleExportFinish(env)
	case MsgExportNotify:
		m.handleExportNotify(env)
	case MsgExportNotifyAck:
		m.handleExportNotifyAck(env)
	case MsgExportWarning:
		m.handleExportWarning(env)
	case MsgExportWarningAck:
		m.handleExportWarningAck(env)
	case MsgHashDirDiscover, MsgHashDirDiscoverAck, MsgHashDirPrep, MsgHashDirPrepAck,
		MsgHashDir, MsgHashDirAck, MsgHashDirNotify,
		MsgUnhashDirPrep, MsgUnhashDirPrepAck, MsgUnhashDir, MsgUnhashDirAck,
		MsgUnhashDirNotify, MsgUnhashDirNotifyAck:
		m.handleHashingMessage(env)
	default:
		m.log.Error("dispatch: unknown message type", zap.Int("type", int(env.Type)))
	}
}

func (m *Migrator) send(dst ids.MDSID, typ MsgType, root ids.InodeID, body interface{}) {
	if err := m.transport.Send(dst, Envelope{Type: typ, Root: root, Src: m.self, Body: body}); err != nil {
		m.log.Warn("send failed, best-effort transport dropped it",
			zap.Stringer("type", typ), zap.Stringer("root", root), zap.Stringer("dst", dst), zap.Error(err))
	}
}

// HasExportRecord reports whether an export record exists for root, for
// tests and invariant checks: at most one export record may exist per
// root at a time.
func (m *Migrator) HasExportRecord(root ids.InodeID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.exports[root]
	return ok
}

// HasImportRecord reports whether an import record exists for root.
func (m *Migrator) HasImportRecord(root ids.InodeID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.imports[root]
	return ok
}

// ExportPhaseOf returns the current export phase for root, for tests.
func (m *Migrator) ExportPhaseOf(root ids.InodeID) (ExportPhase, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.exports[root]
	if !ok {
		return 0, false
	}
	return r.phase, true
}

// ImportPhaseOf returns the current import phase for root, for tests.
func (m *Migrator) ImportPhaseOf(root ids.InodeID) (ImportPhase, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.imports[root]
	if !ok {
		return 0, false
	}
	return r.phase, true
}

func (m *Migrator) setExportRecord(r *exportRecord) {
	m.mu.Lock()
	m.exports[r.root] = r
	m.mu.Unlock()
}

func (m *Migrator) dropExportRecord(root ids.InodeID) *exportRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.exports[root]
	delete(m.exports, root)
	return r
}

func (m *Migrator) getExportRecord(root ids.InodeID) *exportRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exports[root]
}

func (m *Migrator) setImportRecord(r *importRecord) {
	m.mu.Lock()
	m.imports[r.root] = r
	m.mu.Unlock()
}

func (m *Migrator) dropImportRecord(root ids.InodeID) *importRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.imports[root]
	delete(m.imports, root)
	return r
}

func (m *Migrator) getImportRecord(root ids.InodeID) *importRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.imports[root]
}

// fatal handles a cache invariant violation or importer discover failure:
// the MDS aborts, since the journal is the source of truth on restart.
// Tests supply Options.OnFatal to observe this without actually exiting
// the process.
func (m *Migrator) fatal(err *FatalError) {
	if m.onFatal != nil {
		m.onFatal(err)
		return
	}
	m.log.Fatal("fatal migrator error", zap.Error(err))
}
