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
	"sync"

	"go.uber.org/zap"

	"github.com/tgres-mds/migrator/balancer"
	"github.com/tgres-mds/migrator/cache"
	"github.com/tgres-mds/migrator/ids"
	"github.com/tgres-mds/migrator/journal"
)

// wireTransport delivers every Send directly into the destination
// Migrator's Dispatch, looked up by id in a shared registry populated
// after every participant in a test cluster is constructed.
type wireTransport struct {
	mu       sync.Mutex
	registry map[ids.MDSID]*Migrator
	sent     []sentMsg
}

type sentMsg struct {
	from, to ids.MDSID
	typ      MsgType
}

func newWireTransport() *wireTransport {
	return &wireTransport{registry: map[ids.MDSID]*Migrator{}}
}

func (w *wireTransport) register(id ids.MDSID, m *Migrator) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.registry[id] = m
}

func (w *wireTransport) Send(dst ids.MDSID, env Envelope) error {
	w.mu.Lock()
	w.sent = append(w.sent, sentMsg{from: env.Src, to: dst, typ: env.Type})
	target, ok := w.registry[dst]
	w.mu.Unlock()
	if !ok {
		return errUnknownPeer(dst)
	}
	target.Dispatch(env)
	return nil
}

func (w *wireTransport) countTo(dst ids.MDSID, typ MsgType) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, s := range w.sent {
		if s.to == dst && s.typ == typ {
			n++
		}
	}
	return n
}

// nopTransport records every Send but never delivers it anywhere, so the
// sender never receives a reply and its state machine holds wherever the
// test left it.
type nopTransport struct {
	mu   sync.Mutex
	sent []sentMsg
}

func (n *nopTransport) Send(dst ids.MDSID, env Envelope) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMsg{from: env.Src, to: dst, typ: env.Type})
	return nil
}

func (n *nopTransport) countTo(dst ids.MDSID, typ MsgType) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.sent {
		if s.to == dst && s.typ == typ {
			c++
		}
	}
	return c
}

// fsRootIno is the filesystem root inode used for every cache built by
// newCluster/newSoloNode. It is distinct from any subtree root a test
// migrates, since IsRoot(fsRootIno) must stay false for those.
const fsRootIno = ids.InodeID(0)

// newSoloNode builds a single Migrator with a nopTransport, for tests of
// entry-point preconditions that must not depend on a live peer replying.
func newSoloNode(t interface{ Cleanup(func()) }, self ids.MDSID) (*node, *nopTransport) {
	nt := &nopTransport{}
	var mig *Migrator
	mc := cache.NewMemCache(fsRootIno, func(f func()) { mig.post(f) })
	mj := journal.NewMemJournal(func(f func()) { mig.post(f) })
	fm := newFakeMembership()
	bal := balancer.New(self)

	opts := NewOptions().
		SetSelf(self).
		SetCache(mc).
		SetJournal(mj).
		SetTransport(nt).
		SetMembership(fm).
		SetBalancer(bal).
		SetLogger(zap.NewNop())

	var err error
	mig, err = New(opts)
	if err != nil {
		panic(err)
	}
	mig.Start()
	t.Cleanup(mig.Stop)

	return &node{id: self, m: mig, cache: mc, journal: mj, membership: fm, balancer: bal}, nt
}

type unknownPeerError struct{ id ids.MDSID }

func (e *unknownPeerError) Error() string { return "wireTransport: unknown peer " + e.id.String() }
func errUnknownPeer(id ids.MDSID) error   { return &unknownPeerError{id} }

// fakeMembership is a Membership double whose degradation, liveness, and
// failure fan-out are all controlled directly by the test.
type fakeMembership struct {
	mu      sync.Mutex
	degraded bool
	dead    map[ids.MDSID]bool
	handler func(ids.MDSID)
}

func newFakeMembership() *fakeMembership {
	return &fakeMembership{dead: map[ids.MDSID]bool{}}
}

func (f *fakeMembership) IsDegraded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.degraded
}

func (f *fakeMembership) IsActiveOrStopping(mds ids.MDSID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.dead[mds]
}

func (f *fakeMembership) RegisterFailureHandler(h func(ids.MDSID)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

// fail marks id as failed and fans the notification out, synchronously on
// the caller's goroutine; the Migrator's own post() serializes it onto its
// single logical task.
func (f *fakeMembership) fail(id ids.MDSID) {
	f.mu.Lock()
	f.dead[id] = true
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(id)
	}
}

// node bundles one MDS's constructed Migrator with the collaborators a
// test needs direct access to.
type node struct {
	id         ids.MDSID
	m          *Migrator
	cache      *cache.MemCache
	journal    *journal.MemJournal
	membership *fakeMembership
	balancer   *balancer.Counters
}

// newCluster wires n MDSes sharing one wireTransport, each with its own
// MemCache/MemJournal/fakeMembership/balancer.Counters, and starts every
// Migrator's action-queue goroutine.
func newCluster(t interface{ Cleanup(func()) }, n int) ([]*node, *wireTransport) {
	w := newWireTransport()
	nodes := make([]*node, n)
	for i := 0; i < n; i++ {
		id := ids.MDSID(i + 1)
		var mig *Migrator
		mc := cache.NewMemCache(fsRootIno, func(f func()) { mig.post(f) })
		mj := journal.NewMemJournal(func(f func()) { mig.post(f) })
		fm := newFakeMembership()
		bal := balancer.New(id)

		opts := NewOptions().
			SetSelf(id).
			SetCache(mc).
			SetJournal(mj).
			SetTransport(w).
			SetMembership(fm).
			SetBalancer(bal).
			SetLogger(zap.NewNop())

		var err error
		mig, err = New(opts)
		if err != nil {
			panic(err)
		}
		mig.Start()
		t.Cleanup(mig.Stop)
		w.register(id, mig)

		nodes[i] = &node{id: id, m: mig, cache: mc, journal: mj, membership: fm, balancer: bal}
	}
	return nodes, w
}
