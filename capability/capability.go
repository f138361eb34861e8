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

// Package capability implements migrator.CapabilityNotifier: the
// client-facing "stale" and "reap" messages a Migrator sends as a subtree
// changes authority.
package capability

import (
	"sync"

	"go.uber.org/zap"

	"github.com/tgres-mds/migrator/ids"
)

// Kind distinguishes the two client-facing capability messages.
type Kind int

const (
	// Stale tells a client its cached capability for an inode may no
	// longer reflect the authoritative MDS and must be revalidated.
	Stale Kind = iota + 1
	// Reap tells a client that the new authority has taken over a
	// capability previously issued by OldAuth, the MDS authority moved
	// away from.
	Reap
)

func (k Kind) String() string {
	switch k {
	case Stale:
		return "STALE"
	case Reap:
		return "REAP"
	default:
		return "UNKNOWN"
	}
}

// Notice is one delivered (or attempted) capability message, kept for
// tests and for any client-session layer that wants to replay history.
type Notice struct {
	Kind    Kind
	Client  ids.MDSID
	Ino     ids.InodeID
	OldAuth ids.MDSID
}

// ClientSender delivers a capability notice to a connected client session.
// A real deployment backs this with whatever session/connection registry
// the MDS's client-facing server already maintains.
type ClientSender interface {
	Send(client ids.MDSID, n Notice) error
}

// Notifier implements migrator.CapabilityNotifier on top of a
// ClientSender, logging and swallowing delivery errors: a client that
// missed its stale/reap notice will find out the authoritative way, on its
// next RPC to the wrong MDS.
type Notifier struct {
	sender ClientSender
	log    *zap.Logger

	mu      sync.Mutex
	history []Notice
}

// New constructs a Notifier.
func New(sender ClientSender, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{sender: sender, log: log}
}

// NotifyStale implements migrator.CapabilityNotifier.
func (n *Notifier) NotifyStale(client ids.MDSID, ino ids.InodeID) {
	n.deliver(Notice{Kind: Stale, Client: client, Ino: ino})
}

// NotifyReap implements migrator.CapabilityNotifier.
func (n *Notifier) NotifyReap(client ids.MDSID, ino ids.InodeID, oldauth ids.MDSID) {
	n.deliver(Notice{Kind: Reap, Client: client, Ino: ino, OldAuth: oldauth})
}

func (n *Notifier) deliver(notice Notice) {
	n.mu.Lock()
	n.history = append(n.history, notice)
	n.mu.Unlock()

	if err := n.sender.Send(notice.Client, notice); err != nil {
		n.log.Warn("capability: failed to deliver notice",
			zap.Stringer("kind", notice.Kind),
			zap.Stringer("client", notice.Client),
			zap.Stringer("ino", notice.Ino),
			zap.Error(err))
	}
}

// History returns all notices delivered so far, for tests.
func (n *Notifier) History() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notice, len(n.history))
	copy(out, n.history)
	return out
}
