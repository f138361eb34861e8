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

import "go.uber.org/zap"

// handleExportNotify implements the bystander role: update the local
// authority view for the subtree and ack. The handler is stateless across
// the first and second notify — each carries the full old/new authority
// pair, so which round this is can be read off Will: an ambiguous Will is
// the first notify (authority will change), a single-id Will is the second
// (new authority is final, so a merge with an adjacent sibling sharing it
// is attempted).
func (m *Migrator) handleExportNotify(env Envelope) {
	payload, ok := env.Body.(ExportNotifyPayload)
	if !ok {
		m.log.Error("EXPORT-NOTIFY: malformed body", zap.Stringer("root", env.Root))
		return
	}
	if payload.Will.IsAmbiguous() {
		m.cache.AdjustSubtreeAuth(env.Root, payload.Will.Primary, payload.Will.Secondary)
	} else {
		m.cache.AdjustSubtreeAuth(env.Root, payload.Will.Primary)
		m.cache.TrySubtreeMerge(env.Root)
	}
	m.send(env.Src, MsgExportNotifyAck, env.Root, ackPayload{})
}

// handleExportWarning and handleExportWarningAck exist because the
// message set declares a split WARNING/NOTIFY handshake, but this Migrator
// uses two NOTIFY rounds instead of a dedicated WARNING step. These
// handlers are kept dispatchable, matching a peer that hasn't migrated off
// the legacy scheme, but are never sent by this Migrator and are discarded
// on receipt.
func (m *Migrator) handleExportWarning(env Envelope) {
	m.log.Info("discard EXPORT-WARNING: unsupported legacy handshake", zap.Stringer("root", env.Root))
}

func (m *Migrator) handleExportWarningAck(env Envelope) {
	m.log.Info("discard EXPORT-WARNING-ACK: unsupported legacy handshake", zap.Stringer("root", env.Root))
}
