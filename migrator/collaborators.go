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

import "github.com/tgres-mds/migrator/ids"

// Transport is the narrow send contract the Migrator consumes: best-effort
// delivery, no ordering guarantee between distinct destinations.
type Transport interface {
	Send(dst ids.MDSID, env Envelope) error
}

// Membership is the narrow cluster-membership contract the Migrator
// consumes. RegisterFailureHandler is called once at Migrator
// construction; the membership implementation invokes it whenever it
// detects a peer has failed, fanning the notification out to the
// Migrator's failure handler.
type Membership interface {
	IsDegraded() bool
	IsActiveOrStopping(mds ids.MDSID) bool
	RegisterFailureHandler(func(ids.MDSID))
}

// Balancer is the narrow call-out contract the Migrator invokes into the
// load balancer: SubtractExport is called as export begins, AddImport once
// an import commits. The balancer's own decision logic — when and where to
// migrate — is out of scope here.
type Balancer interface {
	SubtractExport(root ids.InodeID)
	AddImport(root ids.InodeID)
}

// CapabilityNotifier is the narrow client capability contract the Migrator
// consumes: "stale" on export, "reap" on import.
type CapabilityNotifier interface {
	NotifyStale(client ids.MDSID, ino ids.InodeID)
	NotifyReap(client ids.MDSID, ino ids.InodeID, oldauth ids.MDSID)
}
