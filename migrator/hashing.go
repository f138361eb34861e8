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

// handleHashingMessage dispatches the hash/unhash message variants. The
// wire protocol declares their message types (messages.go) so the message
// space has room for the directory-hashing scheme, but no hashing state
// machine is implemented here; any such message is logged and ignored. The
// real safeguard is in ExportSubtree, which refuses to migrate an
// already-hashed directory.
func (m *Migrator) handleHashingMessage(env Envelope) {
	m.log.Debug("hashing/unhashing dispatch stub, ignoring", zap.Stringer("type", env.Type), zap.Stringer("root", env.Root))
}
