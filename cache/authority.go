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

package cache

import (
	"fmt"

	"github.com/tgres-mds/migrator/ids"
)

// Authority names who is responsible for authoritative reads/writes of a
// subtree. Secondary is ids.Unknown except during a migration's ambiguity
// window.
type Authority struct {
	Primary   ids.MDSID
	Secondary ids.MDSID
}

// Single returns an unambiguous authority pair.
func Single(a ids.MDSID) Authority {
	return Authority{Primary: a, Secondary: ids.Unknown}
}

// Ambiguous returns a two-authority pair used during migration windows.
func Ambiguous(a, b ids.MDSID) Authority {
	return Authority{Primary: a, Secondary: b}
}

// IsAmbiguous reports whether this authority has a live secondary.
func (a Authority) IsAmbiguous() bool {
	return a.Secondary != ids.Unknown
}

func (a Authority) String() string {
	if a.IsAmbiguous() {
		return fmt.Sprintf("(%s,%s)", a.Primary, a.Secondary)
	}
	return fmt.Sprintf("(%s)", a.Primary)
}
