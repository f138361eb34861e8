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

package balancer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tgres-mds/migrator/ids"
)

func TestCountersTracksExportsAndImportsIndependently(t *testing.T) {
	c := New(ids.MDSID(1))

	c.SubtractExport(10)
	c.SubtractExport(11)
	c.AddImport(20)

	assert.Equal(t, 2, c.Exported())
	assert.Equal(t, 1, c.Imported())
	assert.Equal(t, -1, c.Net())
}

func TestCountersDedupesRepeatedRoots(t *testing.T) {
	c := New(ids.MDSID(1))
	c.SubtractExport(10)
	c.SubtractExport(10)
	assert.Equal(t, 1, c.Exported())
}

func TestCountersZeroValueNet(t *testing.T) {
	c := New(ids.MDSID(1))
	assert.Zero(t, c.Net())
}
