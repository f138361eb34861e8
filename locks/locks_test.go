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

package locks

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExportHardLockSettlesGatherRead(t *testing.T) {
	assert.Equal(t, LockLock, ExportHardLock(LockGatherRead))
}

func TestExportHardLockPassesThroughNonGathering(t *testing.T) {
	for _, s := range []LockState{LockSync, LockLock, LockMixed, LockLoner} {
		assert.Equal(t, s, ExportHardLock(s))
	}
}

func TestExportFileLockTransitions(t *testing.T) {
	cases := []struct {
		in   LockState
		want LockState
	}{
		{LockGatherRead, LockLock},
		{LockGatherMixed, LockLock},
		{LockGatherLoner, LockLock},
		{LockLoner, LockLock},
		{LockGatherMixedRead, LockMixed},
		{LockGatherSyncMixed, LockMixed},
		{LockGatherSyncLoner, LockLock},
		{LockGatherMixedLoner, LockLock},
		{LockSync, LockSync},
		{LockMixed, LockMixed},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ExportFileLock(c.in), "input %s", c.in)
	}
}

func TestIsGathering(t *testing.T) {
	gathering := []LockState{
		LockGatherRead, LockGatherMixed, LockGatherLoner,
		LockGatherMixedRead, LockGatherSyncMixed, LockGatherSyncLoner, LockGatherMixedLoner,
	}
	for _, s := range gathering {
		assert.True(t, s.IsGathering(), "%s should be gathering", s)
	}
	notGathering := []LockState{LockSync, LockLock, LockMixed, LockLoner}
	for _, s := range notGathering {
		assert.False(t, s.IsGathering(), "%s should not be gathering", s)
	}
}

func TestLockStateStringUnknown(t *testing.T) {
	assert.Equal(t, "unknown", LockState(999).String())
}
