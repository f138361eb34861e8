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

// Package locks implements the lock-state algebra the export and import
// paths apply to every inode they touch, as pure functions over the
// lock-state values rather than as open-coded branches scattered through
// the migration handlers.
package locks

// LockState is the state of a single lock (hard-lock or file-lock) on an
// inode.
type LockState int

const (
	LockSync LockState = iota
	LockLock
	LockMixed
	LockLoner
	LockGatherRead
	LockGatherMixed
	LockGatherLoner
	LockGatherMixedRead
	LockGatherSyncMixed
	LockGatherSyncLoner
	LockGatherMixedLoner
)

func (s LockState) String() string {
	switch s {
	case LockSync:
		return "sync"
	case LockLock:
		return "lock"
	case LockMixed:
		return "mixed"
	case LockLoner:
		return "loner"
	case LockGatherRead:
		return "gather-read"
	case LockGatherMixed:
		return "gather-mixed"
	case LockGatherLoner:
		return "gather-loner"
	case LockGatherMixedRead:
		return "gather-mixed-read"
	case LockGatherSyncMixed:
		return "gather-sync-mixed"
	case LockGatherSyncLoner:
		return "gather-sync-loner"
	case LockGatherMixedLoner:
		return "gather-mixed-loner"
	default:
		return "unknown"
	}
}

// IsGathering reports whether s is one of the gather-* states.
func (s LockState) IsGathering() bool {
	switch s {
	case LockGatherRead, LockGatherMixed, LockGatherLoner, LockGatherMixedRead,
		LockGatherSyncMixed, LockGatherSyncLoner, LockGatherMixedLoner:
		return true
	}
	return false
}

// ExportHardLock applies the exporter's hard-lock transition on export:
// the gather-read state settles to LOCK. Every other state, including the
// other gather states, passes through unchanged.
func ExportHardLock(s LockState) LockState {
	if s == LockGatherRead {
		return LockLock
	}
	return s
}

// ExportFileLock applies the exporter's file-lock transition on export.
func ExportFileLock(s LockState) LockState {
	switch s {
	case LockGatherRead, LockGatherMixed, LockGatherLoner, LockLoner:
		return LockLock
	case LockGatherMixedRead:
		return LockMixed
	case LockGatherSyncMixed:
		return LockMixed
	case LockGatherSyncLoner, LockGatherMixedLoner:
		return LockLock
	default:
		return s
	}
}

// ReplicaNonce distinguishes successive replica incarnations of an inode so
// stale references can be detected.
type ReplicaNonce uint32

// ExportNonce is the well-known nonce value assigned to a replica record
// created by an export, so the importer's future replica round-trips can
// tell it apart from a replica created any other way.
const ExportNonce ReplicaNonce = 1
