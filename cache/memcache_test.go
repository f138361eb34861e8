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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgres-mds/migrator/ids"
)

func TestPinCountersIncrementAndReleaseToZero(t *testing.T) {
	c := NewMemCache(0, nil)
	root := ids.InodeID(1)

	c.PathPin(root)
	c.PathPin(root)
	c.BoundPin(root)
	path, bound, importing, auth := c.PinCounts(root)
	assert.Equal(t, 2, path)
	assert.Equal(t, 1, bound)
	assert.Equal(t, 0, importing)
	assert.Equal(t, 0, auth)

	c.PathUnpin(root)
	path, _, _, _ = c.PinCounts(root)
	assert.Equal(t, 1, path)

	c.PathUnpin(root)
	c.BoundUnpin(root)
	path, bound, _, _ = c.PinCounts(root)
	assert.Zero(t, path)
	assert.Zero(t, bound)
}

func TestPinUnpinBelowZeroStaysAtZero(t *testing.T) {
	c := NewMemCache(0, nil)
	root := ids.InodeID(1)
	c.AuthUnpin(root)
	_, _, _, auth := c.PinCounts(root)
	assert.Zero(t, auth)
}

func TestAdjustSubtreeAuthSingleAndAmbiguous(t *testing.T) {
	c := NewMemCache(0, nil)
	root := ids.InodeID(1)

	c.AdjustSubtreeAuth(root, 1)
	assert.Equal(t, Single(1), c.GetAuthority(root))

	c.AdjustSubtreeAuth(root, 1, 2)
	auth := c.GetAuthority(root)
	assert.True(t, auth.IsAmbiguous())
	assert.Equal(t, ids.MDSID(1), auth.Primary)
	assert.Equal(t, ids.MDSID(2), auth.Secondary)
}

func TestVerifySubtreeBoundsIgnoresOrder(t *testing.T) {
	c := NewMemCache(0, nil)
	root := ids.InodeID(1)
	c.SetBounds(root, []ids.InodeID{10, 20, 30})
	assert.True(t, c.VerifySubtreeBounds(root, []ids.InodeID{30, 10, 20}))
	assert.False(t, c.VerifySubtreeBounds(root, []ids.InodeID{10, 20}))
}

func TestFreezeInvokesOnCompleteAndSettlesFrozen(t *testing.T) {
	c := NewMemCache(0, nil)
	root := ids.InodeID(1)
	c.PutDir(NewDir(root))

	done := false
	c.Freeze(root, func() { done = true })
	require.True(t, done)

	d, ok := c.GetDir(root)
	require.True(t, ok)
	assert.True(t, d.IsFrozen())
	assert.False(t, d.IsFreezing())
}

func TestUnfreezeClearsFrozenState(t *testing.T) {
	c := NewMemCache(0, nil)
	root := ids.InodeID(1)
	c.PutDir(NewDir(root))
	c.Freeze(root, func() {})
	c.Unfreeze(root)
	d, _ := c.GetDir(root)
	assert.False(t, d.IsFrozen())
}

func TestPathTraverseReportsNotFound(t *testing.T) {
	c := NewMemCache(0, nil)
	var gotErr error
	c.PathTraverse(ids.InodeID(42), func(d *Dir, err error) { gotErr = err })
	assert.Error(t, gotErr)
}

func TestInstallSubtreeRecursesIntoNestedDirs(t *testing.T) {
	c := NewMemCache(0, nil)

	child := NewDir(2)
	parentInode := NewInode(2)
	parentInode.Dir = child
	root := &Dir{ID: 1, Dentries: []*Dentry{{Name: "sub", Kind: DentryPrimary, Inode: parentInode}}}

	c.InstallSubtree(1, root)

	_, ok := c.GetDir(2)
	assert.True(t, ok)
	_, ok = c.GetInode(2)
	assert.True(t, ok)
	parent, ok := c.ParentOf(2)
	assert.True(t, ok)
	assert.Equal(t, ids.InodeID(1), parent)
}

func TestAddAmbiguousImportRecordsBounds(t *testing.T) {
	c := NewMemCache(0, nil)
	root := ids.InodeID(5)
	c.AddAmbiguousImport(root, []ids.InodeID{6, 7})
	got := c.AmbiguousImports()
	assert.Equal(t, []ids.InodeID{6, 7}, got[root])
}

func TestIsRootAndIsHashed(t *testing.T) {
	c := NewMemCache(9, nil)
	assert.True(t, c.IsRoot(9))
	assert.False(t, c.IsRoot(10))

	assert.False(t, c.IsHashed(10))
	c.SetHashed(10, true)
	assert.True(t, c.IsHashed(10))
}
