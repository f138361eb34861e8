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

package journal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tgres-mds/migrator/ids"
)

func TestMemJournalAppendOrderAndCallback(t *testing.T) {
	var fired []int
	j := NewMemJournal(nil)

	j.SubmitEntry(Event{Kind: EExport, Root: 1}, func() { fired = append(fired, 1) })
	j.SubmitEntry(Event{Kind: EImportStart, Root: 2}, func() { fired = append(fired, 2) })

	assert.Equal(t, []int{1, 2}, fired)
	events := j.Events()
	assert.Len(t, events, 2)
	assert.Equal(t, EExport, events[0].Kind)
	assert.Equal(t, EImportStart, events[1].Kind)
}

func TestMemJournalEventsReturnsSnapshot(t *testing.T) {
	j := NewMemJournal(nil)
	j.SubmitEntry(Event{Kind: EExport, Root: 1}, func() {})
	snap := j.Events()
	snap[0].Root = 999
	assert.Equal(t, ids.InodeID(1), j.Events()[0].Root)
}

func TestReplayAuthorityCommittedImportReturnsRecordedPeer(t *testing.T) {
	root := ids.InodeID(7)
	exporterLog := []Event{{Kind: EExport, Root: root, Peer: 2}}
	importerLog := []Event{
		{Kind: EImportStart, Root: root, Peer: 2},
		{Kind: EImportFinish, Root: root, Peer: 2, Committed: true},
	}
	primary, ambiguous, secondary := ReplayAuthority(root, ids.MDSID(1), exporterLog, importerLog)
	assert.Equal(t, ids.MDSID(2), primary)
	assert.False(t, ambiguous)
	assert.Equal(t, ids.Unknown, secondary)
}

func TestReplayAuthorityAbortedImportReturnsSelf(t *testing.T) {
	root := ids.InodeID(7)
	importerLog := []Event{
		{Kind: EImportStart, Root: root, Peer: 2},
		{Kind: EImportFinish, Root: root, Peer: 2, Committed: false},
	}
	primary, ambiguous, _ := ReplayAuthority(root, ids.MDSID(1), nil, importerLog)
	assert.Equal(t, ids.MDSID(1), primary)
	assert.False(t, ambiguous)
}

func TestReplayAuthorityExportedButNeverAckedIsAmbiguous(t *testing.T) {
	root := ids.InodeID(7)
	exporterLog := []Event{{Kind: EExport, Root: root, Peer: 2}}
	importerLog := []Event{{Kind: EImportStart, Root: root, Peer: 2}}
	primary, ambiguous, secondary := ReplayAuthority(root, ids.MDSID(1), exporterLog, importerLog)
	assert.Equal(t, ids.MDSID(1), primary)
	assert.True(t, ambiguous)
	assert.Equal(t, ids.MDSID(2), secondary)
}

func TestReplayAuthorityNoEventsIsSelfUnambiguous(t *testing.T) {
	root := ids.InodeID(7)
	primary, ambiguous, _ := ReplayAuthority(root, ids.MDSID(1), nil, nil)
	assert.Equal(t, ids.MDSID(1), primary)
	assert.False(t, ambiguous)
}
