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

package capability

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tgres-mds/migrator/ids"
)

type fakeSender struct {
	sent []Notice
	err  error
}

func (f *fakeSender) Send(client ids.MDSID, n Notice) error {
	f.sent = append(f.sent, n)
	return f.err
}

func TestNotifyStaleRecordsAndSends(t *testing.T) {
	sender := &fakeSender{}
	n := New(sender, nil)

	n.NotifyStale(ids.MDSID(5), ids.InodeID(100))

	require := assert.New(t)
	require.Len(sender.sent, 1)
	require.Equal(Stale, sender.sent[0].Kind)
	require.Equal(ids.MDSID(5), sender.sent[0].Client)
	require.Equal(ids.InodeID(100), sender.sent[0].Ino)

	history := n.History()
	require.Len(history, 1)
	require.Equal(Stale, history[0].Kind)
}

func TestNotifyReapIncludesOldAuth(t *testing.T) {
	sender := &fakeSender{}
	n := New(sender, nil)

	n.NotifyReap(ids.MDSID(5), ids.InodeID(100), ids.MDSID(9))

	history := n.History()
	assert.Len(t, history, 1)
	assert.Equal(t, Reap, history[0].Kind)
	assert.Equal(t, ids.MDSID(9), history[0].OldAuth)
}

func TestDeliverySurvivesSendError(t *testing.T) {
	sender := &fakeSender{err: errors.New("no such client")}
	n := New(sender, nil)

	assert.NotPanics(t, func() { n.NotifyStale(ids.MDSID(1), ids.InodeID(1)) })
	assert.Len(t, n.History(), 1)
}

func TestHistoryIsACopy(t *testing.T) {
	sender := &fakeSender{}
	n := New(sender, nil)
	n.NotifyStale(ids.MDSID(1), ids.InodeID(1))

	h := n.History()
	h[0].Client = 999
	assert.Equal(t, ids.MDSID(1), n.History()[0].Client)
}
