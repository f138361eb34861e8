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

package transport

import (
	"bytes"
	"encoding/gob"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgres-mds/migrator/ids"
	"github.com/tgres-mds/migrator/migrator"
)

func TestWireMsgBytesRoundTrips(t *testing.T) {
	w := wireMsg{Src: 7, Body: []byte("some envelope bytes")}

	decoded, err := decodeWireMsg(w.bytes())

	require.NoError(t, err)
	assert.Equal(t, w.Src, decoded.Src)
	assert.Equal(t, w.Body, decoded.Body)
}

func TestWireMsgBytesCompresses(t *testing.T) {
	w := wireMsg{Src: 1, Body: bytes.Repeat([]byte("a"), 4096)}
	assert.Less(t, len(w.bytes()), len(w.Body))
}

func TestStaticAddressBookLookup(t *testing.T) {
	book := NewStaticAddressBook(map[ids.MDSID]string{
		ids.MDSID(1): "10.0.0.1:9000",
	})

	addr, ok := book.AddrOf(ids.MDSID(1))
	assert.True(t, ok)
	assert.Equal(t, "10.0.0.1:9000", addr)

	_, ok = book.AddrOf(ids.MDSID(2))
	assert.False(t, ok)
}

func TestRPCHandlerMessageDecodesAndDispatches(t *testing.T) {
	var received migrator.Envelope
	svc := New(ids.MDSID(1), NewStaticAddressBook(nil), func(env migrator.Envelope) {
		received = env
	}, nil)
	h := &rpcHandler{svc}

	env := migrator.Envelope{Type: migrator.MsgExportDiscover, Root: ids.InodeID(9), Src: ids.MDSID(2)}
	var body bytes.Buffer
	require.NoError(t, gob.NewEncoder(&body).Encode(env))
	frame := wireMsg{Src: 2, Body: body.Bytes()}.bytes()

	var replyFrame []byte
	err := h.Message(frame, &replyFrame)

	require.NoError(t, err)
	assert.Equal(t, env.Type, received.Type)
	assert.Equal(t, env.Root, received.Root)
	assert.Equal(t, env.Src, received.Src)

	reply, err := decodeWireMsg(replyFrame)
	require.NoError(t, err)
	assert.Equal(t, wireMsg{}, reply)
}

func TestRPCHandlerMessageOnMalformedBodyDoesNotPanicOrDispatch(t *testing.T) {
	called := false
	svc := New(ids.MDSID(1), NewStaticAddressBook(nil), func(migrator.Envelope) { called = true }, nil)
	h := &rpcHandler{svc}

	frame := wireMsg{Src: 2, Body: []byte("not gob")}.bytes()

	var replyFrame []byte
	err := h.Message(frame, &replyFrame)

	assert.NoError(t, err)
	assert.False(t, called)
}

func TestRPCHandlerMessageOnMalformedFrameDoesNotPanicOrDispatch(t *testing.T) {
	called := false
	svc := New(ids.MDSID(1), NewStaticAddressBook(nil), func(migrator.Envelope) { called = true }, nil)
	h := &rpcHandler{svc}

	var replyFrame []byte
	err := h.Message([]byte("not a frame"), &replyFrame)

	assert.NoError(t, err)
	assert.False(t, called)
}

func TestSendReturnsErrorForUnknownAddress(t *testing.T) {
	svc := New(ids.MDSID(1), NewStaticAddressBook(nil), func(migrator.Envelope) {}, nil)
	err := svc.Send(ids.MDSID(2), migrator.Envelope{Type: migrator.MsgExportDiscover})
	assert.Error(t, err)
}
