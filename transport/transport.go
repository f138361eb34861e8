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

// Package transport implements the Migrator's narrow Transport contract
// (Send(dst, Envelope) error) over net/rpc: a long-lived flate+gob encoded
// RPC call per message, with dial-on-demand client caching. The Migrator
// already serializes all of its own work through its own action queue, so
// this package doesn't need a second send-side goroutine of its own.
package transport

import (
	"bytes"
	"compress/flate"
	"encoding/gob"
	"fmt"
	"net"
	"net/rpc"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tgres-mds/migrator/ids"
	"github.com/tgres-mds/migrator/migrator"
)

// Envelope payload types register their gob names in the migrator package
// itself (messages.go's init), since ackPayload is unexported there; this
// package only needs gob for its own wireMsg wrapper.

// AddressBook resolves an MDS id to a dialable "host:port" address. A
// Membership implementation typically backs this with its own node list.
type AddressBook interface {
	AddrOf(ids.MDSID) (string, bool)
}

// wireMsg is the flate+gob envelope put on the wire: a source node id next
// to an opaque body, with Body holding an encoded migrator.Envelope.
type wireMsg struct {
	Src  int
	Body []byte
}

func (w wireMsg) bytes() []byte {
	var buf bytes.Buffer
	z, _ := flate.NewWriter(&buf, -1)
	enc := gob.NewEncoder(z)
	enc.Encode(w)
	z.Close()
	return buf.Bytes()
}

func decodeWireMsg(b []byte) (wireMsg, error) {
	var w wireMsg
	err := gob.NewDecoder(flate.NewReader(bytes.NewBuffer(b))).Decode(&w)
	return w, err
}

// Service implements migrator.Transport over net/rpc, and also answers
// inbound RPCs by dispatching into a Migrator.
type Service struct {
	self  ids.MDSID
	book  AddressBook
	log   *zap.Logger
	sink  func(migrator.Envelope)

	mu      sync.Mutex
	clients map[ids.MDSID]*rpc.Client

	listener net.Listener
}

// New constructs a Service. sink is called for every envelope received
// over RPC — normally migrator.Migrator.Dispatch.
func New(self ids.MDSID, book AddressBook, sink func(migrator.Envelope), log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{self: self, book: book, sink: sink, log: log, clients: map[ids.MDSID]*rpc.Client{}}
}

// Listen starts accepting RPC connections on addr.
func (s *Service) Listen(addr string) error {
	if err := rpc.RegisterName("Transport", &rpcHandler{s}); err != nil {
		return err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go rpc.ServeConn(conn)
		}
	}()
	return nil
}

// Close stops accepting connections and drops all cached outbound clients.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.clients {
		c.Close()
		delete(s.clients, id)
	}
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// Send implements migrator.Transport.
func (s *Service) Send(dst ids.MDSID, env migrator.Envelope) error {
	addr, ok := s.book.AddrOf(dst)
	if !ok {
		return fmt.Errorf("transport: no known address for mds %s", dst)
	}

	var body bytes.Buffer
	if err := gob.NewEncoder(&body).Encode(env); err != nil {
		return fmt.Errorf("transport: encode envelope: %w", err)
	}
	frame := wireMsg{Src: int(s.self), Body: body.Bytes()}.bytes()

	client, err := s.clientFor(dst, addr)
	if err != nil {
		return err
	}

	var replyFrame []byte
	if err := client.Call("Transport.Message", frame, &replyFrame); err != nil {
		s.mu.Lock()
		delete(s.clients, dst)
		s.mu.Unlock()
		s.log.Warn("transport: send failed, dropping cached client",
			zap.Stringer("dst", dst), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) clientFor(dst ids.MDSID, addr string) (*rpc.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[dst]; ok {
		return c, nil
	}
	conn, err := net.DialTimeout("tcp", addr, 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	c := rpc.NewClient(conn)
	s.clients[dst] = c
	return c, nil
}

// rpcHandler is the RPC-visible type that net/rpc dispatches calls onto.
type rpcHandler struct {
	s *Service
}

func (h *rpcHandler) Message(frame []byte, replyFrame *[]byte) error {
	msg, err := decodeWireMsg(frame)
	if err != nil {
		h.s.log.Error("transport: malformed frame on wire", zap.Error(err))
		return nil
	}
	var env migrator.Envelope
	if err := gob.NewDecoder(bytes.NewBuffer(msg.Body)).Decode(&env); err != nil {
		h.s.log.Error("transport: malformed envelope on wire", zap.Error(err))
		return nil
	}
	h.s.sink(env)
	*replyFrame = wireMsg{}.bytes()
	return nil
}

// staticBook is a trivial AddressBook for tests and single-process wiring.
type staticBook struct {
	addrs map[ids.MDSID]string
}

// NewStaticAddressBook builds an AddressBook from a fixed id->addr map.
func NewStaticAddressBook(addrs map[ids.MDSID]string) AddressBook {
	return &staticBook{addrs: addrs}
}

func (b *staticBook) AddrOf(id ids.MDSID) (string, bool) {
	a, ok := b.addrs[id]
	return a, ok
}
