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

// Package membership implements the Migrator's narrow membership contract
// (is_degraded, is_active_or_stopping, failure fan-out) on top of
// github.com/hashicorp/memberlist: gossiped per-node metadata, a
// NodeMeta/NotifyMsg delegate, and join/leave event handling.
package membership

import (
	"strconv"
	"sync"

	"github.com/hashicorp/memberlist"
	"go.uber.org/zap"

	"github.com/tgres-mds/migrator/ids"
)

// nodeStatus is the one byte of gossiped metadata each MDS carries.
type nodeStatus byte

const (
	statusActive   nodeStatus = 0
	statusStopping nodeStatus = 1
)

// Options configures a Service.
type Options struct {
	Self      ids.MDSID
	BindAddr  string
	BindPort  int
	Logger    *zap.Logger
}

// Service is the memberlist-backed Membership implementation the Migrator
// is constructed with.
type Service struct {
	self   ids.MDSID
	ml     *memberlist.Memberlist
	log    *zap.Logger
	status nodeStatus

	mu       sync.Mutex
	degraded bool
	handler  func(ids.MDSID)

	delegate *delegate
}

// New creates a Service bound to the given address and joins no one yet;
// call Join to merge with an existing cluster.
func New(opts Options) (*Service, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Service{self: opts.Self, log: opts.Logger, status: statusActive}
	s.delegate = &delegate{svc: s}

	cfg := memberlist.DefaultLANConfig()
	cfg.Name = strconv.Itoa(int(opts.Self))
	if opts.BindAddr != "" {
		cfg.BindAddr = opts.BindAddr
	}
	if opts.BindPort != 0 {
		cfg.BindPort = opts.BindPort
	}
	cfg.Delegate = s.delegate
	cfg.Events = s.delegate
	cfg.LogOutput = &zapWriter{log: opts.Logger}

	ml, err := memberlist.Create(cfg)
	if err != nil {
		return nil, err
	}
	s.ml = ml
	return s, nil
}

// Join merges this node with an existing cluster given at least one
// member's address.
func (s *Service) Join(existing []string) error {
	_, err := s.ml.Join(existing)
	return err
}

// Shutdown leaves the cluster and tears down the memberlist instance.
func (s *Service) Shutdown() error {
	return s.ml.Shutdown()
}

// SetDegraded marks the local view of the cluster as degraded.
// ExportSubtree refuses to start new migrations while this is set.
func (s *Service) SetDegraded(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.degraded = v
}

// SetStopping updates this node's gossiped status and re-broadcasts its
// metadata.
func (s *Service) SetStopping(v bool) error {
	if v {
		s.status = statusStopping
	} else {
		s.status = statusActive
	}
	return s.ml.UpdateNode(10 * 1e9) // 10s
}

// IsDegraded implements migrator.Membership.
func (s *Service) IsDegraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// IsActiveOrStopping implements migrator.Membership: true unless mds is
// absent from the member list entirely (i.e. has actually failed).
func (s *Service) IsActiveOrStopping(mds ids.MDSID) bool {
	name := strconv.Itoa(int(mds))
	for _, n := range s.ml.Members() {
		if n.Name == name {
			return true
		}
	}
	return false
}

// RegisterFailureHandler implements migrator.Membership.
func (s *Service) RegisterFailureHandler(f func(ids.MDSID)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = f
}

func (s *Service) notifyFailure(mds ids.MDSID) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h != nil {
		h(mds)
	}
}

// delegate implements memberlist's Delegate and EventDelegate interfaces.
// NodeMeta carries the one status byte; NotifyLeave is where node
// failure/departure is translated into the Migrator's failure fan-out.
type delegate struct {
	svc *Service
}

func (d *delegate) NodeMeta(limit int) []byte {
	return []byte{byte(d.svc.status)}
}

func (d *delegate) NotifyMsg(b []byte) {}

func (d *delegate) GetBroadcasts(overhead, limit int) [][]byte { return nil }

func (d *delegate) LocalState(join bool) []byte            { return nil }
func (d *delegate) MergeRemoteState(buf []byte, join bool) {}

func (d *delegate) NotifyJoin(n *memberlist.Node) {}

func (d *delegate) NotifyLeave(n *memberlist.Node) {
	id, err := strconv.Atoi(n.Name)
	if err != nil {
		return
	}
	d.svc.log.Info("membership: peer left/failed", zap.String("name", n.Name))
	d.svc.notifyFailure(ids.MDSID(id))
}

func (d *delegate) NotifyUpdate(n *memberlist.Node) {}

// zapWriter adapts memberlist's io.Writer logging convention (it wants a
// *log.Logger) to zap.
type zapWriter struct {
	log *zap.Logger
}

func (w *zapWriter) Write(p []byte) (int, error) {
	w.log.Debug(string(p))
	return len(p), nil
}
