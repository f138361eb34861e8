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

package migrator

import (
	"golang.org/x/xerrors"

	"github.com/tgres-mds/migrator/cache"
	"github.com/tgres-mds/migrator/ids"
	"github.com/tgres-mds/migrator/journal"

	"go.uber.org/zap"
)

// Options configures a Migrator through a fluent SetXxx/Xxx accessor pair
// per field, so callers can chain construction without a struct literal
// naming every field.
type Options struct {
	self        ids.MDSID
	cache       cache.Cache
	journal     journal.Journal
	transport   Transport
	membership  Membership
	balancer    Balancer
	capability  CapabilityNotifier
	logger      *zap.Logger
	actionQueue int
	onFatal     func(error)
}

// NewOptions returns an Options with safe defaults: a no-op logger and a
// reasonably sized action queue. Callers must still supply Self, Cache,
// Journal, Transport, Membership, and Balancer before constructing a
// Migrator.
func NewOptions() Options {
	return Options{
		logger:      zap.NewNop(),
		actionQueue: 256,
	}
}

func (o Options) Validate() error {
	if o.cache == nil {
		return xerrors.New("migrator: Options.Cache is required")
	}
	if o.journal == nil {
		return xerrors.New("migrator: Options.Journal is required")
	}
	if o.transport == nil {
		return xerrors.New("migrator: Options.Transport is required")
	}
	if o.membership == nil {
		return xerrors.New("migrator: Options.Membership is required")
	}
	if o.balancer == nil {
		return xerrors.New("migrator: Options.Balancer is required")
	}
	return nil
}

func (o Options) Self() ids.MDSID           { return o.self }
func (o Options) SetSelf(v ids.MDSID) Options { o.self = v; return o }

func (o Options) Cache() cache.Cache           { return o.cache }
func (o Options) SetCache(v cache.Cache) Options { o.cache = v; return o }

func (o Options) Journal() journal.Journal           { return o.journal }
func (o Options) SetJournal(v journal.Journal) Options { o.journal = v; return o }

func (o Options) TransportImpl() Transport           { return o.transport }
func (o Options) SetTransport(v Transport) Options { o.transport = v; return o }

func (o Options) MembershipImpl() Membership           { return o.membership }
func (o Options) SetMembership(v Membership) Options { o.membership = v; return o }

func (o Options) BalancerImpl() Balancer           { return o.balancer }
func (o Options) SetBalancer(v Balancer) Options { o.balancer = v; return o }

func (o Options) Capability() CapabilityNotifier           { return o.capability }
func (o Options) SetCapability(v CapabilityNotifier) Options { o.capability = v; return o }

func (o Options) Logger() *zap.Logger         { return o.logger }
func (o Options) SetLogger(v *zap.Logger) Options { o.logger = v; return o }

func (o Options) ActionQueueSize() int           { return o.actionQueue }
func (o Options) SetActionQueueSize(v int) Options { o.actionQueue = v; return o }

// OnFatal overrides how the Migrator reacts to a FatalError: cache
// invariant violations and importer discover failures that leave an MDS
// unable to continue. If unset, the Migrator logs at zap's Fatal level,
// which exits the process.
func (o Options) OnFatal() func(error)         { return o.onFatal }
func (o Options) SetOnFatal(v func(error)) Options { o.onFatal = v; return o }
