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
	"encoding/gob"

	"github.com/tgres-mds/migrator/cache"
	"github.com/tgres-mds/migrator/codec"
	"github.com/tgres-mds/migrator/ids"
)

func init() {
	gob.Register(ExportPrepPayload{})
	gob.Register(ExportPayload{})
	gob.Register(ExportNotifyPayload{})
	gob.Register(ackPayload{})
}

// MsgType tags every message the Migrator sends or receives. The
// hash/unhash variants are declared so the wire protocol's message space
// reserves room for the directory-hashing scheme; they are never
// constructed by this repo's export/import state machines, only
// dispatched-and-ignored by hashing.go.
type MsgType int

const (
	MsgExportDiscover MsgType = iota + 1
	MsgExportDiscoverAck
	MsgExportPrep
	MsgExportPrepAck
	MsgExportWarning
	MsgExportWarningAck
	MsgExport
	MsgExportAck
	MsgExportNotify
	MsgExportNotifyAck
	MsgExportFinish

	// Present but disabled: directory hashing/unhashing.
	MsgHashDirDiscover
	MsgHashDirDiscoverAck
	MsgHashDirPrep
	MsgHashDirPrepAck
	MsgHashDir
	MsgHashDirAck
	MsgHashDirNotify
	MsgUnhashDirPrep
	MsgUnhashDirPrepAck
	MsgUnhashDir
	MsgUnhashDirAck
	MsgUnhashDirNotify
	MsgUnhashDirNotifyAck
)

func (t MsgType) String() string {
	names := map[MsgType]string{
		MsgExportDiscover:     "EXPORT-DISCOVER",
		MsgExportDiscoverAck:  "EXPORT-DISCOVER-ACK",
		MsgExportPrep:         "EXPORT-PREP",
		MsgExportPrepAck:      "EXPORT-PREP-ACK",
		MsgExportWarning:      "EXPORT-WARNING",
		MsgExportWarningAck:   "EXPORT-WARNING-ACK",
		MsgExport:             "EXPORT",
		MsgExportAck:          "EXPORT-ACK",
		MsgExportNotify:       "EXPORT-NOTIFY",
		MsgExportNotifyAck:    "EXPORT-NOTIFY-ACK",
		MsgExportFinish:       "EXPORT-FINISH",
		MsgHashDirDiscover:    "HASH-DIR-DISCOVER",
		MsgHashDirDiscoverAck: "HASH-DIR-DISCOVER-ACK",
		MsgHashDirPrep:        "HASH-DIR-PREP",
		MsgHashDirPrepAck:     "HASH-DIR-PREP-ACK",
		MsgHashDir:            "HASH-DIR",
		MsgHashDirAck:         "HASH-DIR-ACK",
		MsgHashDirNotify:      "HASH-DIR-NOTIFY",
		MsgUnhashDirPrep:      "UNHASH-DIR-PREP",
		MsgUnhashDirPrepAck:   "UNHASH-DIR-PREP-ACK",
		MsgUnhashDir:          "UNHASH-DIR",
		MsgUnhashDirAck:       "UNHASH-DIR-ACK",
		MsgUnhashDirNotify:    "UNHASH-DIR-NOTIFY",
		MsgUnhashDirNotifyAck: "UNHASH-DIR-NOTIFY-ACK",
	}
	if n, ok := names[t]; ok {
		return n
	}
	return "UNKNOWN"
}

// Envelope is the transport-level message, tagged with the subtree root
// inode identifier.
type Envelope struct {
	Type MsgType
	Root ids.InodeID
	Src  ids.MDSID
	Body interface{}
}

// ExportPrepPayload is the EXPORT-PREP body: the root's directory discover
// record, each bound's inode identifier, the cache's trace for the root,
// an encoding of each bound directory found in the exporter's cache, and
// the bystander list. SpanningDirs does not carry the ancestor directories
// between a bound and the root.
type ExportPrepPayload struct {
	RootDiscover *codec.EncodedDir
	BoundInos    []ids.InodeID
	Trace        []cache.TraceElem
	SpanningDirs []*codec.EncodedDir
	Bystanders   []ids.MDSID
}

// ExportPayload is the EXPORT body: the bulk subtree encoding.
type ExportPayload struct {
	Bounds  []ids.InodeID
	Encoded *codec.EncodedDir
}

// ExportNotifyPayload is the EXPORT-NOTIFY body, carrying the full
// old/new authority pair and bounds for both the first and second notify.
type ExportNotifyPayload struct {
	Was, Will cache.Authority
	Bounds    []ids.InodeID
}

// ackPayload is the empty body shared by every *-ACK / *-FINISH message.
type ackPayload struct{}
