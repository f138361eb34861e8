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

// ExportPhase is one state of the exporter-side state machine. The zero
// value is never a live phase; records are only ever constructed already
// in ExportDiscovering.
type ExportPhase int

const (
	ExportDiscovering ExportPhase = iota + 1
	ExportFreezing
	ExportPrepping
	ExportWarning
	ExportExporting
	ExportLoggingFinish
	ExportNotifying
)

func (p ExportPhase) String() string {
	switch p {
	case ExportDiscovering:
		return "DISCOVERING"
	case ExportFreezing:
		return "FREEZING"
	case ExportPrepping:
		return "PREPPING"
	case ExportWarning:
		return "WARNING"
	case ExportExporting:
		return "EXPORTING"
	case ExportLoggingFinish:
		return "LOGGING_FINISH"
	case ExportNotifying:
		return "NOTIFYING"
	default:
		return "UNKNOWN"
	}
}

// ImportPhase is one state of the importer-side state machine.
type ImportPhase int

const (
	ImportDiscovered ImportPhase = iota + 1
	ImportPrepping
	ImportPrepped
	ImportLoggingStart
	ImportAcking
	ImportAborting
)

func (p ImportPhase) String() string {
	switch p {
	case ImportDiscovered:
		return "DISCOVERED"
	case ImportPrepping:
		return "PREPPING"
	case ImportPrepped:
		return "PREPPED"
	case ImportLoggingStart:
		return "LOGGING_START"
	case ImportAcking:
		return "ACKING"
	case ImportAborting:
		return "ABORTING"
	default:
		return "UNKNOWN"
	}
}
