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

import "golang.org/x/xerrors"

// FatalError marks a cache invariant violation or an importer discover
// failure: the MDS aborts, and the journal is the source of truth on
// restart. The Migrator never recovers from one of these in-process; it
// hands it to Options.OnFatal if set, and otherwise logs it at zap's Fatal
// level, which exits the process.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string { return e.err.Error() }
func (e *FatalError) Unwrap() error { return e.err }

func fatalf(format string, args ...interface{}) *FatalError {
	return &FatalError{err: xerrors.Errorf(format, args...)}
}

// IsFatal reports whether err is a FatalError, for callers deciding
// whether to abort the process.
func IsFatal(err error) bool {
	_, ok := err.(*FatalError)
	return ok
}
