// Copyright (C) 2026 The ORSort Authors.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package orerr defines the error taxonomy of spec.md §7: allocation,
// RNG, transport, protocol, and logic failures. Every error returned
// from the pipeline wraps one of these sentinels so callers can tell
// the kinds apart with errors.Is.
package orerr

import "errors"

var (
	// ErrAllocation marks an out-of-memory condition.
	ErrAllocation = errors.New("orsort: allocation failure")
	// ErrRNG marks a failure reading from the entropy source.
	ErrRNG = errors.New("orsort: rng failure")
	// ErrTransport marks a peer send/recv/wait that returned
	// non-OK.
	ErrTransport = errors.New("orsort: transport failure")
	// ErrProtocol marks a violation of the coordination protocol,
	// e.g. every rank reporting an empty active slice during
	// quickselect, or a message of the wrong size.
	ErrProtocol = errors.New("orsort: protocol failure")
	// ErrLogic marks a failed internal invariant; it is always a
	// bug, not a runtime condition a caller can recover from.
	ErrLogic = errors.New("orsort: logic failure")
)
