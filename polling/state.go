// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
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

package polling

import "errors"

// LoopState is the lifecycle state of a Loop
type LoopState int32

const (
	StateStopped LoopState = iota
	StateConfiguring
	StateRunning
	StateRecovering
	StateFailed
)

func (s LoopState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateConfiguring:
		return "configuring"
	case StateRunning:
		return "running"
	case StateRecovering:
		return "recovering"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrLoopStopped is returned for commands submitted while the loop is not running
var ErrLoopStopped = errors.New("control loop is not running")
