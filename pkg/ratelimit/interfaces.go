// Copyright 2025 Kadir Pekel
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

package ratelimit

import (
	"context"
	"time"
)

// Store persists request counts per (scope, identifier, window).
//
// Implementations must be thread-safe.
type Store interface {
	// IncrementUsage adds amount to identifier's usage under scope/window,
	// starting a fresh window if the previous one expired. Returns the
	// usage total after the increment.
	IncrementUsage(ctx context.Context, scope Scope, identifier string, window TimeWindow, amount int64) (int64, time.Time, error)

	// DeleteUsage clears every window's usage for an identifier.
	DeleteUsage(ctx context.Context, scope Scope, identifier string) error

	// Close releases any resources the store holds.
	Close() error
}

// Ensure interface compliance at compile time.
var _ Store = (*MemoryStore)(nil)
